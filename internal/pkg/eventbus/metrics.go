package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventbus_dispatched_total",
		Help: "Events accepted by the dispatcher.",
	}, []string{"event"})

	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventbus_rejected_total",
		Help: "Events rejected because the worker pool and queue were saturated or the dispatcher was stopped.",
	}, []string{"event"})

	handlerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventbus_handler_errors_total",
		Help: "Subscriber invocations that returned an error or panicked.",
	}, []string{"event", "subscriber"})

	queueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventbus_queue_depth",
		Help: "Events waiting in the dispatcher queue.",
	})

	workersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventbus_workers",
		Help: "Live dispatcher workers.",
	})
)
