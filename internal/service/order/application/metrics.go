package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Order placement attempts by result.",
	}, []string{"result"})

	orderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order status changes by operation and target state.",
	}, []string{"op", "to"})
)

func placementResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isInsufficient(err):
		return "insufficient_stock"
	case isSystem(err):
		return "system_error"
	default:
		return "rejected"
	}
}
