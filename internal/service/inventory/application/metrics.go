package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stockMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_stock_mutations_total",
		Help: "Atomic stock mutations by operation and result.",
	}, []string{"op", "result"})

	aggregateSyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_aggregate_syncs_total",
		Help: "Product aggregate recomputations by result.",
	}, []string{"result"})

	recoveryRecordsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_recovery_records_created_total",
		Help: "Recovery records written to the ledger.",
	}, []string{"kind", "reason"})

	recoveryRecordsResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_recovery_records_resolved_total",
		Help: "Recovery records resolved by the sweep.",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_recovery_sweep_duration_seconds",
		Help:    "Duration of a recovery sweep.",
		Buckets: prometheus.DefBuckets,
	})

	lowStockAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_low_stock_alerts_total",
		Help: "Low stock rule matches.",
	}, []string{"product_id"})
)
