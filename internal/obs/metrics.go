package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_db_operations_total",
			Help: "Total number of database operations.",
		},
		[]string{"engine", "entity", "operation", "status"},
	)

	dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "badge_db_operation_duration_seconds",
			Help:    "Database operation latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine", "entity", "operation"},
	)

	dbConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "badge_db_connected",
			Help: "Whether the engine connection is currently established.",
		},
		[]string{"engine"},
	)

	dbConnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_db_connect_attempts_total",
			Help: "Connection attempts per engine, including retries.",
		},
		[]string{"engine", "status"},
	)
)

// Init registers the database metrics in the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(dbOperationsTotal, dbOperationDuration, dbConnected, dbConnectAttempts)
	})
}

// SetConnected records the engine's connection state.
func SetConnected(engine string, connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	dbConnected.WithLabelValues(engine).Set(value)
}

// CountConnectAttempt records one connection attempt outcome.
func CountConnectAttempt(engine string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	dbConnectAttempts.WithLabelValues(engine, status).Inc()
}
