// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for the cycle engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation outcomes used as the status label.
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// =============================================================================
// OPERATION METRICS
// =============================================================================

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proact_operations_total",
			Help: "Total number of cycle operations",
		},
		[]string{"operation", "status"}, // status: success, rejected, error
	)

	operationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proact_operation_duration_seconds",
			Help:    "Cycle operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation"},
	)
)

// =============================================================================
// LIFECYCLE METRICS
// =============================================================================

var (
	cyclesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proact_cycles_created_total",
			Help: "Total number of cycles created",
		},
		[]string{"kind"}, // kind: root, branch
	)

	componentTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proact_component_transitions_total",
			Help: "Total number of stage status transitions",
		},
		[]string{"component", "status"},
	)

	retentionArchivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proact_retention_archived_total",
			Help: "Total number of completed cycles archived by the retention sweep",
		},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordOperation records the outcome and latency of one service operation.
func RecordOperation(operation, status string, d time.Duration) {
	operationsTotal.WithLabelValues(operation, status).Inc()
	operationDurationSeconds.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordCycleCreated counts a new cycle. branch distinguishes branches from roots.
func RecordCycleCreated(branch bool) {
	kind := "root"
	if branch {
		kind = "branch"
	}
	cyclesCreatedTotal.WithLabelValues(kind).Inc()
}

// RecordTransition counts a stage entering status.
func RecordTransition(component, status string) {
	componentTransitionsTotal.WithLabelValues(component, status).Inc()
}

// RecordRetentionArchived adds n cycles archived by a retention sweep.
func RecordRetentionArchived(n int) {
	if n > 0 {
		retentionArchivedTotal.Add(float64(n))
	}
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
