// Package metrics exposes the engine's Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DocumentsScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragshield",
			Name:      "documents_scanned_total",
			Help:      "Documents scored, labeled by decision",
		},
		[]string{"decision"},
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragshield",
			Name:      "scan_duration_seconds",
			Help:      "End-to-end scoring duration per document",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	ExtractorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragshield",
			Name:      "extractor_failures_total",
			Help:      "Extractor failures, labeled by extractor kind",
		},
		[]string{"extractor"},
	)

	IndeterminateDocuments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragshield",
			Name:      "indeterminate_documents_total",
			Help:      "Documents that produced no verdict due to incomplete evidence",
		},
	)

	QuarantineTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragshield",
			Name:      "quarantine_transitions_total",
			Help:      "Remediation state transitions, labeled by target state",
		},
		[]string{"to_state"},
	)

	QuarantineActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragshield",
			Name:      "quarantine_active_records",
			Help:      "Quarantine records not yet in a terminal state",
		},
	)
)

var registered bool

// Register registers all collectors with the default registry.
// Must be called once from main.
func Register() {
	if registered {
		return
	}
	registered = true
	prometheus.MustRegister(
		DocumentsScanned,
		ScanDuration,
		ExtractorFailures,
		IndeterminateDocuments,
		QuarantineTransitions,
		QuarantineActive,
	)
}
