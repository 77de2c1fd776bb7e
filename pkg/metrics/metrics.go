package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "factory"

var (
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Total number of worker dispatches, labeled by worker and outcome.",
		},
		[]string{"worker", "outcome"},
	)

	DispatchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time from dispatch to settle or timeout (seconds).",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"worker"},
	)

	EvidenceAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_appended_total",
			Help:      "Total number of evidence entries appended, labeled by entry type.",
		},
		[]string{"type"},
	)

	WorkUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_units_total",
			Help:      "Work units processed by the builder, labeled by resulting status.",
		},
		[]string{"status"},
	)

	AssetChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_checks_total",
			Help:      "Asset dimension checks, labeled by platform and result.",
		},
		[]string{"platform", "result"},
	)

	GateResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_results_total",
			Help:      "Gate results recorded at the end of a run, labeled by gate and result.",
		},
		[]string{"gate", "result"},
	)
)

// Dispatch outcome labels.
const (
	OutcomeDone                = "done"
	OutcomeFailed              = "failed"
	OutcomeTimeout             = "timeout"
	OutcomeMissingPrecondition = "missing_precondition"
	OutcomeNotFound            = "not_found"
	OutcomePanic               = "panic"
)

func init() {
	prometheus.MustRegister(
		DispatchTotal,
		DispatchDurationSeconds,
		EvidenceAppendedTotal,
		WorkUnitsTotal,
		AssetChecksTotal,
		GateResultsTotal,
	)
}
