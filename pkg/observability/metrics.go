// Package observability provides logging and metrics capabilities for ycheck.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics namespace for all ycheck metrics.
const metricsNamespace = "ycheck"

// Event metrics.
var (
	// EventsDispatchedTotal counts callback dispatches by domain and event kind.
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_dispatched_total",
			Help:      "Total number of event callback dispatches",
		},
		[]string{"domain", "kind"},
	)
)

// Scenario metrics.
var (
	// ConclusionsRaisedTotal counts raised findings by domain and kind
	// (issue or bug).
	ConclusionsRaisedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "conclusions_raised_total",
			Help:      "Total number of conclusions that raised a finding",
		},
		[]string{"domain", "kind"},
	)

	// ScenariosRunTotal counts evaluated scenarios by domain.
	ScenariosRunTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scenarios_run_total",
			Help:      "Total number of scenarios evaluated",
		},
		[]string{"domain"},
	)
)

// Search metrics.
var (
	// SearchDuration measures the duration of one search fan-out in seconds.
	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of search fan-outs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	// SearchFilesTotal counts input sources scanned by the search backend.
	SearchFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "search_files_total",
			Help:      "Total number of input sources scanned",
		},
	)
)

// Analysis metrics.
var (
	// AnalysisDuration measures the duration of one domain pass in seconds.
	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of a domain analysis pass in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"domain"},
	)
)

func init() {
	// Register all metrics with the default registry.
	prometheus.MustRegister(
		EventsDispatchedTotal,
		ConclusionsRaisedTotal,
		ScenariosRunTotal,
		SearchDuration,
		SearchFilesTotal,
		AnalysisDuration,
	)
}

// WriteTextfile writes the default registry to path in the node_exporter
// textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
