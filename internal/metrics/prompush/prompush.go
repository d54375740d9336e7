// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Import runs are short-lived batch jobs, so metrics are pushed to a
// Pushgateway at the end of a run instead of being exposed on a scrape
// endpoint. All Prometheus-specific dependencies live here; the pipeline
// depends only on metrics.Backend and can swap to alternative systems
// (Datadog, StatsD) without changes.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"momoimport/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	rowCounter   *prometheus.CounterVec // "import_rows_total"
	batchCounter *prometheus.CounterVec // "import_batches_total"
	runCounter   *prometheus.CounterVec // "import_runs_total"
	runDuration  *prometheus.SummaryVec // "import_run_duration_seconds"
}

// NewBackend constructs a Pushgateway backend. jobName is the Pushgateway
// "job" grouping key; empty defaults to "momoimport".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "momoimport"
	}

	reg := prometheus.NewRegistry()

	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_rows_total",
			Help: "Row-level counts per upload mode and kind (total, parse_error, rejected, inserted, duplicate).",
		},
		[]string{"mode", "kind"},
	)
	batchCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_batches_total",
			Help: "Total number of committed batches per upload mode.",
		},
		[]string{"mode"},
	)
	runCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_runs_total",
			Help: "Completed import runs, partitioned by mode and terminal status.",
		},
		[]string{"mode", "status"},
	)
	runDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "import_run_duration_seconds",
			Help:       "Wall-clock duration of import runs, partitioned by mode and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"mode", "status"},
	)

	for _, c := range []prometheus.Collector{rowCounter, batchCounter, runCounter, runDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}

	return &Backend{
		gatewayURL:   gatewayURL,
		jobName:      jobName,
		reg:          reg,
		rowCounter:   rowCounter,
		batchCounter: batchCounter,
		runCounter:   runCounter,
		runDuration:  runDuration,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "import_rows_total":
		b.rowCounter.WithLabelValues(labels["mode"], labels["kind"]).Add(delta)
	case "import_batches_total":
		b.batchCounter.WithLabelValues(labels["mode"]).Add(delta)
	case "import_runs_total":
		b.runCounter.WithLabelValues(labels["mode"], labels["status"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "import_run_duration_seconds" {
		return
	}
	b.runDuration.WithLabelValues(labels["mode"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
