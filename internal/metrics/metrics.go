// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the import pipeline.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It mirrors the storage abstraction pattern used elsewhere in the
//     project (store.Repository): the pipeline depends on this interface
//     while concrete metric systems stay isolated in subpackages.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordRows increments the row-level counter for one upload mode.
//
// Typical kinds mirror the import summary fields:
//   - "total"       every non-empty data line seen
//   - "parse_error" lines the CSV reader could not parse
//   - "rejected"    rows the validator refused
//   - "inserted"    rows actually persisted
//   - "duplicate"   rows skipped as already present
func RecordRows(mode, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("import_rows_total", float64(delta), Labels{
		"mode": mode,
		"kind": kind,
	})
}

// RecordBatches increments the flushed-batch counter for one upload mode.
func RecordBatches(mode string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("import_batches_total", float64(delta), Labels{
		"mode": mode,
	})
}

// RecordRun records one completed driver run: its terminal status and
// wall-clock duration.
func RecordRun(mode, status string, d time.Duration) {
	lbls := Labels{"mode": mode, "status": status}
	backend.IncCounter("import_runs_total", 1, lbls)
	backend.ObserveHistogram("import_run_duration_seconds", d.Seconds(), lbls)
}
