// Package prompush_test contains unit tests for the prompush package.
package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"momoimport/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec for assertions in tests.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	if m.GetSummary() == nil {
		t.Fatalf("metric did not contain Summary value")
	}
	sum := m.GetSummary()
	return sum.GetSampleCount(), sum.GetSampleSum()
}

// TestNewBackend constructs backends with different inputs and validates
// field initialization, defaults, and basic metric usability.
func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{
			name:       "missing gateway URL returns error",
			jobName:    "import-job",
			gatewayURL: "",
			wantErr:    true,
		},
		{
			name:        "empty job name uses default",
			jobName:     "",
			gatewayURL:  "http://pushgateway:9091",
			wantErr:     false,
			wantJobName: "momoimport",
		},
		{
			name:        "explicit job name is preserved",
			jobName:     "my-custom-job",
			gatewayURL:  "http://pushgateway:9091",
			wantErr:     false,
			wantJobName: "my-custom-job",
		},
	}

	for _, tt := range tests {
		tt := tt // capture
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewBackend(%q, %q) error = nil, want non-nil", tt.jobName, tt.gatewayURL)
				}
				if b != nil {
					t.Fatalf("NewBackend(%q, %q) backend = %v, want nil", tt.jobName, tt.gatewayURL, b)
				}
				return
			}

			if err != nil {
				t.Fatalf("NewBackend(%q, %q) error = %v, want nil", tt.jobName, tt.gatewayURL, err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("backend.jobName = %q, want %q", b.jobName, tt.wantJobName)
			}
			if b.gatewayURL != tt.gatewayURL {
				t.Fatalf("backend.gatewayURL = %q, want %q", b.gatewayURL, tt.gatewayURL)
			}

			// Metric label cardinality: these calls should not panic.
			b.rowCounter.WithLabelValues("standard", "inserted").Add(1)
			b.batchCounter.WithLabelValues("standard").Add(1)
			b.runCounter.WithLabelValues("standard", "SUCCESS").Add(1)
			b.runDuration.WithLabelValues("standard", "SUCCESS").Observe(0.5)
		})
	}
}

// TestIncCounter verifies that IncCounter routes updates to the correct
// Prometheus collectors and ignores unknown metric names.
func TestIncCounter(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("job", "http://pushgateway:9091")
	if err != nil {
		t.Fatalf("NewBackend error = %v", err)
	}

	b.IncCounter("import_rows_total", 3, metrics.Labels{"mode": "standard", "kind": "inserted"})
	b.IncCounter("import_rows_total", 2, metrics.Labels{"mode": "standard", "kind": "inserted"})
	b.IncCounter("import_batches_total", 4, metrics.Labels{"mode": "dedup"})
	b.IncCounter("import_runs_total", 1, metrics.Labels{"mode": "lenient", "status": "PARTIAL"})
	b.IncCounter("something_unknown_total", 99, metrics.Labels{})

	if got := readCounterValue(t, b.rowCounter.WithLabelValues("standard", "inserted")); got != 5 {
		t.Fatalf("rowCounter value = %v, want 5", got)
	}
	if got := readCounterValue(t, b.batchCounter.WithLabelValues("dedup")); got != 4 {
		t.Fatalf("batchCounter value = %v, want 4", got)
	}
	if got := readCounterValue(t, b.runCounter.WithLabelValues("lenient", "PARTIAL")); got != 1 {
		t.Fatalf("runCounter value = %v, want 1", got)
	}
}

// TestObserveHistogram verifies duration routing and that unknown names are
// ignored.
func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("job", "http://pushgateway:9091")
	if err != nil {
		t.Fatalf("NewBackend error = %v", err)
	}

	b.ObserveHistogram("import_run_duration_seconds", 1.5, metrics.Labels{"mode": "standard", "status": "SUCCESS"})
	b.ObserveHistogram("import_run_duration_seconds", 2.5, metrics.Labels{"mode": "standard", "status": "SUCCESS"})
	b.ObserveHistogram("unrelated_seconds", 9, metrics.Labels{"mode": "standard", "status": "SUCCESS"})

	count, sum := readSummaryCountSum(t, b.runDuration, "standard", "SUCCESS")
	if count != 2 {
		t.Fatalf("sample count = %d, want 2", count)
	}
	if sum < 4.0-0.001 || sum > 4.0+0.001 {
		t.Fatalf("sample sum = %v, want ~4.0", sum)
	}
}

// TestFlush pushes to a fake Pushgateway and verifies the request shape.
func TestFlush(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("flush-job", srv.URL)
	if err != nil {
		t.Fatalf("NewBackend error = %v", err)
	}
	b.IncCounter("import_rows_total", 7, metrics.Labels{"mode": "standard", "kind": "total"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush error = %v", err)
	}
	if gotPath != "/metrics/job/flush-job" {
		t.Fatalf("pushed to %q, want /metrics/job/flush-job", gotPath)
	}
	if len(gotBody) == 0 {
		t.Fatal("empty push body")
	}
}
