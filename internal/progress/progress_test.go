package progress

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	s := NewMemory()

	if _, ok := s.Get("missing"); ok {
		t.Error("Get on empty store reported ok")
	}

	s.Set("a", Snapshot{State: StateProcessing, Total: 10})
	snap, ok := s.Get("a")
	if !ok || snap.State != StateProcessing || snap.Total != 10 {
		t.Errorf("Get = %+v, %v", snap, ok)
	}
	if snap.UpdatedAt.IsZero() {
		t.Error("Set did not stamp UpdatedAt")
	}

	s.Set("a", Snapshot{State: StateCompleted, Progress: 100})
	snap, _ = s.Get("a")
	if snap.State != StateCompleted {
		t.Errorf("overwrite lost: %+v", snap)
	}

	s.Delete("a")
	if _, ok := s.Get("a"); ok {
		t.Error("Delete left the snapshot behind")
	}
}

func TestSnapshotJSONShape(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Snapshot{State: StateProcessing, Total: 100, Processed: 40, Progress: 40})
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	for _, key := range []string{`"status":"processing"`, `"total":100`, `"processed":40`, `"progress":40`} {
		if !strings.Contains(out, key) {
			t.Errorf("marshaled snapshot %s missing %s", out, key)
		}
	}
	// Empty result and error are omitted entirely.
	if strings.Contains(out, "result") || strings.Contains(out, "error") {
		t.Errorf("marshaled snapshot carries empty fields: %s", out)
	}
}
