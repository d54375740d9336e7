// Package progress tracks in-flight asynchronous imports for the polling
// endpoint. The store is an explicit abstraction so the in-memory default
// can be swapped for a distributed backend without touching the driver.
//
// Contract: snapshots are ephemeral and process-lifetime only. Restarting
// the server forgets every in-flight import; callers must treat a missing
// id as expired, not as an error in their own bookkeeping.
package progress

import (
	"sync"
	"time"
)

// State is the coarse lifecycle of one asynchronous import.
type State string

const (
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// Snapshot is what the polling read-path returns for one import id.
type Snapshot struct {
	State     State     `json:"status"`
	Total     int64     `json:"total"`     // rows seen so far (grows while streaming)
	Processed int64     `json:"processed"` // rows committed so far
	Progress  float64   `json:"progress"`  // 0..100, best effort
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"-"`
}

// Store is the key→snapshot contract the driver publishes through.
type Store interface {
	Set(id string, s Snapshot)
	Get(id string) (Snapshot, bool)
	Delete(id string)
}

// Memory is the default Store: a mutex-guarded map. One background driver
// writes while one polling reader reads, so a plain RWMutex suffices.
type Memory struct {
	mu sync.RWMutex
	m  map[string]Snapshot
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]Snapshot)}
}

// Set stores the snapshot for id, stamping UpdatedAt.
func (s *Memory) Set(id string, snap Snapshot) {
	snap.UpdatedAt = time.Now()
	s.mu.Lock()
	s.m[id] = snap
	s.mu.Unlock()
}

// Get returns the snapshot for id, if any.
func (s *Memory) Get(id string) (Snapshot, bool) {
	s.mu.RLock()
	snap, ok := s.m[id]
	s.mu.RUnlock()
	return snap, ok
}

// Delete forgets id.
func (s *Memory) Delete(id string) {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
}
