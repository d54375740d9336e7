// Package session owns the import-session lifecycle: creation at the start
// of a driver run, counter updates after each batch flush, and exactly one
// finalization (success or failure).
//
// Single-writer discipline: only the stream driver and its batch committer
// mutate a given session, always through one Tracker instance. Concurrent
// runs never share a Tracker.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"momoimport/internal/record"
)

// Store is the slice of the storage repository the tracker needs. The full
// repository satisfies it.
type Store interface {
	CreateSession(ctx context.Context, s *record.Session) error
	AddImportedRows(ctx context.Context, sessionID string, delta int64) error
	FinalizeSession(ctx context.Context, s *record.Session) error
}

// Tracker mutates exactly one session record.
type Tracker struct {
	store Store
	s     record.Session
	done  bool
}

// Start creates the session record with zeroed counters. The status is
// provisionally FAILED so that a run killed mid-flight is never mistaken for
// a clean one; Finalize overwrites it.
func Start(ctx context.Context, store Store, fileName string, fileSize int64) (*Tracker, error) {
	t := &Tracker{
		store: store,
		s: record.Session{
			ID:        uuid.NewString(),
			FileName:  fileName,
			FileSize:  fileSize,
			Status:    record.StatusFailed,
			CreatedAt: time.Now(),
		},
	}
	if err := store.CreateSession(ctx, &t.s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return t, nil
}

// ID returns the session identifier.
func (t *Tracker) ID() string { return t.s.ID }

// Session returns a copy of the current session record.
func (t *Tracker) Session() record.Session { return t.s }

// RecordBatch persists the inserted-row delta from one committed batch.
func (t *Tracker) RecordBatch(ctx context.Context, insertedDelta int64) error {
	if insertedDelta == 0 {
		return nil
	}
	t.s.ImportedRows += insertedDelta
	if err := t.store.AddImportedRows(ctx, t.s.ID, insertedDelta); err != nil {
		return fmt.Errorf("record batch: %w", err)
	}
	return nil
}

// Finalize computes the terminal status from the run counters and persists
// it. Calling it after the session is already terminal is a no-op.
func (t *Tracker) Finalize(ctx context.Context, totalRows, validRows, importedRows int64) (record.Status, error) {
	if t.done {
		return t.s.Status, nil
	}
	t.s.TotalRows = totalRows
	t.s.ValidRows = validRows
	t.s.ImportedRows = importedRows
	t.s.Status = Derive(validRows, importedRows)
	t.s.FinishedAt = time.Now()
	if err := t.store.FinalizeSession(ctx, &t.s); err != nil {
		return t.s.Status, fmt.Errorf("finalize session: %w", err)
	}
	t.done = true
	return t.s.Status, nil
}

// Fail marks the session FAILED with the captured error message, preserving
// whatever counters the last successful batch update left.
func (t *Tracker) Fail(ctx context.Context, errMsg string) error {
	if t.done {
		return nil
	}
	t.s.Status = record.StatusFailed
	t.s.ErrorMessage = errMsg
	t.s.FinishedAt = time.Now()
	if err := t.store.FinalizeSession(ctx, &t.s); err != nil {
		return fmt.Errorf("fail session: %w", err)
	}
	t.done = true
	return nil
}

// Derive is the status rule, applied identically by every upload mode:
// SUCCESS iff every valid row was imported and there was at least one;
// otherwise PARTIAL when anything landed; otherwise FAILED.
func Derive(validRows, importedRows int64) record.Status {
	switch {
	case importedRows == validRows && validRows > 0:
		return record.StatusSuccess
	case importedRows > 0:
		return record.StatusPartial
	default:
		return record.StatusFailed
	}
}
