package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"momoimport/internal/record"
)

// InsertFn abstracts a backend's insert-if-absent capability. Implementations
// insert the given transactions, skipping ids already present, and return the
// number of rows actually written. In production this is
// Repository.InsertTransactions; tests substitute fakes to verify batching.
type InsertFn func(ctx context.Context, txs []record.Transaction) (int64, error)

// CommitStats aggregates one committer run.
type CommitStats struct {
	Inserted   int64 // rows the backend reported as written
	Duplicates int64 // rows skipped as already present
	Batches    int64 // batches flushed successfully
	Failed     int64 // batches whose write errored (rows dropped, run continued)
}

// Commit drains transactions from 'in', stamps them with the session id,
// groups them into batches of 'batchSize', and flushes each batch through
// 'insert'.
//
// Failure semantics: a failed batch write is logged and skipped; processing
// continues with the next batch and prior batches are never rolled back.
// Only context cancellation aborts the run. Batches are flushed strictly in
// arrival order, which bounds memory to one batch.
//
// onFlush, when non-nil, is invoked after every successful flush with the
// inserted delta; the stream driver uses it to update the session tracker
// and the progress store.
func Commit(
	ctx context.Context,
	in <-chan record.Transaction,
	sessionID string,
	batchSize int,
	insert InsertFn,
	onFlush func(inserted int64),
) (CommitStats, error) {
	var stats CommitStats
	if batchSize <= 0 {
		return stats, fmt.Errorf("batchSize must be > 0")
	}
	if insert == nil {
		return stats, fmt.Errorf("insert must not be nil")
	}

	var (
		batch       = make([]record.Transaction, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
	)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		size := int64(len(batch))
		n, err := insert(ctx, batch)
		batch = batch[:0] // keep capacity
		if err != nil {
			stats.Failed++
			log.Printf("committer: batch write failed session=%s rows=%d err=%v", sessionID, size, err)
			return
		}

		stats.Inserted += n
		stats.Duplicates += size - n
		stats.Batches++

		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(size) / sinceLast.Seconds()
		}
		log.Printf(
			"batch #%d: rps=%.0f inserted=%d duplicates=%d total_inserted=%d elapsed=%s",
			stats.Batches, rps, n, size-n, stats.Inserted,
			now.Sub(start).Truncate(time.Millisecond),
		)
		lastFlushTS = now

		if onFlush != nil {
			onFlush(n)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()

		case tx, ok := <-in:
			if !ok {
				flush()
				log.Printf("committer: input closed session=%s inserted=%d duplicates=%d batches=%d failed=%d",
					sessionID, stats.Inserted, stats.Duplicates, stats.Batches, stats.Failed)
				return stats, nil
			}
			tx.ImportSessionID = sessionID
			batch = append(batch, tx)
			if len(batch) >= batchSize {
				flush()
			}
		}
	}
}
