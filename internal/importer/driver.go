// Package importer drives a full CSV ingestion run: acquire input, resolve
// columns, normalize and validate each row, commit valid rows in batches,
// and keep the import session record honest throughout.
//
// The run is a fixed progression: limits check, header resolution, row
// streaming, final batch flush, finalization. Per-row problems never abort
// the stream; only storage-level or resource-limit failures do.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"momoimport/internal/columns"
	"momoimport/internal/csvio"
	"momoimport/internal/metrics"
	"momoimport/internal/progress"
	"momoimport/internal/record"
	"momoimport/internal/session"
	"momoimport/internal/store"
)

// InputError is a fast-fail rejection raised before any session side effects:
// wrong file type, size/row limits, empty file, unusable header. The HTTP
// layer maps it to a 400 with the diagnostic context attached.
type InputError struct {
	Reason           string
	AvailableColumns []string
	SampleRow        map[string]string
}

func (e *InputError) Error() string { return e.Reason }

// Result is the final summary of one driver run. The JSON field names match
// the import response bodies so the polling endpoint can embed a Result
// directly.
type Result struct {
	SessionID     string        `json:"importSessionId"`
	FileName      string        `json:"fileName"`
	TotalRows     int64         `json:"totalRows"`
	ValidRows     int64         `json:"validTransactions"`
	Inserted      int64         `json:"insertedTransactions"`
	Duplicates    int64         `json:"duplicatesIgnored"`
	FailedBatches int64         `json:"failedBatches"`
	Status        record.Status `json:"status"`
}

// Driver executes imports for one mode against one repository.
type Driver struct {
	Mode ModeConfig
	Repo store.Repository

	// Progress receives in-flight snapshots when set; only the async entry
	// point wires it.
	Progress progress.Store

	// CSV tunes input acquisition (delimiter, encoding).
	CSV csvio.Options

	progressID string
}

// allowed upload extensions; empty file names (pre-parsed row bodies) skip
// the check.
var allowedExts = map[string]bool{".csv": true, ".txt": true}

// Run imports one CSV stream. Fast-fail rejections return *InputError and
// leave no session behind; anything after session creation finalizes the
// session, as SUCCESS/PARTIAL on a clean run or FAILED on a fatal error.
func (d *Driver) Run(ctx context.Context, src io.Reader, fileName string, fileSize int64) (*Result, error) {
	if err := d.checkLimits(fileName, fileSize); err != nil {
		return nil, err
	}

	if d.Mode.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Mode.Timeout)
		defer cancel()
	}

	cr, err := csvio.NewReader(src, d.CSV)
	if err != nil {
		return nil, &InputError{Reason: err.Error()}
	}

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, &InputError{Reason: "file is empty"}
		}
		return nil, &InputError{Reason: fmt.Sprintf("unreadable header: %v", err)}
	}

	mapping := columns.Resolve(header)
	if missing := mapping.Missing(columns.Critical()...); len(missing) > 0 {
		if !d.Mode.PositionalFallback {
			return nil, &InputError{
				Reason:           fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
				AvailableColumns: mapping.Raw(),
				SampleRow:        sampleRow(cr, mapping.Raw()),
			}
		}
		mapping = columns.Positional()
	}

	// Peek one data row so a header-only file is rejected before any
	// session side effects.
	first, err := cr.Read()
	if err == io.EOF {
		return nil, &InputError{Reason: "no data rows after header", AvailableColumns: mapping.Raw()}
	}

	replayed := false
	next := func() ([]string, error) {
		if !replayed {
			replayed = true
			return first, err
		}
		return cr.Read()
	}
	return d.stream(ctx, next, mapping, fileName, fileSize)
}

// RunRows imports a body of pre-parsed rows (header→value maps). Limits on
// row count are enforced up front since the count is known.
func (d *Driver) RunRows(ctx context.Context, rows []map[string]string, fileName string, fileSize int64) (*Result, error) {
	if len(rows) == 0 {
		return nil, &InputError{Reason: "no rows in request body"}
	}
	if d.Mode.MaxRows > 0 && int64(len(rows)) > d.Mode.MaxRows {
		return nil, &InputError{Reason: fmt.Sprintf("row count %d exceeds limit %d", len(rows), d.Mode.MaxRows)}
	}
	if d.Mode.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Mode.Timeout)
		defer cancel()
	}

	header := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		header = append(header, k)
	}
	mapping := columns.Resolve(header)
	if missing := mapping.Missing(columns.Critical()...); len(missing) > 0 && !d.Mode.PositionalFallback {
		return nil, &InputError{
			Reason:           fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
			AvailableColumns: mapping.Raw(),
			SampleRow:        rows[0],
		}
	}

	ix := 0
	next := func() ([]string, error) {
		if ix >= len(rows) {
			return nil, io.EOF
		}
		row := rows[ix]
		ix++
		rec := make([]string, len(header))
		for i, h := range header {
			rec[i] = row[h]
		}
		return rec, nil
	}
	return d.stream(ctx, next, mapping, fileName, fileSize)
}

// runCounters aggregates per-row outcomes. The reader goroutine writes while
// the committer's flush hook reads for progress publication, hence atomics.
type runCounters struct {
	total       atomic.Int64
	parseErrors atomic.Int64
	rejected    atomic.Int64
	valid       atomic.Int64
}

// stream is the shared core: session creation, the reader/committer pair,
// and finalization.
func (d *Driver) stream(
	ctx context.Context,
	next func() ([]string, error),
	mapping columns.Mapping,
	fileName string,
	fileSize int64,
) (*Result, error) {
	started := time.Now()

	tracker, err := session.Start(ctx, d.Repo, fileName, fileSize)
	if err != nil {
		return nil, fmt.Errorf("start import session: %w", err)
	}
	log.Printf("import: mode=%s session=%s file=%q size=%d", d.Mode.Name, tracker.ID(), fileName, fileSize)

	var (
		cnt   runCounters
		stats store.CommitStats
		out   = make(chan record.Transaction, d.Mode.BatchSize)
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		stats, err = store.Commit(gctx, out, tracker.ID(), d.Mode.BatchSize, d.Repo.InsertTransactions, func(inserted int64) {
			// Tracker update failures are batch-level: log and move on.
			if err := tracker.RecordBatch(gctx, inserted); err != nil {
				log.Printf("import: session counter update failed: %v", err)
			}
			d.publish(progress.Snapshot{
				State:     progress.StateProcessing,
				Total:     cnt.total.Load(),
				Processed: tracker.Session().ImportedRows,
				Progress:  ratio(tracker.Session().ImportedRows, cnt.total.Load()),
			})
		})
		return err
	})

	g.Go(func() error {
		defer close(out)
		norm := d.Mode.normalizer()
		var seen *store.SeenSet
		if d.Mode.IntraFileDedup {
			seen = store.NewSeenSet(0)
		}

		const logEveryN = 50_000
		for {
			rec, err := next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				// Malformed line: count it, skip it, keep going.
				cnt.total.Add(1)
				cnt.parseErrors.Add(1)
				continue
			}

			total := cnt.total.Add(1)
			if d.Mode.MaxRows > 0 && total > d.Mode.MaxRows {
				return fmt.Errorf("row limit exceeded: more than %d data rows", d.Mode.MaxRows)
			}
			if total%logEveryN == 0 {
				log.Printf("reader: session=%s rows=%d valid=%d", tracker.ID(), total, cnt.valid.Load())
			}

			res, rej := norm.Row(rec, mapping)
			if rej != nil {
				cnt.rejected.Add(1)
				continue
			}
			if ok, _ := d.Mode.Policy.Check(res); !ok {
				cnt.rejected.Add(1)
				continue
			}
			cnt.valid.Add(1)

			if seen != nil {
				res.Tx.TransactionID = seen.Disambiguate(res.Tx.TransactionID)
			}

			select {
			case out <- res.Tx:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	if err := g.Wait(); err != nil {
		// The run context may already be dead; the failure record must still
		// be written.
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if ferr := tracker.Fail(failCtx, err.Error()); ferr != nil {
			log.Printf("import: marking session failed also failed: %v", ferr)
		}
		d.publish(progress.Snapshot{
			State: progress.StateError,
			Total: cnt.total.Load(),
			Error: err.Error(),
		})
		metrics.RecordRun(d.Mode.Name, string(record.StatusFailed), time.Since(started))
		return nil, fmt.Errorf("import session %s: %w", tracker.ID(), err)
	}

	status, err := tracker.Finalize(ctx, cnt.total.Load(), cnt.valid.Load(), stats.Inserted)
	if err != nil {
		return nil, err
	}

	res := &Result{
		SessionID:     tracker.ID(),
		FileName:      fileName,
		TotalRows:     cnt.total.Load(),
		ValidRows:     cnt.valid.Load(),
		Inserted:      stats.Inserted,
		Duplicates:    stats.Duplicates,
		FailedBatches: stats.Failed,
		Status:        status,
	}

	d.publish(progress.Snapshot{
		State:     progress.StateCompleted,
		Total:     res.TotalRows,
		Processed: res.Inserted,
		Progress:  100,
		Result:    res,
	})

	metrics.RecordRows(d.Mode.Name, "total", res.TotalRows)
	metrics.RecordRows(d.Mode.Name, "parse_error", cnt.parseErrors.Load())
	metrics.RecordRows(d.Mode.Name, "rejected", cnt.rejected.Load())
	metrics.RecordRows(d.Mode.Name, "inserted", res.Inserted)
	metrics.RecordRows(d.Mode.Name, "duplicate", res.Duplicates)
	metrics.RecordBatches(d.Mode.Name, stats.Batches)
	metrics.RecordRun(d.Mode.Name, string(status), time.Since(started))

	log.Printf("import: done session=%s status=%s total=%d valid=%d inserted=%d duplicates=%d elapsed=%s",
		res.SessionID, status, res.TotalRows, res.ValidRows, res.Inserted, res.Duplicates,
		time.Since(started).Truncate(time.Millisecond))
	return res, nil
}

func (d *Driver) checkLimits(fileName string, fileSize int64) error {
	if fileName != "" {
		if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" && !allowedExts[ext] {
			return &InputError{Reason: fmt.Sprintf("unsupported file type %q, expected .csv", ext)}
		}
	}
	if d.Mode.MaxBytes > 0 && fileSize > d.Mode.MaxBytes {
		return &InputError{Reason: fmt.Sprintf("file size %d exceeds limit %d bytes", fileSize, d.Mode.MaxBytes)}
	}
	return nil
}

func (d *Driver) publish(s progress.Snapshot) {
	if d.Progress == nil || d.progressID == "" {
		return
	}
	d.Progress.Set(d.progressID, s)
}

// sampleRow reads one data row for the 400 diagnostic payload. Best effort:
// the row is discarded afterwards since the import is aborting anyway.
func sampleRow(r interface{ Read() ([]string, error) }, header []string) map[string]string {
	rec, err := r.Read()
	if err != nil {
		return nil
	}
	out := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(rec) {
			out[h] = rec[i]
		}
	}
	return out
}

func ratio(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// IsInputError reports whether err is a fast-fail input rejection and
// returns it when so.
func IsInputError(err error) (*InputError, bool) {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
