package importer

import (
	"context"
	"io"
	"log"

	"github.com/google/uuid"

	"momoimport/internal/progress"
)

// StartAsync runs an import in the background, detached from the caller's
// request lifetime, and returns an opaque import id for the polling
// read-path. The driver's Progress store must be set.
//
// src must stay readable after the caller returns (the HTTP layer spools
// uploads to a temp file before calling this); cleanup, when non-nil, runs
// once the background run finishes.
func (d *Driver) StartAsync(src io.Reader, fileName string, fileSize int64, cleanup func()) string {
	id := uuid.NewString()

	runner := *d
	runner.progressID = id
	runner.Progress.Set(id, progress.Snapshot{State: progress.StateProcessing})

	go func() {
		if cleanup != nil {
			defer cleanup()
		}
		// Deliberately not the request context: the upload response has
		// already gone out. The mode's own timeout still applies.
		if _, err := runner.Run(context.Background(), src, fileName, fileSize); err != nil {
			// Run already published a row-count-bearing error snapshot for
			// fatal failures. Input rejections happen before any publishing,
			// so only those need a snapshot here.
			if _, ok := IsInputError(err); ok {
				runner.Progress.Set(id, progress.Snapshot{State: progress.StateError, Error: err.Error()})
			}
			log.Printf("import: async run %s failed: %v", id, err)
		}
	}()
	return id
}
