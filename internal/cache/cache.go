// Package cache persists video records between runs.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/marco/videomap/internal/video"
)

// Groups maps a canonical directory to the records found in it.
type Groups map[string][]*video.Record

// Len returns the total number of records across all groups.
func (g Groups) Len() int {
	n := 0
	for _, recs := range g {
		n += len(recs)
	}
	return n
}

// Store defines the durable record store used by the index.
type Store interface {
	// Load returns every record whose path lies under root, or is root
	// itself, grouped by directory. It never fails: problems are logged and
	// an empty or partial result is returned.
	Load(ctx context.Context, root string) Groups

	// Save upserts records keyed by full path in a single transaction.
	Save(ctx context.Context, records []*video.Record) error

	// Remove deletes the records stored under the given full paths.
	Remove(ctx context.Context, paths []string) error

	// RecordRun appends an entry to the scan history.
	RecordRun(ctx context.Context, run RunRecord) error

	// Runs returns the most recent scan history entries, newest first.
	Runs(ctx context.Context, limit int) ([]RunRecord, error)

	// Close releases resources.
	Close() error
}

// RunRecord is one entry in the scan history.
type RunRecord struct {
	ID          string
	Root        string
	StartedAt   time.Time
	FinishedAt  time.Time
	Directories int
	Probed      int
	Fresh       int
	Failed      int
	Pruned      int
}

// Duration is the wall time of the run.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// StorageError reports a failed store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Nop is a Store that keeps nothing. It is used when caching is disabled or
// the database cannot be opened.
type Nop struct{}

func (Nop) Load(context.Context, string) Groups            { return Groups{} }
func (Nop) Save(context.Context, []*video.Record) error    { return nil }
func (Nop) Remove(context.Context, []string) error         { return nil }
func (Nop) RecordRun(context.Context, RunRecord) error     { return nil }
func (Nop) Runs(context.Context, int) ([]RunRecord, error) { return nil, nil }
func (Nop) Close() error                                   { return nil }
