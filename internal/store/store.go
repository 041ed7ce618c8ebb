package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Store is the persistence interface for drafts and their publish history.
//
// Mutations assume a single writer. Each call is atomic on its own; a
// read followed by a separate update is not.
type Store interface {
	Create(ctx context.Context, n NewDraft) (string, error)
	Get(ctx context.Context, id string) (*Draft, error)
	ListPending(ctx context.Context) ([]Draft, error)
	ListByStatus(ctx context.Context, status Status) ([]Draft, error)
	ListAll(ctx context.Context) ([]Draft, error)

	// UpdateStatus reports false when the id (or the table) does not exist.
	UpdateStatus(ctx context.Context, id string, status Status) (bool, error)
	// SetSchedule sets scheduled_time and moves the draft to scheduled, or
	// back to pending when scheduledTime is empty.
	SetSchedule(ctx context.Context, id, scheduledTime string) (bool, error)
	MarkPosted(ctx context.Context, id, tweetID string, posted *PostedText) error

	LogAttempt(ctx context.Context, a Attempt) error
	ListPosted(ctx context.Context) ([]PostedRecord, error)
	ListAttempts(ctx context.Context) ([]Attempt, error)

	// ExportSafe writes a formula-injection-safe copy of the draft table
	// and returns its path.
	ExportSafe(ctx context.Context) (string, error)

	Close() error
}

// Paths locates the backing tables.
type Paths struct {
	Drafts   string
	Posted   string
	Attempts string
	Export   string
}

// DefaultPaths returns the standard table names inside dir.
func DefaultPaths(dir string) Paths {
	return Paths{
		Drafts:   filepath.Join(dir, "drafts.csv"),
		Posted:   filepath.Join(dir, "posted_history.csv"),
		Attempts: filepath.Join(dir, "post_log.csv"),
		Export:   filepath.Join(dir, "drafts_safe_export.csv"),
	}
}

// Backend names accepted by Open.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Open returns the store for a backend. For sqlite, dsn is the database path;
// the export file still goes to paths.Export.
func Open(backend string, paths Paths, dsn string) (Store, error) {
	switch backend {
	case "", BackendCSV:
		return NewCSV(paths)
	case BackendSQLite:
		return NewSQLite(dsn, paths.Export)
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}
