package storage

import (
	"context"
	"time"

	"smalidiff/internal/diff"
	"smalidiff/internal/smali"
)

// ResultStore persists diff results.
type ResultStore interface {
	// SaveResult stores one diff run and returns its id.
	SaveResult(ctx context.Context, info RunInfo, res *diff.Result) (int64, error)

	// LoadRun retrieves a stored run with its entries and changes.
	LoadRun(ctx context.Context, id int64) (*Run, error)

	// ListRuns returns the stored runs, newest first.
	ListRuns(ctx context.Context) ([]RunInfo, error)

	Close() error
}

// RunInfo describes one diff invocation.
type RunInfo struct {
	ID        int64
	Key       string // random UUID, stable across database copies
	OldSource string
	NewSource string
	CreatedAt time.Time

	Matched int
	Changed int
	Added   int
	Deleted int
}

// Run is a stored diff result.
type Run struct {
	Info     RunInfo
	Entries  []EntryRecord
	Mappings [][2]string
}

// EntryRecord is the stored form of a diff.Entry.
type EntryRecord struct {
	Status   string // matched, added or deleted
	OldClass string
	NewClass string
	Nested   bool
	Changes  []ChangeRecord
}

// ChangeRecord is the stored form of a diff.Change.
type ChangeRecord struct {
	Kind      diff.ChangeKind
	Subject   string
	OldMember string
	NewMember string
	Aspects   []smali.Aspect
}
