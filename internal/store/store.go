package store

import (
	"context"

	"github.com/nhle/mailvault/internal/model"
)

// CursorStore is a durable slot holding the last processed position.
//
// Implementations are safe for concurrent use. Save re-reads the stored
// value immediately before writing and only ever moves the slot forward,
// so overlapping writers converge on the highest position.
type CursorStore interface {
	// Load returns the stored cursor, or nil when the slot has never been
	// written. It fails only when the backing store is unreachable.
	Load(ctx context.Context) (*model.Cursor, error)

	// Save advances the slot to next. A stored value already >= next makes
	// Save a successful no-op that reports false. expectedPrior is the
	// position the caller based its work on; a stored value below it is
	// logged but does not block the write.
	Save(ctx context.Context, next model.Position, expectedPrior *model.Position) (bool, error)
}

// Ledger remembers which change records already produced an artifact.
type Ledger interface {
	LookupArtifact(ctx context.Context, slot, recordID string) (string, bool, error)
	RecordArtifact(ctx context.Context, rec model.ArchivedRecord) error
}

// RunLog keeps an audit trail of sync engine invocations.
type RunLog interface {
	RecordRun(ctx context.Context, run model.SyncRun) error
	RecentRuns(ctx context.Context, slot string, limit int) ([]model.SyncRun, error)
}

// Backend is an opened storage backend that hands out cursor slots.
// SQL backends also implement Ledger and RunLog.
type Backend interface {
	Cursor(slot string) CursorStore
	Close() error
}
