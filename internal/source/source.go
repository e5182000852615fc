package source

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nhle/mailvault/internal/model"
)

// ErrHistoryExpired reports that the provider no longer retains history
// back to the requested position. Callers re-baseline instead of treating
// it as "nothing changed".
var ErrHistoryExpired = errors.New("history expired")

// AuthError indicates that authentication has failed or expired for a source.
// It is returned by source clients when a 401 response is received.
type AuthError struct {
	SourceType model.SourceType
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.SourceType, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ChangeSource is the provider's incremental history, seen as an ordered
// stream of change records.
type ChangeSource interface {
	// Type returns the source type identifier.
	Type() model.SourceType

	// ListSince returns the records newer than cursor, oldest first.
	// A nil cursor yields an empty sequence so a fresh deployment starts
	// from a baseline instead of replaying the backlog. When the provider
	// no longer holds history back to cursor, ListSince returns an error
	// wrapping ErrHistoryExpired.
	ListSince(ctx context.Context, cursor *model.Position) ([]model.ChangeRecord, error)

	// LatestPosition returns the provider's current high-water mark.
	LatestPosition(ctx context.Context) (model.Position, error)
}

// Baseliner is implemented by sources whose positions are not plain
// counters. Baseline returns the cursor to seed from latest, moved back by
// at most lookback positions of the same stream.
type Baseliner interface {
	Baseline(latest model.Position, lookback uint64) model.Position
}

// ContentFetcher retrieves the full content behind a change record.
type ContentFetcher interface {
	FetchMessage(ctx context.Context, id string) (*model.Message, error)
}

// Acknowledger marks an archived message as handled at the provider
// (for example by clearing its unread state). Optional.
type Acknowledger interface {
	Acknowledge(ctx context.Context, id string) error
}

// SortRecords orders records oldest first, breaking ties by Sequence.
func SortRecords(records []model.ChangeRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Position != records[j].Position {
			return records[i].Position < records[j].Position
		}
		return records[i].Sequence < records[j].Sequence
	})
}
