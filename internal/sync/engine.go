package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailvault/internal/archive"
	"github.com/nhle/mailvault/internal/model"
	"github.com/nhle/mailvault/internal/source"
	"github.com/nhle/mailvault/internal/store"
)

// Outcome summarizes how an engine run ended.
type Outcome string

const (
	OutcomeStale       Outcome = "stale"
	OutcomeSeeded      Outcome = "seeded"
	OutcomeAdvanced    Outcome = "advanced"
	OutcomeRebaselined Outcome = "rebaselined"
	OutcomeFailed      Outcome = "failed"
)

// MarshalText renders the decision by name in JSON output.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Result describes one call to Engine.Handle.
type Result struct {
	RunID        string          `json:"run_id"`
	Decision     Decision        `json:"decision"`
	Outcome      Outcome         `json:"outcome"`
	CursorBefore *model.Position `json:"cursor_before,omitempty"`
	CursorAfter  model.Position  `json:"cursor_after"`
	Fetched      int             `json:"fetched"`
	Archived     int             `json:"archived"`
	// Advanced is false when a concurrent run had already moved the
	// cursor to or past CursorAfter.
	Advanced bool `json:"advanced"`
}

// RunRecorder receives the audit record of every engine run.
// store.RunLog satisfies it.
type RunRecorder interface {
	RecordRun(ctx context.Context, run model.SyncRun) error
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Cursors  store.CursorStore
	Source   source.ChangeSource
	Archiver archive.Archiver
	Runs     RunRecorder // optional
	Logger   *slog.Logger
}

// Options tune engine behavior.
type Options struct {
	// Slot names the cursor, recorded on every run.
	Slot string
	// Lookback is subtracted from the first notification's position when
	// seeding the cursor.
	Lookback uint64
	// Policy is model.PolicyAll (default) or model.PolicyFirst.
	Policy string
}

// Engine turns notifications into archived records and cursor advances.
// It holds no lock; concurrent Handle calls are coordinated only by the
// cursor store's monotonic Save.
type Engine struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New validates deps and opts and returns an Engine.
func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Cursors == nil {
		return nil, errors.New("engine: cursor store is required")
	}
	if deps.Source == nil {
		return nil, errors.New("engine: change source is required")
	}
	if deps.Archiver == nil {
		return nil, errors.New("engine: archiver is required")
	}
	switch opts.Policy {
	case "":
		opts.Policy = model.PolicyAll
	case model.PolicyAll, model.PolicyFirst:
	default:
		return nil, fmt.Errorf("engine: unknown archive policy %q", opts.Policy)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("slot", opts.Slot)

	return &Engine{deps: deps, opts: opts, logger: logger}, nil
}

// Slot returns the cursor slot this engine advances.
func (e *Engine) Slot() string {
	return e.opts.Slot
}

// Handle processes one notification. Records are archived at least once:
// on any error the cursor stays where it was so redelivery retries the
// whole range.
func (e *Engine) Handle(ctx context.Context, n model.Notification) (Result, error) {
	run := model.SyncRun{
		ID:                   uuid.NewString(),
		Slot:                 e.opts.Slot,
		DeliveryID:           n.DeliveryID,
		NotificationPosition: n.Position,
		StartedAt:            time.Now().UTC(),
	}
	logger := e.logger.With("run", run.ID, "delivery", n.DeliveryID, "position", uint64(n.Position))

	res, err := e.handle(ctx, logger, n)
	res.RunID = run.ID
	if err != nil {
		res.Outcome = OutcomeFailed
		logger.Error("sync run failed", "error", err)
	} else {
		logger.Info("sync run finished",
			"decision", res.Decision.String(), "outcome", string(res.Outcome),
			"archived", res.Archived, "cursor", uint64(res.CursorAfter))
	}

	e.record(ctx, logger, run, res, err)
	return res, err
}

func (e *Engine) handle(ctx context.Context, logger *slog.Logger, n model.Notification) (Result, error) {
	var res Result

	stored, err := e.deps.Cursors.Load(ctx)
	if err != nil {
		return res, &TransportError{Op: "load cursor", Err: err}
	}

	res.Decision = Accept(n, stored)
	if stored != nil {
		res.CursorBefore = stored.Position.Ptr()
		res.CursorAfter = stored.Position
	}

	switch res.Decision {
	case Stale:
		res.Outcome = OutcomeStale
		return res, nil

	case FirstRun:
		return e.seed(ctx, n, nil, res, OutcomeSeeded)
	}

	prior := stored.Position
	records, err := e.deps.Source.ListSince(ctx, &prior)
	if errors.Is(err, source.ErrHistoryExpired) {
		logger.Warn("history expired, re-baselining cursor", "cursor", uint64(prior))
		return e.seed(ctx, n, &prior, res, OutcomeRebaselined)
	}
	if err != nil {
		return res, &TransportError{Op: "list changes", Err: err}
	}
	res.Fetched = len(records)

	selected := records
	if e.opts.Policy == model.PolicyFirst && len(records) > 1 {
		selected = records[:1]
	}

	for i, rec := range selected {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("sync cancelled before record %s: %w", rec.ID, err)
		}
		artifactID, err := e.deps.Archiver.Archive(ctx, rec)
		if err != nil {
			return res, &PartialArchiveError{
				Archived: i,
				Total:    len(selected),
				RecordID: rec.ID,
				Err:      err,
			}
		}
		res.Archived++
		logger.Debug("record archived", "record", rec.ID, "artifact", artifactID)
	}

	next := n.Position
	for _, rec := range records {
		next = model.MaxPosition(next, rec.Position)
	}

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("sync cancelled before cursor save: %w", err)
	}
	advanced, err := e.deps.Cursors.Save(ctx, next, &prior)
	if err != nil {
		return res, &TransportError{Op: "save cursor", Err: err}
	}

	res.Outcome = OutcomeAdvanced
	res.CursorAfter = next
	res.Advanced = advanced
	return res, nil
}

// seed writes the baseline cursor for a slot that has none, or whose
// history the provider no longer holds. No records are archived.
func (e *Engine) seed(
	ctx context.Context,
	n model.Notification,
	prior *model.Position,
	res Result,
	outcome Outcome,
) (Result, error) {
	pos := n.Position.Minus(e.opts.Lookback)
	if b, ok := e.deps.Source.(source.Baseliner); ok {
		pos = b.Baseline(n.Position, e.opts.Lookback)
	}

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("sync cancelled before cursor save: %w", err)
	}
	advanced, err := e.deps.Cursors.Save(ctx, pos, prior)
	if err != nil {
		return res, &TransportError{Op: "save cursor", Err: err}
	}

	res.Outcome = outcome
	res.CursorAfter = pos
	res.Advanced = advanced
	if !advanced {
		// The seed lost to a stored cursor at or past it; report that one.
		if cur, err := e.deps.Cursors.Load(ctx); err == nil && cur != nil {
			res.CursorAfter = cur.Position
		}
	}
	return res, nil
}

func (e *Engine) record(
	ctx context.Context,
	logger *slog.Logger,
	run model.SyncRun,
	res Result,
	runErr error,
) {
	if e.deps.Runs == nil {
		return
	}

	run.Decision = res.Decision.String()
	run.Outcome = string(res.Outcome)
	if res.CursorBefore != nil {
		run.CursorBefore = *res.CursorBefore
	}
	run.CursorAfter = res.CursorAfter
	run.Fetched = res.Fetched
	run.Archived = res.Archived
	if runErr != nil {
		run.Error = runErr.Error()
	}
	run.FinishedAt = time.Now().UTC()

	if err := e.deps.Runs.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("recording sync run failed", "error", err)
	}
}
