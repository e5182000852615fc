package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/nhle/mailvault/internal/model"
)

// memCursor is an in-memory CursorStore that counts calls.
type memCursor struct {
	mu      gosync.Mutex
	cur     *model.Cursor
	loadErr error
	saveErr error
	loads   int
	saves   int
}

func newMemCursor(pos *model.Position) *memCursor {
	c := &memCursor{}
	if pos != nil {
		c.cur = &model.Cursor{Slot: "me", Position: *pos, UpdatedAt: time.Now()}
	}
	return c
}

func (c *memCursor) Load(context.Context) (*model.Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	if c.cur == nil {
		return nil, nil
	}
	cp := *c.cur
	return &cp, nil
}

func (c *memCursor) Save(ctx context.Context, next model.Position, _ *model.Position) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if c.saveErr != nil {
		return false, c.saveErr
	}
	if c.cur != nil && c.cur.Position >= next {
		return false, nil
	}
	c.cur = &model.Cursor{Slot: "me", Position: next, UpdatedAt: time.Now()}
	return true, nil
}

func (c *memCursor) position() *model.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return nil
	}
	return c.cur.Position.Ptr()
}

// fakeSource serves a fixed record list.
type fakeSource struct {
	mu      gosync.Mutex
	records []model.ChangeRecord
	err     error
	latest  model.Position
	calls   []model.Position
}

func (s *fakeSource) Type() model.SourceType { return model.SourceTypeGmail }

func (s *fakeSource) ListSince(_ context.Context, cursor *model.Position) ([]model.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cursor == nil {
		return nil, nil
	}
	s.calls = append(s.calls, *cursor)
	if s.err != nil {
		return nil, s.err
	}
	var out []model.ChangeRecord
	for _, r := range s.records {
		if r.Position > *cursor {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeSource) LatestPosition(context.Context) (model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.latest, nil
}

func (s *fakeSource) listCalls() []model.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Position(nil), s.calls...)
}

// fakeArchiver records calls and fails for IDs in failOn.
type fakeArchiver struct {
	mu     gosync.Mutex
	failOn map[string]bool
	calls  []string
	before func()
}

var errArchive = errors.New("document store unavailable")

func (a *fakeArchiver) Archive(_ context.Context, rec model.ChangeRecord) (string, error) {
	if a.before != nil {
		a.before()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, rec.ID)
	if a.failOn[rec.ID] {
		return "", errArchive
	}
	return "doc-" + rec.ID, nil
}

func (a *fakeArchiver) archived() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func records(positions ...model.Position) []model.ChangeRecord {
	out := make([]model.ChangeRecord, 0, len(positions))
	for i, p := range positions {
		out = append(out, model.ChangeRecord{
			ID:       "m-" + p.String(),
			Position: p,
			Sequence: i,
		})
	}
	return out
}

func notify(pos model.Position) model.Notification {
	return model.Notification{Mailbox: "me", Position: pos, DeliveryID: "d-" + pos.String()}
}
