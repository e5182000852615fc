package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailvault/internal/model"
	"github.com/nhle/mailvault/internal/source"
	"github.com/nhle/mailvault/internal/testutil"
)

func TestPoller_RunOnceFeedsLatestPosition(t *testing.T) {
	cursors := newMemCursor(model.Position(100).Ptr())
	src := &fakeSource{records: records(105, 110), latest: 112}
	arch := &fakeArchiver{}
	e := newEngine(t, cursors, src, arch, Options{})

	p := NewPoller(0, time.Second, testutil.NewTestLogger())
	p.Register(e, src)

	results, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeAdvanced, results[0].Outcome)
	assert.Equal(t, []string{"m-105", "m-110"}, arch.archived())
	assert.Equal(t, model.Position(112), *cursors.position())

	statuses := p.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "me", statuses[0].Slot)
	assert.Equal(t, SyncIdle, statuses[0].State)
	assert.False(t, statuses[0].LastSync.IsZero())
	require.NotNil(t, statuses[0].LastResult)
	assert.Equal(t, model.Position(112), statuses[0].LastResult.CursorAfter)
}

func TestPoller_AuthErrorSetsStatus(t *testing.T) {
	src := &fakeSource{err: &source.AuthError{SourceType: model.SourceTypeGmail, Message: "token revoked"}}
	e := newEngine(t, newMemCursor(nil), src, &fakeArchiver{}, Options{})

	p := NewPoller(0, time.Second, testutil.NewTestLogger())
	p.Register(e, src)

	_, err := p.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, source.IsAuthError(err))

	status := p.Statuses()[0]
	assert.Equal(t, SyncError, status.State)
	assert.True(t, status.AuthFailed)
	assert.Contains(t, status.Error, "token revoked")
}

func TestPoller_TriggerRunsInBackground(t *testing.T) {
	cursors := newMemCursor(nil)
	src := &fakeSource{latest: 77}
	e := newEngine(t, cursors, src, &fakeArchiver{}, Options{})

	p := NewPoller(0, time.Second, testutil.NewTestLogger())
	p.Register(e, src)
	p.Start()
	defer p.Stop()

	p.Trigger()

	require.Eventually(t, func() bool {
		pos := cursors.position()
		return pos != nil && *pos == 77
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPoller_TickerPollsImmediately(t *testing.T) {
	cursors := newMemCursor(nil)
	src := &fakeSource{latest: 9}
	e := newEngine(t, cursors, src, &fakeArchiver{}, Options{})

	p := NewPoller(time.Hour, time.Second, testutil.NewTestLogger())
	p.Register(e, src)
	p.Start()

	require.Eventually(t, func() bool {
		return cursors.position() != nil
	}, 2*time.Second, 10*time.Millisecond)

	p.Stop()
	p.Stop()
}

func TestSyncStateText(t *testing.T) {
	text, err := SyncError.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "error", string(text))
	assert.Equal(t, "unknown", SyncState(9).String())
	assert.True(t, errors.Is(&TransportError{Op: "x", Err: context.Canceled}, context.Canceled))
}
