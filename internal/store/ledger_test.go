package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailvault/internal/model"
	"github.com/nhle/mailvault/internal/testutil"
)

func TestLedger_FirstArtifactWins(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	_, found, err := s.LookupArtifact(ctx, "me", "msg-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.RecordArtifact(ctx, model.ArchivedRecord{
		Slot: "me", RecordID: "msg-1", ArtifactID: "doc-a",
	}))
	require.NoError(t, s.RecordArtifact(ctx, model.ArchivedRecord{
		Slot: "me", RecordID: "msg-1", ArtifactID: "doc-b",
	}))

	artifact, found, err := s.LookupArtifact(ctx, "me", "msg-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "doc-a", artifact)

	_, found, err = s.LookupArtifact(ctx, "other", "msg-1")
	require.NoError(t, err)
	assert.False(t, found, "ledger entries are scoped by slot")
}

func TestRunLog_RecentRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, outcome := range []string{"seeded", "advanced", "stale"} {
		require.NoError(t, s.RecordRun(ctx, model.SyncRun{
			ID:                   outcome,
			Slot:                 "me",
			Decision:             "actionable",
			Outcome:              outcome,
			NotificationPosition: model.Position(100 + i),
			CursorAfter:          model.Position(100 + i),
			StartedAt:            base.Add(time.Duration(i) * time.Minute),
			FinishedAt:           base.Add(time.Duration(i)*time.Minute + time.Second),
		}))
	}
	require.NoError(t, s.RecordRun(ctx, model.SyncRun{
		ID: "elsewhere", Slot: "other", Decision: "stale", Outcome: "stale",
		StartedAt: base, FinishedAt: base,
	}))

	runs, err := s.RecentRuns(ctx, "me", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "stale", runs[0].Outcome)
	assert.Equal(t, "advanced", runs[1].Outcome)
	assert.Equal(t, model.Position(101), runs[1].CursorAfter)
}
