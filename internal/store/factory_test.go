package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailvault/internal/store"
	"github.com/nhle/mailvault/internal/testutil"
)

func TestOpen_Schemes(t *testing.T) {
	dir := t.TempDir()
	logger := testutil.NewTestLogger()

	cases := map[string]string{
		"memory": "memory://",
		"sqlite": "sqlite://" + filepath.Join(dir, "state.db"),
		"bare":   filepath.Join(dir, "bare.db"),
		"file":   "file://" + filepath.Join(dir, "cursors"),
	}

	for name, dsn := range cases {
		t.Run(name, func(t *testing.T) {
			backend, err := store.Open(dsn, logger)
			require.NoError(t, err)
			defer backend.Close()

			ctx := context.Background()
			_, err = backend.Cursor("me").Save(ctx, 42, nil)
			require.NoError(t, err)
			cur, err := backend.Cursor("me").Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, cur)
			assert.EqualValues(t, 42, cur.Position)
		})
	}
}

func TestOpen_SQLiteImplementsLedgerAndRunLog(t *testing.T) {
	backend, err := store.Open("memory://", testutil.NewTestLogger())
	require.NoError(t, err)
	defer backend.Close()

	_, isLedger := backend.(store.Ledger)
	_, isRunLog := backend.(store.RunLog)
	assert.True(t, isLedger)
	assert.True(t, isRunLog)
}

func TestOpen_Rejects(t *testing.T) {
	_, err := store.Open("", testutil.NewTestLogger())
	assert.Error(t, err)

	_, err = store.Open("redis://localhost", testutil.NewTestLogger())
	assert.Error(t, err)
}
