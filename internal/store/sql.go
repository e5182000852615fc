package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailvault/internal/model"
)

// sqlStore holds the queries shared by the SQLite and Postgres backends.
// Queries are written with ? placeholders and rebound for the driver.
type sqlStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *sqlStore) runMigrations(migrations []migration) error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount, s.db.Rebind(s.schemaVersionProbe()))
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

func (s *sqlStore) schemaVersionProbe() string {
	if s.db.DriverName() == "postgres" {
		return "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'schema_version'"
	}
	return "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'"
}

// Close closes the underlying database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// Cursor returns the cursor slot with the given name.
func (s *sqlStore) Cursor(slot string) CursorStore {
	return &sqlCursor{store: s, slot: slot}
}

// sqlCursor is a CursorStore backed by one row of the cursors table.
type sqlCursor struct {
	store *sqlStore
	slot  string
}

func (c *sqlCursor) Load(ctx context.Context) (*model.Cursor, error) {
	db := c.store.db

	var cur model.Cursor
	err := db.GetContext(ctx, &cur, db.Rebind(
		"SELECT slot, position, updated_at FROM cursors WHERE slot = ?"), c.slot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading cursor %s: %w", c.slot, err)
	}
	return &cur, nil
}

func (c *sqlCursor) Save(
	ctx context.Context,
	next model.Position,
	expectedPrior *model.Position,
) (bool, error) {
	if err := next.CheckStorable(); err != nil {
		return false, fmt.Errorf("saving cursor %s: %w", c.slot, err)
	}
	db := c.store.db

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning cursor transaction: %w", err)
	}
	defer tx.Rollback()

	var stored int64
	err = tx.GetContext(ctx, &stored, tx.Rebind(
		"SELECT position FROM cursors WHERE slot = ?"), c.slot)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		stored = -1
	case err != nil:
		return false, fmt.Errorf("reading cursor %s: %w", c.slot, err)
	}

	if stored >= 0 && model.Position(stored) >= next {
		return false, tx.Commit()
	}
	if stored >= 0 && expectedPrior != nil && model.Position(stored) < *expectedPrior {
		c.store.logger.Warn("cursor below expected prior, advancing anyway",
			"slot", c.slot, "stored", stored, "expected_prior", uint64(*expectedPrior), "next", uint64(next))
	}

	// The WHERE guard keeps the slot monotonic even against writers in
	// other processes that slipped in after the read above.
	result, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cursors (slot, position, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (slot) DO UPDATE
		SET position = excluded.position, updated_at = excluded.updated_at
		WHERE cursors.position < excluded.position`),
		c.slot, int64(next), time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("writing cursor %s: %w", c.slot, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing cursor %s: %w", c.slot, err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// LookupArtifact returns the artifact recorded for a change record.
func (s *sqlStore) LookupArtifact(
	ctx context.Context,
	slot, recordID string,
) (string, bool, error) {
	var artifactID string
	err := s.db.GetContext(ctx, &artifactID, s.db.Rebind(
		"SELECT artifact_id FROM archived_records WHERE slot = ? AND record_id = ?"),
		slot, recordID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up record %s: %w", recordID, err)
	}
	return artifactID, true, nil
}

// RecordArtifact stores the artifact produced for a change record. The
// first recorded artifact for a record wins.
func (s *sqlStore) RecordArtifact(ctx context.Context, rec model.ArchivedRecord) error {
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO archived_records (slot, record_id, artifact_id, archived_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (slot, record_id) DO NOTHING`),
		rec.Slot, rec.RecordID, rec.ArtifactID, rec.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("recording artifact for %s: %w", rec.RecordID, err)
	}
	return nil
}

// RecordRun appends a sync run to the audit log.
func (s *sqlStore) RecordRun(ctx context.Context, run model.SyncRun) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO sync_runs (
			id, slot, delivery_id, decision, outcome,
			notification_position, cursor_before, cursor_after,
			fetched, archived, error, started_at, finished_at
		) VALUES (
			:id, :slot, :delivery_id, :decision, :outcome,
			:notification_position, :cursor_before, :cursor_after,
			:fetched, :archived, :error, :started_at, :finished_at
		)`, run)
	if err != nil {
		return fmt.Errorf("recording sync run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns the latest runs for a slot, newest first.
func (s *sqlStore) RecentRuns(
	ctx context.Context,
	slot string,
	limit int,
) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []model.SyncRun
	err := s.db.SelectContext(ctx, &runs, s.db.Rebind(`
		SELECT * FROM sync_runs
		WHERE slot = ?
		ORDER BY started_at DESC, id
		LIMIT ?`), slot, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs for %s: %w", slot, err)
	}
	return runs, nil
}
