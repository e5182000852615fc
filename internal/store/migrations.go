package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// sqliteMigrations is the ordered list of SQLite schema migrations.
// Each migration's version must be sequential starting from 1.
var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cursors (
	slot       TEXT PRIMARY KEY,
	position   INTEGER NOT NULL CHECK(position >= 0),
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS archived_records (
	slot        TEXT NOT NULL,
	record_id   TEXT NOT NULL,
	artifact_id TEXT NOT NULL,
	archived_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (slot, record_id)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS sync_runs (
	id                    TEXT PRIMARY KEY,
	slot                  TEXT NOT NULL,
	delivery_id           TEXT NOT NULL DEFAULT '',
	decision              TEXT NOT NULL,
	outcome               TEXT NOT NULL,
	notification_position INTEGER NOT NULL DEFAULT 0,
	cursor_before         INTEGER NOT NULL DEFAULT 0,
	cursor_after          INTEGER NOT NULL DEFAULT 0,
	fetched               INTEGER NOT NULL DEFAULT 0,
	archived              INTEGER NOT NULL DEFAULT 0,
	error                 TEXT NOT NULL DEFAULT '',
	started_at            DATETIME NOT NULL,
	finished_at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_slot_started
	ON sync_runs(slot, started_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}

// postgresMigrations mirrors sqliteMigrations for Postgres.
var postgresMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cursors (
	slot       TEXT PRIMARY KEY,
	position   BIGINT NOT NULL CHECK(position >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS archived_records (
	slot        TEXT NOT NULL,
	record_id   TEXT NOT NULL,
	artifact_id TEXT NOT NULL,
	archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (slot, record_id)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS sync_runs (
	id                    TEXT PRIMARY KEY,
	slot                  TEXT NOT NULL,
	delivery_id           TEXT NOT NULL DEFAULT '',
	decision              TEXT NOT NULL,
	outcome               TEXT NOT NULL,
	notification_position BIGINT NOT NULL DEFAULT 0,
	cursor_before         BIGINT NOT NULL DEFAULT 0,
	cursor_after          BIGINT NOT NULL DEFAULT 0,
	fetched               INTEGER NOT NULL DEFAULT 0,
	archived              INTEGER NOT NULL DEFAULT 0,
	error                 TEXT NOT NULL DEFAULT '',
	started_at            TIMESTAMPTZ NOT NULL,
	finished_at           TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_slot_started
	ON sync_runs(slot, started_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
