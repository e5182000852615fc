package store

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
)

// Open builds a Backend from a DSN:
//
//	sqlite://path/to/db   SQLite file (relative paths allowed)
//	memory://             in-memory SQLite, lost on exit
//	postgres://...        Postgres via lib/pq
//	file://dir            one JSON file per cursor slot inside dir
//
// A DSN without a scheme is treated as a SQLite path.
func Open(dsn string, logger *slog.Logger) (Backend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("store dsn is empty")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing store dsn: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "":
		return NewSQLiteStore(dsn, logger)
	case "sqlite", "sqlite3":
		return NewSQLiteStore(dsnPath(parsed, dsn), logger)
	case "memory", "mem", "inmem":
		return NewSQLiteStore(":memory:", logger)
	case "postgres", "postgresql":
		return NewPostgresStore(dsn, logger)
	case "file":
		return NewFileStore(dsnPath(parsed, dsn), logger)
	default:
		return nil, fmt.Errorf("unsupported store scheme: %s", parsed.Scheme)
	}
}

// dsnPath recovers a filesystem path from scheme://path, keeping relative
// paths relative (sqlite://data/x.db parses data as the host).
func dsnPath(parsed *url.URL, raw string) string {
	if parsed.Host != "" {
		return filepath.Join(parsed.Host, filepath.FromSlash(parsed.Path))
	}
	if parsed.Path != "" {
		return filepath.FromSlash(parsed.Path)
	}
	return strings.TrimPrefix(raw, parsed.Scheme+"://")
}
