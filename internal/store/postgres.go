package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const postgresConnectTimeout = 5 * time.Second

// PostgresStore implements Backend, Ledger and RunLog on Postgres. It is
// the backend to use when several service instances share one cursor.
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore connects to dsn, verifies the connection and runs any
// pending schema migrations.
func NewPostgresStore(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres db: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), postgresConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s := &PostgresStore{sqlStore: &sqlStore{db: db, logger: logger}}
	if err := s.runMigrations(postgresMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}
