// Package database persists timeline records and duplicate edges through
// sqlx. Queries are written with ? placeholders and rebound for the driver in
// use, so the same statements serve Postgres and SQLite.
package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/config"
)

// schema creates the tables when they are missing. Schema evolution is
// handled outside the service.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS daily_records (
		date                 TEXT PRIMARY KEY,
		tiered_candidates    TEXT NOT NULL,
		selected_document_id TEXT,
		selected_tier        TEXT,
		generated_text       TEXT,
		judge_verdicts       TEXT,
		resolution_mode      TEXT NOT NULL DEFAULT '',
		judge_error          BOOLEAN NOT NULL DEFAULT FALSE,
		tie_break            TEXT,
		proposed_document_id TEXT,
		generation_violation BOOLEAN NOT NULL DEFAULT FALSE,
		fact_check           TEXT,
		cluster_id           TEXT,
		flag                 TEXT,
		updated_at           TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS duplicate_edges (
		date_a     TEXT NOT NULL,
		date_b     TEXT NOT NULL,
		cluster_id TEXT,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (date_a, date_b),
		CHECK (date_a < date_b)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_duplicate_edges_date_b ON duplicate_edges (date_b)`,
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	if cfg.Driver == config.DriverSQLite {
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxConnections)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}
	return db, nil
}

// EnsureSchema creates missing tables.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
