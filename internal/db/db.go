// Package db provides helpers for connecting to PostgreSQL and running migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/R3DPanda1/workspace-mood-monitor/internal/config"
)

// Connect opens a connection pool to PostgreSQL and verifies connectivity.
// Pool bounds come from the service configuration; connections are acquired
// per operation and never held across worker sleeps.
func Connect(ctx context.Context, cfg config.Base) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxConns)
	db.SetMaxIdleConns(cfg.DBMinIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}

	slog.Info("database connected", "dsn_host", sanitizeDSN(cfg.DatabaseURL), "max_conns", cfg.DBMaxConns)
	return db, nil
}

// Healthy returns nil when the database is reachable.
func Healthy(ctx context.Context, db *sql.DB) error {
	return db.PingContext(ctx)
}

// sanitizeDSN strips the password from the DSN for logging purposes.
func sanitizeDSN(dsn string) string {
	// Simple approach: just show enough to identify the target.
	if len(dsn) > 40 {
		return dsn[:40] + "..."
	}
	return dsn
}
