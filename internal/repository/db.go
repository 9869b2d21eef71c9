package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
	// InMemory swaps Postgres for an in-memory SQLite store. Used by local
	// runs and tests; the SQL layer is identical either way.
	InMemory bool
}

// Open connects the store: a pgx pool wrapped for database/sql, or
// in-memory SQLite when cfg.InMemory is set.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sqlx.DB, *pgxpool.Pool, error) {
	if cfg.InMemory {
		logger.Info("opening in-memory sqlite store")
		db, err := sqlx.Open("sqlite", "file::memory:?cache=shared")
		if err != nil {
			logger.Error("failed to open sqlite store", "error", err)
			return nil, nil, err
		}
		// A single connection keeps the shared in-memory database alive.
		db.SetMaxOpenConns(1)
		return db, nil, nil
	}

	logger.Info("connecting to database", "dsn", cfg.DSN)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "question-etl"

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, nil, err
	}

	db := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
	logger.Info("successfully connected to database")
	return db, pool, nil
}

// Close closes the database connections gracefully
func Close(db *sqlx.DB, pool *pgxpool.Pool, logger *slog.Logger) {
	logger.Info("closing database connections")
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	if pool != nil {
		pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the store to catch DSN issues early.
func HealthCheck(ctx context.Context, db *sqlx.DB, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	logger.Debug("database ping successful")
	return nil
}

// schemaDDL is deliberately restricted to syntax both Postgres and SQLite
// accept; timestamps are set by the application.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		question_text TEXT NOT NULL,
		options TEXT NOT NULL,
		correct_answer TEXT NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT 'Medium',
		topic TEXT NOT NULL,
		subtopic TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_questions_natural_key ON questions (question_text, subtopic)`,
	`CREATE TABLE IF NOT EXISTS user_progress (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL REFERENCES questions (id),
		user_id TEXT NOT NULL,
		is_correct INTEGER NOT NULL DEFAULT 0,
		answered_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_progress_question ON user_progress (question_id)`,
}

// EnsureSchema creates the tables if they do not exist yet. Production
// deployments run db/schema.sql instead; this covers in-memory stores.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, strings.TrimSpace(stmt)); err != nil {
			return err
		}
	}
	return nil
}
