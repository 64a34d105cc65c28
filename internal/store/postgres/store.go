// Package postgres appends rows to PostgreSQL through a pgx connection pool.
//
// Rows are written with the COPY protocol, so one file's batch is a single
// statement: it lands completely or not at all.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/behavioretl/internal/core"
)

// DBTX is the subset of *pgxpool.Pool the store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Config holds pool settings.
type Config struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// Store is a PostgreSQL core.Store and core.HistoryRecorder.
type Store struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New wraps an existing connection. Close is a no-op for stores made by New.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// Open creates a pool from cfg and verifies it with a ping.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MinConns = int32(cfg.MinConns)
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{db: pool, pool: pool}, nil
}

// AppendRows copies rows into table. Identifiers are quoted, so mixed-case
// names such as "UserBehaviorData" are used as written.
func (s *Store) AppendRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	n, err := s.db.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

const createHistory = `
CREATE TABLE IF NOT EXISTS "EtlFileLog" (
    id            BIGSERIAL PRIMARY KEY,
    run_id        UUID        NOT NULL,
    file_name     TEXT        NOT NULL,
    status        TEXT        NOT NULL,
    rows_read     INTEGER     NOT NULL DEFAULT 0,
    rows_dropped  INTEGER     NOT NULL DEFAULT 0,
    rows_loaded   BIGINT      NOT NULL DEFAULT 0,
    error_code    TEXT,
    error_message TEXT,
    started_at    TIMESTAMPTZ,
    finished_at   TIMESTAMPTZ
)`

const insertHistory = `
INSERT INTO "EtlFileLog" (
    run_id, file_name, status, rows_read, rows_dropped, rows_loaded,
    error_code, error_message, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// EnsureHistory creates the run history table if it does not exist.
func (s *Store) EnsureHistory(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createHistory); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

// RecordFile writes one run history entry.
func (s *Store) RecordFile(ctx context.Context, runID uuid.UUID, report core.FileReport) error {
	var code, message pgtype.Text
	if report.Err != nil {
		code = pgtype.Text{String: core.MapError(report.Err).Code, Valid: true}
		message = pgtype.Text{String: report.Err.Error(), Valid: true}
	}

	_, err := s.db.Exec(ctx, insertHistory,
		runID.String(),
		report.Path,
		string(report.Status),
		report.RowsRead,
		report.Stats.Dropped,
		report.RowsLoaded,
		code,
		message,
		toTimestamptz(report.Started),
		toTimestamptz(report.Finished),
	)
	if err != nil {
		return fmt.Errorf("record history for %s: %w", report.Path, err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func toTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
