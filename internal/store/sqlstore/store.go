// Package sqlstore appends rows through database/sql, for MySQL
// (go-sql-driver/mysql), PostgreSQL (pgx stdlib) or SQL Server
// (microsoft/go-mssqldb).
//
// Rows are written as multi-row INSERT statements of at most BatchSize rows,
// all inside one transaction per file. Each dialect further caps a statement
// by its bind parameter and row limits.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/JonMunkholm/behavioretl/internal/core"
)

// DefaultBatchSize is the number of rows per INSERT when none is configured.
const DefaultBatchSize = 500

// Dialect holds the SQL differences between the supported databases.
type Dialect struct {
	Name        string
	quote       func(ident string) string
	placeholder func(n int) string
	historyDDL  string

	// maxParams is the server's bind parameter limit per statement.
	maxParams int
	// maxRows caps the rows of one VALUES list. Zero means no limit.
	maxRows int
}

// MySQL quotes with backticks and uses ? placeholders.
var MySQL = Dialect{
	Name: "mysql",
	quote: func(ident string) string {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	},
	placeholder: func(int) string { return "?" },
	historyDDL: "CREATE TABLE IF NOT EXISTS `EtlFileLog` (" +
		"id BIGINT AUTO_INCREMENT PRIMARY KEY, " +
		"run_id CHAR(36) NOT NULL, " +
		"file_name VARCHAR(1024) NOT NULL, " +
		"status VARCHAR(32) NOT NULL, " +
		"rows_read INT NOT NULL DEFAULT 0, " +
		"rows_dropped INT NOT NULL DEFAULT 0, " +
		"rows_loaded BIGINT NOT NULL DEFAULT 0, " +
		"error_code VARCHAR(16) NULL, " +
		"error_message TEXT NULL, " +
		"started_at DATETIME(6) NULL, " +
		"finished_at DATETIME(6) NULL)",
	maxParams: 65535,
}

// Postgres quotes with double quotes and uses $n placeholders.
var Postgres = Dialect{
	Name: "postgres",
	quote: func(ident string) string {
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	},
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	historyDDL: `CREATE TABLE IF NOT EXISTS "EtlFileLog" (` +
		"id BIGSERIAL PRIMARY KEY, " +
		"run_id UUID NOT NULL, " +
		"file_name TEXT NOT NULL, " +
		"status TEXT NOT NULL, " +
		"rows_read INTEGER NOT NULL DEFAULT 0, " +
		"rows_dropped INTEGER NOT NULL DEFAULT 0, " +
		"rows_loaded BIGINT NOT NULL DEFAULT 0, " +
		"error_code TEXT, " +
		"error_message TEXT, " +
		"started_at TIMESTAMPTZ, " +
		"finished_at TIMESTAMPTZ)",
	maxParams: 65535,
}

// SQLServer quotes with brackets and uses @pN placeholders.
var SQLServer = Dialect{
	Name: "sqlserver",
	quote: func(ident string) string {
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	},
	placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
	historyDDL: "IF OBJECT_ID(N'EtlFileLog', N'U') IS NULL " +
		"CREATE TABLE [EtlFileLog] (" +
		"id BIGINT IDENTITY(1,1) PRIMARY KEY, " +
		"run_id UNIQUEIDENTIFIER NOT NULL, " +
		"file_name NVARCHAR(1024) NOT NULL, " +
		"status NVARCHAR(32) NOT NULL, " +
		"rows_read INT NOT NULL DEFAULT 0, " +
		"rows_dropped INT NOT NULL DEFAULT 0, " +
		"rows_loaded BIGINT NOT NULL DEFAULT 0, " +
		"error_code NVARCHAR(16) NULL, " +
		"error_message NVARCHAR(MAX) NULL, " +
		"started_at DATETIMEOFFSET NULL, " +
		"finished_at DATETIMEOFFSET NULL)",
	maxParams: 2100,
	maxRows:   1000,
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case "mysql":
		return MySQL, nil
	case "postgres", "postgres-sql":
		return Postgres, nil
	case "sqlserver":
		return SQLServer, nil
	default:
		return Dialect{}, fmt.Errorf("unknown sql dialect %q", name)
	}
}

// Config holds connection settings.
type Config struct {
	Dialect         string
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
	BatchSize       int
}

// Store is a database/sql core.Store and core.HistoryRecorder.
type Store struct {
	db        *sql.DB
	dialect   Dialect
	batchSize int
}

// New wraps an open *sql.DB.
func New(db *sql.DB, dialect Dialect, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Store{db: db, dialect: dialect, batchSize: batchSize}
}

// Open connects with the driver matching cfg.Dialect and pings the server.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dialect, err := DialectFor(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch dialect.Name {
	case MySQL.Name:
		mc, err := mysql.ParseDSN(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse mysql DSN: %w", err)
		}
		mc.ParseTime = true
		if cfg.ConnectTimeout > 0 {
			mc.Timeout = cfg.ConnectTimeout
		}
		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, fmt.Errorf("mysql connector: %w", err)
		}
		db = sql.OpenDB(connector)
	case SQLServer.Name:
		connector, err := mssql.NewConnector(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse sqlserver URL: %w", err)
		}
		db = sql.OpenDB(connector)
	default:
		pc, err := pgx.ParseConfig(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse database URL: %w", err)
		}
		if cfg.ConnectTimeout > 0 {
			pc.ConnectTimeout = cfg.ConnectTimeout
		}
		db = stdlib.OpenDB(*pc)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return New(db, dialect, cfg.BatchSize), nil
}

// AppendRows inserts rows into table in one transaction.
func (s *Store) AppendRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batchSize := s.rowsPerStatement(len(columns))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	// No-op after a successful commit.
	defer func() { _ = tx.Rollback() }()

	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batch := rows[start:end]

		query, args, err := s.insertStatement(table, columns, batch)
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s (rows %d-%d): %w", table, start+1, end, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(len(batch))
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// rowsPerStatement is the configured batch size reduced to what the dialect
// accepts for the given column count.
func (s *Store) rowsPerStatement(columns int) int {
	n := s.batchSize
	if columns > 0 && s.dialect.maxParams > 0 {
		n = min(n, s.dialect.maxParams/columns)
	}
	if s.dialect.maxRows > 0 {
		n = min(n, s.dialect.maxRows)
	}
	return max(n, 1)
}

// insertStatement builds one multi-row INSERT and its flattened arguments.
// Valuer arguments such as pgtype values are resolved here so every driver
// receives plain values.
func (s *Store) insertStatement(table string, columns []string, rows [][]any) (string, []any, error) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.dialect.quote(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s.dialect.quote(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	n := 0
	for r, row := range rows {
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for i, v := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			n++
			b.WriteString(s.dialect.placeholder(n))
			dv, err := driverValue(v)
			if err != nil {
				return "", nil, fmt.Errorf("row %d, column %s: %w", r+1, columns[i], err)
			}
			args = append(args, dv)
		}
		b.WriteByte(')')
	}
	return b.String(), args, nil
}

func driverValue(v any) (any, error) {
	if valuer, ok := v.(driver.Valuer); ok {
		return valuer.Value()
	}
	return v, nil
}

// EnsureHistory creates the run history table if it does not exist.
func (s *Store) EnsureHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.historyDDL); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

// RecordFile writes one run history entry.
func (s *Store) RecordFile(ctx context.Context, runID uuid.UUID, report core.FileReport) error {
	cols := []string{
		"run_id", "file_name", "status", "rows_read", "rows_dropped", "rows_loaded",
		"error_code", "error_message", "started_at", "finished_at",
	}

	var code, message sql.NullString
	if report.Err != nil {
		code = sql.NullString{String: core.MapError(report.Err).Code, Valid: true}
		message = sql.NullString{String: report.Err.Error(), Valid: true}
	}

	query, args, err := s.insertStatement("EtlFileLog", cols, [][]any{{
		runID.String(),
		report.Path,
		string(report.Status),
		report.RowsRead,
		report.Stats.Dropped,
		report.RowsLoaded,
		code,
		message,
		nullTime(report.Started),
		nullTime(report.Finished),
	}})
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record history for %s: %w", report.Path, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
