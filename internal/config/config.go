// Package config provides centralized configuration management for the ETL run.
// It loads configuration from an optional YAML file and environment variables
// with sensible defaults, and validates all settings on startup to fail fast
// on misconfiguration.
package config

import "time"

// ConfigFileEnv names the environment variable that points at an optional
// YAML configuration file. Environment variables override file values.
const ConfigFileEnv = "ETL_CONFIG_FILE"

// MaxInsertBatchSize bounds rows per INSERT. 5000 rows of 13 columns stay
// under the 65535 bind parameter limit of PostgreSQL and MySQL.
const MaxInsertBatchSize = 5000

// Config holds all application configuration.
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Database DatabaseConfig `yaml:"database"`
	Load     LoadConfig     `yaml:"load"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SourceConfig describes where telemetry files come from.
type SourceConfig struct {
	// Dir is the folder scanned for source files (required)
	Dir string `yaml:"dir" env:"DATA_FOLDER" envAlt:"SOURCE_DIR" required:"true"`

	// Extensions lists the file extensions treated as tabular sources
	Extensions []string `yaml:"extensions" env:"SOURCE_EXTENSIONS" default:".csv,.xlsx"`

	// SkipBadFiles keeps the run going when a file cannot be extracted (default: false)
	SkipBadFiles bool `yaml:"skip_bad_files" env:"SOURCE_SKIP_BAD_FILES" default:"false"`

	// MaxFileSize is the largest source file accepted, in bytes (default: 100MB)
	MaxFileSize int64 `yaml:"max_file_size" env:"SOURCE_MAX_FILE_SIZE" default:"104857600"`

	// Workers is the number of files processed in parallel (default: 1)
	Workers int `yaml:"workers" env:"PIPELINE_WORKERS" default:"1"`
}

// DatabaseConfig holds store connection settings.
type DatabaseConfig struct {
	// Driver selects the store implementation (default: postgres):
	//   postgres      pgx pool, COPY protocol
	//   postgres-sql  database/sql over pgx stdlib, batched INSERT
	//   mysql         database/sql over go-sql-driver/mysql, batched INSERT
	//   sqlserver     database/sql over microsoft/go-mssqldb, batched INSERT
	Driver string `yaml:"driver" env:"DB_DRIVER" default:"postgres"`

	// URL is the connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `yaml:"url" env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `yaml:"max_conns" env:"DB_MAX_CONNS" default:"4"`

	// InsertBatchSize is rows per INSERT statement for the database/sql drivers (default: 500)
	InsertBatchSize int `yaml:"insert_batch_size" env:"DB_INSERT_BATCH_SIZE" default:"500"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `yaml:"min_conns" env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// ConnectTimeout bounds the initial connect and ping (default: 10s)
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"DB_CONNECT_TIMEOUT" default:"10s"`
}

// LoadConfig holds settings for appending rows to the store.
type LoadConfig struct {
	// Table is the destination table (default: UserBehaviorData)
	Table string `yaml:"table" env:"LOAD_TABLE" default:"UserBehaviorData"`

	// Timeout is the maximum duration of one file's append (default: 5m)
	Timeout time.Duration `yaml:"timeout" env:"LOAD_TIMEOUT" default:"5m"`

	// BreakerFailures is the consecutive store failures that open the breaker; 0 disables (default: 5)
	BreakerFailures int `yaml:"breaker_failures" env:"LOAD_BREAKER_FAILURES" default:"5"`

	// BreakerTimeout is how long the breaker stays open before a trial load (default: 30s)
	BreakerTimeout time.Duration `yaml:"breaker_timeout" env:"LOAD_BREAKER_TIMEOUT" default:"30s"`

	// RecordHistory writes one EtlFileLog row per processed file (default: true)
	RecordHistory bool `yaml:"record_history" env:"LOAD_RECORD_HISTORY" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds Prometheus push settings.
type MetricsConfig struct {
	// PushgatewayURL enables pushing run metrics when set
	PushgatewayURL string `yaml:"pushgateway_url" env:"METRICS_PUSHGATEWAY_URL"`

	// Job is the Pushgateway job label (default: behavior_etl)
	Job string `yaml:"job" env:"METRICS_JOB" default:"behavior_etl"`
}
