package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration in three layers: tag defaults, then the YAML
// file named by ETL_CONFIG_FILE (if any), then environment variables.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(ConfigFileEnv))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file layer.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	root := reflect.ValueOf(cfg).Elem()

	if err := walkStruct(root, applyDefault); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := walkStruct(root, applyEnv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := walkStruct(root, checkRequired); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

type fieldFunc func(field reflect.StructField, value reflect.Value) error

// walkStruct recursively calls fn for every settable, tagged leaf field.
func walkStruct(v reflect.Value, fn fieldFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := walkStruct(fieldVal, fn); err != nil {
				return err
			}
			continue
		}

		if field.Tag.Get("env") == "" {
			continue
		}

		if err := fn(field, fieldVal); err != nil {
			return err
		}
	}

	return nil
}

func applyDefault(field reflect.StructField, value reflect.Value) error {
	def := field.Tag.Get("default")
	if def == "" {
		return nil
	}
	if err := setField(value, def); err != nil {
		return fmt.Errorf("invalid default for %s=%q: %w", field.Tag.Get("env"), def, err)
	}
	return nil
}

func applyEnv(field reflect.StructField, value reflect.Value) error {
	envName := field.Tag.Get("env")
	envAlt := field.Tag.Get("envAlt")

	// Try primary env var, then alternate
	raw := os.Getenv(envName)
	if raw == "" && envAlt != "" {
		raw = os.Getenv(envAlt)
	}
	if raw == "" {
		return nil
	}

	if err := setField(value, raw); err != nil {
		return fmt.Errorf("invalid value for %s=%q: %w", envName, raw, err)
	}
	return nil
}

func checkRequired(field reflect.StructField, value reflect.Value) error {
	if field.Tag.Get("required") != "true" {
		return nil
	}
	if value.IsZero() {
		return fmt.Errorf("required environment variable %s is not set", field.Tag.Get("env"))
	}
	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Source validation
	if c.Source.Dir == "" {
		errs = append(errs, "DATA_FOLDER is required")
	}
	if len(c.Source.Extensions) == 0 {
		errs = append(errs, "SOURCE_EXTENSIONS must list at least one extension")
	}
	for _, ext := range c.Source.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Sprintf("SOURCE_EXTENSIONS entry %q must start with a dot", ext))
		}
	}
	if c.Source.MaxFileSize <= 0 {
		errs = append(errs, "SOURCE_MAX_FILE_SIZE must be positive")
	}
	if c.Source.Workers <= 0 {
		errs = append(errs, "PIPELINE_WORKERS must be positive")
	}

	// Database validation
	validDrivers := map[string]bool{"postgres": true, "postgres-sql": true, "mysql": true, "sqlserver": true}
	if !validDrivers[strings.ToLower(c.Database.Driver)] {
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, postgres-sql, mysql, sqlserver", c.Database.Driver))
	}
	if c.Database.InsertBatchSize <= 0 || c.Database.InsertBatchSize > MaxInsertBatchSize {
		errs = append(errs, fmt.Sprintf("DB_INSERT_BATCH_SIZE (%d) must be between 1 and %d",
			c.Database.InsertBatchSize, MaxInsertBatchSize))
	}
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.ConnectTimeout <= 0 {
		errs = append(errs, "DB_CONNECT_TIMEOUT must be positive")
	}

	// Load validation
	if c.Load.Table == "" {
		errs = append(errs, "LOAD_TABLE must not be empty")
	}
	if c.Load.Timeout <= 0 {
		errs = append(errs, "LOAD_TIMEOUT must be positive")
	}
	if c.Load.BreakerFailures < 0 {
		errs = append(errs, "LOAD_BREAKER_FAILURES must be non-negative")
	}
	if c.Load.BreakerFailures > 0 && c.Load.BreakerTimeout <= 0 {
		errs = append(errs, "LOAD_BREAKER_TIMEOUT must be positive when the breaker is enabled")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	// Metrics validation
	if c.Metrics.PushgatewayURL != "" && c.Metrics.Job == "" {
		errs = append(errs, "METRICS_JOB is required when METRICS_PUSHGATEWAY_URL is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Source: {Dir: %q, Extensions: %v, Workers: %d}, ",
		c.Source.Dir, c.Source.Extensions, c.Source.Workers))
	b.WriteString(fmt.Sprintf("Database: {Driver: %q, URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.Driver, c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Load: {Table: %q, Timeout: %s, BreakerFailures: %d}, ",
		c.Load.Table, c.Load.Timeout, c.Load.BreakerFailures))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
