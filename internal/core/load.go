package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/JonMunkholm/behavioretl/internal/logging"
	"github.com/JonMunkholm/behavioretl/internal/metrics"
)

// LoaderConfig controls how a Loader talks to its store.
type LoaderConfig struct {
	// Table overrides the definition's destination table when set.
	Table string

	// Timeout bounds one file's append. Zero means no limit.
	Timeout time.Duration

	// BreakerFailures is the number of consecutive store failures that
	// open the circuit breaker. Zero disables the breaker.
	BreakerFailures int

	// BreakerTimeout is how long the breaker stays open before letting a
	// trial load through.
	BreakerTimeout time.Duration
}

// Loader appends transformed batches to a destination table.
// It is safe for concurrent use.
type Loader struct {
	def     TableDefinition
	table   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[int64]
	metrics *metrics.Recorder
}

// NewLoader creates a Loader for def. m may be nil.
func NewLoader(def TableDefinition, cfg LoaderConfig, m *metrics.Recorder) (*Loader, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	l := &Loader{
		def:     def,
		table:   def.Info.Table,
		timeout: cfg.Timeout,
		metrics: m,
	}
	if cfg.Table != "" {
		l.table = cfg.Table
	}

	if cfg.BreakerFailures > 0 {
		threshold := uint32(cfg.BreakerFailures)
		l.breaker = gobreaker.NewCircuitBreaker[int64](gobreaker.Settings{
			Name:        "store:" + l.table,
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}

	return l, nil
}

// Table returns the destination table name.
func (l *Loader) Table() string {
	return l.table
}

// Load appends every record of set in one store call. A store failure is
// returned in LoadResult.Err as *LoadError and logged; it never panics.
// An empty set succeeds without touching the store.
func (l *Loader) Load(ctx context.Context, set RecordSet[TransformedRecord], store Store) LoadResult {
	logger := logging.WithFields(ctx, "table", l.table)
	result := LoadResult{Source: set.Source, Table: l.table}

	if set.Len() == 0 {
		logger.Info("nothing to load")
		return result
	}

	rows := make([][]any, set.Len())
	ids := make([]string, set.Len())
	for i, rec := range set.Records {
		rows[i] = l.def.CopyRow(rec)
		ids[i] = l.def.RecordID(rec)
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := l.append(ctx, store, rows)
	result.Duration = time.Since(start)
	l.metrics.ObserveLoad(result.Duration)

	if err != nil {
		result.Err = &LoadError{Source: set.Source, Table: l.table, Rows: len(rows), Err: err}
		msg := MapError(err)
		logger.Error("load failed",
			"rows", len(rows),
			"code", msg.Code,
			"error", err,
		)
		return result
	}

	result.Rows = n
	result.IDs = ids
	logger.Info("records loaded",
		"rows", n,
		"ids", ids,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result
}

func (l *Loader) append(ctx context.Context, store Store, rows [][]any) (int64, error) {
	columns := l.def.CopyColumns
	if l.breaker == nil {
		return store.AppendRows(ctx, l.table, columns, rows)
	}

	n, err := l.breaker.Execute(func() (int64, error) {
		return store.AppendRows(ctx, l.table, columns, rows)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return n, err
}
