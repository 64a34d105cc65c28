package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/behavioretl/internal/config"
	"github.com/JonMunkholm/behavioretl/internal/core"
	"github.com/JonMunkholm/behavioretl/internal/core/tables"
	"github.com/JonMunkholm/behavioretl/internal/logging"
	"github.com/JonMunkholm/behavioretl/internal/metrics"
	"github.com/JonMunkholm/behavioretl/internal/source"
	"github.com/JonMunkholm/behavioretl/internal/store/postgres"
	"github.com/JonMunkholm/behavioretl/internal/store/sqlstore"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1 // configuration, connection or aborted run
	exitPartial = 2 // run finished but some files did not load
)

// store is what the pipeline needs from either store implementation.
type store interface {
	core.Store
	core.HistoryRecorder
	EnsureHistory(ctx context.Context) error
	Close() error
}

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return exitFailure
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "driver", cfg.Database.Driver, "error", err,
			"code", core.MapError(err).Code)
		return exitFailure
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}()
	slog.Info("connected to database", "driver", cfg.Database.Driver)

	def, ok := core.Get(tables.UserBehaviorKey)
	if !ok {
		slog.Error("destination table not registered", "key", tables.UserBehaviorKey)
		return exitFailure
	}

	rec := metrics.New()
	loader, err := core.NewLoader(def, core.LoaderConfig{
		Table:           cfg.Load.Table,
		Timeout:         cfg.Load.Timeout,
		BreakerFailures: cfg.Load.BreakerFailures,
		BreakerTimeout:  cfg.Load.BreakerTimeout,
	}, rec)
	if err != nil {
		slog.Error("failed to create loader", "error", err)
		return exitFailure
	}

	opts := []core.Option{
		core.WithExtractor(core.NewExtractor(cfg.Source.MaxFileSize)),
		core.WithMetrics(rec),
	}
	if cfg.Load.RecordHistory {
		if err := st.EnsureHistory(ctx); err != nil {
			slog.Warn("run history disabled", "error", err)
		} else {
			opts = append(opts, core.WithHistory(st))
		}
	}

	pipeline := core.NewPipeline(core.PipelineConfig{
		Extensions:   cfg.Source.Extensions,
		SkipBadFiles: cfg.Source.SkipBadFiles,
		Workers:      cfg.Source.Workers,
	}, loader, opts...)

	report, runErr := pipeline.RunDir(ctx, source.NewDirLister(), cfg.Source.Dir, st)

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := rec.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		slog.Warn("failed to push metrics", "error", err)
	}

	if report != nil {
		printReport(report)
	}

	switch {
	case runErr != nil:
		slog.Error("run aborted", "error", runErr, "code", core.MapError(runErr).Code,
			"hint", core.FormatUserError(runErr))
		return exitFailure
	case !report.OK():
		return exitPartial
	default:
		return exitOK
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch driver := strings.ToLower(cfg.Database.Driver); driver {
	case "postgres":
		return postgres.Open(ctx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			ConnectTimeout:  cfg.Database.ConnectTimeout,
		})
	case "postgres-sql", "mysql", "sqlserver":
		return sqlstore.Open(ctx, sqlstore.Config{
			Dialect:         driver,
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			ConnectTimeout:  cfg.Database.ConnectTimeout,
			BatchSize:       cfg.Database.InsertBatchSize,
		})
	default:
		return nil, errors.New("unsupported DB_DRIVER " + driver)
	}
}

// printReport writes the identifiers loaded per file to stdout.
func printReport(r *core.RunReport) {
	for _, f := range r.Files {
		switch f.Status {
		case core.StatusLoaded:
			fmt.Printf("%s: loaded %d rows, user ids: %s\n", f.Path, f.RowsLoaded, strings.Join(f.IDs, ", "))
		case core.StatusCancelled:
			fmt.Printf("%s: cancelled\n", f.Path)
		default:
			fmt.Printf("%s: %s: %s\n", f.Path, f.Status, describe(f.Err))
		}
	}
	fmt.Printf("run %s: %d/%d files loaded, %d rows\n",
		shortID(r.RunID), r.Count(core.StatusLoaded), len(r.Files), r.RowsLoaded())
}

// describe prefers the catalogued operator message and falls back to the raw
// error for anything uncatalogued.
func describe(err error) string {
	if err == nil {
		return ""
	}
	if core.IsUserFacing(err) {
		return core.FormatUserError(err)
	}
	return err.Error()
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
