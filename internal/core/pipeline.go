package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/behavioretl/internal/logging"
	"github.com/JonMunkholm/behavioretl/internal/metrics"
)

// RecordExtractor reads one source file.
type RecordExtractor interface {
	Extract(ctx context.Context, path string) (RecordSet[RawRecord], error)
}

// RecordTransformer cleans one batch.
type RecordTransformer interface {
	Transform(ctx context.Context, set RecordSet[RawRecord]) (RecordSet[TransformedRecord], TransformStats)
}

// RecordLoader appends one batch. Failures are reported in LoadResult.Err.
type RecordLoader interface {
	Load(ctx context.Context, set RecordSet[TransformedRecord], store Store) LoadResult
}

// PipelineConfig controls file selection and failure handling.
type PipelineConfig struct {
	// Extensions selects which files are processed. Defaults to SupportedExtensions.
	Extensions []string

	// SkipBadFiles records extraction failures and continues instead of
	// aborting the run.
	SkipBadFiles bool

	// Workers is the number of files processed at once. Values below 2 run
	// files strictly one after another.
	Workers int
}

// Pipeline drives source files through extract, transform and load.
type Pipeline struct {
	cfg         PipelineConfig
	extractor   RecordExtractor
	transformer RecordTransformer
	loader      RecordLoader
	history     HistoryRecorder
	metrics     *metrics.Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExtractor replaces the default Extractor.
func WithExtractor(e RecordExtractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithTransformer replaces the default Transformer.
func WithTransformer(t RecordTransformer) Option {
	return func(p *Pipeline) { p.transformer = t }
}

// WithHistory records one entry per processed file.
func WithHistory(h HistoryRecorder) Option {
	return func(p *Pipeline) { p.history = h }
}

// WithMetrics observes per-file and per-run metrics.
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a Pipeline that loads through loader.
func NewPipeline(cfg PipelineConfig, loader RecordLoader, opts ...Option) *Pipeline {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = SupportedExtensions
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	p := &Pipeline{
		cfg:         cfg,
		extractor:   NewExtractor(0),
		transformer: NewTransformer(),
		loader:      loader,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunDir lists dir and runs every supported file in it.
func (p *Pipeline) RunDir(ctx context.Context, lister Lister, dir string, store Store) (*RunReport, error) {
	paths, err := lister.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return p.Run(ctx, paths, store)
}

// Run processes paths in the given order. Files with other extensions are
// listed in RunReport.Skipped.
//
// A load failure is recorded in the file's report and the run continues. An
// extraction failure aborts the run and is returned, unless SkipBadFiles is
// set. When ctx is cancelled the remaining files are marked cancelled and
// ctx.Err() is returned. The report is returned in every case.
func (p *Pipeline) Run(ctx context.Context, paths []string, store Store) (*RunReport, error) {
	report := &RunReport{RunID: uuid.New(), Started: time.Now()}
	ctx = logging.WithRunID(ctx, report.RunID.String())
	logger := logging.FromContext(ctx)

	var files []string
	for _, path := range paths {
		if IsSupported(path, p.cfg.Extensions) {
			files = append(files, path)
		} else {
			report.Skipped = append(report.Skipped, path)
		}
	}
	if len(report.Skipped) > 0 {
		logger.Debug("files skipped by extension", "files", report.Skipped)
	}
	logger.Info("run started", "files", len(files), "workers", p.cfg.Workers)

	report.Files = make([]FileReport, len(files))
	var err error
	if p.cfg.Workers > 1 {
		err = p.runParallel(ctx, report.RunID, files, store, report.Files)
	} else {
		err = p.runSequential(ctx, report.RunID, files, store, report.Files)
	}
	if err == nil {
		err = ctx.Err()
	}

	report.Finished = time.Now()
	p.metrics.ObserveRun(report.Finished.Sub(report.Started), err == nil && report.OK())

	logger.Info("run finished",
		"loaded", report.Count(StatusLoaded),
		"load_failed", report.Count(StatusLoadFailed),
		"extract_failed", report.Count(StatusExtractFailed),
		"cancelled", report.Count(StatusCancelled),
		"rows", report.RowsLoaded(),
		"duration_ms", report.Finished.Sub(report.Started).Milliseconds(),
	)
	return report, err
}

func (p *Pipeline) runSequential(ctx context.Context, runID uuid.UUID, files []string, store Store, out []FileReport) error {
	for i, path := range files {
		if ctx.Err() != nil {
			markCancelled(out[i:], files[i:])
			return ctx.Err()
		}
		fr, err := p.processFile(ctx, runID, path, store)
		out[i] = fr
		if err != nil {
			markCancelled(out[i+1:], files[i+1:])
			return err
		}
	}
	return nil
}

func (p *Pipeline) runParallel(ctx context.Context, runID uuid.UUID, files []string, store Store, out []FileReport) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if gctx.Err() != nil {
				out[i] = FileReport{Path: path, Status: StatusCancelled}
				return nil
			}
			fr, err := p.processFile(gctx, runID, path, store)
			out[i] = fr
			return err
		})
	}
	return g.Wait()
}

func markCancelled(out []FileReport, files []string) {
	for i, path := range files {
		out[i] = FileReport{Path: path, Status: StatusCancelled}
	}
}

// processFile runs one file through all three stages. The returned error is
// non-nil only when the failure must abort the run.
func (p *Pipeline) processFile(ctx context.Context, runID uuid.UUID, path string, store Store) (FileReport, error) {
	ctx = logging.WithFile(ctx, path)
	fr := FileReport{Path: path, Started: time.Now()}

	raw, err := p.extractor.Extract(ctx, path)
	if err != nil {
		fr.Err = err
		fr.Finished = time.Now()
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			fr.Status = StatusCancelled
			p.finishFile(ctx, runID, &fr)
			return fr, ctx.Err()
		}

		fr.Status = StatusExtractFailed
		msg := MapError(err)
		logging.FromContext(ctx).Error("extraction failed", "code", msg.Code, "error", err)
		p.finishFile(ctx, runID, &fr)
		if p.cfg.SkipBadFiles {
			return fr, nil
		}
		return fr, err
	}
	fr.RowsRead = raw.Len()

	transformed, stats := p.transformer.Transform(ctx, raw)
	fr.Stats = stats

	res := p.loader.Load(ctx, transformed, store)
	fr.Finished = time.Now()
	switch {
	case res.OK():
		fr.Status = StatusLoaded
		fr.RowsLoaded = res.Rows
		fr.IDs = res.IDs
	case errors.Is(res.Err, context.Canceled):
		fr.Status = StatusCancelled
		fr.Err = res.Err
	default:
		fr.Status = StatusLoadFailed
		fr.Err = res.Err
	}

	p.finishFile(ctx, runID, &fr)
	return fr, nil
}

// finishFile observes metrics and writes the history entry for fr.
// History failures are logged only.
func (p *Pipeline) finishFile(ctx context.Context, runID uuid.UUID, fr *FileReport) {
	p.metrics.ObserveFile(string(fr.Status))
	p.metrics.AddRows(metrics.StageExtracted, fr.RowsRead)
	p.metrics.AddRows(metrics.StageDropped, fr.Stats.Dropped)
	p.metrics.AddRows(metrics.StageImputed, fr.Stats.Imputed)
	p.metrics.AddRows(metrics.StageLoaded, int(fr.RowsLoaded))

	if p.history == nil {
		return
	}
	if err := p.history.RecordFile(context.WithoutCancel(ctx), runID, *fr); err != nil {
		logging.FromContext(ctx).Warn("failed to record file history", "error", err)
	}
}
