// Package metrics holds the Prometheus collectors for an ETL run.
//
// The process runs once and exits, so nothing is scraped. Collectors live in
// their own registry and are pushed to a Pushgateway at the end of the run
// when one is configured.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Row stages for etl_rows_total.
const (
	StageExtracted = "extracted"
	StageDropped   = "dropped"
	StageImputed   = "imputed"
	StageLoaded    = "loaded"
)

// Recorder bundles pipeline metrics. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	Registry *prometheus.Registry

	FilesTotal  *prometheus.CounterVec
	RowsTotal   *prometheus.CounterVec
	LoadLatency prometheus.Histogram
	RunDuration prometheus.Gauge
	LastSuccess prometheus.Gauge
}

// New constructs a Recorder and registers its collectors.
func New() *Recorder {
	m := &Recorder{
		Registry: prometheus.NewRegistry(),
		FilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etl_files_total",
				Help: "Source files processed by result",
			},
			[]string{"result"},
		),
		RowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etl_rows_total",
				Help: "Rows seen by pipeline stage",
			},
			[]string{"stage"},
		),
		LoadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "etl_load_latency_seconds",
			Help:    "Time spent appending one file's rows to the store",
			Buckets: prometheus.DefBuckets,
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etl_run_duration_seconds",
			Help: "Duration of the last pipeline run",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etl_last_success_timestamp_seconds",
			Help: "Unix time of the last run in which every file loaded",
		}),
	}
	m.Registry.MustRegister(
		m.FilesTotal,
		m.RowsTotal,
		m.LoadLatency,
		m.RunDuration,
		m.LastSuccess,
	)
	return m
}

// ObserveFile counts one processed file.
func (m *Recorder) ObserveFile(result string) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(result).Inc()
}

// AddRows adds n rows to a stage counter.
func (m *Recorder) AddRows(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsTotal.WithLabelValues(stage).Add(float64(n))
}

// ObserveLoad records the duration of one store append.
func (m *Recorder) ObserveLoad(d time.Duration) {
	if m == nil {
		return
	}
	m.LoadLatency.Observe(d.Seconds())
}

// ObserveRun records a finished run.
func (m *Recorder) ObserveRun(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.RunDuration.Set(d.Seconds())
	if ok {
		m.LastSuccess.SetToCurrentTime()
	}
}

// Push sends every collector to the Pushgateway at url under job.
// An empty url is a no-op.
func (m *Recorder) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(m.Registry).PushContext(ctx)
}
