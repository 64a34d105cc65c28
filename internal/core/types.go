package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Store appends rows to a destination table.
// Implementations must never update or delete existing rows.
type Store interface {
	AppendRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Lister enumerates candidate source files in a directory.
type Lister interface {
	List(ctx context.Context, dir string) ([]string, error)
}

// HistoryRecorder persists one entry per processed file.
type HistoryRecorder interface {
	RecordFile(ctx context.Context, runID uuid.UUID, report FileReport) error
}

// RawRecord is one source row as delivered, typed but not cleaned.
// Only UserID and AppUsageTime may be absent. A blank screen-on cell is NaN.
type RawRecord struct {
	Line              int
	UserID            pgtype.Text
	DeviceModel       string
	OperatingSystem   string
	AppUsageTime      pgtype.Float8 // min/day
	ScreenOnTimeHours float64       // hours/day
	BatteryDrain      float64       // mAh/day
	AppsInstalled     int
	DataUsage         float64 // MB/day
	Age               int
	Gender            string
	BehaviorClass     int
}

// TransformedRecord is a load-ready row. Field order and db tags follow
// FieldMappings exactly.
type TransformedRecord struct {
	UserID                pgtype.Text   `db:"UserId"`
	DeviceModel           string        `db:"DeviceModel"`
	OperatingSystem       string        `db:"OperatingSystem"`
	AppUsageTimeMinPerDay pgtype.Float8 `db:"AppUsageTimeMinPerDay"`
	ScreenOnTimeMinPerDay float64       `db:"ScreenOnTimeMinPerDay"`
	BatteryDrainPerDay    float64       `db:"BatteryDrainPerDay"`
	AppsInstalledCount    int           `db:"AppsInstalledCount"`
	DataUsagePerDay       float64       `db:"DataUsagePerDay"`
	UserAge               int           `db:"UserAge"`
	UserGender            string        `db:"UserGender"`
	BehaviorClass         int           `db:"BehaviorClass"`
	BehaviorLabel         pgtype.Text   `db:"BehaviorLabel"`
	BatteryEfficiency     float64       `db:"BatteryEfficiency"`
}

// RecordSet is the ordered batch produced from one source file.
type RecordSet[T any] struct {
	Source  string
	Records []T
}

// Len returns the number of records in the set.
func (s RecordSet[T]) Len() int {
	return len(s.Records)
}

// TransformStats summarizes what the transformer changed in one batch.
type TransformStats struct {
	Input               int
	Dropped             int     // rows without a UserID
	Imputed             int     // app usage values filled with the batch mean
	ImputedMean         float64 // zero when nothing was imputed
	MeanUndefined       bool    // every app usage value in the batch was absent
	NonFiniteEfficiency int     // zero or NaN screen-on hours
	UnmappedClass       int     // behavior class outside 1..5
}

// LoadResult is what the loader reports for one file.
type LoadResult struct {
	Source   string
	Table    string
	IDs      []string
	Rows     int64
	Duration time.Duration
	Err      error
}

// OK reports whether the append succeeded.
func (r LoadResult) OK() bool {
	return r.Err == nil
}

// FileStatus is the final state of one file in a run.
type FileStatus string

const (
	StatusLoaded        FileStatus = "loaded"
	StatusLoadFailed    FileStatus = "load_failed"
	StatusExtractFailed FileStatus = "extract_failed"
	StatusCancelled     FileStatus = "cancelled"
)

// FileReport describes how one source file went through the pipeline.
type FileReport struct {
	Path       string
	Status     FileStatus
	RowsRead   int
	RowsLoaded int64
	IDs        []string
	Stats      TransformStats
	Started    time.Time
	Finished   time.Time
	Err        error
}

// RunReport collects the file reports of one pipeline run, in input order.
type RunReport struct {
	RunID    uuid.UUID
	Files    []FileReport
	Skipped  []string // paths ignored because of their extension
	Started  time.Time
	Finished time.Time
}

// Count returns the number of files that ended in status.
func (r *RunReport) Count(status FileStatus) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

// RowsLoaded sums rows appended across all files.
func (r *RunReport) RowsLoaded() int64 {
	var n int64
	for _, f := range r.Files {
		n += f.RowsLoaded
	}
	return n
}

// OK reports whether every processed file was loaded.
func (r *RunReport) OK() bool {
	return r.Count(StatusLoaded) == len(r.Files)
}
