package core

import (
	"context"
	"math"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/behavioretl/internal/logging"
)

// Transformer cleans raw records and reshapes them for the destination table.
// It holds no state between batches.
type Transformer struct{}

// NewTransformer creates a Transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// workRow carries a record through the transform steps.
type workRow struct {
	raw           RawRecord
	screenOnMin   float64
	efficiency    float64
	label         pgtype.Text
	dataUsage     float64
	appUsageValue pgtype.Float8
}

// Transform applies, in order and each over the whole batch: drop rows
// without a UserID, impute app usage with the batch mean, derive screen-on
// minutes and battery efficiency, label the behavior class, round the
// derived metrics, and rename to the destination shape.
//
// Output order follows input order. Transform never fails; anomalies are
// counted in TransformStats and logged.
func (t *Transformer) Transform(ctx context.Context, set RecordSet[RawRecord]) (RecordSet[TransformedRecord], TransformStats) {
	logger := logging.FromContext(ctx)
	stats := TransformStats{Input: set.Len()}

	rows := dropMissingIDs(set.Records, &stats)
	imputeAppUsage(rows, &stats)
	deriveMetrics(rows, &stats)
	labelClasses(rows, &stats)
	roundMetrics(rows)
	out := RecordSet[TransformedRecord]{Source: set.Source, Records: rename(rows)}

	if stats.MeanUndefined {
		logger.Warn("app usage mean undefined, values left empty", "rows", len(rows))
	}
	if stats.NonFiniteEfficiency > 0 {
		logger.Warn("non-finite battery efficiency", "rows", stats.NonFiniteEfficiency)
	}
	if stats.UnmappedClass > 0 {
		logger.Warn("behavior class outside 1..5, label left empty", "rows", stats.UnmappedClass)
	}
	logger.Info("records transformed",
		"input", stats.Input,
		"output", out.Len(),
		"dropped", stats.Dropped,
		"imputed", stats.Imputed,
	)

	return out, stats
}

func dropMissingIDs(records []RawRecord, stats *TransformStats) []workRow {
	rows := make([]workRow, 0, len(records))
	for _, r := range records {
		if !r.UserID.Valid {
			stats.Dropped++
			continue
		}
		rows = append(rows, workRow{raw: r, appUsageValue: r.AppUsageTime, dataUsage: r.DataUsage})
	}
	return rows
}

// imputeAppUsage fills absent app usage with the mean of the present values
// in the same batch. With no present value the gaps stay absent.
func imputeAppUsage(rows []workRow, stats *TransformStats) {
	var sum float64
	var n int
	for _, r := range rows {
		if r.appUsageValue.Valid {
			sum += r.appUsageValue.Float64
			n++
		}
	}
	if n == 0 {
		stats.MeanUndefined = len(rows) > 0
		return
	}

	mean := sum / float64(n)
	for i := range rows {
		if !rows[i].appUsageValue.Valid {
			rows[i].appUsageValue = pgtype.Float8{Float64: mean, Valid: true}
			stats.Imputed++
		}
	}
	if stats.Imputed > 0 {
		stats.ImputedMean = mean
	}
}

// deriveMetrics computes screen-on minutes and mAh per screen-on hour.
// Zero or NaN hours yield ±Inf or NaN efficiency, which is kept and counted.
func deriveMetrics(rows []workRow, stats *TransformStats) {
	for i := range rows {
		hours := rows[i].raw.ScreenOnTimeHours
		rows[i].screenOnMin = hours * 60
		rows[i].efficiency = rows[i].raw.BatteryDrain / hours
		if math.IsInf(rows[i].efficiency, 0) || math.IsNaN(rows[i].efficiency) {
			stats.NonFiniteEfficiency++
		}
	}
}

func labelClasses(rows []workRow, stats *TransformStats) {
	for i := range rows {
		label, ok := BehaviorLabelFor(rows[i].raw.BehaviorClass)
		if !ok {
			stats.UnmappedClass++
			continue
		}
		rows[i].label = pgtype.Text{String: label, Valid: true}
	}
}

func roundMetrics(rows []workRow) {
	for i := range rows {
		rows[i].efficiency = Round2(rows[i].efficiency)
		rows[i].screenOnMin = Round2(rows[i].screenOnMin)
		rows[i].dataUsage = Round2(rows[i].dataUsage)
	}
}

// rename produces destination records; see FieldMappings.
func rename(rows []workRow) []TransformedRecord {
	out := make([]TransformedRecord, len(rows))
	for i, r := range rows {
		out[i] = TransformedRecord{
			UserID:                r.raw.UserID,
			DeviceModel:           r.raw.DeviceModel,
			OperatingSystem:       r.raw.OperatingSystem,
			AppUsageTimeMinPerDay: r.appUsageValue,
			ScreenOnTimeMinPerDay: r.screenOnMin,
			BatteryDrainPerDay:    r.raw.BatteryDrain,
			AppsInstalledCount:    r.raw.AppsInstalled,
			DataUsagePerDay:       r.dataUsage,
			UserAge:               r.raw.Age,
			UserGender:            r.raw.Gender,
			BehaviorClass:         r.raw.BehaviorClass,
			BehaviorLabel:         r.label,
			BatteryEfficiency:     r.efficiency,
		}
	}
	return out
}
