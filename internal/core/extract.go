package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/behavioretl/internal/logging"
)

// MaxHeaderSearchRows is the maximum number of rows to scan for the header.
var MaxHeaderSearchRows = 20

// ContextCheckInterval is how often (in rows) to check for context cancellation.
var ContextCheckInterval = 100

// SupportedExtensions lists the file extensions the extractor can read.
var SupportedExtensions = []string{".csv", ".xlsx"}

var errTooManyFields = errors.New("row has more fields than the header")

// rowReader yields raw rows from a tabular source.
type rowReader interface {
	// Read returns the next row and its 1-based line number, or io.EOF.
	Read() (row []string, line int, err error)
	Close() error
}

// Extractor reads source files into typed raw records.
type Extractor struct {
	// MaxFileSize rejects larger files before reading. Zero disables the check.
	MaxFileSize int64
}

// NewExtractor creates an Extractor with the given size limit.
func NewExtractor(maxFileSize int64) *Extractor {
	return &Extractor{MaxFileSize: maxFileSize}
}

// Extract reads every data row of the file at path.
// Any failure is returned as *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, path string) (RecordSet[RawRecord], error) {
	set := RecordSet[RawRecord]{Source: path}

	info, err := os.Stat(path)
	if err != nil {
		return set, &ExtractionError{Path: path, Err: err}
	}
	if e.MaxFileSize > 0 && info.Size() > e.MaxFileSize {
		return set, &ExtractionError{
			Path: path,
			Err:  fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, info.Size(), e.MaxFileSize),
		}
	}

	rr, counter, err := openRows(path)
	if err != nil {
		return set, &ExtractionError{Path: path, Err: err}
	}
	defer rr.Close()

	records, err := readRecords(ctx, path, rr)
	if err != nil {
		return set, err
	}
	set.Records = records

	attrs := []any{"path", path, "rows", len(records)}
	if counter != nil {
		attrs = append(attrs, "bytes", counter.BytesRead)
	}
	logging.FromContext(ctx).Info("records extracted", attrs...)

	return set, nil
}

// openRows picks a row reader by file extension.
func openRows(path string) (rowReader, *CountingReader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		counter := WrapForStreaming(f)
		r := csv.NewReader(counter)
		r.FieldsPerRecord = -1
		return &csvRows{r: r, f: f}, counter, nil
	case ".xlsx":
		rows, err := openSheet(path)
		if err != nil {
			return nil, nil, err
		}
		return rows, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

type csvRows struct {
	r *csv.Reader
	f *os.File
}

func (c *csvRows) Read() ([]string, int, error) {
	row, err := c.r.Read()
	if err != nil {
		return nil, 0, err
	}
	line, _ := c.r.FieldPos(0)
	return row, line, nil
}

func (c *csvRows) Close() error {
	return c.f.Close()
}

// xlsxRows streams the first worksheet of a workbook.
type xlsxRows struct {
	f    *excelize.File
	rows *excelize.Rows
	line int
}

func openSheet(path string) (*xlsxRows, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheet := f.GetSheetName(0)
	if sheet == "" {
		_ = f.Close()
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrEmptyFile)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return &xlsxRows{f: f, rows: rows}, nil
}

func (x *xlsxRows) Read() ([]string, int, error) {
	if !x.rows.Next() {
		if err := x.rows.Error(); err != nil {
			return nil, 0, err
		}
		return nil, 0, io.EOF
	}
	x.line++
	cols, err := x.rows.Columns(excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, 0, err
	}
	return cols, x.line, nil
}

func (x *xlsxRows) Close() error {
	_ = x.rows.Close()
	return x.f.Close()
}

// readRecords locates the header and parses every following row.
func readRecords(ctx context.Context, path string, rr rowReader) ([]RawRecord, error) {
	header, err := findHeader(path, rr)
	if err != nil {
		return nil, err
	}

	var records []RawRecord
	for i := 0; ; i++ {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &ExtractionError{Path: path, Err: err}
			}
		}

		row, line, err := rr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ExtractionError{Path: path, Line: line, Err: err}
		}
		if isEmptyRow(row) {
			continue
		}
		if len(row) > header.width {
			return nil, &ExtractionError{
				Path: path,
				Line: line,
				Err:  fmt.Errorf("%w: %d > %d", errTooManyFields, len(row), header.width),
			}
		}

		rec, err := parseRawRecord(header.idx, row)
		if err != nil {
			var ce *cellError
			if errors.As(err, &ce) {
				return nil, &ExtractionError{Path: path, Line: line, Column: ce.column, Err: ce.err}
			}
			return nil, &ExtractionError{Path: path, Line: line, Err: err}
		}
		rec.Line = line
		records = append(records, rec)
	}

	return records, nil
}

type headerRow struct {
	idx   HeaderIndex
	width int
}

// findHeader scans the first MaxHeaderSearchRows non-empty rows for one that
// carries every source column. Preamble rows above the header are ignored.
func findHeader(path string, rr rowReader) (headerRow, error) {
	var first []string
	for scanned := 0; scanned < MaxHeaderSearchRows; {
		row, line, err := rr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return headerRow{}, &ExtractionError{Path: path, Line: line, Err: err}
		}
		if isEmptyRow(row) {
			continue
		}
		scanned++
		if first == nil {
			first = row
		}

		idx := MakeHeaderIndex(row)
		if len(idx.Missing(SourceColumns)) == 0 {
			return headerRow{idx: idx, width: len(row)}, nil
		}
	}

	if first == nil {
		return headerRow{}, &ExtractionError{Path: path, Err: ErrEmptyFile}
	}

	missing := MakeHeaderIndex(first).Missing(SourceColumns)
	return headerRow{}, &ExtractionError{
		Path:   path,
		Column: missing[0],
		Err:    fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", ")),
	}
}

// cellError ties a conversion failure to its source column.
type cellError struct {
	column string
	err    error
}

func (e *cellError) Error() string {
	return fmt.Sprintf("column %q: %v", e.column, e.err)
}

func (e *cellError) Unwrap() error {
	return e.err
}

// parseRawRecord converts one data row. UserID and AppUsageTime may be blank.
// A blank screen-on value becomes NaN and flows into the derived metrics.
func parseRawRecord(h HeaderIndex, row []string) (RawRecord, error) {
	var rec RawRecord

	if id := h.Cell(row, ColUserID); !isNullToken(id) {
		rec.UserID = ToPgText(id)
	}
	rec.DeviceModel = h.Cell(row, ColDeviceModel)
	rec.OperatingSystem = h.Cell(row, ColOS)
	rec.Gender = h.Cell(row, ColGender)

	var err error
	if rec.AppUsageTime, err = ToPgFloat8(h.Cell(row, ColAppUsage)); err != nil {
		return rec, &cellError{column: ColAppUsage, err: err}
	}

	hours, err := ToPgFloat8(h.Cell(row, ColScreenOnHours))
	if err != nil {
		return rec, &cellError{column: ColScreenOnHours, err: err}
	}
	rec.ScreenOnTimeHours = math.NaN()
	if hours.Valid {
		rec.ScreenOnTimeHours = hours.Float64
	}

	floats := []struct {
		col string
		dst *float64
	}{
		{ColBatteryDrain, &rec.BatteryDrain},
		{ColDataUsage, &rec.DataUsage},
	}
	for _, f := range floats {
		if *f.dst, err = ParseFloat(h.Cell(row, f.col)); err != nil {
			return rec, &cellError{column: f.col, err: err}
		}
	}

	ints := []struct {
		col string
		dst *int
	}{
		{ColAppsInstalled, &rec.AppsInstalled},
		{ColAge, &rec.Age},
		{ColBehaviorClass, &rec.BehaviorClass},
	}
	for _, f := range ints {
		if *f.dst, err = ParseInt(h.Cell(row, f.col)); err != nil {
			return rec, &cellError{column: f.col, err: err}
		}
	}

	return rec, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// IsSupported reports whether path has one of the given extensions,
// compared case-insensitively.
func IsSupported(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, e := range extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
