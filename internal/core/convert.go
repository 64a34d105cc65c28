package core

// convert.go turns raw cell text into typed values.
//
// Cells come from spreadsheets exported by several tools, so the same
// cleanup applies to every cell before parsing:
//   - Surrounding whitespace and quotes
//   - Excel formula prefixes (="value")
//   - Thousands separators in numbers
//
// Absent values are represented by pgtype values with Valid=false, so they
// reach the store as NULL.

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// HeaderIndex maps column names (lowercase) to their position in the row.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a header row.
// Keys are lowercased for case-insensitive matching.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// Missing returns the required columns absent from the index.
func (h HeaderIndex) Missing(required []string) []string {
	var missing []string
	for _, col := range required {
		if _, ok := h[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// Cell returns the cleaned value of column col in row, or "" when the row is
// shorter than the header.
func (h HeaderIndex) Cell(row []string, col string) string {
	i, ok := h[strings.ToLower(col)]
	if !ok || i >= len(row) {
		return ""
	}
	return CleanCell(row[i])
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// isNullToken reports whether s is a spreadsheet spelling of "no value".
func isNullToken(s string) bool {
	switch strings.ToLower(s) {
	case "", "na", "n/a", "nan", "null", "none":
		return true
	}
	return false
}

// ParseFloat parses a numeric cell, accepting thousands separators.
func ParseFloat(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, fmt.Errorf("invalid number: empty value")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

// ParseInt parses an integer cell. Values such as "3.0" are accepted when
// they have no fractional part.
func ParseInt(s string) (int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := ParseFloat(s)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid number %q: not an integer", s)
	}
	return int(f), nil
}

// ToPgFloat8 converts a cell to pgtype.Float8. Blank and null tokens give an
// invalid value; anything else must parse.
func ToPgFloat8(s string) (pgtype.Float8, error) {
	s = strings.TrimSpace(s)
	if isNullToken(s) {
		return pgtype.Float8{Valid: false}, nil
	}
	f, err := ParseFloat(s)
	if err != nil {
		return pgtype.Float8{Valid: false}, err
	}
	return pgtype.Float8{Float64: f, Valid: true}, nil
}

// Round2 rounds to two decimal places, halves away from zero.
// ±Inf and NaN pass through unchanged.
func Round2(f float64) float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return f
	}
	return math.Round(f*100) / 100
}
