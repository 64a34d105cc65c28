package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned for files whose extension has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrMissingColumn is returned when a required header is not found.
	ErrMissingColumn = errors.New("missing required column")

	// ErrFileTooLarge is returned when a source exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEmptyFile is returned for files without a header row.
	ErrEmptyFile = errors.New("empty file")

	// ErrStoreUnavailable is returned while the load circuit breaker is open.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ExtractionError reports a source file that could not be read or parsed.
type ExtractionError struct {
	Path   string
	Line   int    // 0 when the problem is not tied to a row
	Column string // empty when the problem is not tied to a cell
	Err    error
}

func (e *ExtractionError) Error() string {
	switch {
	case e.Line > 0 && e.Column != "":
		return fmt.Sprintf("extract %s: line %d, column %q: %v", e.Path, e.Line, e.Column, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("extract %s: line %d: %v", e.Path, e.Line, e.Err)
	default:
		return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
	}
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// LoadError reports a store failure while appending one file's records.
type LoadError struct {
	Source string
	Table  string
	Rows   int
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %d rows from %s into %s: %v", e.Rows, e.Source, e.Table, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
