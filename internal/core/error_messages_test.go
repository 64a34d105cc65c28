package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
	gobreaker "github.com/sony/gobreaker/v2"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "duplicate key maps correctly",
			err:         errors.New("ERROR: duplicate key value violates unique constraint"),
			wantCode:    "DB001",
			wantMessage: "A record with this ID already exists",
		},
		{
			name:        "unique constraint maps correctly",
			err:         errors.New("ERROR: unique constraint violated"),
			wantCode:    "DB002",
			wantMessage: "This value must be unique but already exists",
		},
		{
			name:        "foreign key maps correctly",
			err:         errors.New("violates foreign key constraint"),
			wantCode:    "DB003",
			wantMessage: "Referenced record does not exist",
		},
		{
			name:        "connection refused maps correctly",
			err:         errors.New("dial tcp: connection refused"),
			wantCode:    "DB004",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "timeout maps correctly",
			err:         errors.New("i/o timeout"),
			wantCode:    "DB006",
			wantMessage: "Operation timed out",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("DUPLICATE KEY value violates"),
			wantCode:    "DB001",
			wantMessage: "A record with this ID already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestMapError_Typed(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"postgres unique violation", &pgconn.PgError{Code: "23505"}, "DB001"},
		{"postgres foreign key", &pgconn.PgError{Code: "23503"}, "DB003"},
		{"postgres not null", &pgconn.PgError{Code: "23502"}, "VAL002"},
		{"postgres deadlock", &pgconn.PgError{Code: "40P01"}, "DB007"},
		{"postgres undefined table", &pgconn.PgError{Code: "42P01"}, "DB008"},
		{"postgres bad text representation", &pgconn.PgError{Code: "22P02"}, "VAL001"},
		{"mysql duplicate entry", &mysql.MySQLError{Number: 1062}, "DB001"},
		{"mysql foreign key", &mysql.MySQLError{Number: 1452}, "DB003"},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, "DB007"},
		{"mysql unknown table", &mysql.MySQLError{Number: 1146}, "DB008"},
		{"sqlserver primary key", mssql.Error{Number: 2627}, "DB001"},
		{"sqlserver invalid object", fmt.Errorf("insert: %w", mssql.Error{Number: 208}), "DB008"},
		{"sqlserver deadlock victim", mssql.Error{Number: 1205}, "DB007"},
		{"wrapped in load error", &LoadError{Err: fmt.Errorf("copy: %w", &pgconn.PgError{Code: "23505"})}, "DB001"},
		{"breaker open", fmt.Errorf("%w: %w", ErrStoreUnavailable, gobreaker.ErrOpenState), "ETL001"},
		{"cancelled", fmt.Errorf("load: %w", context.Canceled), "ETL002"},
		{"deadline", context.DeadlineExceeded, "DB006"},
		{"file too large", &ExtractionError{Path: "a.csv", Err: ErrFileTooLarge}, "FILE001"},
		{"malformed csv", &ExtractionError{Path: "a.csv", Err: &csv.ParseError{Line: 3, Err: csv.ErrQuote}}, "FILE002"},
		{"unsupported format", &ExtractionError{Path: "a.json", Err: ErrUnsupportedFormat}, "FILE004"},
		{"empty file", &ExtractionError{Path: "a.csv", Err: ErrEmptyFile}, "FILE005"},
		{"missing column", &ExtractionError{Path: "a.csv", Err: ErrMissingColumn}, "VAL003"},
		{"too many fields", &ExtractionError{Path: "a.csv", Line: 4, Err: errTooManyFields}, "VAL004"},
		{"bad number", &ExtractionError{Path: "a.csv", Line: 2, Column: "Age", Err: errors.New(`invalid number "x"`)}, "VAL001"},
		{"unknown sqlstate falls through to text", &pgconn.PgError{Code: "XX000", Message: "deadlock detected"}, "DB007"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err).Code; got != tt.wantCode {
				t.Errorf("MapError(%v) code = %q, want %q", tt.err, got, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	err := &pgconn.PgError{Code: "23505"}
	result := FormatUserError(err)

	expected := "A record with this ID already exists (Code: DB001). Check whether the file was already loaded"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}

	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "known error is user facing",
			err:  errors.New("duplicate key"),
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractionError_Error(t *testing.T) {
	tests := []struct {
		err  *ExtractionError
		want string
	}{
		{&ExtractionError{Path: "a.csv", Err: ErrEmptyFile}, "extract a.csv: empty file"},
		{&ExtractionError{Path: "a.csv", Line: 4, Err: errTooManyFields}, "extract a.csv: line 4: row has more fields than the header"},
		{&ExtractionError{Path: "a.csv", Line: 2, Column: "Age", Err: errors.New("bad")}, `extract a.csv: line 2, column "Age": bad`},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestLoadError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset by peer")
	err := &LoadError{Source: "a.csv", Table: "UserBehaviorData", Rows: 3, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is(LoadError, inner) = false, want true")
	}
	if got := err.Error(); got != "load 3 rows from a.csv into UserBehaviorData: connection reset by peer" {
		t.Errorf("Error() = %q", got)
	}
}
