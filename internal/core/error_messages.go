package core

// error_messages.go maps technical errors to coded operator messages.
//
// Codes are grouped by category so operators can quote them:
//
//	DB001  Duplicate key            DB005  Connection reset
//	DB002  Unique constraint        DB006  Timeout
//	DB003  Foreign key              DB007  Deadlock
//	DB004  Connection refused       DB008  Table or column missing
//	VAL001 Invalid number           VAL003 Missing column
//	VAL002 Null in required column  VAL004 Malformed row
//	FILE001 File too large          FILE003 Encoding error
//	FILE002 Invalid CSV             FILE004 Unsupported format
//	FILE005 Empty file
//	ETL001 Store unavailable (breaker open)
//	ETL002 Run cancelled or timed out
//	ERR000 Unknown error
//
// Classification checks typed errors first (sentinels, PostgreSQL SQLSTATE,
// MySQL and SQL Server error numbers), then falls back to case-insensitive text patterns.
// The first matching pattern wins, so specific patterns come first.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
)

// UserMessage provides operator-friendly error information with guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgDuplicate = UserMessage{
		Message: "A record with this ID already exists",
		Action:  "Check whether the file was already loaded",
		Code:    "DB001",
	}
	msgUnique = UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check for duplicate entries in the file",
		Code:    "DB002",
	}
	msgForeignKey = UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Ensure parent records are loaded first",
		Code:    "DB003",
	}
	msgConnRefused = UserMessage{
		Message: "Unable to connect to database",
		Action:  "Check DATABASE_URL and that the database is running",
		Code:    "DB004",
	}
	msgConnReset = UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Re-run the pipeline for the failed files",
		Code:    "DB005",
	}
	msgTimeout = UserMessage{
		Message: "Operation timed out",
		Action:  "Raise LOAD_TIMEOUT or split the file",
		Code:    "DB006",
	}
	msgDeadlock = UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Re-run the pipeline for the failed files",
		Code:    "DB007",
	}
	msgSchema = UserMessage{
		Message: "Destination table or column does not exist",
		Action:  "Create the destination table before running the load",
		Code:    "DB008",
	}
	msgNumber = UserMessage{
		Message: "Invalid number format detected",
		Action:  "Use plain decimal numbers in numeric columns",
		Code:    "VAL001",
	}
	msgNotNull = UserMessage{
		Message: "A required destination column received no value",
		Action:  "Check the file for columns that are entirely empty",
		Code:    "VAL002",
	}
	msgMissingColumn = UserMessage{
		Message: "Required column is missing from the file",
		Action:  "Check that all source headers are present",
		Code:    "VAL003",
	}
	msgMalformedRow = UserMessage{
		Message: "Row has more fields than the header",
		Action:  "Check delimiters and quoting in the file",
		Code:    "VAL004",
	}
	msgTooLarge = UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Split the file or raise SOURCE_MAX_FILE_SIZE",
		Code:    "FILE001",
	}
	msgInvalidCSV = UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated with balanced quotes",
		Code:    "FILE002",
	}
	msgEncoding = UserMessage{
		Message: "File contains invalid characters",
		Action:  "Save the file as UTF-8",
		Code:    "FILE003",
	}
	msgUnsupported = UserMessage{
		Message: "File format is not supported",
		Action:  "Deliver .csv or .xlsx files",
		Code:    "FILE004",
	}
	msgEmpty = UserMessage{
		Message: "The file has no header row",
		Action:  "Deliver files with a header and data rows",
		Code:    "FILE005",
	}
	msgBreakerOpen = UserMessage{
		Message: "Loads are paused after repeated store failures",
		Action:  "Check database health and re-run the failed files",
		Code:    "ETL001",
	}
	msgCancelled = UserMessage{
		Message: "Run was cancelled or timed out",
		Action:  "Re-run the pipeline for the remaining files",
		Code:    "ETL002",
	}
)

// errorPattern defines a pattern to match and its corresponding message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is the text fallback for errors without a typed match.
var errorPatterns = []errorPattern{
	{"duplicate key", msgDuplicate},
	{"duplicate entry", msgDuplicate},
	{"unique constraint", msgUnique},
	{"violates unique", msgUnique},
	{"foreign key constraint", msgForeignKey},
	{"violates foreign key", msgForeignKey},
	{"connection refused", msgConnRefused},
	{"connection reset", msgConnReset},
	{"broken pipe", msgConnReset},
	{"deadlock", msgDeadlock},
	{"timeout", msgTimeout},
	{"does not exist", msgSchema},
	{"doesn't exist", msgSchema},
	{"invalid number", msgNumber},
	{"encoding error", msgEncoding},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the underlying error",
	Code:    "ERR000",
}

// postgresCodes maps SQLSTATE values to messages.
var postgresCodes = map[string]UserMessage{
	"23505": msgDuplicate,
	"23503": msgForeignKey,
	"23502": msgNotNull,
	"40P01": msgDeadlock,
	"57014": msgTimeout,
	"42P01": msgSchema,
	"42703": msgSchema,
	"22P02": msgNumber,
	"08006": msgConnReset,
	"08001": msgConnRefused,
}

// mysqlCodes maps MySQL server error numbers to messages.
var mysqlCodes = map[uint16]UserMessage{
	1062: msgDuplicate,
	1452: msgForeignKey,
	1048: msgNotNull,
	1213: msgDeadlock,
	1205: msgTimeout,
	1146: msgSchema,
	1054: msgSchema,
	1366: msgNumber,
	1367: msgNumber,
}

// sqlServerCodes maps SQL Server error numbers to messages.
var sqlServerCodes = map[int32]UserMessage{
	2627: msgDuplicate,
	2601: msgUnique,
	547:  msgForeignKey,
	515:  msgNotNull,
	1205: msgDeadlock,
	208:  msgSchema,
	207:  msgSchema,
	8114: msgNumber,
	245:  msgNumber,
}

// MapError converts a technical error to an operator-facing message.
//
// Example:
//
//	msg := MapError(&pgconn.PgError{Code: "23505"})
//	// msg.Code == "DB001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return msgBreakerOpen
	case errors.Is(err, ErrFileTooLarge):
		return msgTooLarge
	case errors.Is(err, ErrUnsupportedFormat):
		return msgUnsupported
	case errors.Is(err, ErrMissingColumn):
		return msgMissingColumn
	case errors.Is(err, ErrEmptyFile):
		return msgEmpty
	case errors.Is(err, errTooManyFields):
		return msgMalformedRow
	case errors.Is(err, context.Canceled):
		return msgCancelled
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := postgresCodes[pgErr.Code]; ok {
			return msg
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if msg, ok := mysqlCodes[myErr.Number]; ok {
			return msg
		}
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		if msg, ok := sqlServerCodes[msErr.Number]; ok {
			return msg
		}
	}

	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		return msgInvalidCSV
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return msgTimeout
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific catalogued message
// rather than the ERR000 default.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
