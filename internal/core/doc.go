// Package core provides the extract, transform and load logic for device
// usage behavior files.
//
// This package holds all domain logic independent of any particular store or
// entry point. The store, the directory lister and the run history are
// interfaces, so the same pipeline runs against PostgreSQL, MySQL or test
// fakes without modification.
//
// # Architecture
//
// A run moves each source file through three stages:
//
//  1. [Extractor] parses a .csv or .xlsx file into a [RecordSet] of
//     [RawRecord], keeping values as delivered.
//  2. [Transformer] drops rows without a UserID, imputes missing app usage
//     with the batch mean, derives screen-on minutes and battery efficiency,
//     labels the behavior class, rounds the metrics and renames everything
//     to the destination schema ([TransformedRecord]).
//  3. [Loader] appends the batch to the destination table through a [Store]
//     and reports the identifiers written.
//
// [Pipeline] drives the stages one file at a time (or across a bounded pool
// of workers) and returns a [RunReport].
//
// # Table Registry
//
// Destination tables are registered at init time using [Register]. Each
// [TableDefinition] lists the destination columns in COPY order and a row
// builder:
//
//	core.Register(core.TableDefinition{
//	    Info:        core.TableInfo{Key: "user_behavior", Table: "UserBehaviorData"},
//	    CopyColumns: core.DestinationColumnNames(),
//	    CopyRow:     userBehaviorRow,
//	})
//
// # Error Handling
//
// Extraction problems are returned as [*ExtractionError] and, by default,
// stop the run. Store problems are wrapped as [*LoadError], logged and kept
// in the file's report; they never stop the run. [MapError] turns either into
// a coded message for operators:
//
//   - DB001-DB008: Database errors (duplicates, constraints, connections, schema)
//   - VAL001-VAL004: Value errors (numbers, missing columns, row shape)
//   - FILE001-FILE005: File errors (size, encoding, format)
//   - ETL001-ETL002: Pipeline errors (breaker open, cancelled)
package core
