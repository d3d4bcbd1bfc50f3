// Package runlog keeps a SQLite ledger of completed reconciliation runs.
//
// Each non-dry run inserts one row into runs plus one row per collector into
// source_results. The ledger is an operator convenience, not a source of
// truth: records on disk always win. Schema changes bump schemaVersion and
// users clear the database to adopt them.
package runlog
