// Package main hosts the fpsync CLI.
//
// The Cobra command tree runs reconciliations (run, dry-run), exposes the
// extractor and classifier for one-off inspection, lists the run ledger,
// manages the history cache and scaffolds configuration. Output is a table on
// a terminal and JSON when piped or when --json is set. Logs always go to
// stderr so stdout stays machine-readable.
package main
