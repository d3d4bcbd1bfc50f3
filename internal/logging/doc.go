// Package logging assembles structured slog loggers and helpers used across
// fpsync.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so collectors and the merge
// engine tag log lines with the run id, source name, and record id without
// threading loggers by hand. A no-op logger is provided for tests and wiring
// code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits the same field names.
package logging
