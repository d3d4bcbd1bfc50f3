// Package preflight provides readiness checks for the corpus directory and
// the external services fpsync depends on.
//
// The CLI "fpsync preflight" command prints every check. The run coordinator
// only calls CheckDirectoryAccess on the corpus; collector reachability is
// reported per source in the run report instead of blocking the run.
//
// Each network check is gated by its config toggle; disabled collectors are
// skipped.
package preflight
