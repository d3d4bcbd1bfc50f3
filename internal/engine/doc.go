// Package engine coordinates one reconciliation run.
//
// A run takes the single-run lock, loads the corpus, opens the history
// cache, builds the enabled collectors, gathers findings under the run
// budget and hands them to the merge engine. Afterwards it writes the JSON
// report, records the run in the ledger, exports metrics and sends
// notifications. Sink failures are logged and never fail the run; a missing
// or empty corpus aborts before any collector starts.
package engine
