// Package historycache persists what the history collector learned from
// version-control objects so unchanged blobs are parsed once ever.
//
// Entries are content addressed: parsed blobs are keyed by blob hash and tree
// listings by revision plus corpus path, so neither can go stale. The cache is
// a badger database under history.cache_dir, or an in-memory database for one
// run when no directory is configured. The run coordinator owns the
// Open/Close lifecycle and hands the open cache to the collector.
package historycache
