// Package recordstore loads and atomically persists the device record corpus.
//
// Every record lives in its own JSON file somewhere below the corpus
// directory. Load walks the tree, decodes each file, and validates it against
// the record schema; files that fail are skipped and returned as problems so
// one bad record never hides the rest. Save re-validates and writes through a
// temp file in the same directory followed by an fsync and rename, so a failed
// write leaves the previous file untouched.
//
// No other package reads or writes record files.
package recordstore
