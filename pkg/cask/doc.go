// Package cask is an embedded log-structured key-value store.
//
// A Bucket is one directory of append-only segment files plus an
// in-memory index from key to the location of its latest value. Writes
// append a record to the active segment and update the index; reads look
// the key up in the index and fetch the value with a single positioned
// read, served from a small LRU cache when possible.
//
// Deletes append a tombstone (a record with an empty value). Putting an
// empty value is therefore the same as deleting the key.
//
// # Recovery
//
// Close writes a hint file, a full checkpoint of the index, which the next
// Open loads instead of scanning the segments. Open removes the hint once
// it is loaded, so a hint on disk always describes the last clean close.
// When no hint exists the segments are replayed in write order, which
// recovers everything written before an unclean shutdown.
//
// Setting Options.ReplayOnMissingHint to false skips the replay. Open then
// keeps the hint after loading it, since it is the only checkpoint: after
// an unclean shutdown the bucket reopens as of the last clean close and
// writes made since are not indexed. Without any hint it starts with an
// empty index.
//
// # Compaction
//
// Compact copies every live pair into a fresh directory, swaps it in for
// the bucket directory and reopens. Superseded values and tombstones are
// dropped. Writes issued while a compaction copies are not guaranteed to
// survive it.
//
// # Concurrency
//
// A Bucket is safe for concurrent use by multiple goroutines. It assumes a
// single process: opening the same directory from two processes at once is
// not supported and nothing guards against it.
package cask
