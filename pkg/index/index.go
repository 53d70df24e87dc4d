// Package index holds the in-memory key directory of a cask: raw key bytes
// mapped to the location of their latest value, kept in key order.
package index

import (
	"bytes"
	"errors"
	"sync"

	"github.com/google/btree"

	"github.com/dd0wney/cluso-cask/pkg/record"
)

// ErrStop ends a ForEach walk early without an error.
var ErrStop = errors.New("stop iteration")

const degree = 32

type item struct {
	key []byte
	loc record.Location
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Table is an ordered key -> location map safe for concurrent use.
type Table struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[item]
}

// New returns an empty table.
func New() *Table {
	return &Table{tree: btree.NewG[item](degree, less)}
}

// Upsert stores loc for key and returns the location it replaced, if any.
// The key is copied.
func (t *Table) Upsert(key []byte, loc record.Location) (record.Location, bool) {
	it := item{key: append([]byte(nil), key...), loc: loc}
	t.mu.Lock()
	prev, ok := t.tree.ReplaceOrInsert(it)
	t.mu.Unlock()
	return prev.loc, ok
}

// Remove deletes key and returns its last location.
func (t *Table) Remove(key []byte) (record.Location, bool) {
	t.mu.Lock()
	prev, ok := t.tree.Delete(item{key: key})
	t.mu.Unlock()
	return prev.loc, ok
}

// Find returns the location of key.
func (t *Table) Find(key []byte) (record.Location, bool) {
	t.mu.RLock()
	it, ok := t.tree.Get(item{key: key})
	t.mu.RUnlock()
	return it.loc, ok
}

// Len returns the number of live keys.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Len()
}

// Clear drops every entry.
func (t *Table) Clear() {
	t.mu.Lock()
	t.tree.Clear(false)
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy. The copy is lazy: both tables
// share nodes until either is modified.
func (t *Table) Snapshot() *Table {
	t.mu.Lock()
	clone := t.tree.Clone()
	t.mu.Unlock()
	return &Table{tree: clone}
}

// ForEach calls fn for every key in ascending order over a snapshot, so fn
// may call back into the table. Returning ErrStop ends the walk with a nil
// result; any other error ends it and is returned.
func (t *Table) ForEach(fn func(key []byte, loc record.Location) error) error {
	snap := t.Snapshot()
	var err error
	snap.tree.Ascend(func(it item) bool {
		err = fn(append([]byte(nil), it.key...), it.loc)
		return err == nil
	})
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}
