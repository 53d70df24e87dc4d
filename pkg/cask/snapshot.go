package cask

import (
	"bytes"
	"time"

	"github.com/dd0wney/cluso-cask/pkg/hint"
	"github.com/dd0wney/cluso-cask/pkg/segment"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

// Snapshot is a consistent description of the files of a bucket: every
// segment up to its size at the time the snapshot was taken, plus an
// encoded hint file for exactly that state.
type Snapshot struct {
	Name     string
	Dir      string
	Taken    time.Time
	Keys     int
	Segments []segment.Info
	Hint     []byte
}

// Snapshot returns a snapshot of the bucket. A compaction that runs after
// it removes the files the snapshot names; use WithSnapshot to read them.
func (b *Bucket) Snapshot() (Snapshot, error) {
	return b.snapshot()
}

// WithSnapshot takes a snapshot and calls fn with it. Compaction is held
// off until fn returns, so the segment files stay in place while fn reads
// them. Writes continue; they only append beyond the sizes recorded in
// the snapshot.
func (b *Bucket) WithSnapshot(fn func(Snapshot) error) error {
	b.compactMu.Lock()
	defer b.compactMu.Unlock()

	snap, err := b.snapshot()
	if err != nil {
		return err
	}
	return fn(snap)
}

func (b *Bucket) snapshot() (Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.open {
		return Snapshot{}, notOpen("snapshot")
	}
	if err := b.store.Sync(); err != nil {
		return Snapshot{}, status.Wrap(err, "cask.snapshot")
	}
	var buf bytes.Buffer
	n, err := hint.Encode(&buf, b.index)
	if err != nil {
		return Snapshot{}, status.Wrap(err, "cask.snapshot")
	}
	return Snapshot{
		Name:     b.name,
		Dir:      b.dir,
		Taken:    b.opts.Clock(),
		Keys:     n,
		Segments: b.store.Segments(),
		Hint:     buf.Bytes(),
	}, nil
}
