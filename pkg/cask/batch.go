package cask

import (
	"time"

	"github.com/dd0wney/cluso-cask/pkg/status"
)

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// Batch collects puts and deletes to apply together. A Batch is not safe
// for concurrent use.
type Batch struct {
	ops []batchOp
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put queues a put. The key and value are copied.
func (bt *Batch) Put(key, value []byte) {
	bt.ops = append(bt.ops, batchOp{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

// Delete queues a delete. Deleting a key that does not exist when the
// batch is applied is not an error.
func (bt *Batch) Delete(key []byte) {
	bt.ops = append(bt.ops, batchOp{key: append([]byte(nil), key...), delete: true})
}

// Len returns the number of queued operations.
func (bt *Batch) Len() int { return len(bt.ops) }

// Reset empties the batch.
func (bt *Batch) Reset() { bt.ops = bt.ops[:0] }

// Apply runs the queued operations in order under one write lock, so no
// reader observes a partially applied batch. Keys are validated before
// anything is written. If a write fails, the operations before it stay
// applied and the error is returned.
func (b *Bucket) Apply(bt *Batch) (err error) {
	start := time.Now()
	defer func() { b.observe("apply", start, err) }()
	for i, op := range bt.ops {
		if len(op.key) == 0 {
			return status.Errorf(status.InvalidArgument, "apply", "empty key at operation %d", i)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return notOpen("apply")
	}
	for i, op := range bt.ops {
		if op.delete {
			if _, ok := b.index.Find(op.key); !ok {
				continue
			}
			err = b.deleteLocked(op.key)
		} else {
			err = b.putLocked(op.key, op.value)
		}
		if err != nil {
			return status.New(status.KindOf(err)).Op("apply").
				Msg("operation %d of %d", i+1, len(bt.ops)).Cause(err).Err()
		}
	}
	return nil
}
