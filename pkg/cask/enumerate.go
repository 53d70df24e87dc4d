package cask

import (
	"errors"

	"github.com/dd0wney/cluso-cask/pkg/index"
	"github.com/dd0wney/cluso-cask/pkg/record"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

// Enumerate calls fn with every live pair in key order. Returning ErrStop
// from fn ends the walk with a nil error. Any other error from fn ends it
// too and is returned with kind UserDefined, unless it already carries a
// kind.
//
// The walk runs over a snapshot of the index taken at the start; a key
// deleted while the walk is running is skipped.
func (b *Bucket) Enumerate(fn func(key, value []byte) error) error {
	idx, err := b.indexSnapshot("enumerate")
	if err != nil {
		return err
	}
	err = idx.ForEach(func(key []byte, _ record.Location) error {
		value, err := b.Get(key)
		if status.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return status.Wrap(err, "cask.enumerate")
		}
		return visitorError("enumerate", fn(key, value))
	})
	return err
}

// ListKeys calls fn with every live key in key order, without reading
// values. Errors from fn are handled as in Enumerate.
func (b *Bucket) ListKeys(fn func(key []byte) error) error {
	idx, err := b.indexSnapshot("list_keys")
	if err != nil {
		return err
	}
	return idx.ForEach(func(key []byte, _ record.Location) error {
		return visitorError("list_keys", fn(key))
	})
}

func (b *Bucket) indexSnapshot(op string) (*index.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.open {
		return nil, notOpen(op)
	}
	return b.index.Snapshot(), nil
}

func visitorError(op string, err error) error {
	if err == nil || errors.Is(err, ErrStop) {
		return err
	}
	var se *status.Error
	if errors.As(err, &se) {
		return status.Wrap(err, "cask."+op)
	}
	return status.New(status.UserDefined).Op(op).Msg("visitor failed").Cause(err).Err()
}
