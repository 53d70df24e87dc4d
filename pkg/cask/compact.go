package cask

import (
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-cask/pkg/logging"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

// CompactResult describes one compaction.
type CompactResult struct {
	Keys        int
	BytesBefore int64
	BytesAfter  int64
	Duration    time.Duration
}

// Reclaimed is the number of bytes the compaction freed.
func (r CompactResult) Reclaimed() int64 {
	return r.BytesBefore - r.BytesAfter
}

// Compact rewrites the bucket so that it holds only live pairs.
//
// The pairs are copied into a sibling directory, which then replaces the
// bucket directory. A failure before the swap leaves the bucket open and
// untouched.
func (b *Bucket) Compact() error {
	_, err := b.CompactWithResult()
	return err
}

// CompactWithResult is Compact returning what the compaction did.
func (b *Bucket) CompactWithResult() (res CompactResult, err error) {
	b.compactMu.Lock()
	defer b.compactMu.Unlock()

	start := time.Now()
	b.mu.RLock()
	open, dir := b.open, b.dir
	b.mu.RUnlock()
	if !open {
		return res, notOpen("compact")
	}
	defer func() {
		res.Duration = time.Since(start)
		if m := b.opts.Metrics; m != nil {
			m.RecordCompaction(b.name, err, res.Duration, res.Reclaimed())
		}
	}()

	logger := b.logger.With(logging.Operation("compact"))
	res.BytesBefore = b.Stats().DiskBytes

	tag := uuid.NewString()
	tmpDir := dir + ".compact-" + tag
	if err := os.Mkdir(tmpDir, 0o755); err != nil {
		return res, status.FromOS("compact", err)
	}
	abort := func(err error) (CompactResult, error) {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			logger.Warn("failed to remove compaction directory", logging.Path(tmpDir), logging.Error(rmErr))
		}
		logger.Error("compaction failed", logging.Error(err))
		return res, status.Wrap(err, "cask.compact")
	}

	tmpOpts := b.opts
	tmpOpts.Name = b.name + ".compact"
	tmpOpts.Metrics = nil
	tmpOpts.CacheCapacity = 0
	tmp := New(tmpOpts)
	if err := tmp.Open(tmpDir); err != nil {
		return abort(err)
	}
	err = b.Enumerate(func(key, value []byte) error {
		res.Keys++
		return tmp.Put(key, value)
	})
	if err != nil {
		tmp.CloseWithoutHint()
		return abort(err)
	}
	if err := tmp.Close(); err != nil {
		return abort(err)
	}

	if err := b.CloseWithoutHint(); err != nil {
		return abort(err)
	}
	oldDir := dir + ".old-" + tag
	if err := os.Rename(dir, oldDir); err != nil {
		res, err := abort(status.FromOS("compact", err))
		b.reopen(dir, logger)
		return res, err
	}
	if err := os.Rename(tmpDir, dir); err != nil {
		if backErr := os.Rename(oldDir, dir); backErr != nil {
			logger.Error("failed to restore bucket directory", logging.Path(oldDir), logging.Error(backErr))
		}
		res, err := abort(status.FromOS("compact", err))
		b.reopen(dir, logger)
		return res, err
	}
	if err := os.RemoveAll(oldDir); err != nil {
		logger.Warn("failed to remove superseded directory", logging.Path(oldDir), logging.Error(err))
	}

	if err := b.Open(dir); err != nil {
		return res, status.Wrap(err, "cask.compact")
	}
	b.stats.Compactions.Add(1)
	res.BytesAfter = b.Stats().DiskBytes
	logger.Info("compaction complete",
		logging.Count(res.Keys),
		logging.Bytes(res.Reclaimed()),
		logging.Latency(time.Since(start)))
	return res, nil
}

func (b *Bucket) reopen(dir string, logger logging.Logger) {
	if !dirExists(dir) {
		return
	}
	if err := b.Open(dir); err != nil {
		logger.Error("failed to reopen bucket after compaction failure", logging.Error(err))
	}
}
