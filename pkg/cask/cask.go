package cask

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/dd0wney/cluso-cask/pkg/cache"
	"github.com/dd0wney/cluso-cask/pkg/hint"
	"github.com/dd0wney/cluso-cask/pkg/index"
	"github.com/dd0wney/cluso-cask/pkg/logging"
	"github.com/dd0wney/cluso-cask/pkg/record"
	"github.com/dd0wney/cluso-cask/pkg/segment"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

// New returns a closed bucket with the given options.
func New(opts Options) *Bucket {
	opts.Logger = logging.OrNop(opts.Logger)
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Bucket{opts: opts, logger: opts.Logger}
}

// Open opens the bucket stored in dir.
func Open(dir string, opts Options) (*Bucket, error) {
	b := New(opts)
	if err := b.Open(dir); err != nil {
		return nil, err
	}
	return b, nil
}

// Open loads the segments of dir and rebuilds the index from the hint
// file, or by replaying the segments when there is none. The directory
// must exist.
func (b *Bucket) Open(dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return status.Errorf(status.IOError, "open", "bucket %s already open", b.dir)
	}
	if err := b.opts.Validate(); err != nil {
		return status.Wrap(err, "cask.open")
	}
	// compaction builds sibling directories from this path
	dir, err := filepath.Abs(dir)
	if err != nil {
		return status.FromOS("open", err)
	}

	name := b.opts.Name
	if name == "" {
		name = filepath.Base(dir)
	}
	// unchanged on reopen, so lock-free readers of name never race
	if name != b.name {
		b.name = name
		b.logger = b.opts.Logger.With(logging.Bucket(name))
	}
	timer := logging.StartTimer(b.logger, "bucket opened", logging.Path(dir))

	so := b.opts.segmentOptions()
	so.Logger = b.logger
	so.OnRotate = b.onRotate
	store, err := segment.Open(dir, so)
	if err != nil {
		return status.Wrap(err, "cask.open")
	}

	idx := index.New()
	source, records, err := b.recoverIndex(dir, store, idx, uint32(so.MaxSegmentSize))
	if err != nil {
		store.Close()
		return status.Wrap(err, "cask.open")
	}

	b.dir = dir
	b.store = store
	b.index = idx
	b.cache = cache.New(b.opts.CacheCapacity)
	b.open = true

	if m := b.opts.Metrics; m != nil {
		m.RecordRecovery(b.name, source, records)
		b.updateGauges()
	}
	timer.End(logging.String("source", source), logging.Count(idx.Len()),
		logging.Int("segments", len(store.Segments())))
	return nil
}

// recoverIndex fills idx from the hint file or a replay and reports which.
func (b *Bucket) recoverIndex(dir string, store *segment.Store, idx *index.Table, maxKey uint32) (string, int, error) {
	if hint.Exists(dir) {
		n, err := hint.Load(dir, idx, maxKey)
		if err == nil {
			// Without replay the hint is the only checkpoint, so it stays
			// until Close replaces it. With replay a crash must not find it.
			if b.opts.ReplayOnMissingHint {
				if err := hint.Remove(dir); err != nil {
					return "", 0, err
				}
			}
			return "hint", n, nil
		}
		if !b.opts.ReplayOnMissingHint {
			return "", 0, err
		}
		b.logger.Warn("hint unreadable, replaying segments", logging.Error(err))
		idx.Clear()
	} else if !b.opts.ReplayOnMissingHint {
		if n := len(store.Segments()); n > 0 {
			b.logger.Warn("no hint file; starting with an empty index", logging.Int("segments", n))
		}
		return "none", 0, nil
	}

	stats, err := store.Replay(func(rec record.Record, loc record.Location) error {
		if rec.Tombstone() {
			idx.Remove(rec.Key)
		} else {
			idx.Upsert(rec.Key, loc)
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	if stats.Records > 0 {
		b.logger.Info("index rebuilt from segments",
			logging.Count(stats.Records), logging.Int("tombstones", stats.Tombstones),
			logging.Int("torn_segments", stats.TornSegments))
	}
	if err := hint.Remove(dir); err != nil {
		return "", 0, err
	}
	return "replay", stats.Records, nil
}

func (b *Bucket) onRotate(sealed, created uint32) {
	if m := b.opts.Metrics; m != nil {
		m.RecordRotation(b.name)
	}
}

// IsOpen reports whether the bucket is open.
func (b *Bucket) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.open
}

// Dir returns the directory of the bucket, or "" before the first Open.
func (b *Bucket) Dir() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dir
}

// Name returns the label used in logs and metrics.
func (b *Bucket) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

func checkKey(op string, key []byte) error {
	if len(key) == 0 {
		return status.Errorf(status.InvalidArgument, op, "empty key")
	}
	return nil
}

func notOpen(op string) error {
	return status.Errorf(status.IOError, op, "bucket not open")
}

func (b *Bucket) observe(op string, start time.Time, err error) {
	if m := b.opts.Metrics; m != nil {
		m.RecordOperation(b.name, op, err, time.Since(start))
	}
}

// Get returns the value of key, or a NotFound error.
func (b *Bucket) Get(key []byte) (value []byte, err error) {
	start := time.Now()
	defer func() { b.observe("get", start, err) }()
	if err := checkKey("get", key); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.open {
		return nil, notOpen("get")
	}
	b.stats.Reads.Add(1)

	loc, ok := b.index.Find(key)
	if !ok {
		return nil, status.Errorf(status.NotFound, "get", "key %q", key)
	}
	if v, err := b.cache.Get(key); err == nil {
		b.recordCache(true)
		return v, nil
	}
	b.recordCache(false)

	v, err := b.store.ReadValue(key, loc)
	if err != nil {
		return nil, status.Wrap(err, "cask.get")
	}
	b.cache.Put(key, v)
	return v, nil
}

func (b *Bucket) recordCache(hit bool) {
	if m := b.opts.Metrics; m != nil {
		m.RecordCacheLookup(b.name, hit)
	}
}

// Put stores value under key. An empty value deletes the key.
func (b *Bucket) Put(key, value []byte) (err error) {
	start := time.Now()
	defer func() { b.observe("put", start, err) }()
	if err := checkKey("put", key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return notOpen("put")
	}
	return b.putLocked(key, value)
}

func (b *Bucket) putLocked(key, value []byte) error {
	loc, err := b.store.WriteRecord(key, value)
	if err != nil {
		return status.Wrap(err, "cask.put")
	}
	if len(value) == 0 {
		b.index.Remove(key)
		b.cache.Delete(key)
	} else {
		b.index.Upsert(key, loc)
		b.cache.Put(key, value)
	}
	n := int64(len(key) + len(value))
	b.stats.Writes.Add(1)
	b.stats.BytesWritten.Add(n)
	if m := b.opts.Metrics; m != nil {
		m.RecordWrite(b.name, int(n))
	}
	return nil
}

// Delete removes key, or returns NotFound if it has no live value. The
// deletion is logged as a tombstone record.
func (b *Bucket) Delete(key []byte) (err error) {
	start := time.Now()
	defer func() { b.observe("delete", start, err) }()
	if err := checkKey("delete", key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return notOpen("delete")
	}
	return b.deleteLocked(key)
}

func (b *Bucket) deleteLocked(key []byte) error {
	if _, ok := b.index.Find(key); !ok {
		return status.Errorf(status.NotFound, "delete", "key %q", key)
	}
	if err := b.putLocked(key, nil); err != nil {
		return status.Wrap(err, "cask.delete")
	}
	b.stats.Deletes.Add(1)
	return nil
}

// Sync flushes the active segment to stable storage.
func (b *Bucket) Sync() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.open {
		return notOpen("sync")
	}
	return status.Wrap(b.store.Sync(), "cask.sync")
}

// Close closes the segments and writes the hint file.
func (b *Bucket) Close() error {
	return b.close(true)
}

// CloseWithoutHint closes the segments without checkpointing the index,
// as an unclean shutdown would. The next Open replays the segments, or
// loads the previous hint when replay is disabled.
func (b *Bucket) CloseWithoutHint() error {
	return b.close(false)
}

func (b *Bucket) close(writeHint bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return notOpen("close")
	}

	var errs []error
	if err := b.store.Close(); err != nil {
		errs = append(errs, err)
	}
	keys := b.index.Len()
	if writeHint {
		if _, err := hint.Write(b.dir, b.index); err != nil {
			errs = append(errs, err)
		}
	}
	b.index.Clear()
	b.cache.Clear()
	b.store = nil
	b.open = false

	err := errors.Join(errs...)
	if err != nil {
		b.logger.Error("bucket close failed", logging.Error(err))
	} else {
		b.logger.Info("bucket closed", logging.Count(keys), logging.Bool("hint", writeHint))
	}
	return status.Wrap(err, "cask.close")
}

// Stats returns a snapshot of bucket statistics.
func (b *Bucket) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Stats{
		Name:         b.name,
		Dir:          b.dir,
		Open:         b.open,
		Reads:        b.stats.Reads.Load(),
		Writes:       b.stats.Writes.Load(),
		Deletes:      b.stats.Deletes.Load(),
		BytesWritten: b.stats.BytesWritten.Load(),
		Compactions:  b.stats.Compactions.Load(),
	}
	if !b.open {
		return s
	}
	s.Keys = b.index.Len()
	segs := b.store.Segments()
	s.Segments = len(segs)
	s.ActiveSegment = b.store.ActiveID()
	for _, seg := range segs {
		s.DiskBytes += seg.Size
	}
	s.Cache = b.cache.Stats()
	if m := b.opts.Metrics; m != nil {
		m.UpdateBucketState(b.name, s.Keys, s.Segments, s.DiskBytes)
	}
	return s
}

// updateGauges refreshes the size gauges. Callers hold mu.
func (b *Bucket) updateGauges() {
	var disk int64
	segs := b.store.Segments()
	for _, seg := range segs {
		disk += seg.Size
	}
	b.opts.Metrics.UpdateBucketState(b.name, b.index.Len(), len(segs), disk)
}

// dirExists reports whether dir is an existing directory.
func dirExists(dir string) bool {
	fi, err := os.Stat(dir)
	return err == nil && fi.IsDir()
}
