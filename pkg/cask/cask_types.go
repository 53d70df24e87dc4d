package cask

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-cask/pkg/cache"
	"github.com/dd0wney/cluso-cask/pkg/index"
	"github.com/dd0wney/cluso-cask/pkg/logging"
	"github.com/dd0wney/cluso-cask/pkg/metrics"
	"github.com/dd0wney/cluso-cask/pkg/record"
	"github.com/dd0wney/cluso-cask/pkg/segment"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

// ErrStop ends Enumerate and ListKeys early without an error.
var ErrStop = index.ErrStop

// Bucket is one open cask directory.
type Bucket struct {
	// mu pairs every segment write with its index and cache update.
	mu sync.RWMutex
	// compactMu serializes Compact and WithSnapshot.
	compactMu sync.Mutex

	opts   Options
	name   string
	dir    string
	open   bool
	store  *segment.Store
	index  *index.Table
	cache  *cache.Cache
	logger logging.Logger

	stats bucketStats
}

// bucketStats uses atomics so the read path never takes a stats lock.
type bucketStats struct {
	Reads        atomic.Int64
	Writes       atomic.Int64
	Deletes      atomic.Int64
	BytesWritten atomic.Int64
	Compactions  atomic.Int64
}

// Options configures a Bucket.
type Options struct {
	// Name labels logs and metrics. Defaults to the directory base name.
	Name string
	// MaxSegmentSize bounds each segment file (default 1 GiB).
	MaxSegmentSize int64
	// CacheCapacity is the number of values kept in the read cache.
	// Zero disables the cache.
	CacheCapacity int
	// Compression is the value codec of newly created segments.
	Compression record.Codec
	// MmapSealed serves reads of sealed segments from a memory mapping.
	MmapSealed bool
	// SyncWrites fsyncs after every append.
	SyncWrites bool
	// ReplayOnMissingHint rebuilds the index from the segments when Open
	// finds no hint file.
	ReplayOnMissingHint bool
	// Clock supplies record timestamps (default time.Now).
	Clock   func() time.Time
	Logger  logging.Logger
	Metrics *metrics.Registry
}

// DefaultOptions returns the default bucket configuration
func DefaultOptions() Options {
	return Options{
		MaxSegmentSize:      record.DefaultMaxSegmentSize,
		CacheCapacity:       cache.DefaultCapacity,
		Compression:         record.CodecNone,
		ReplayOnMissingHint: true,
		Clock:               time.Now,
		Logger:              logging.NewNopLogger(),
	}
}

// Validate checks the options that Open depends on.
func (o Options) Validate() error {
	if o.CacheCapacity < 0 {
		return status.Errorf(status.InvalidArgument, "validate_options", "cache capacity %d", o.CacheCapacity)
	}
	return o.segmentOptions().Validate()
}

func (o Options) segmentOptions() segment.Options {
	so := segment.DefaultOptions()
	if o.MaxSegmentSize != 0 {
		so.MaxSegmentSize = o.MaxSegmentSize
	}
	so.Codec = o.Compression
	so.MmapSealed = o.MmapSealed
	so.SyncWrites = o.SyncWrites
	if o.Clock != nil {
		so.Clock = o.Clock
	}
	so.Logger = logging.OrNop(o.Logger)
	return so
}

// Stats is a point-in-time view of a bucket.
type Stats struct {
	Name          string
	Dir           string
	Open          bool
	Keys          int
	Segments      int
	ActiveSegment uint32
	DiskBytes     int64
	Reads         int64
	Writes        int64
	Deletes       int64
	BytesWritten  int64
	Compactions   int64
	Cache         cache.Stats
}
