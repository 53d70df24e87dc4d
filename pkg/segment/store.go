// Package segment manages the append-only data files of one cask directory.
//
// A Store owns every segment file in its directory, routes reads by
// segment id and keeps at most one segment active. When the active
// segment cannot take another record it seals itself and the Store
// rotates to a new segment with the next id; callers of WriteRecord never
// see that condition.
package segment

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-cask/pkg/logging"
	"github.com/dd0wney/cluso-cask/pkg/record"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

// Store is the set of segments of one directory.
type Store struct {
	mu       sync.RWMutex
	dir      string
	opts     Options
	segments map[uint32]*Segment
	active   *Segment
	lastID   uint32
	closed   bool
	logger   logging.Logger
}

// ReplayStats summarizes a Replay.
type ReplayStats struct {
	Segments   int
	Records    int
	Tombstones int
	// TornSegments counts segments whose scan stopped at a bad record.
	TornSegments int
}

// Open loads every segment file found in dir.
func Open(dir string, opts Options) (*Store, error) {
	const op = "open"
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, status.Wrap(err, "store.open")
	}

	fi, err := os.Stat(dir)
	if err != nil {
		return nil, status.Wrap(status.FromOS(op, err), "store.open")
	}
	if !fi.IsDir() {
		return nil, status.Errorf(status.InvalidArgument, op, "%s is not a directory", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, status.Wrap(status.FromOS(op, err), "store.open")
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), record.DataSuffix) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	opened := make([]*Segment, len(paths))
	var g errgroup.Group
	g.SetLimit(opts.OpenConcurrency)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			seg, err := openSegment(p, opts)
			opened[i] = seg
			return err
		})
	}
	if err := g.Wait(); err != nil {
		closeAll(opened)
		return nil, status.Wrap(err, "store.open")
	}

	s := &Store{
		dir:      dir,
		opts:     opts,
		segments: make(map[uint32]*Segment, len(opened)),
		logger:   opts.Logger.With(logging.Component("segment_store"), logging.Path(dir)),
	}
	var actives []*Segment
	for _, seg := range opened {
		if prev, dup := s.segments[seg.id]; dup {
			closeAll(opened)
			return nil, status.Errorf(status.InvalidArgument, op, "segment id %d claimed by %s and %s",
				seg.id, filepath.Base(prev.path), filepath.Base(seg.path))
		}
		s.segments[seg.id] = seg
		if seg.id > s.lastID {
			s.lastID = seg.id
		}
		if seg.flag == record.FlagActive {
			actives = append(actives, seg)
		}
	}

	sort.Slice(actives, func(i, j int) bool { return actives[i].id < actives[j].id })
	for len(actives) > 1 {
		stale := actives[0]
		s.logger.Warn("sealing extra active segment", logging.SegmentID(stale.id))
		if err := stale.Seal(); err != nil {
			closeAll(opened)
			return nil, status.Wrap(err, "store.open")
		}
		actives = actives[1:]
	}
	if len(actives) == 1 {
		s.active = actives[0]
	}

	s.logger.Debug("segment store opened", logging.Count(len(s.segments)))
	return s, nil
}

func closeAll(segs []*Segment) {
	for _, seg := range segs {
		if seg != nil {
			seg.Close()
		}
	}
}

// Dir returns the directory of the store.
func (s *Store) Dir() string { return s.dir }

// WriteRecord appends key/value to the active segment, rotating as needed.
func (s *Store) WriteRecord(key, value []byte) (record.Location, error) {
	ts := uint32(s.opts.Clock().Unix())
	for {
		s.mu.RLock()
		closed, seg := s.closed, s.active
		s.mu.RUnlock()
		if closed {
			return record.Location{}, status.Errorf(status.IOError, "write_record", "store not open")
		}

		if seg != nil {
			loc, err := seg.Append(ts, key, value)
			if err == nil {
				return loc, nil
			}
			if !status.Is(err, status.NoFreeSpace) {
				return record.Location{}, status.Wrap(err, "store.write_record")
			}
		}
		if err := s.rotate(seg); err != nil {
			return record.Location{}, status.Wrap(err, "store.write_record")
		}
	}
}

// rotate replaces full as the active segment. It does nothing if another
// writer already rotated past full.
func (s *Store) rotate(full *Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return status.Errorf(status.IOError, "rotate", "store not open")
	}
	if s.active != full {
		return nil
	}
	var sealed uint32
	if full != nil {
		if err := full.Seal(); err != nil {
			return err
		}
		sealed = full.id
	}

	id := s.lastID + 1
	seg, err := createSegment(s.dir, id, s.opts)
	if err != nil {
		return err
	}
	s.segments[id] = seg
	s.active = seg
	s.lastID = id

	s.logger.Debug("segment rotated", logging.SegmentID(id), logging.Uint32("sealed", sealed))
	if s.opts.OnRotate != nil {
		s.opts.OnRotate(sealed, id)
	}
	return nil
}

// ReadValue returns the value of key at loc.
func (s *Store) ReadValue(key []byte, loc record.Location) ([]byte, error) {
	s.mu.RLock()
	closed := s.closed
	seg, ok := s.segments[loc.SegmentID]
	s.mu.RUnlock()
	if closed {
		return nil, status.Errorf(status.IOError, "read_value", "store not open")
	}
	if !ok {
		return nil, status.Errorf(status.NotFound, "read_value", "segment %d", loc.SegmentID)
	}
	v, err := seg.Read(key, loc)
	return v, status.Wrap(err, "store.read_value")
}

// Replay scans every segment in id order. fn sees each record together
// with the location a Put of it would have returned. A bad record ends the
// scan of its segment with a warning; a torn tail of the active segment is
// truncated so later appends stay reachable.
func (s *Store) Replay(fn func(rec record.Record, loc record.Location) error) (ReplayStats, error) {
	s.mu.RLock()
	segs := make([]*Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		segs = append(segs, seg)
	}
	active := s.active
	s.mu.RUnlock()
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })

	var stats ReplayStats
	for _, seg := range segs {
		stats.Segments++
		end, err := seg.scan(func(rec record.Record, loc record.Location) error {
			stats.Records++
			if rec.Tombstone() {
				stats.Tombstones++
			}
			return fn(rec, loc)
		})
		if err == nil {
			continue
		}
		if !status.IsCorrupted(err) {
			return stats, status.Wrap(err, "store.replay")
		}
		stats.TornSegments++
		s.logger.Warn("replay stopped at bad record",
			logging.SegmentID(seg.id), logging.Int64("offset", end), logging.Error(err))
		if seg == active {
			if err := seg.truncate(end); err != nil {
				return stats, status.Wrap(err, "store.replay")
			}
		}
	}
	return stats, nil
}

// Segments returns a snapshot of every segment, ordered by id.
func (s *Store) Segments() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]Info, 0, len(s.segments))
	for _, seg := range s.segments {
		infos = append(infos, seg.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// ActiveID returns the id of the active segment, or 0 if there is none.
func (s *Store) ActiveID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return 0
	}
	return s.active.id
}

// Sync flushes the active segment.
func (s *Store) Sync() error {
	s.mu.RLock()
	seg := s.active
	s.mu.RUnlock()
	if seg == nil {
		return nil
	}
	return status.Wrap(seg.Sync(), "store.sync")
}

// Close closes every segment.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return status.Errorf(status.IOError, "close", "store not open")
	}
	s.closed = true

	var errs []error
	for _, seg := range s.segments {
		if err := seg.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.segments = nil
	s.active = nil
	return status.Wrap(errors.Join(errs...), "store.close")
}
