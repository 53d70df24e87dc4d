package segment

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
	"golang.org/x/exp/mmap"

	"github.com/dd0wney/cluso-cask/pkg/pools"
	"github.com/dd0wney/cluso-cask/pkg/record"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

var framePool = pools.NewBytePool()

// readerAt is the read side of a segment: the *os.File itself, or an
// mmap of a sealed file.
type readerAt interface {
	io.ReaderAt
	io.Closer
}

// Info describes a segment at a point in time.
type Info struct {
	ID    uint32
	Path  string
	Flag  record.Flag
	Codec record.Codec
	Size  int64
}

// Segment is one append-only data file.
type Segment struct {
	// mu makes size check, offset acquisition and write one unit.
	mu      sync.Mutex
	id      uint32
	path    string
	codec   record.Codec
	flag    record.Flag
	file    *os.File // nil once sealed and mapped, or closed
	size    int64
	maxSize int64
	sync    bool
	mmap    bool
	closed  bool

	// rmu guards the reader handle against swaps on seal and close.
	rmu    sync.RWMutex
	reader readerAt
}

func createSegment(dir string, id uint32, opts Options) (*Segment, error) {
	const op = "create_segment"
	path := filepath.Join(dir, record.SegmentFileName(id))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, status.FromOS(op, err)
	}
	if err := record.WriteSegmentHeader(f, record.NewSegmentHeader(id, record.FlagActive, opts.Codec)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, status.Wrap(err, "segment.create")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, status.FromOS(op, err)
	}
	return &Segment{
		id:      id,
		path:    path,
		codec:   opts.Codec,
		flag:    record.FlagActive,
		file:    f,
		reader:  f,
		size:    record.SegmentHeaderSize,
		maxSize: opts.MaxSegmentSize,
		sync:    opts.SyncWrites,
		mmap:    opts.MmapSealed,
	}, nil
}

func openSegment(path string, opts Options) (*Segment, error) {
	const op = "open_segment"
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, status.FromOS(op, err)
	}
	hdr, err := record.ReadSegmentHeader(io.NewSectionReader(f, 0, record.SegmentHeaderSize))
	if err != nil {
		f.Close()
		return nil, status.New(status.KindOf(err)).Op(op).Msg("%s", filepath.Base(path)).
			Cause(err).Sender("segment.open").Err()
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, status.FromOS(op, err)
	}
	s := &Segment{
		id:      hdr.FileID,
		path:    path,
		codec:   hdr.Codec,
		flag:    hdr.Flag,
		file:    f,
		reader:  f,
		size:    fi.Size(),
		maxSize: opts.MaxSegmentSize,
		sync:    opts.SyncWrites,
		mmap:    opts.MmapSealed,
	}
	if s.flag == record.FlagSealed && s.mmap {
		if err := s.mapLocked(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// mapLocked replaces the file reader with a read-only mapping.
func (s *Segment) mapLocked() error {
	m, err := mmap.Open(s.path)
	if err != nil {
		return status.FromOS("mmap_segment", err)
	}
	s.rmu.Lock()
	old := s.reader
	s.reader = m
	s.rmu.Unlock()
	if old != nil {
		old.Close()
	}
	s.file = nil
	return nil
}

func (s *Segment) ID() uint32          { return s.id }
func (s *Segment) Path() string        { return s.path }
func (s *Segment) Codec() record.Codec { return s.codec }

// Info returns a snapshot of the segment state.
func (s *Segment) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{ID: s.id, Path: s.path, Flag: s.flag, Codec: s.codec, Size: s.size}
}

// Append writes one record. It returns NoFreeSpace, after sealing the
// segment, when the record does not fit.
func (s *Segment) Append(ts uint32, key, value []byte) (record.Location, error) {
	const op = "append"
	stored := value
	if s.codec == record.CodecSnappy && len(value) > 0 {
		stored = snappy.Encode(nil, value)
	}
	frameSize := int64(record.Size(len(key), len(stored)))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return record.Location{}, status.Errorf(status.IOError, op, "segment %d not open", s.id)
	}
	if s.flag != record.FlagActive {
		return record.Location{}, status.Errorf(status.NoFreeSpace, op, "segment %d is sealed", s.id)
	}
	if s.size+frameSize > s.maxSize {
		if s.size == record.SegmentHeaderSize {
			return record.Location{}, status.Errorf(status.InvalidArgument, op,
				"record of %d bytes exceeds max segment size %d", frameSize, s.maxSize)
		}
		if err := s.sealLocked(); err != nil {
			return record.Location{}, err
		}
		return record.Location{}, status.Errorf(status.NoFreeSpace, op, "segment %d is full", s.id)
	}

	buf := framePool.Get(int(frameSize))
	buf = record.EncodeRecord(buf, ts, key, stored)
	_, err := s.file.WriteAt(buf, s.size)
	framePool.Put(buf)
	if err != nil {
		// drop whatever part of the frame reached the file
		s.file.Truncate(s.size)
		return record.Location{}, status.FromOS(op, err)
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			return record.Location{}, status.FromOS(op, err)
		}
	}

	loc := record.Location{
		SegmentID:   s.id,
		ValueSize:   uint32(len(stored)),
		ValueOffset: uint32(s.size + record.RecordHeaderSize + int64(len(key))),
		Timestamp:   ts,
	}
	s.size += frameSize
	return loc, nil
}

// Seal marks the segment read-only and persists the flag. Sealing a sealed
// segment is a no-op.
func (s *Segment) Seal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return status.Errorf(status.IOError, "seal", "segment %d not open", s.id)
	}
	return s.sealLocked()
}

func (s *Segment) sealLocked() error {
	const op = "seal"
	if s.flag == record.FlagSealed {
		return nil
	}
	if _, err := s.file.WriteAt([]byte{byte(record.FlagSealed)}, record.FlagOffset); err != nil {
		return status.FromOS(op, err)
	}
	if err := s.file.Sync(); err != nil {
		return status.FromOS(op, err)
	}
	s.flag = record.FlagSealed
	if s.mmap {
		return s.mapLocked()
	}
	return nil
}

// Read returns the value of key stored at loc. The whole record is read so
// that its checksum and key can be verified.
func (s *Segment) Read(key []byte, loc record.Location) ([]byte, error) {
	const op = "read"
	off := loc.RecordOffset(len(key))
	if off < record.SegmentHeaderSize {
		return nil, status.Errorf(status.Corrupted, op, "offset %d precedes first record", loc.ValueOffset)
	}
	size := int64(record.Size(len(key), int(loc.ValueSize)))
	if off+size > s.Info().Size {
		return nil, status.Errorf(status.Corrupted, op, "record at %d runs past end of segment %d", off, s.id)
	}
	buf := make([]byte, size)

	s.rmu.RLock()
	if s.reader == nil {
		s.rmu.RUnlock()
		return nil, status.Errorf(status.IOError, op, "segment %d not open", s.id)
	}
	n, err := s.reader.ReadAt(buf, off)
	s.rmu.RUnlock()
	if n < len(buf) {
		if err == nil || err == io.EOF {
			return nil, status.Errorf(status.Corrupted, op, "record at %d runs past end of segment %d", off, s.id)
		}
		return nil, status.FromOS(op, err)
	}

	rec, err := record.DecodeRecord(buf)
	if err != nil {
		return nil, status.New(status.Corrupted).Op(op).Msg("segment %d offset %d", s.id, off).
			Cause(err).Sender("segment.read").Err()
	}
	if !bytes.Equal(rec.Key, key) {
		return nil, status.Errorf(status.Corrupted, op, "segment %d offset %d holds a different key", s.id, off)
	}
	if s.codec == record.CodecSnappy && len(rec.Value) > 0 {
		value, err := snappy.Decode(nil, rec.Value)
		if err != nil {
			return nil, status.New(status.Corrupted).Op(op).Msg("snappy").Cause(err).Err()
		}
		return value, nil
	}
	return rec.Value, nil
}

// scan walks records in write order, calling fn for each. It returns the
// offset just past the last valid record. A torn or corrupt record stops
// the scan with a Corrupted error.
func (s *Segment) scan(fn func(rec record.Record, loc record.Location) error) (int64, error) {
	size := s.Info().Size
	off := int64(record.SegmentHeaderSize)

	s.rmu.RLock()
	defer s.rmu.RUnlock()
	if s.reader == nil {
		return off, status.Errorf(status.IOError, "scan", "segment %d not open", s.id)
	}

	br := bufio.NewReaderSize(io.NewSectionReader(s.reader, off, size-off), 64<<10)
	for {
		rec, n, err := record.ReadRecord(br, size)
		if status.IsEOF(err) {
			return off, nil
		}
		if err != nil {
			return off, err
		}
		loc := record.Location{
			SegmentID:   s.id,
			ValueSize:   rec.ValueLen,
			ValueOffset: uint32(off + record.RecordHeaderSize + int64(rec.KeyLen)),
			Timestamp:   rec.Timestamp,
		}
		if err := fn(rec, loc); err != nil {
			return off, err
		}
		off += n
	}
}

// truncate cuts the active segment back to end.
func (s *Segment) truncate(end int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil || s.flag != record.FlagActive {
		return status.Errorf(status.InvalidArgument, "truncate", "segment %d is not active", s.id)
	}
	if err := s.file.Truncate(end); err != nil {
		return status.FromOS("truncate", err)
	}
	s.size = end
	return nil
}

// Sync flushes the segment file to stable storage.
func (s *Segment) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return status.FromOS("sync", s.file.Sync())
}

// Close releases the file handles.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return status.Errorf(status.IOError, "close", "segment %d not open", s.id)
	}
	s.closed = true

	s.rmu.Lock()
	defer s.rmu.Unlock()
	var err error
	if s.reader != nil {
		err = s.reader.Close()
	}
	s.reader = nil
	s.file = nil
	return status.FromOS("close", err)
}
