// Package record defines the on-disk layout of cask segment and hint files.
//
// A segment file is a 12-byte SegmentHeader followed by framed records:
//
//	crc32 u32 | timestamp u32 | keyLen u32 | valueLen u32 | key | value
//
// All integers are little-endian. The checksum is CRC-32 (IEEE) over every
// byte after the crc field. A record with valueLen == 0 is a tombstone.
//
// A hint file is an 8-byte HintHeader followed by one HintRecordHeader and
// key per live index entry.
package record

import "fmt"

const (
	DataMagic uint32 = 0x46444346 // "FCDF"
	HintMagic uint32 = 0x54484346 // "FCHT"

	MajorVersion uint8 = 1
	MinorVersion uint8 = 0

	DataSuffix   = ".fcdf"
	HintFileName = "_bc.fcht"

	SegmentHeaderSize    = 12
	HintHeaderSize       = 8
	RecordHeaderSize     = 16
	HintRecordHeaderSize = 20

	// FlagOffset is the byte offset of the active/sealed flag inside a
	// segment header; sealing rewrites this one byte.
	FlagOffset = 10

	DefaultMaxSegmentSize int64 = 1 << 30
	// MaxSegmentSize is bounded by the u32 value offsets in index entries.
	MaxSegmentSize int64 = 1<<32 - 1
)

// Flag is the segment state stored in its header.
type Flag uint8

const (
	FlagSealed Flag = 0
	FlagActive Flag = 1
)

func (f Flag) String() string {
	switch f {
	case FlagSealed:
		return "sealed"
	case FlagActive:
		return "active"
	}
	return fmt.Sprintf("flag(%d)", uint8(f))
}

// Codec is the value encoding of a segment, kept in the header byte after
// the flag.
type Codec uint8

const (
	CodecNone   Codec = 0
	CodecSnappy Codec = 1
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	}
	return fmt.Sprintf("codec(%d)", uint8(c))
}

// ParseCodec maps a configuration name to a Codec.
func ParseCodec(name string) (Codec, bool) {
	switch name {
	case "", "none":
		return CodecNone, true
	case "snappy":
		return CodecSnappy, true
	}
	return CodecNone, false
}

// Location says where a value lives on disk. It is both the index entry
// and the payload of a hint record.
type Location struct {
	SegmentID   uint32
	ValueSize   uint32 // stored size, after compression
	ValueOffset uint32 // offset of the first value byte in the segment
	Timestamp   uint32 // unix seconds
}

// RecordOffset returns the offset of the framed record holding the value.
func (l Location) RecordOffset(keyLen int) int64 {
	return int64(l.ValueOffset) - RecordHeaderSize - int64(keyLen)
}

// SegmentFileName returns the file name of segment id.
func SegmentFileName(id uint32) string {
	return fmt.Sprintf("%06d%s", id, DataSuffix)
}
