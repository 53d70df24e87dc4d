package record

import (
	"encoding/binary"
	"io"

	"github.com/dd0wney/cluso-cask/pkg/status"
)

// SegmentHeader is the fixed header at offset 0 of every segment file.
type SegmentHeader struct {
	Magic  uint32
	Major  uint8
	Minor  uint8
	FileID uint32
	Flag   Flag
	Codec  Codec
}

// NewSegmentHeader returns a current-version header for segment id.
func NewSegmentHeader(id uint32, flag Flag, codec Codec) SegmentHeader {
	return SegmentHeader{
		Magic:  DataMagic,
		Major:  MajorVersion,
		Minor:  MinorVersion,
		FileID: id,
		Flag:   flag,
		Codec:  codec,
	}
}

// WriteSegmentHeader writes h to w.
func WriteSegmentHeader(w io.Writer, h SegmentHeader) error {
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return status.FromOS("write_segment_header", err)
	}
	return nil
}

// ReadSegmentHeader reads and validates a segment header.
func ReadSegmentHeader(r io.Reader) (SegmentHeader, error) {
	var h SegmentHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return h, status.Errorf(status.InvalidArgument, "read_segment_header", "short segment header")
		}
		return h, status.FromOS("read_segment_header", err)
	}
	return h, h.Validate()
}

// Validate checks magic, version, flag and codec.
func (h SegmentHeader) Validate() error {
	const op = "validate_segment_header"
	if h.Magic != DataMagic {
		return status.Errorf(status.InvalidArgument, op, "bad magic %#08x", h.Magic)
	}
	if err := checkVersion(op, h.Major, h.Minor); err != nil {
		return err
	}
	if h.Flag != FlagSealed && h.Flag != FlagActive {
		return status.Errorf(status.InvalidArgument, op, "unknown segment flag %d", uint8(h.Flag))
	}
	if h.Codec != CodecNone && h.Codec != CodecSnappy {
		return status.Errorf(status.NotSupported, op, "unknown value codec %d", uint8(h.Codec))
	}
	return nil
}

// HintHeader is the fixed header of the hint file.
type HintHeader struct {
	Magic    uint32
	Major    uint8
	Minor    uint8
	Reserved uint16
}

// NewHintHeader returns a current-version hint header.
func NewHintHeader() HintHeader {
	return HintHeader{Magic: HintMagic, Major: MajorVersion, Minor: MinorVersion}
}

// WriteHintHeader writes h to w.
func WriteHintHeader(w io.Writer, h HintHeader) error {
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return status.FromOS("write_hint_header", err)
	}
	return nil
}

// ReadHintHeader reads and validates a hint header.
func ReadHintHeader(r io.Reader) (HintHeader, error) {
	const op = "read_hint_header"
	var h HintHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return h, status.Errorf(status.InvalidArgument, op, "short hint header")
		}
		return h, status.FromOS(op, err)
	}
	if h.Magic != HintMagic {
		return h, status.Errorf(status.InvalidArgument, op, "bad magic %#08x", h.Magic)
	}
	return h, checkVersion(op, h.Major, h.Minor)
}

func checkVersion(op string, major, minor uint8) error {
	if major > MajorVersion || (major == MajorVersion && minor > MinorVersion) {
		return status.Errorf(status.NotSupported, op, "version %d.%d is newer than %d.%d",
			major, minor, MajorVersion, MinorVersion)
	}
	return nil
}
