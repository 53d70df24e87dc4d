package record

import (
	"encoding/binary"
	"io"

	"github.com/dd0wney/cluso-cask/pkg/status"
)

// AppendHintRecord appends one hint record for key to dst.
func AppendHintRecord(dst []byte, key []byte, loc Location) []byte {
	var hdr [HintRecordHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], loc.SegmentID)
	binary.LittleEndian.PutUint32(hdr[4:8], loc.Timestamp)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(key)))
	binary.LittleEndian.PutUint32(hdr[12:16], loc.ValueSize)
	binary.LittleEndian.PutUint32(hdr[16:20], loc.ValueOffset)
	dst = append(dst, hdr[:]...)
	return append(dst, key...)
}

// ReadHintRecord reads the next hint record. EndOfFile marks a clean end;
// a record cut short is Corrupted. Keys longer than maxKey are rejected.
func ReadHintRecord(r io.Reader, maxKey uint32) ([]byte, Location, error) {
	const op = "read_hint_record"
	var hdr [HintRecordHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, Location{}, status.New(status.EndOfFile).Op(op).Err()
		}
		if err == io.ErrUnexpectedEOF {
			return nil, Location{}, status.Errorf(status.Corrupted, op, "truncated hint record")
		}
		return nil, Location{}, status.FromOS(op, err)
	}
	loc := Location{
		SegmentID:   binary.LittleEndian.Uint32(hdr[0:4]),
		Timestamp:   binary.LittleEndian.Uint32(hdr[4:8]),
		ValueSize:   binary.LittleEndian.Uint32(hdr[12:16]),
		ValueOffset: binary.LittleEndian.Uint32(hdr[16:20]),
	}
	keyLen := binary.LittleEndian.Uint32(hdr[8:12])
	if keyLen == 0 || keyLen > maxKey {
		return nil, Location{}, status.Errorf(status.Corrupted, op, "implausible key length %d", keyLen)
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, Location{}, status.Errorf(status.Corrupted, op, "truncated hint key")
		}
		return nil, Location{}, status.FromOS(op, err)
	}
	return key, loc, nil
}
