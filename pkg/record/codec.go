package record

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/dd0wney/cluso-cask/pkg/status"
)

// Header is the fixed prefix of a data record.
type Header struct {
	CRC       uint32
	Timestamp uint32
	KeyLen    uint32
	ValueLen  uint32
}

// Record is a decoded data record. Key and Value alias the decoded buffer.
type Record struct {
	Header
	Key   []byte
	Value []byte
}

// Tombstone reports whether the record marks its key deleted.
func (r Record) Tombstone() bool {
	return r.ValueLen == 0
}

// Size returns the framed size of a record.
func Size(keyLen, valueLen int) int {
	return RecordHeaderSize + keyLen + valueLen
}

// Checksum computes the record CRC over timestamp, lengths, key and value.
func Checksum(ts uint32, key, value []byte) uint32 {
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], ts)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(key)))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(value)))
	crc := crc32.Update(0, crc32.IEEETable, hdr[:])
	crc = crc32.Update(crc, crc32.IEEETable, key)
	return crc32.Update(crc, crc32.IEEETable, value)
}

// EncodeRecord appends the framed record to dst and returns the result.
func EncodeRecord(dst []byte, ts uint32, key, value []byte) []byte {
	var hdr [RecordHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], Checksum(ts, key, value))
	binary.LittleEndian.PutUint32(hdr[4:8], ts)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(key)))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(value)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, key...)
	return append(dst, value...)
}

// DecodeHeader parses the fixed record prefix.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < RecordHeaderSize {
		return Header{}, status.Errorf(status.Corrupted, "decode_record", "short record header (%d bytes)", len(b))
	}
	return Header{
		CRC:       binary.LittleEndian.Uint32(b[0:4]),
		Timestamp: binary.LittleEndian.Uint32(b[4:8]),
		KeyLen:    binary.LittleEndian.Uint32(b[8:12]),
		ValueLen:  binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// DecodeRecord parses and verifies one framed record at the start of b.
func DecodeRecord(b []byte) (Record, error) {
	const op = "decode_record"
	h, err := DecodeHeader(b)
	if err != nil {
		return Record{}, err
	}
	end := int64(RecordHeaderSize) + int64(h.KeyLen) + int64(h.ValueLen)
	if end > int64(len(b)) {
		return Record{}, status.Errorf(status.Corrupted, op, "record needs %d bytes, have %d", end, len(b))
	}
	rec := Record{
		Header: h,
		Key:    b[RecordHeaderSize : RecordHeaderSize+h.KeyLen],
		Value:  b[RecordHeaderSize+h.KeyLen : end],
	}
	if sum := Checksum(h.Timestamp, rec.Key, rec.Value); sum != h.CRC {
		return Record{}, status.Errorf(status.Corrupted, op, "checksum mismatch: stored %#08x, computed %#08x", h.CRC, sum)
	}
	return rec, nil
}

// ReadRecord reads the next record from a sequential scan. It returns
// EndOfFile when r is exhausted at a record boundary and Corrupted for a
// torn or mismatching record. limit bounds the framed size accepted, so a
// damaged length cannot force a huge allocation. The returned size is the
// number of bytes consumed.
func ReadRecord(r io.Reader, limit int64) (Record, int64, error) {
	const op = "read_record"
	var hdr [RecordHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return Record{}, 0, status.New(status.EndOfFile).Op(op).Err()
		}
		if err == io.ErrUnexpectedEOF {
			return Record{}, 0, status.Errorf(status.Corrupted, op, "torn record header")
		}
		return Record{}, 0, status.FromOS(op, err)
	}
	h, _ := DecodeHeader(hdr[:])
	size := int64(RecordHeaderSize) + int64(h.KeyLen) + int64(h.ValueLen)
	if size > limit {
		return Record{}, 0, status.Errorf(status.Corrupted, op, "record size %d exceeds limit %d", size, limit)
	}
	buf := make([]byte, size)
	copy(buf, hdr[:])
	if _, err := io.ReadFull(r, buf[RecordHeaderSize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Record{}, 0, status.Errorf(status.Corrupted, op, "torn record body")
		}
		return Record{}, 0, status.FromOS(op, err)
	}
	rec, err := DecodeRecord(buf)
	if err != nil {
		return Record{}, 0, err
	}
	return rec, size, nil
}
