package hint

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dd0wney/cluso-cask/pkg/index"
	"github.com/dd0wney/cluso-cask/pkg/record"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

const maxKey = 1 << 20

func sampleTable() *index.Table {
	tbl := index.New()
	for i := 0; i < 50; i++ {
		tbl.Upsert([]byte(fmt.Sprintf("key-%02d", i)), record.Location{
			SegmentID:   uint32(i%3 + 1),
			ValueSize:   uint32(i),
			ValueOffset: uint32(100 + i*40),
			Timestamp:   1700000000 + uint32(i),
		})
	}
	return tbl
}

// TestWriteLoad tests that a written checkpoint loads back into an equal table
func TestWriteLoad(t *testing.T) {
	dir := t.TempDir()
	src := sampleTable()

	n, err := Write(dir, src)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 50 {
		t.Errorf("Write wrote %d records, want 50", n)
	}
	if _, err := os.Stat(Path(dir) + tmpSuffix); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	dst := index.New()
	if n, err := Load(dir, dst, maxKey); err != nil || n != 50 {
		t.Fatalf("Load = %d, %v", n, err)
	}
	src.ForEach(func(key []byte, want record.Location) error {
		if got, ok := dst.Find(key); !ok || got != want {
			t.Errorf("%s: got %+v, want %+v", key, got, want)
		}
		return nil
	})
}

// TestWriteIsDeterministic tests that two writes of the same table are byte-identical
func TestWriteIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	tbl := sampleTable()

	if _, err := Write(dir, tbl); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(Path(dir))
	if _, err := Write(dir, tbl); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(Path(dir))

	if !bytes.Equal(first, second) {
		t.Error("hint content differs between identical writes")
	}
	if len(first) != record.HintHeaderSize+50*(record.HintRecordHeaderSize+6) {
		t.Errorf("hint size = %d", len(first))
	}
}

func TestEncode_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	n, err := Encode(&buf, index.New())
	if err != nil || n != 0 {
		t.Fatalf("Encode = %d, %v", n, err)
	}
	if buf.Len() != record.HintHeaderSize {
		t.Errorf("empty hint is %d bytes", buf.Len())
	}
	count, err := Read(&buf, maxKey, func([]byte, record.Location) error { return nil })
	if err != nil || count != 0 {
		t.Errorf("Read = %d, %v", count, err)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(t.TempDir(), index.New(), maxKey); !status.IsNotFound(err) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestRead_Errors(t *testing.T) {
	var good bytes.Buffer
	if _, err := Encode(&good, sampleTable()); err != nil {
		t.Fatal(err)
	}
	clean := good.Bytes()

	tests := []struct {
		name string
		data func() []byte
		kind status.Kind
	}{
		{"bad magic", func() []byte {
			b := append([]byte(nil), clean...)
			b[0] ^= 0xFF
			return b
		}, status.InvalidArgument},
		{"newer version", func() []byte {
			b := append([]byte(nil), clean...)
			b[4] = record.MajorVersion + 1
			return b
		}, status.NotSupported},
		{"truncated record", func() []byte {
			return clean[:len(clean)-3]
		}, status.Corrupted},
		{"short header", func() []byte {
			return clean[:3]
		}, status.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.data()), maxKey, func([]byte, record.Location) error { return nil })
			if status.KindOf(err) != tt.kind {
				t.Errorf("err = %v, want %v", err, tt.kind)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	if err := Remove(dir); err != nil {
		t.Errorf("Remove on empty dir: %v", err)
	}
	if _, err := Write(dir, sampleTable()); err != nil {
		t.Fatal(err)
	}
	if !Exists(dir) {
		t.Fatal("Exists = false after Write")
	}
	if err := Remove(dir); err != nil {
		t.Fatal(err)
	}
	if Exists(dir) || fileCount(t, dir) != 0 {
		t.Error("hint still present after Remove")
	}
}

func fileCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}
