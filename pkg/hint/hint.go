// Package hint reads and writes the index checkpoint of a cask directory.
//
// The hint file is a full copy of the index in key order. It is written
// to a temporary file and renamed into place, so a reader sees either the
// previous checkpoint or the new one.
package hint

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dd0wney/cluso-cask/pkg/index"
	"github.com/dd0wney/cluso-cask/pkg/record"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

const tmpSuffix = ".tmp"

// Path returns the hint file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, record.HintFileName)
}

// Exists reports whether dir holds a hint file.
func Exists(dir string) bool {
	_, err := os.Stat(Path(dir))
	return err == nil
}

// Encode writes the header and one record per entry of table to w and
// returns the number of records.
func Encode(w io.Writer, table *index.Table) (int, error) {
	bw := bufio.NewWriterSize(w, 64<<10)
	if err := record.WriteHintHeader(bw, record.NewHintHeader()); err != nil {
		return 0, status.Wrap(err, "hint.encode")
	}
	n := 0
	var buf []byte
	err := table.ForEach(func(key []byte, loc record.Location) error {
		buf = record.AppendHintRecord(buf[:0], key, loc)
		if _, err := bw.Write(buf); err != nil {
			return status.FromOS("encode", err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, status.Wrap(err, "hint.encode")
	}
	if err := bw.Flush(); err != nil {
		return n, status.Wrap(status.FromOS("encode", err), "hint.encode")
	}
	return n, nil
}

// Write replaces the hint file of dir with a checkpoint of table.
func Write(dir string, table *index.Table) (int, error) {
	const op = "write"
	path := Path(dir)
	tmp := path + tmpSuffix

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, status.Wrap(status.FromOS(op, err), "hint.write")
	}
	n, err := Encode(f, table)
	if err == nil {
		err = status.FromOS(op, f.Sync())
	}
	if cerr := f.Close(); err == nil {
		err = status.FromOS(op, cerr)
	}
	if err != nil {
		os.Remove(tmp)
		return 0, status.Wrap(err, "hint.write")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, status.Wrap(status.FromOS(op, err), "hint.write")
	}
	return n, nil
}

// Read parses a hint stream and calls fn for every record. Keys longer
// than maxKey are treated as corruption.
func Read(r io.Reader, maxKey uint32, fn func(key []byte, loc record.Location) error) (int, error) {
	br := bufio.NewReaderSize(r, 64<<10)
	if _, err := record.ReadHintHeader(br); err != nil {
		return 0, status.Wrap(err, "hint.read")
	}
	n := 0
	for {
		key, loc, err := record.ReadHintRecord(br, maxKey)
		if status.IsEOF(err) {
			return n, nil
		}
		if err != nil {
			return n, status.Wrap(err, "hint.read")
		}
		if err := fn(key, loc); err != nil {
			return n, err
		}
		n++
	}
}

// Load reads the hint file of dir into table.
func Load(dir string, table *index.Table, maxKey uint32) (int, error) {
	f, err := os.Open(Path(dir))
	if err != nil {
		return 0, status.Wrap(status.FromOS("load", err), "hint.load")
	}
	defer f.Close()
	n, err := Read(f, maxKey, func(key []byte, loc record.Location) error {
		table.Upsert(key, loc)
		return nil
	})
	return n, status.Wrap(err, "hint.load")
}

// Remove deletes the hint file of dir. A missing file is not an error.
func Remove(dir string) error {
	err := os.Remove(Path(dir))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return status.Wrap(status.FromOS("remove", err), "hint.remove")
}
