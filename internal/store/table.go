package store

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// table is the raw contents of a header-first CSV file.
type table struct {
	header []string
	rows   [][]string
}

// readTable loads a whole table. A missing file yields (nil, nil).
func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	t := &table{}
	if len(records) > 0 {
		t.header = records[0]
		t.rows = records[1:]
	}
	return t, nil
}

// scanTable streams rows to fn until it returns false.
func scanTable(path string, fn func(header, rec []string) bool) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return &IOError{Op: "read", Path: path, Err: err}
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &IOError{Op: "read", Path: path, Err: err}
		}
		if !fn(header, rec) {
			return nil
		}
	}
}

// readHeader returns the first record of path, or nil if the file is
// missing or empty.
func readHeader(path string) ([]string, error) {
	var header []string
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err = r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return header, nil
}

// appendRecord appends one row, writing header first when the file is
// absent or empty. Existing rows are never touched.
func appendRecord(path string, header, rec []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: path, Err: err}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return &IOError{Op: "stat", Path: path, Err: err}
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		w.Write(header)
	}
	w.Write(rec)
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return &IOError{Op: "append", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// writeTableAtomic replaces path with header and rows. The data goes to a
// temp file in the same directory which is then renamed over path, so
// readers see either the old or the new table. On failure the temp file is
// removed and path is untouched.
func writeTableAtomic(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &IOError{Op: "create temp", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	fail := func(op string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: op, Path: path, Err: err}
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		return fail("write", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail("chmod", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// unionHeader returns header extended with any wanted columns it lacks.
func unionHeader(header, wanted []string) []string {
	have := make(map[string]bool, len(header))
	for _, col := range header {
		have[col] = true
	}
	out := append([]string(nil), header...)
	for _, col := range wanted {
		if !have[col] {
			out = append(out, col)
		}
	}
	return out
}

func pad(rec []string, n int) []string {
	for len(rec) < n {
		rec = append(rec, "")
	}
	return rec
}
