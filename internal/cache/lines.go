package cache

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// ReadLines decodes every line of a JSONL file into a slice, preserving file
// order. Unlike Store.Load it fails on malformed lines: ordered streams are
// written whole, so damage means a bad write, not a crash mid-append.
func ReadLines[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, eris.Wrapf(err, "cache: %s line %d", path, line)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "cache: scan %s", path)
	}
	return out, nil
}

// WriteLines writes records as JSONL, replacing the file atomically.
func WriteLines[T any](path string, records []T) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "cache: create %s", tmp)
	}

	w := bufio.NewWriter(f)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			f.Close() //nolint:errcheck
			return eris.Wrap(err, "cache: marshal record")
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			f.Close() //nolint:errcheck
			return eris.Wrapf(err, "cache: write %s", tmp)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "cache: flush %s", tmp)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "cache: close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "cache: replace %s", path)
	}
	return nil
}
