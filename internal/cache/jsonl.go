// Package cache implements the append-only JSONL stores backing the pipeline.
// Each store maps a stable string key to the latest record written for it.
package cache

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Keyed is any record that exposes its cache key.
type Keyed interface {
	Key() string
}

// Store is a line-delimited JSON store over a single file. Load tolerates a
// truncated trailing line (crash during append); Append writes exactly one
// flushed line under the store lock.
type Store[T Keyed] struct {
	path string
	mu   sync.Mutex

	// malformed counts lines skipped during the last Load.
	malformed int
}

// NewStore creates a store over path. The file need not exist yet.
func NewStore[T Keyed](path string) *Store[T] {
	return &Store[T]{path: path}
}

// Path returns the backing file path.
func (s *Store[T]) Path() string { return s.path }

// Load reads the whole file and returns the latest record per key. Malformed
// lines are skipped with a warning counter; a missing file yields an empty map.
func (s *Store[T]) Load() (map[string]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store[T]) loadLocked() (map[string]T, error) {
	out := make(map[string]T)
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, eris.Wrapf(err, "cache: open %s", s.path)
	}
	defer f.Close() //nolint:errcheck

	s.malformed = 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			s.malformed++
			continue
		}
		out[rec.Key()] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "cache: scan %s", s.path)
	}

	if s.malformed > 0 {
		zap.L().Warn("cache: skipped malformed lines",
			zap.String("path", s.path),
			zap.Int("count", s.malformed),
		)
	}
	return out, nil
}

// Malformed returns the number of lines skipped during the last Load.
func (s *Store[T]) Malformed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.malformed
}

// Append writes one record as a single flushed line. Safe for concurrent use.
func (s *Store[T]) Append(rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "cache: marshal record")
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrapf(err, "cache: open %s for append", s.path)
	}
	defer f.Close() //nolint:errcheck

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return eris.Wrapf(err, "cache: append to %s", s.path)
	}
	if err := f.Sync(); err != nil {
		return eris.Wrapf(err, "cache: sync %s", s.path)
	}
	return nil
}

// Rewrite coalesces the file once: latest record per key, keys sorted. Runs at
// startup only; the store stays append-only for the rest of the run.
func (s *Store[T]) Rewrite() (map[string]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: create %s", tmp)
	}

	w := bufio.NewWriter(f)
	for _, k := range keys {
		data, err := json.Marshal(records[k])
		if err != nil {
			f.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "cache: marshal record")
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			f.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "cache: write %s", tmp)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "cache: flush %s", tmp)
	}
	if err := f.Close(); err != nil {
		return nil, eris.Wrapf(err, "cache: close %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return nil, eris.Wrapf(err, "cache: replace %s", s.path)
	}

	return records, nil
}
