package cache

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRec struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func (r testRec) Key() string { return r.ID }

func newTestStore(t *testing.T) *Store[testRec] {
	t.Helper()
	return NewStore[testRec](filepath.Join(t.TempDir(), "cache.jsonl"))
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	records, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_AppendAndLoad(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(testRec{ID: "a", Value: 1}))
	require.NoError(t, s.Append(testRec{ID: "b", Value: 2}))

	records, err := s.Load()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records["a"].Value)
	assert.Equal(t, 2, records["b"].Value)
}

func TestStore_LastWriteWins(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(testRec{ID: "a", Value: 1}))
	require.NoError(t, s.Append(testRec{ID: "a", Value: 7}))

	records, err := s.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 7, records["a"].Value)
}

func TestStore_ToleratesTruncatedTrailingLine(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(testRec{ID: "a", Value: 1}))

	// Simulate a crash mid-append.
	f, err := os.OpenFile(s.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"b","val`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err := s.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, s.Malformed())
}

func TestStore_RewriteCoalescesAndSorts(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(testRec{ID: "b", Value: 1}))
	require.NoError(t, s.Append(testRec{ID: "a", Value: 2}))
	require.NoError(t, s.Append(testRec{ID: "b", Value: 3}))

	records, err := s.Rewrite()
	require.NoError(t, err)
	assert.Len(t, records, 2)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"a"`)
	assert.Contains(t, lines[1], `"id":"b"`)
	assert.Contains(t, lines[1], `"value":3`)
}

func TestStore_ConcurrentAppends(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.Append(testRec{ID: string(rune('a' + n)), Value: n})
		}(i)
	}
	wg.Wait()

	records, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestReadWriteLines_PreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.jsonl")
	in := []testRec{{ID: "z", Value: 1}, {ID: "a", Value: 2}, {ID: "m", Value: 3}}
	require.NoError(t, WriteLines(path, in))

	out, err := ReadLines[testRec](path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadLines_FailsOnMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"a\",\"value\":1}\nnot json\n"), 0o644))

	_, err := ReadLines[testRec](path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
