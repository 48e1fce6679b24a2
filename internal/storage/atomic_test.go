package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(time.Duration) {}

func tmpFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestAtomicWriteCreatesParentsAndReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NSE_EQ", "INFY.json")
	w := NewAtomicWriter()

	require.NoError(t, w.Write(path, []byte("one")))
	require.NoError(t, w.Write(path, []byte("two")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
	assert.Empty(t, tmpFiles(t, filepath.Dir(path)))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())
}

func TestAtomicWriteMidWriteFailureKeepsOldContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	w := NewAtomicWriter()
	w.writeTemp = func(f *os.File, content []byte) error {
		f.Write(content[:len(content)/2])
		return errors.New("disk full")
	}

	err := w.Write(path, []byte("brand new content"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageWrite)

	got, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Equal(t, "old", string(got))
	assert.Empty(t, tmpFiles(t, dir))
}

func TestAtomicWriteRetriesRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.json")

	w := NewAtomicWriter()
	w.sleep = noSleep
	calls := 0
	var retries []int
	w.OnReplaceRetry = func(_ string, attempt int, _ error) { retries = append(retries, attempt) }
	w.rename = func(oldpath, newpath string) error {
		calls++
		if calls < 3 {
			return errors.New("sharing violation")
		}
		return os.Rename(oldpath, newpath)
	}
	fellBack := false
	w.OnFallback = func(string, error) { fellBack = true }

	require.NoError(t, w.Write(path, []byte("data")))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
	assert.False(t, fellBack)
	got, _ := os.ReadFile(path)
	assert.Equal(t, "data", string(got))
	assert.Empty(t, tmpFiles(t, dir))
}

func TestAtomicWriteFallsBackAfterExhaustion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	w := NewAtomicWriter()
	w.MaxReplaceAttempts = 4
	w.sleep = noSleep
	calls := 0
	w.rename = func(string, string) error {
		calls++
		return errors.New("locked")
	}
	var cause error
	w.OnFallback = func(_ string, err error) { cause = err }

	require.NoError(t, w.Write(path, []byte("new")))
	assert.Equal(t, 4, calls)
	require.Error(t, cause)
	assert.Contains(t, cause.Error(), "locked")

	got, _ := os.ReadFile(path)
	assert.Equal(t, "new", string(got))
	assert.Empty(t, tmpFiles(t, dir))
}

func TestAtomicWriteFallbackFailureRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	w := NewAtomicWriter()
	w.MaxReplaceAttempts = 2
	w.sleep = noSleep
	w.rename = func(string, string) error { return errors.New("locked") }
	w.overwrite = func(string, []byte) error { return errors.New("read-only") }

	err := w.Write(path, []byte("new"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageWrite)

	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, path, we.Path)
	assert.Empty(t, tmpFiles(t, dir))

	got, _ := os.ReadFile(path)
	assert.Equal(t, "old", string(got))
}

func TestSafePathSegment(t *testing.T) {
	cases := map[string]string{
		"INFY":        "INFY",
		"M&M":         "M%26M",
		"BAJAJ-AUTO":  "BAJAJ-AUTO",
		"NSE_EQ":      "NSE_EQ",
		"a/b":         "a%2Fb",
		"":            "_",
		"CON":         "_CON_",
		"lpt1":        "_lpt1_",
		"trailing.":   "trailing",
		"x y":         "x%20y",
		"NSE_EQ|INE0": "NSE_EQ%7CINE0",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafePathSegment(in), in)
	}
}
