package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
)

// ErrStorageWrite matches every *WriteError.
var ErrStorageWrite = errors.New("storage write failed")

// WriteError is returned when content could not be made durable at Path,
// neither atomically nor through the in-place fallback.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrStorageWrite }

const (
	defaultReplaceAttempts = 10
	defaultMinBackoff      = 50 * time.Millisecond
	defaultMaxBackoff      = time.Second
)

// AtomicWriter replaces files so that readers observe either the previous
// or the new content, never a mixture.
//
// The new content goes to a temporary file next to the target, is fsynced,
// and is renamed over the target. Only the rename is retried (with
// exponential backoff) since it is what fails when another process briefly
// holds the target open. When every rename attempt fails the writer falls
// back to overwriting the target in place and reports success: forward
// progress wins over atomicity there, and a crash during that fallback can
// leave a truncated file. OnFallback is called whenever that path is taken.
type AtomicWriter struct {
	MaxReplaceAttempts int
	MinBackoff         time.Duration
	MaxBackoff         time.Duration

	OnFallback     func(path string, cause error)
	OnReplaceRetry func(path string, attempt int, err error)

	rename    func(oldpath, newpath string) error
	writeTemp func(f *os.File, content []byte) error
	overwrite func(path string, content []byte) error
	sleep     func(time.Duration)
}

// NewAtomicWriter returns a writer with the default retry policy
// (10 rename attempts, 50ms doubling up to 1s).
func NewAtomicWriter() *AtomicWriter {
	return &AtomicWriter{
		MaxReplaceAttempts: defaultReplaceAttempts,
		MinBackoff:         defaultMinBackoff,
		MaxBackoff:         defaultMaxBackoff,
	}
}

// Write makes content durable at path.
func (w *AtomicWriter) Write(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	tmp, err := w.stage(dir, filepath.Base(path), content)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	defer os.Remove(tmp)

	replaceErr := w.replace(tmp, path)
	if replaceErr == nil {
		syncDir(dir)
		return nil
	}

	if err := w.overwriteFn()(path, content); err != nil {
		return &WriteError{Path: path, Err: errors.Join(replaceErr, err)}
	}
	if w.OnFallback != nil {
		w.OnFallback(path, replaceErr)
	}
	return nil
}

// stage writes content to a fresh temp file in dir and fsyncs it. The temp
// file is removed on failure.
func (w *AtomicWriter) stage(dir, base string, content []byte) (string, error) {
	pattern := base + "." + strconv.FormatInt(time.Now().UnixMilli(), 10) + ".*.tmp"
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	write := w.writeTemp
	if write == nil {
		write = writeAndSync
	}
	if err := write(f, content); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func (w *AtomicWriter) replace(tmp, path string) error {
	rename := w.rename
	if rename == nil {
		rename = os.Rename
	}
	sleep := w.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	attempts := w.MaxReplaceAttempts
	if attempts <= 0 {
		attempts = 1
	}
	b := &backoff.Backoff{Min: w.MinBackoff, Max: w.MaxBackoff, Factor: 2}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = rename(tmp, path); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if w.OnReplaceRetry != nil {
			w.OnReplaceRetry(path, attempt, err)
		}
		sleep(b.Duration())
	}
	return fmt.Errorf("replace after %d attempts: %w", attempts, err)
}

func (w *AtomicWriter) overwriteFn() func(string, []byte) error {
	if w.overwrite != nil {
		return w.overwrite
	}
	return overwriteInPlace
}

func writeAndSync(f *os.File, content []byte) error {
	if _, err := f.Write(content); err != nil {
		return err
	}
	return f.Sync()
}

func overwriteInPlace(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := writeAndSync(f, content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// syncDir persists the rename itself; not every platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
