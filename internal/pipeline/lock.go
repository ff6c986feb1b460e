package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrRunInProgress is returned when another run holds the lock.
var ErrRunInProgress = errors.New("another run is in progress")

// RunLock makes runs mutually exclusive, inside the process through a
// mutex and across processes through an advisory lock on a file. The
// kernel drops the file lock when the holding process exits, so a crashed
// run never blocks the next one.
type RunLock struct {
	mu   sync.Mutex
	path string
}

// NewRunLock creates a lock guarded by the file at path. An empty path
// only locks within the process.
func NewRunLock(path string) *RunLock {
	return &RunLock{path: path}
}

// Acquire takes the lock or fails with ErrRunInProgress. The returned
// function releases it; calling it more than once is a no-op.
func (l *RunLock) Acquire() (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	if l.path == "" {
		return sync.OnceFunc(l.mu.Unlock), nil
	}

	fileLock, err := l.lockFile()
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	return sync.OnceFunc(func() {
		_ = fileLock.Unlock()
		l.mu.Unlock()
	}), nil
}

func (l *RunLock) lockFile() (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fileLock := flock.New(l.path)
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock file %s)", ErrRunInProgress, l.path)
	}
	return fileLock, nil
}
