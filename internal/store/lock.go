package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/madzarm/ccsearch/internal/cerrors"
)

// WriterLock is the advisory exclusive lock a writing command holds on
// the index. Readers never take it; a second writer fails fast instead
// of blocking.
type WriterLock struct {
	path string
	file *os.File
}

// LockPath returns the lock file path for a data directory.
func LockPath(dataDir string) string {
	return filepath.Join(dataDir, ".index.lock")
}

// AcquireWriter takes the exclusive writer lock, or returns a
// KindStoreBusy error when another process holds it.
func AcquireWriter(dataDir string) (*WriterLock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	path := LockPath(dataDir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, cerrors.New(cerrors.KindStoreBusy,
				"another ccsearch process is writing the index")
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	fmt.Fprintf(f, "%d\n", os.Getpid())
	return &WriterLock{path: path, file: f}, nil
}

// Release drops the lock. Safe to call more than once, and must run
// before the process re-execs the assistant.
func (l *WriterLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, err)
	}
	return closeErr
}
