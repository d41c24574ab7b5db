package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"togglbot/internal/store"
)

const lockPollInterval = 100 * time.Millisecond

// fileLock is an exclusive advisory flock held on a sidecar lock file, so
// separate processes sharing the data directory serialize on it too.
type fileLock struct {
	file *os.File
}

// lockFile blocks until the flock on path is held or ctx ends. The lock file
// is left on disk after release; removing it would let a waiter that already
// opened the old inode proceed alongside a newcomer locking a fresh one.
func lockFile(ctx context.Context, path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &fileLock{file: f}, nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) && !errors.Is(err, syscall.EINTR) {
			f.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}

		t := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			f.Close()
			return nil, fmt.Errorf("%w: %s: %v", store.ErrLocked, path, ctx.Err())
		case <-t.C:
		}
	}
}

func (l *fileLock) unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}
