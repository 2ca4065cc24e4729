package services

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"xray-backend/internal/constants"
)

// FileLock is an advisory exclusive lock shared by every process that
// rewrites the proxy config (the socket server and the CLI in direct mode).
type FileLock struct {
	path string
}

// NewFileLock creates a lock backed by the file at path
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Lock blocks until the lock is held and returns the function releasing it
func (l *FileLock) Lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.path), constants.StoreDirMode); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, constants.SecretFileMode)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", l.path, err)
	}

	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
	}

	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}
