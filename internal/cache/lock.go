package cache

import (
	"os"

	"go.trai.ch/zerr"
)

// fileLock is an exclusive advisory lock on a file, shared by every process
// that uses the same cache root
type fileLock struct {
	file *os.File
}

// tryLock attempts to take the lock at path without blocking. It returns a
// nil lock and a nil error when another process holds it.
func tryLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to open cache lock"), "path", path)
	}

	acquired, err := lockFile(f)
	if err != nil {
		f.Close()
		return nil, zerr.With(zerr.Wrap(err, "failed to acquire cache lock"), "path", path)
	}

	if !acquired {
		f.Close()
		return nil, nil
	}

	return &fileLock{file: f}, nil
}

// Unlock releases the lock and closes the underlying file
func (l *fileLock) Unlock() error {
	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()

	if unlockErr != nil {
		return zerr.With(zerr.Wrap(unlockErr, "failed to release cache lock"), "path", l.file.Name())
	}

	return closeErr
}
