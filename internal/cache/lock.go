package cache

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// lockFileName is the lock file at the cache root. Its existence is the
// lock: whichever process wins the exclusive create holds it.
const lockFileName = "lock"

const (
	defaultLockRetryInterval = time.Second
	defaultLockWarnAttempts  = 10
)

// fileLock is an advisory cross-process lock over a cache root.
type fileLock struct {
	path string
	f    *os.File
}

// acquireLock blocks until the lock file could be created exclusively.
// After warnAttempts failed tries a warning suggesting manual cleanup is
// logged once, but acquisition keeps retrying: a crashed holder wedges
// other processes until the operator deletes the file, which is the
// documented liveness tradeoff.
func acquireLock(path string, interval time.Duration, warnAttempts int, log *zap.Logger) (*fileLock, error) {
	attempts := 0

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return &fileLock{path: path, f: f}, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		time.Sleep(interval)

		attempts++
		if attempts == warnAttempts {
			log.Warn("could not obtain lock, delete it if necessary",
				zap.String("path", path), zap.Int("attempts", attempts))
		}
	}
}

// release closes and unlinks the lock file. It must run on success and
// failure paths alike; callers defer it immediately after acquisition.
func (l *fileLock) release() error {
	if l.f == nil {
		return nil
	}

	closeErr := l.f.Close()
	l.f = nil

	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	return closeErr
}
