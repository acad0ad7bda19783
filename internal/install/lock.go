package install

import (
	"errors"
	"fmt"
	"os"
)

// ErrLocked is returned when another process holds the update lock.
var ErrLocked = errors.New("update lock is held by another process")

// Lock is an exclusive, process-wide lock on an installation.
type Lock struct {
	f *os.File
}

// AcquireLock takes the update lock of the installation without blocking.
func (l *Locator) AcquireLock() (*Lock, error) {
	f, err := os.OpenFile(l.LockPath(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{f: f}, nil
}

// Release drops the lock. The lock file itself stays on disk.
func (k *Lock) Release() error {
	if k == nil || k.f == nil {
		return nil
	}
	err := unlockFile(k.f)
	if closeErr := k.f.Close(); err == nil {
		err = closeErr
	}
	k.f = nil
	return err
}
