// SPDX-License-Identifier: AGPL-3.0-only
package store

import (
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process already writes to the
// database.
var ErrLocked = fmt.Errorf("exchange log is in use by another process")

// fileLock is an exclusive advisory lock held next to the database file.
type fileLock struct {
	flock *flock.Flock
}

// tryLock attempts to take the lock for dbPath without blocking. It returns
// ErrLocked when the lock is held elsewhere.
func tryLock(dbPath string) (*fileLock, error) {
	lockPath := dbPath + ".lock"

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("try lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}
	return &fileLock{flock: fl}, nil
}

func (l *fileLock) release() error {
	return l.flock.Unlock()
}
