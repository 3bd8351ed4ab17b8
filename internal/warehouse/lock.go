package warehouse

import (
	"context"
	"fmt"
	"time"

	apperrors "coursepipe/pkg/errors"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 250 * time.Millisecond

// Lock is an exclusive, cross-process write lock on a warehouse file.
type Lock struct {
	fl *flock.Flock
}

// LockPath is the lock file guarding the warehouse at dbPath.
func LockPath(dbPath string) string {
	return dbPath + ".lock"
}

// AcquireLock takes the exclusive lock for dbPath, waiting up to timeout.
// A zero timeout tries exactly once.
func AcquireLock(ctx context.Context, dbPath string, timeout time.Duration) (*Lock, error) {
	fl := flock.New(LockPath(dbPath))

	var (
		locked bool
		err    error
	)
	if timeout <= 0 {
		locked, err = fl.TryLock()
	} else {
		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		locked, err = fl.TryLockContext(lockCtx, lockRetryDelay)
		if err != nil && ctx.Err() == nil && lockCtx.Err() != nil {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock warehouse %s: %w", dbPath, err)
	}
	if !locked {
		return nil, apperrors.New(apperrors.ErrCodeLockTimeout,
			fmt.Sprintf("warehouse %s is locked by another process", dbPath)).
			WithContext("lock_file", LockPath(dbPath)).
			WithSuggestions("Wait for the running pipeline or initializer to finish")
	}

	return &Lock{fl: fl}, nil
}

// Release unlocks the warehouse. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
