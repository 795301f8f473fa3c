package shared

import "context"

// KeyedLocker serializes work on named resources. Lock blocks until every
// key is held or ctx is done, and returns a function that releases them.
// Implementations acquire keys in sorted order so overlapping callers
// cannot deadlock.
type KeyedLocker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// ErrLockTimeout is returned when a lock could not be acquired before the
// context expired
var ErrLockTimeout = NewDomainError("LOCK_TIMEOUT", "Timed out waiting for a record lock")
