// Package locker serializes work per key, either inside one process or
// across processes through redis leases.
package locker

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned when the lock could not be taken in time.
var ErrLockTimeout = errors.New("locker: timed out waiting for lock")

// ErrUnavailable wraps a transport failure of the lock backend.
var ErrUnavailable = errors.New("locker: backend unavailable")

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}
