// Package lock defines the bounded-duration mutual exclusion port.
package lock

import (
	"context"
	"time"
)

// Release frees a held lock. Releasing an expired lock is not an error.
type Release func(ctx context.Context) error

// Locker grants keyed locks that expire after a TTL.
type Locker interface {
	// TryAcquire takes the lock for key without waiting. ok is false when
	// another holder owns it.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release Release, ok bool, err error)
}
