// Package cache defines the key-value cache port used by the tenant read
// model and the progress snapshots.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys such as "tenant:<id>".
//
// Get reports a miss as (nil, false, nil); an error means the backend could
// not answer. A ttl of zero leaves expiry to the backend. Deleting a missing
// key is not an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
