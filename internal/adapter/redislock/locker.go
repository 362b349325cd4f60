// Package redislock implements the lock port with Redis SET NX PX and a
// token-checked release.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Strob0t/TenantForge/internal/config"
	"github.com/Strob0t/TenantForge/internal/port/lock"
)

const keyPrefix = "tenantforge:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ lock.Locker = (*Locker)(nil)

// Locker grants expiring locks stored in Redis.
type Locker struct {
	client redis.UniversalClient
}

// New creates a Locker on client.
func New(client redis.UniversalClient) *Locker {
	return &Locker{client: client}
}

// Connect creates a Redis client from cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// TryAcquire takes the lock for key without waiting.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (lock.Release, bool, error) {
	token := uuid.NewString()
	k := keyPrefix + key
	ok, err := l.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.client, []string{k}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
