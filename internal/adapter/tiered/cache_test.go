package tiered_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/TenantForge/internal/adapter/tiered"
	"github.com/Strob0t/TenantForge/internal/port/cache/cachetest"
)

// memCache is a simple in-memory cache for testing.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

func (m *memCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func TestCompliance(t *testing.T) {
	cachetest.Run(t, tiered.New(newMemCache(), newMemCache(), time.Minute))
}

func TestComplianceWithoutL2(t *testing.T) {
	cachetest.Run(t, tiered.New(newMemCache(), nil, time.Minute))
}

func TestTiered_L2HitBackfillsL1(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	_ = l2.Set(ctx, "tenant:t1", []byte("summary"), 0)

	val, ok, err := c.Get(ctx, "tenant:t1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(val) != "summary" {
		t.Fatalf("expected summary, got %s", val)
	}
	if !l1.has("tenant:t1") {
		t.Fatal("expected L1 backfill")
	}
}

func TestTiered_SetAndDeleteBothLevels(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "progress:r1", []byte("p"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if !l1.has("progress:r1") || !l2.has("progress:r1") {
		t.Fatal("expected value in both levels")
	}
	if err := c.Delete(ctx, "progress:r1"); err != nil {
		t.Fatal(err)
	}
	if l1.has("progress:r1") || l2.has("progress:r1") {
		t.Fatal("expected value removed from both levels")
	}
}

func TestTiered_L2DownDegrades(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	l2.err = errors.New("nats: connection closed")
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "tenant:t2", []byte("x"), time.Minute); err != nil {
		t.Fatalf("Set should tolerate L2 failure: %v", err)
	}
	if val, ok, err := c.Get(ctx, "tenant:t2"); err != nil || !ok || string(val) != "x" {
		t.Fatalf("expected L1 hit, got %q ok=%v err=%v", val, ok, err)
	}
	if _, ok, err := c.Get(ctx, "tenant:missing"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Delete(ctx, "tenant:t2"); err == nil {
		t.Fatal("expected L2 delete failure to surface")
	}
}
