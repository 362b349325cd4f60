// Package cachetest holds the behaviour every cache.Cache implementation must
// share.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/TenantForge/internal/port/cache"
)

// Run exercises c against the cache port contract.
func Run(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()
	settle := func() {
		if w, ok := c.(interface{ Wait() }); ok {
			w.Wait()
		}
	}

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "tenant:compliance", []byte("summary"), time.Minute); err != nil {
			t.Fatal(err)
		}
		settle()
		val, found, err := c.Get(ctx, "tenant:compliance")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after Set")
		}
		if string(val) != "summary" {
			t.Fatalf("expected summary, got %s", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "nonexistent-key")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss for nonexistent key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "progress:del", []byte("del-val"), time.Minute)
		settle()
		if err := c.Delete(ctx, "progress:del"); err != nil {
			t.Fatal(err)
		}
		settle()
		_, found, err := c.Get(ctx, "progress:del")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss after Delete")
		}
	})

	t.Run("DeleteNonexistent", func(t *testing.T) {
		if err := c.Delete(ctx, "never-existed"); err != nil {
			t.Fatal("Delete of nonexistent key should not error")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = c.Set(ctx, "progress:ow", []byte("v1"), time.Minute)
		settle()
		_ = c.Set(ctx, "progress:ow", []byte("v2"), time.Minute)
		settle()
		val, found, err := c.Get(ctx, "progress:ow")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after overwrite")
		}
		if string(val) != "v2" {
			t.Fatalf("expected v2 after overwrite, got %s", val)
		}
	})
}
