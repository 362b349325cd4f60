package resilience

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSlotsLimitConcurrency(t *testing.T) {
	const limit = 2
	const workers = 8
	slots := NewSlots(limit)

	var running, maxSeen atomic.Int32
	done := make(chan struct{}, workers)
	for range workers {
		go func() {
			defer func() { done <- struct{}{} }()
			err := slots.Run(context.Background(), func() error {
				cur := running.Add(1)
				for {
					old := maxSeen.Load()
					if cur <= old || maxSeen.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	for range workers {
		<-done
	}
	if m := maxSeen.Load(); m > limit {
		t.Fatalf("max concurrent = %d, want <= %d", m, limit)
	}
}

func TestSlotsCancelledWhileWaiting(t *testing.T) {
	slots := NewSlots(1)
	occupied := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = slots.Run(context.Background(), func() error {
			close(occupied)
			<-release
			return nil
		})
	}()
	<-occupied
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := slots.Run(ctx, func() error {
		t.Error("fn should not run")
		return nil
	})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestSlotsNilAndClamp(t *testing.T) {
	var nilSlots *Slots
	called := false
	if err := nilSlots.Run(context.Background(), func() error { called = true; return nil }); err != nil || !called {
		t.Fatalf("nil slots should run fn directly, called=%v err=%v", called, err)
	}
	if err := NewSlots(0).Run(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("limit 0 should clamp to 1: %v", err)
	}
}
