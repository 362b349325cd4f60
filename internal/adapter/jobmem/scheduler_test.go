package jobmem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/TenantForge/internal/domain/job"
)

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestScheduler_DeliversFirstAttempt(t *testing.T) {
	s := New(map[job.Queue]int{job.QueueCritical: 1, job.QueueLow: 1})
	got := make(chan job.Envelope, 1)
	if err := s.Start(context.Background(), func(_ context.Context, env job.Envelope) job.Decision {
		got <- env
		return job.Decision{Outcome: job.OutcomeDone}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.Enqueue(context.Background(), job.KindProvision, "t-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case env := <-got:
		if env.Attempt != 1 || env.TenantID != "t-1" || env.ID == "" {
			t.Fatalf("unexpected envelope %+v", env)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job not delivered")
	}
}

func TestScheduler_RetryIncrementsAttemptUpToMax(t *testing.T) {
	s := New(map[job.Queue]int{job.QueueCritical: 1, job.QueueLow: 1})

	var (
		mu       sync.Mutex
		attempts []int
		third    = make(chan struct{})
	)
	if err := s.Start(context.Background(), func(_ context.Context, env job.Envelope) job.Decision {
		mu.Lock()
		attempts = append(attempts, env.Attempt)
		n := len(attempts)
		mu.Unlock()
		if n == 3 {
			close(third)
		}
		return job.Decision{Outcome: job.OutcomeRetry, Delay: time.Millisecond}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.Enqueue(context.Background(), job.KindProvision, "t-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, third)
	// Provision allows three attempts; a fourth must never arrive.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 || attempts[0] != 1 || attempts[2] != 3 {
		t.Fatalf("attempts = %v, want [1 2 3]", attempts)
	}
}

func TestScheduler_EnqueueValidates(t *testing.T) {
	s := New(nil)
	if err := s.Enqueue(context.Background(), job.KindMigrate, ""); err == nil {
		t.Fatal("expected error for migrate without tenant")
	}
	if err := s.Enqueue(context.Background(), job.Kind("bogus"), "t"); !errors.Is(err, job.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestScheduler_StopRejectsEnqueue(t *testing.T) {
	s := New(map[job.Queue]int{job.QueueCritical: 1, job.QueueLow: 1})
	if err := s.Start(context.Background(), func(context.Context, job.Envelope) job.Decision {
		return job.Decision{}
	}); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	if err := s.Enqueue(context.Background(), job.KindMigrateAll, ""); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	// Stop is idempotent.
	s.Stop()
}

func TestScheduler_StartTwice(t *testing.T) {
	s := New(nil)
	h := func(context.Context, job.Envelope) job.Decision { return job.Decision{} }
	if err := s.Start(context.Background(), h); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	if err := s.Start(context.Background(), h); err == nil {
		t.Fatal("expected error on second Start")
	}
}
