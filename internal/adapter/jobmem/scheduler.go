// Package jobmem implements the job scheduler port with in-process worker
// pools. It serves single-node deployments and tests; jobs do not survive a
// restart.
package jobmem

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/TenantForge/internal/domain/job"
	"github.com/Strob0t/TenantForge/internal/port/jobqueue"
)

const defaultBuffer = 256

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("scheduler stopped")

var _ jobqueue.Scheduler = (*Scheduler)(nil)

// Scheduler dispatches jobs to one worker pool per priority class. Retries are
// re-enqueued with time.AfterFunc and the attempt counter incremented, up to
// the kind's MaxAttempts.
type Scheduler struct {
	workers map[job.Queue]int
	queues  map[job.Queue]chan job.Envelope

	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	done    chan struct{}
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Scheduler. workers maps each priority class to its worker count.
func New(workers map[job.Queue]int) *Scheduler {
	s := &Scheduler{
		workers: workers,
		queues:  make(map[job.Queue]chan job.Envelope, len(job.Queues)),
		timers:  make(map[*time.Timer]struct{}),
		done:    make(chan struct{}),
	}
	for _, q := range job.Queues {
		s.queues[q] = make(chan job.Envelope, defaultBuffer)
	}
	return s
}

// Enqueue schedules the first attempt of a job.
func (s *Scheduler) Enqueue(ctx context.Context, kind job.Kind, tenantID string) error {
	env := job.Envelope{
		ID:         uuid.NewString(),
		Kind:       kind,
		TenantID:   tenantID,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := env.Validate(); err != nil {
		return err
	}
	return s.push(ctx, env)
}

func (s *Scheduler) push(ctx context.Context, env job.Envelope) error {
	cfg, _ := job.For(env.Kind)
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	select {
	case s.queues[cfg.Queue] <- env:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the worker pools until Stop.
func (s *Scheduler) Start(ctx context.Context, h jobqueue.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler already started")
	}
	if s.stopped {
		return ErrStopped
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, q := range job.Queues {
		n := max(s.workers[q], 1)
		for range n {
			s.wg.Add(1)
			go s.work(runCtx, s.queues[q], h)
		}
		slog.Info("job workers started", "queue", q, "workers", n, "backend", "memory")
	}
	return nil
}

func (s *Scheduler) work(ctx context.Context, ch <-chan job.Envelope, h jobqueue.Handler) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-ch:
			s.settle(ctx, env, h(ctx, env))
		}
	}
}

func (s *Scheduler) settle(ctx context.Context, env job.Envelope, d job.Decision) {
	if d.Outcome != job.OutcomeRetry {
		return
	}
	cfg, _ := job.For(env.Kind)
	if cfg.Exhausted(env.Attempt) {
		slog.WarnContext(ctx, "retry past max attempts ignored", "kind", env.Kind, "attempt", env.Attempt)
		return
	}
	next := env
	next.Attempt++

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d.Delay, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		if err := s.push(context.WithoutCancel(ctx), next); err != nil {
			slog.Warn("job redelivery dropped", "kind", next.Kind, "error", err)
		}
	})
	s.timers[t] = struct{}{}
}

// Stop cancels pending retries and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
	for t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
