package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/TenantForge/internal/domain/job"
	"github.com/Strob0t/TenantForge/internal/logger"
	"github.com/Strob0t/TenantForge/internal/port/jobqueue"
	"github.com/Strob0t/TenantForge/internal/port/messagequeue"
)

// ackMargin is added to the longest job timeout of a queue so a running job
// is not redelivered before its timeout fires.
const ackMargin = time.Minute

var _ jobqueue.Scheduler = (*Scheduler)(nil)

// Scheduler implements jobqueue.Scheduler on a JetStream work-queue stream.
// Each priority class has one durable consumer and its own worker count.
// The delivery count is the attempt number; retries are NakWithDelay and
// terminal outcomes are Term.
type Scheduler struct {
	js      jetstream.JetStream
	stream  string
	workers map[job.Queue]int

	mu      sync.Mutex
	cancel  context.CancelFunc
	iters   []jetstream.MessagesContext
	wg      sync.WaitGroup
	started bool
}

// NewScheduler creates the jobs stream on js. workers maps each priority
// class to its worker count.
func NewScheduler(ctx context.Context, js jetstream.JetStream, stream string, workers map[job.Queue]int) (*Scheduler, error) {
	subjects := make([]string, 0, len(job.Queues))
	for _, q := range job.Queues {
		subjects = append(subjects, messagequeue.QueueSubjects(q))
	}
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  subjects,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream jobs stream: %w", err)
	}
	return &Scheduler{js: js, stream: stream, workers: workers}, nil
}

// Enqueue publishes a new job envelope.
func (s *Scheduler) Enqueue(ctx context.Context, kind job.Kind, tenantID string) error {
	env := job.Envelope{
		ID:         uuid.NewString(),
		Kind:       kind,
		TenantID:   tenantID,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := env.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	msg := &nats.Msg{Subject: messagequeue.JobSubject(kind), Data: data, Header: nats.Header{}}
	msg.Header.Set(nats.MsgIdHdr, env.ID)
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}
	if _, err := s.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	slog.InfoContext(ctx, "job enqueued", "kind", kind, "tenant_id", tenantID, "job_id", env.ID)
	return nil
}

// Start creates one durable consumer per priority class and runs its workers.
func (s *Scheduler) Start(ctx context.Context, h jobqueue.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	for _, q := range job.Queues {
		workers := s.workers[q]
		if workers < 1 {
			workers = 1
		}
		maxDeliver, ackWait := queuePolicy(q)
		consumer, err := s.js.CreateOrUpdateConsumer(ctx, s.stream, jetstream.ConsumerConfig{
			Durable:       "tenantforge-" + string(q),
			FilterSubject: messagequeue.QueueSubjects(q),
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       ackWait,
			MaxDeliver:    maxDeliver,
			MaxAckPending: workers,
		})
		if err != nil {
			cancel()
			s.stopLocked()
			return fmt.Errorf("jetstream consumer %s: %w", q, err)
		}
		iter, err := consumer.Messages(jetstream.PullMaxMessages(workers))
		if err != nil {
			cancel()
			s.stopLocked()
			return fmt.Errorf("jetstream messages %s: %w", q, err)
		}
		s.iters = append(s.iters, iter)
		for range workers {
			s.wg.Add(1)
			go s.work(runCtx, q, iter, h)
		}
		slog.Info("job workers started", "queue", q, "workers", workers, "max_deliver", maxDeliver)
	}
	s.cancel = cancel
	s.started = true
	return nil
}

// queuePolicy derives the consumer's MaxDeliver and AckWait from the job
// configs routed to q, so transport and coordinator agree on exhaustion.
func queuePolicy(q job.Queue) (maxDeliver int, ackWait time.Duration) {
	for _, kind := range job.Kinds {
		cfg, _ := job.For(kind)
		if cfg.Queue != q {
			continue
		}
		maxDeliver = max(maxDeliver, cfg.MaxAttempts)
		ackWait = max(ackWait, cfg.Timeout)
	}
	return max(maxDeliver, 1), ackWait + ackMargin
}

func (s *Scheduler) work(ctx context.Context, q job.Queue, iter jetstream.MessagesContext, h jobqueue.Handler) {
	defer s.wg.Done()
	for {
		msg, err := iter.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) || ctx.Err() != nil {
				return
			}
			slog.Warn("job fetch failed", "queue", q, "error", err)
			continue
		}
		s.dispatch(ctx, msg, h)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, msg jetstream.Msg, h jobqueue.Handler) {
	if id := msg.Headers().Get(headerRequestID); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}
	env, err := messagequeue.DecodeJob(msg.Subject(), msg.Data())
	if err != nil {
		slog.ErrorContext(ctx, "dropping undecodable job", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
		return
	}
	if meta, err := msg.Metadata(); err == nil {
		env.Attempt = int(meta.NumDelivered) //nolint:gosec // delivery counts are tiny
	}

	d := h(ctx, env)
	var ackErr error
	switch d.Outcome {
	case job.OutcomeDone:
		ackErr = msg.Ack()
	case job.OutcomeRetry:
		ackErr = msg.NakWithDelay(d.Delay)
	default:
		ackErr = msg.Term()
	}
	if ackErr != nil {
		slog.ErrorContext(ctx, "job ack failed", "kind", env.Kind, "outcome", d.Outcome, "error", ackErr)
	}
}

// Stop stops fetching and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.wg.Wait()
	s.started = false
}

func (s *Scheduler) stopLocked() {
	for _, it := range s.iters {
		it.Stop()
	}
	s.iters = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
