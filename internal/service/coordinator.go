package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/job"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/port/database"
	"github.com/Strob0t/TenantForge/internal/port/jobqueue"
	"github.com/Strob0t/TenantForge/internal/port/lock"
	"github.com/Strob0t/TenantForge/internal/resilience"
)

// JobCoordinator runs job deliveries under the per-kind retry policy. It
// guards tenant jobs with an exclusive lock, tracks attempts, decides between
// retry and give-up, and escalates an exhausted provisioning to exactly one
// rollback.
type JobCoordinator struct {
	store        database.Store
	locker       lock.Locker
	jobs         jobqueue.Scheduler
	provisioning *ProvisioningService
	maintenance  *MaintenanceService
	now          func() time.Time
}

// NewJobCoordinator creates a JobCoordinator.
func NewJobCoordinator(
	store database.Store,
	locker lock.Locker,
	jobs jobqueue.Scheduler,
	provisioning *ProvisioningService,
	maintenance *MaintenanceService,
) *JobCoordinator {
	return &JobCoordinator{
		store:        store,
		locker:       locker,
		jobs:         jobs,
		provisioning: provisioning,
		maintenance:  maintenance,
		now:          time.Now,
	}
}

// Handle runs one delivery and tells the scheduler what to do with it. It
// satisfies jobqueue.Handler.
func (c *JobCoordinator) Handle(ctx context.Context, env job.Envelope) job.Decision {
	cfg, ok := job.For(env.Kind)
	if !ok {
		slog.ErrorContext(ctx, "dropping job of unknown kind", "kind", env.Kind)
		return job.Decision{Outcome: job.OutcomeDrop, Err: fmt.Errorf("%w: %q", job.ErrUnknownKind, env.Kind)}
	}
	if err := env.Validate(); err != nil {
		slog.ErrorContext(ctx, "dropping invalid job", "kind", env.Kind, "error", err)
		return job.Decision{Outcome: job.OutcomeDrop, Err: err}
	}
	if env.Attempt < 1 {
		env.Attempt = 1
	}
	log := slog.With("kind", env.Kind, "tenant_id", env.TenantID, "attempt", env.Attempt, "job_id", env.ID)

	if cfg.ExclusiveTTL > 0 && c.locker != nil {
		release, acquired, err := c.locker.TryAcquire(ctx, env.Key(), cfg.ExclusiveTTL)
		if err != nil {
			log.ErrorContext(ctx, "job lock unavailable", "error", err)
			return c.retryOrGiveUp(ctx, env, cfg, nil, fmt.Errorf("acquire job lock: %w", err))
		}
		if !acquired {
			log.WarnContext(ctx, "job already running for tenant, rejecting duplicate")
			return job.Decision{Outcome: job.OutcomeDone, Err: job.ErrAlreadyRunning}
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.WarnContext(ctx, "job lock release failed", "error", err)
			}
		}()
	}

	attempt, err := c.loadAttempt(ctx, env, cfg)
	if err != nil {
		log.ErrorContext(ctx, "load job attempt failed", "error", err)
		return c.retryOrGiveUp(ctx, env, cfg, nil, err)
	}
	if !job.CanTransition(attempt.State, job.StateRunning) {
		log.WarnContext(ctx, "stale delivery, job chain already settled", "state", attempt.State)
		return job.Decision{Outcome: job.OutcomeDrop}
	}
	attempt.Attempts = env.Attempt
	c.saveState(ctx, attempt, job.StateRunning, nil)

	ctx, span := tfotel.StartJobSpan(ctx, string(env.Kind), env.TenantID, env.Attempt)
	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	start := c.now()
	err = c.run(runCtx, env)
	cancel()
	tfotel.EndSpan(span, err)

	if err == nil {
		c.saveState(ctx, attempt, job.StateSucceeded, nil)
		if env.Kind == job.KindRollback {
			c.settleProvision(ctx, env.TenantID, job.StateRolledBack, nil)
		}
		log.InfoContext(ctx, "job succeeded", "duration", c.now().Sub(start))
		return job.Decision{Outcome: job.OutcomeDone}
	}
	return c.retryOrGiveUp(ctx, env, cfg, attempt, err)
}

// retryOrGiveUp decides the fate of a failed delivery. attempt may be nil when
// the failure happened before the attempt record was loaded.
func (c *JobCoordinator) retryOrGiveUp(ctx context.Context, env job.Envelope, cfg job.Config, attempt *job.Attempt, err error) job.Decision {
	log := slog.With("kind", env.Kind, "tenant_id", env.TenantID, "attempt", env.Attempt, "max_attempts", cfg.MaxAttempts)

	retryable := tenant.IsRetryable(err)
	if retryable && !cfg.Exhausted(env.Attempt) {
		delay := cfg.Backoff(env.Attempt)
		if attempt != nil {
			c.saveState(ctx, attempt, job.StateRetrying, err)
		}
		log.WarnContext(ctx, "job failed, retrying", "error", err, "delay", delay)
		return job.Decision{Outcome: job.OutcomeRetry, Delay: delay, Err: err}
	}

	final := job.StateFailed
	if cfg.RollbackOnExhaustion {
		final = job.StateExhausted
	}
	if attempt != nil {
		c.saveState(ctx, attempt, final, err)
	}

	switch {
	case env.Kind == job.KindRollback && errors.Is(err, tenant.ErrNotRollbackable):
		log.WarnContext(ctx, "rollback refused, tenant left untouched", "error", err)
	case env.Kind == job.KindRollback:
		log.ErrorContext(ctx, "rollback failed, manual cleanup required", "error", err, "alert", true)
		c.settleProvision(ctx, env.TenantID, job.StateFailed, err)
	case retryable:
		log.ErrorContext(ctx, "job exhausted its attempts", "error", err)
	default:
		log.ErrorContext(ctx, "job failed permanently", "error", err)
	}

	if cfg.RollbackOnExhaustion {
		c.escalate(ctx, env)
	}
	return job.Decision{Outcome: job.OutcomeDrop, Err: err}
}

// escalate deactivates the tenant and enqueues its rollback. The compare-and-set
// on the attempt record guarantees at most one rollback per tenant.
func (c *JobCoordinator) escalate(ctx context.Context, env job.Envelope) {
	log := slog.With("kind", env.Kind, "tenant_id", env.TenantID)

	resilience.BestEffort(ctx, "tenant.deactivate", func(ctx context.Context) error {
		err := c.store.SetTenantActive(ctx, env.TenantID, false)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}, "tenant_id", env.TenantID)

	flipped, err := c.store.MarkRollbackEnqueued(ctx, env.Key())
	if err != nil {
		log.ErrorContext(ctx, "could not mark rollback, tenant left for orphan cleanup", "error", err, "alert", true)
		return
	}
	if !flipped {
		log.InfoContext(ctx, "rollback already enqueued")
		return
	}
	if err := c.jobs.Enqueue(ctx, job.KindRollback, env.TenantID); err != nil {
		log.ErrorContext(ctx, "enqueue rollback failed, tenant left for orphan cleanup", "error", err, "alert", true)
		return
	}
	c.settleProvision(ctx, env.TenantID, job.StateRollingBack, nil)
	log.WarnContext(ctx, "rollback enqueued")
}

// settleProvision moves the provision chain of tenantID to state.
func (c *JobCoordinator) settleProvision(ctx context.Context, tenantID string, state job.State, cause error) {
	key := job.Envelope{Kind: job.KindProvision, TenantID: tenantID}.Key()
	a, err := c.store.GetJobAttempt(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.WarnContext(ctx, "load provision attempt failed", "tenant_id", tenantID, "error", err)
		}
		return
	}
	if !job.CanTransition(a.State, state) {
		return
	}
	c.saveState(ctx, a, state, cause)
}

func (c *JobCoordinator) loadAttempt(ctx context.Context, env job.Envelope, cfg job.Config) (*job.Attempt, error) {
	a, err := c.store.GetJobAttempt(ctx, env.Key())
	if errors.Is(err, domain.ErrNotFound) {
		return &job.Attempt{
			Key:      env.Key(),
			Kind:     env.Kind,
			TenantID: env.TenantID,
			Queue:    cfg.Queue,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job attempt %s: %w", env.Key(), err)
	}
	return a, nil
}

func (c *JobCoordinator) saveState(ctx context.Context, a *job.Attempt, state job.State, cause error) {
	a.State = state
	a.LastError = ""
	if cause != nil {
		a.LastError = cause.Error()
	}
	a.UpdatedAt = c.now().UTC()
	resilience.BestEffort(ctx, "job.save_attempt", func(ctx context.Context) error {
		return c.store.SaveJobAttempt(ctx, a)
	}, "key", a.Key, "state", state)
}

func (c *JobCoordinator) run(ctx context.Context, env job.Envelope) error {
	switch env.Kind {
	case job.KindProvision:
		return c.provisioning.Provision(ctx, env.TenantID, env.Attempt)
	case job.KindMigrate:
		return c.maintenance.MigrateTenant(ctx, env.TenantID)
	case job.KindSeed:
		return c.maintenance.SeedTenant(ctx, env.TenantID)
	case job.KindMigrateAll:
		return c.maintenance.MigrateAll(ctx)
	case job.KindRollback:
		return c.maintenance.Rollback(ctx, env.TenantID)
	}
	return fmt.Errorf("%w: %q", job.ErrUnknownKind, env.Kind)
}

// Enqueue validates and schedules a job. It backs the manual job endpoint.
func (c *JobCoordinator) Enqueue(ctx context.Context, kind job.Kind, tenantID string) error {
	env := job.Envelope{Kind: kind, TenantID: tenantID}
	if err := env.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return c.jobs.Enqueue(ctx, kind, tenantID)
}
