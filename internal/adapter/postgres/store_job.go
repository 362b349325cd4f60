package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/TenantForge/internal/domain/job"
)

// --- Job attempts ---

func (s *Store) GetJobAttempt(ctx context.Context, key string) (*job.Attempt, error) {
	var a job.Attempt
	err := s.pool.QueryRow(ctx,
		`SELECT key, kind, tenant_id, queue, attempts, state, last_error, rollback_enqueued, updated_at
		 FROM job_attempts WHERE key = $1`, key,
	).Scan(&a.Key, &a.Kind, &a.TenantID, &a.Queue, &a.Attempts, &a.State, &a.LastError,
		&a.RollbackEnqueued, &a.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get job attempt %s", key)
	}
	return &a, nil
}

// SaveJobAttempt upserts the attempt. The rollback flag is owned by
// MarkRollbackEnqueued and is never cleared here.
func (s *Store) SaveJobAttempt(ctx context.Context, a *job.Attempt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_attempts (key, kind, tenant_id, queue, attempts, state, last_error, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (key) DO UPDATE SET
		     attempts = EXCLUDED.attempts,
		     state = EXCLUDED.state,
		     last_error = EXCLUDED.last_error,
		     updated_at = EXCLUDED.updated_at`,
		a.Key, a.Kind, a.TenantID, a.Queue, a.Attempts, a.State, a.LastError, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save job attempt %s: %w", a.Key, mapErr(err))
	}
	return nil
}

func (s *Store) MarkRollbackEnqueued(ctx context.Context, key string) (bool, error) {
	kind, tenantID := job.ParseKey(key)
	cfg, _ := job.For(kind)
	var got string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO job_attempts (key, kind, tenant_id, queue, state, rollback_enqueued)
		 VALUES ($1, $2, $3, $4, $5, true)
		 ON CONFLICT (key) DO UPDATE SET rollback_enqueued = true, updated_at = now()
		 WHERE job_attempts.rollback_enqueued = false
		 RETURNING key`,
		key, kind, tenantID, cfg.Queue, job.StateExhausted,
	).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark rollback enqueued %s: %w", key, mapErr(err))
	}
	return true, nil
}
