// Package jobqueue defines the background job scheduler port.
package jobqueue

import (
	"context"

	"github.com/Strob0t/TenantForge/internal/domain/job"
)

// Handler runs one delivery and returns what the scheduler should do with it.
type Handler func(ctx context.Context, env job.Envelope) job.Decision

// Scheduler enqueues jobs and dispatches them to workers grouped by
// priority class. Delivery is at-least-once.
type Scheduler interface {
	// Enqueue schedules a job of kind for tenantID (empty for fleet-wide jobs).
	Enqueue(ctx context.Context, kind job.Kind, tenantID string) error
	// Start begins dispatching deliveries to h until Stop is called.
	Start(ctx context.Context, h Handler) error
	// Stop stops dispatching and waits for in-flight deliveries.
	Stop()
}
