// Package messagequeue defines the message queue port (interface) and the
// subjects used by TenantForge.
package messagequeue

import (
	"context"

	"github.com/Strob0t/TenantForge/internal/domain/job"
)

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject prefixes and constants.
const (
	SubjectJobsPrefix    = "jobs"   // jobs.{queue}.{kind}
	SubjectTenantsPrefix = "tenants" // tenants.{event}
)

// JobSubject returns the subject a job of kind is published on.
func JobSubject(kind job.Kind) string {
	cfg, ok := job.For(kind)
	queue := job.QueueLow
	if ok {
		queue = cfg.Queue
	}
	return SubjectJobsPrefix + "." + string(queue) + "." + string(kind)
}

// QueueSubjects returns the wildcard subject covering every job of queue.
func QueueSubjects(queue job.Queue) string {
	return SubjectJobsPrefix + "." + string(queue) + ".*"
}
