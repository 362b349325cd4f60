// Package job defines the background jobs that supervise tenant provisioning
// and the data-driven retry configuration attached to each of them.
package job

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies a job type.
type Kind string

const (
	KindProvision  Kind = "provision"
	KindMigrate    Kind = "migrate"
	KindSeed       Kind = "seed"
	KindMigrateAll Kind = "migrate_all"
	KindRollback   Kind = "rollback"
)

// Kinds lists every job kind in registration order.
var Kinds = []Kind{KindProvision, KindMigrate, KindSeed, KindMigrateAll, KindRollback}

// Queue is a named priority class of the worker pool.
type Queue string

const (
	QueueCritical Queue = "critical"
	QueueLow      Queue = "low"
)

// Queues lists every priority class.
var Queues = []Queue{QueueCritical, QueueLow}

// ErrAlreadyRunning is returned when a job for the same tenant holds the
// exclusive lock. The duplicate is rejected, not queued.
var ErrAlreadyRunning = errors.New("job already running for this tenant")

// ErrUnknownKind is returned for a kind without configuration.
var ErrUnknownKind = errors.New("unknown job kind")

// Envelope is one delivery of a job to a worker. Attempt is the transport's
// delivery count (1-based) and is the only attempt counter in the system.
type Envelope struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Key identifies the job subject for attempt tracking.
func (e Envelope) Key() string {
	if e.TenantID == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ":" + e.TenantID
}

// ParseKey splits an attempt key back into its kind and tenant id.
func ParseKey(key string) (Kind, string) {
	kind, tenantID, _ := strings.Cut(key, ":")
	return Kind(kind), tenantID
}

// Validate checks that tenant-scoped kinds carry a tenant id.
func (e Envelope) Validate() error {
	if _, ok := Configs[e.Kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	if e.Kind != KindMigrateAll && e.TenantID == "" {
		return fmt.Errorf("job %s requires a tenant id", e.Kind)
	}
	return nil
}

// Outcome tells the scheduler what to do with a delivery after it ran.
type Outcome int

const (
	// OutcomeDone acknowledges the delivery.
	OutcomeDone Outcome = iota
	// OutcomeRetry redelivers after Decision.Delay.
	OutcomeRetry
	// OutcomeDrop terminates the delivery without redelivery.
	OutcomeDrop
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeRetry:
		return "retry"
	case OutcomeDrop:
		return "drop"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Decision is the coordinator's verdict for a delivery.
type Decision struct {
	Outcome Outcome
	Delay   time.Duration
	Err     error
}
