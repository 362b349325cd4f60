package job

import "time"

// Config is the retry, priority and exclusivity policy of one job kind.
type Config struct {
	Queue       Queue
	MaxAttempts int
	// Delays is the fixed backoff sequence; attempt n waits Delays[n-1], the
	// last entry repeats.
	Delays  []time.Duration
	Timeout time.Duration
	// ExclusiveTTL bounds the per-tenant lock; zero means no lock.
	ExclusiveTTL time.Duration
	// RollbackOnExhaustion enqueues a rollback once attempts run out.
	RollbackOnExhaustion bool
}

// Configs holds the policy of every job kind. Provisioning is critical and
// gets the fewest attempts; migrate and seed run at low priority with more.
var Configs = map[Kind]Config{
	KindProvision: {
		Queue:                QueueCritical,
		MaxAttempts:          3,
		Delays:               []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second},
		Timeout:              15 * time.Minute,
		ExclusiveTTL:         15 * time.Minute,
		RollbackOnExhaustion: true,
	},
	KindMigrate: {
		Queue:        QueueLow,
		MaxAttempts:  5,
		Delays:       []time.Duration{time.Minute, 2 * time.Minute, 5 * time.Minute, 10 * time.Minute},
		Timeout:      5 * time.Minute,
		ExclusiveTTL: 5 * time.Minute,
	},
	KindSeed: {
		Queue:        QueueLow,
		MaxAttempts:  5,
		Delays:       []time.Duration{time.Minute, 2 * time.Minute, 5 * time.Minute, 10 * time.Minute},
		Timeout:      5 * time.Minute,
		ExclusiveTTL: 5 * time.Minute,
	},
	KindMigrateAll: {
		Queue:       QueueLow,
		MaxAttempts: 3,
		Delays:      []time.Duration{5 * time.Minute, 10 * time.Minute},
		Timeout:     10 * time.Minute,
	},
	KindRollback: {
		Queue:       QueueCritical,
		MaxAttempts: 1,
		Timeout:     5 * time.Minute,
	},
}

// For returns the config of kind.
func For(kind Kind) (Config, bool) {
	c, ok := Configs[kind]
	return c, ok
}

// Backoff returns the delay before the attempt following attempt.
func (c Config) Backoff(attempt int) time.Duration {
	if len(c.Delays) == 0 {
		return 0
	}
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(c.Delays) {
		i = len(c.Delays) - 1
	}
	return c.Delays[i]
}

// Exhausted reports whether attempt was the last one allowed.
func (c Config) Exhausted(attempt int) bool {
	return attempt >= c.MaxAttempts
}
