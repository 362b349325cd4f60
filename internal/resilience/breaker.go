// Package resilience provides reliability patterns for calls to external
// services.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker states as reported by State.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// Breaker opens after maxFailures consecutive failures and rejects calls for
// the cooldown. After the cooldown a single probe call is let through; its
// outcome closes or re-opens the circuit.
type Breaker struct {
	mu          sync.Mutex
	name        string
	state       string
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	now         func() time.Time
}

// NewBreaker creates a closed Breaker. maxFailures below one is treated as one.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		state:       StateClosed,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Named sets the name logged on state changes and returns b.
func (b *Breaker) Named(name string) *Breaker {
	b.mu.Lock()
	b.name = name
	b.mu.Unlock()
	return b
}

// State returns the current state.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn unless the circuit is open. The error of fn is returned
// unchanged.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}
	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
		return err
	}
	b.failures = 0
	b.transition(StateClosed)
	return nil
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return true
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to string) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if to == StateOpen {
		slog.Warn("circuit breaker opened", "breaker", b.name, "from", from, "failures", b.failures, "cooldown", b.cooldown)
		return
	}
	slog.Info("circuit breaker state changed", "breaker", b.name, "from", from, "to", to)
}
