package resilience

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Slots bounds how many operations run at once. A nil Slots runs fn directly.
type Slots struct {
	sem *semaphore.Weighted
}

// NewSlots creates Slots admitting at most limit concurrent operations.
// Limits below one are raised to one.
func NewSlots(limit int) *Slots {
	if limit < 1 {
		limit = 1
	}
	return &Slots{sem: semaphore.NewWeighted(int64(limit))}
}

// Run waits for a free slot, runs fn and frees the slot. It returns ctx.Err()
// if ctx ends while waiting.
func (s *Slots) Run(ctx context.Context, fn func() error) error {
	if s == nil || s.sem == nil {
		return fn()
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return fn()
}
