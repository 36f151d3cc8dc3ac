package timeutil

import (
	"context"
	"time"
)

// Rate paces a loop to a fixed period measured from the end of the previous
// delay, so work done inside the loop is absorbed into the period.
type Rate struct {
	clock Clock
	last  time.Time
}

func NewRate(clock Clock) *Rate {
	return &Rate{clock: clock}
}

// Delay blocks until period has elapsed since the last boundary. An overrun
// period resynchronises on the current time instead of bursting.
func (r *Rate) Delay(ctx context.Context, period time.Duration) error {
	now := r.clock.Now()
	if r.last.IsZero() {
		r.last = now
	}

	next := r.last.Add(period)
	wait := next.Sub(now)
	if wait <= 0 {
		r.last = now
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clock.After(wait):
	}
	r.last = next
	return nil
}
