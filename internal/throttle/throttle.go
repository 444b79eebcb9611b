// Package throttle enforces a minimum spacing between calls to an
// external channel.
package throttle

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Spacing holds each call until at least interval has passed since the
// previous call finished. The first call goes through immediately and a
// zero interval never blocks.
//
// Callers pair Wait (before a call) with Mark (after it, success or
// failure), so a slow call never eats into the gap that follows it.
type Spacing struct {
	interval time.Duration
	limiter  *rate.Limiter
	clock    clockwork.Clock
}

func NewSpacing(interval time.Duration, c clockwork.Clock) *Spacing {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	s := &Spacing{interval: interval, clock: c}
	if interval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return s
}

// Wait blocks until the next call is allowed or ctx is done.
func (s *Spacing) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.limiter == nil {
		return nil
	}

	now := s.clock.Now()
	r := s.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	timer := s.clock.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		r.CancelAt(s.clock.Now())
		return ctx.Err()
	}
}

// Mark records that a call just finished. The next Wait holds until a
// full interval has passed from now.
func (s *Spacing) Mark() {
	if s.limiter == nil {
		return
	}
	now := s.clock.Now()
	// Dropping the burst to zero discards any token saved up while the
	// call was in flight.
	s.limiter.SetBurstAt(now, 0)
	s.limiter.SetBurstAt(now, 1)
}
