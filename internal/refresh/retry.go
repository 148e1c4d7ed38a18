package refresh

import (
	"context"
	"errors"
	"math"
	"time"
)

type retryable interface {
	Retryable() bool
}

// isRetryable reports whether err marks itself as transient
func isRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// backoff returns the delay before retry number n (0-based):
// base*2^n capped at max, then spread by ±jitter.
func (s *Scheduler) backoff(n int) time.Duration {
	base := float64(s.cfg.BackoffBase)
	limit := float64(s.cfg.BackoffMax)

	d := base * math.Pow(2, float64(n))
	if d > limit {
		d = limit
	}

	if j := s.cfg.JitterFraction; j > 0 {
		d *= 1 + j*(2*s.rand()-1)
	}
	if d > limit {
		d = limit
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
