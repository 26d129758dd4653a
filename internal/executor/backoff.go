package executor

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/lessonforge/scribe/internal/config"
)

// BackoffPolicy computes the delay before retrying a provider. The base delay
// doubles per attempt up to a cap, with uniform jitter on the upper half so
// concurrent callers don't retry in lockstep. Expected delay is non-decreasing
// across attempts.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

func NewBackoffPolicy(cfg config.BackoffConfig) BackoffPolicy {
	base := cfg.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := cfg.MaxDelay
	if max < base {
		max = base
	}
	return BackoffPolicy{Base: base, Max: max}
}

// Delay returns the pause before retry number attempt (0-based: the delay
// between the first failure and the second try). A vendor retry-after hint
// acts as a floor.
func (p BackoffPolicy) Delay(attempt int, hint time.Duration) time.Duration {
	d := p.Base
	for i := 0; i < attempt && d < p.Max; i++ {
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}

	// Equal jitter: half fixed, half uniform random.
	half := d / 2
	d = half + time.Duration(rand.Int64N(int64(half)+1))

	if hint > d {
		d = hint
	}
	return d
}

// sleep waits for d or until the context is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
