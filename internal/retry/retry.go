// Package retry re-runs operations that fail with retryable errors, waiting
// an exponentially growing, jittered delay between attempts.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Policy bounds the retry loop. Zero fields take the Default values.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	// Jitter is the fraction of each delay that is randomized, in [0, 1].
	Jitter float64

	// Retryable decides whether err earns another attempt. Nil selects
	// types.IsRetryable.
	Retryable func(err error) bool
	// OnRetry runs before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep waits for d or until ctx is done. Nil selects a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default is the policy used for uploads and store writes.
var Default = Policy{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	Multiplier: 2,
	MaxDelay:   10 * time.Second,
	Jitter:     0.2,
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	} else if p.MaxRetries == 0 {
		p.MaxRetries = Default.MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = Default.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = Default.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = Default.MaxDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	} else if p.Jitter > 1 {
		p.Jitter = 1
	}
	if p.Retryable == nil {
		p.Retryable = types.IsRetryable
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}
	return p
}

// Delay returns the wait before retry number attempt (1-based), before jitter.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.Jitter == 0 || d <= 0 {
		return d
	}
	span := float64(d) * p.Jitter
	return time.Duration(float64(d) - span + rand.Float64()*2*span)
}

// Do runs fn until it succeeds, returns a non-retryable error, the retries
// run out, or ctx is done. It returns the last error from fn, or the
// context error when cancelled while waiting.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !p.Retryable(err) {
			return err
		}
		delay := p.jittered(p.Delay(attempt + 1))
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}
		if serr := p.Sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Sleep waits for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
