package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy describes one retry behavior. The same backoff loop is shared by
// every call site; only the constants and the Retryable predicate differ.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt, so the
	// total attempt count is MaxRetries+1.
	MaxRetries int
	// BackoffBase is the delay before the first retry; each further retry
	// doubles it (BackoffBase * 2^attempt).
	BackoffBase time.Duration
	MaxBackoff  time.Duration
	// JitterFactor, when positive, randomizes each delay by ±factor.
	JitterFactor float64
	// Retryable reports whether an error is worth another attempt. A nil
	// predicate retries every error.
	Retryable func(error) bool
}

// Do executes fn and retries per the policy until it succeeds, the retries
// are exhausted, the error is not retryable, or the context is cancelled.
// The last error from fn is returned.
func Do(ctx context.Context, p Policy, fn func() error) error {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = 500 * time.Millisecond
	}

	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = fn(); err == nil {
			return nil
		}
		if attempt >= p.MaxRetries {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}

		sleep := p.BackoffBase << uint(attempt)
		if p.JitterFactor > 0 {
			sleep = applyJitter(sleep, p.JitterFactor)
		}
		if p.MaxBackoff > 0 && sleep > p.MaxBackoff {
			sleep = p.MaxBackoff
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

func applyJitter(duration time.Duration, factor float64) time.Duration {
	delta := int64(float64(duration) * factor)
	if delta <= 0 {
		return duration
	}
	return duration + time.Duration(rand.Int63n(2*delta)-delta)
}
