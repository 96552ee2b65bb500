package settlement

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy wraps idempotent settlement calls with bounded retries and
// backoff. Value-transfer calls must NOT go through it: re-sending money on an
// ambiguous failure risks double settlement.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
	// Sleep is injectable for tests; defaults to time.Sleep.
	Sleep func(time.Duration)
}

// DefaultRetryPolicy retries transient errors up to 3 times with a short
// linear backoff, matching the account-setup behavior of the original system.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second},
		Retryable:   func(err error) bool { return errors.Is(err, ErrTransient) },
	}
}

// Do runs fn until it succeeds, exhausts attempts, or hits a non-retryable
// error. ErrTimeout is never retried here regardless of the predicate.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, ErrTimeout) {
			return err
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if i < attempts-1 && i < len(p.Backoff) {
			sleep(p.Backoff[i])
		}
	}
	return err
}
