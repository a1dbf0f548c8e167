// Package retry provides the shared retry policy used for all external calls.
package retry

import (
	"context"
	"errors"
	"time"
)

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that the retry loop stops immediately.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Policy describes a bounded retry loop: a fixed number of attempts with a
// fixed interval between them. Multiplier > 1 turns the interval into an
// exponential backoff.
type Policy struct {
	Attempts   int
	Interval   time.Duration
	Multiplier float64
}

// Do calls fn up to p.Attempts times, sleeping p.Interval between attempts.
// It stops early if:
//   - fn returns nil (success)
//   - fn returns a *PermanentError (not retryable)
//   - ctx is cancelled
//
// The last error from fn is returned when all attempts fail.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	var err error
	delay := p.Interval

	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		// Don't sleep after the last attempt.
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * mult)
	}

	return err
}

// Do runs fn under a fixed-interval policy: attempts tries, interval apart.
func Do(ctx context.Context, attempts int, interval time.Duration, fn func() error) error {
	return Policy{Attempts: attempts, Interval: interval}.Do(ctx, fn)
}
