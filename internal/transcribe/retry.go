package transcribe

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds retries of retryable transcription failures.
type RetryPolicy struct {
	Attempts     int           // total attempts including the first; minimum 1
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap on any single delay; zero means 30s
}

// DefaultRetryPolicy returns three attempts starting at a two second delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialDelay
	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = 30 * time.Second
	}
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.1
	exp.MaxElapsedTime = 0
	exp.Reset()

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// Retry calls op until it succeeds, fails with a non-retryable error, the
// attempt budget is spent, or ctx is done. notify, if non-nil, is told
// about each failed attempt that will be retried and the upcoming delay.
// The returned error is the last one op produced.
func Retry(ctx context.Context, policy RetryPolicy, op func(context.Context) error, notify func(attempt int, err error, next time.Duration)) error {
	var (
		attempt int
		lastErr error
	)
	err := backoff.RetryNotify(func() error {
		attempt++
		lastErr = op(ctx)
		if lastErr != nil && !Retryable(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, policy.backOff(ctx), func(err error, next time.Duration) {
		if notify != nil {
			notify(attempt, err, next)
		}
	})
	if err != nil && lastErr != nil && !errors.Is(err, lastErr) {
		// ctx ended between attempts; keep the failure kind visible.
		return errors.Join(lastErr, err)
	}
	return err
}
