package session

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/jonboulle/clockwork"
)

// RetryPolicy describes how a failing step is retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration    // Fixed wait between attempts
	Retryable   func(error) bool // Nil means nothing is retried
}

// DefaultConnectPolicy retries engine start-up once after 10s, for start-up timeouts only.
func DefaultConnectPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Backoff:     10 * time.Second,
		Retryable: func(err error) bool {
			return errors.Is(err, domain.ErrConnectTimeout)
		},
	}
}

// Run calls fn until it succeeds, fails with a non-retryable error or attempts run out.
// It returns the last error of fn, or ctx.Err() if ctx ends during a backoff.
func (p RetryPolicy) Run(ctx context.Context, clock clockwork.Clock, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if attempt == attempts || p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		select {
		case <-clock.After(p.Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
