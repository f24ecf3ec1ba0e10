package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how often a transaction that failed with a transient
// error is replayed from the start.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     4,
	InitialInterval: 25 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
}

// Do runs fn until it succeeds, returns a non-transient error, or the attempt
// budget is spent. The last transient error is returned in that case.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := fn(ctx); err != nil {
			if !IsTransient(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(attempts))
	return err
}

// InTxRetry runs fn in a transaction on s, replaying the whole transaction on
// transient failures according to p.
func InTxRetry(ctx context.Context, s Store, p RetryPolicy, fn func(ctx context.Context, tx Tx) error) error {
	return p.Do(ctx, func(ctx context.Context) error {
		return s.InTx(ctx, fn)
	})
}
