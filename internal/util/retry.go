package util

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/filmgraph/backend/pkg/common"
)

// RetryPolicy configures the backoff applied to idempotent store calls.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Retryable decides whether an error is transient. Defaults to
	// IsConnectionError.
	Retryable func(error) bool
}

// DefaultRetryPolicy reads RETRY_MAX (default 3).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      GetEnvInt("RETRY_MAX", 3),
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// IsConnectionError reports whether err marks an unreachable store.
func IsConnectionError(err error) bool {
	return errors.Is(err, common.ErrConnection)
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (p RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsConnectionError(err)
}

// RetryWithContext calls fn until it succeeds, returns a non-retryable error,
// the retries are exhausted or ctx is done. Only use it for idempotent
// operations.
func RetryWithContext[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	op := func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		result, err := fn(ctx)
		if err != nil && (ctx.Err() != nil || !p.retryable(err)) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}
	return backoff.RetryWithData(op, p.backOff(ctx))
}

// RetryErrWithContext is RetryWithContext for operations without a result.
func RetryErrWithContext(ctx context.Context, p RetryPolicy, fn func(context.Context) error) error {
	_, err := RetryWithContext(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Retry2WithContext is RetryWithContext for operations with two results.
func Retry2WithContext[A, B any](ctx context.Context, p RetryPolicy, fn func(context.Context) (A, B, error)) (A, B, error) {
	type pair struct {
		a A
		b B
	}
	res, err := RetryWithContext(ctx, p, func(ctx context.Context) (pair, error) {
		a, b, err := fn(ctx)
		return pair{a, b}, err
	})
	return res.a, res.b, err
}
