package syncengine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"budgetsync/internal/log"
	"budgetsync/internal/remote"
)

// RetryPolicy bounds every remote call.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	AttemptTimeout  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsed:      30 * time.Second,
		AttemptTimeout:  15 * time.Second,
	}
}

// NoRetry runs each call once. Useful in tests.
func NoRetry() RetryPolicy {
	return RetryPolicy{AttemptTimeout: 15 * time.Second}
}

type retrier struct {
	policy  RetryPolicy
	logger  *log.Logger
	metrics *Metrics
}

func (r *retrier) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}
	b.MaxElapsedTime = r.policy.MaxElapsed
	retries := r.policy.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// do runs fn with a per-attempt timeout, retrying transient failures.
// ErrNotFound, oversized batches and validation failures are returned
// immediately.
func (r *retrier) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := func() error {
		actx, cancel := r.attemptContext(ctx)
		defer cancel()
		err := fn(actx)
		if err == nil {
			return nil
		}
		if errors.Is(err, remote.ErrNotFound) || errors.Is(err, remote.ErrBatchTooLarge) || isValidation(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.metrics.retry(op)
		r.logger.WarnContext(ctx, "Remote call failed, retrying",
			log.FieldOperation, op,
			log.FieldError, err,
			"retry_in", wait)
	}
	return backoff.RetryNotify(attempt, r.backoff(ctx), notify)
}

func (r *retrier) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.policy.AttemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.policy.AttemptTimeout)
}
