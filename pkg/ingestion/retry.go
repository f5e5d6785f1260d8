package ingestion

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

const (
	DefaultMaxAttempts    = 3
	DefaultBaseBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff     = 8 * time.Second
	DefaultAttemptTimeout = 10 * time.Second
)

// Clock abstracts time so retry delays can be observed in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns the wall clock.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BackoffFunc returns the delay after the given failed attempt (1-based).
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff doubles base on every attempt, capped at max.
func ExponentialBackoff(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// RetryPolicy bounds how transient failures are retried.
type RetryPolicy struct {
	MaxAttempts    int
	Backoff        BackoffFunc
	AttemptTimeout time.Duration
	Clock          Clock
}

// DefaultRetryPolicy 默认重试策略: 3 attempts, 500ms doubling backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		Backoff:        ExponentialBackoff(DefaultBaseBackoff, DefaultMaxBackoff),
		AttemptTimeout: DefaultAttemptTimeout,
		Clock:          RealClock(),
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = ExponentialBackoff(DefaultBaseBackoff, DefaultMaxBackoff)
	}
	if p.Clock == nil {
		p.Clock = RealClock()
	}
	return p
}

// Do runs op until it succeeds, fails with a non-retryable error, the context
// ends, or the attempt budget is spent. It returns the attempts made and the
// last error.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, retryable func(error) bool) (int, error) {
	p = p.withDefaults()

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = p.attempt(ctx, op)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if !retryable(err) || attempt == p.MaxAttempts {
			return attempt, err
		}
		if sleepErr := p.Clock.Sleep(ctx, p.Backoff(attempt)); sleepErr != nil {
			return attempt, sleepErr
		}
	}
	return p.MaxAttempts, err
}

func (p RetryPolicy) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if p.AttemptTimeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return op(attemptCtx)
}

// IsTransient reports whether err is worth retrying: network failures,
// per-attempt timeouts and errors that declare themselves transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var marked interface{ Transient() bool }
	if errors.As(err, &marked) {
		return marked.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}
