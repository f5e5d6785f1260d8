package ingestion

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := ExponentialBackoff(500*time.Millisecond, 3*time.Second)

	assert.Equal(t, 500*time.Millisecond, backoff(1))
	assert.Equal(t, time.Second, backoff(2))
	assert.Equal(t, 2*time.Second, backoff(3))
	assert.Equal(t, 3*time.Second, backoff(4))
	assert.Equal(t, 3*time.Second, backoff(10))
}

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	clock := newFakeClock(time.Now())
	policy := RetryPolicy{MaxAttempts: 3, Backoff: ExponentialBackoff(500*time.Millisecond, time.Minute), Clock: clock}

	calls := 0
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return transientErr{}
		}
		return nil
	}, IsTransient)

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, clock.sleeps)
}

func TestRetryPolicyExhaustsBudget(t *testing.T) {
	clock := newFakeClock(time.Now())
	policy := RetryPolicy{MaxAttempts: 3, Backoff: ExponentialBackoff(500*time.Millisecond, time.Minute), Clock: clock}

	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		return transientErr{}
	}, IsTransient)

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, clock.sleeps)
}

func TestRetryPolicyDoesNotRetryPermanent(t *testing.T) {
	clock := newFakeClock(time.Now())
	policy := RetryPolicy{MaxAttempts: 3, Clock: clock}

	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		return permanentErr{}
	}, IsTransient)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, clock.sleeps)
}

func TestRetryPolicyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, Clock: newFakeClock(time.Now())}

	attempts, err := policy.Do(ctx, func(context.Context) error {
		cancel()
		return transientErr{}
	}, IsTransient)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, attempts)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(transientErr{}))
	assert.False(t, IsTransient(permanentErr{}))
	assert.True(t, IsTransient(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(errors.New("boom")))
	assert.False(t, IsTransient(nil))
}

func TestExpectedRound(t *testing.T) {
	assert.Equal(t, 0, ExpectedRound(FirstDrawAt.Add(-time.Minute)))
	assert.Equal(t, 1, ExpectedRound(FirstDrawAt))
	assert.Equal(t, 1, ExpectedRound(FirstDrawAt.Add(6*24*time.Hour)))
	assert.Equal(t, 2, ExpectedRound(FirstDrawAt.AddDate(0, 0, 7)))

	// round 1100 was drawn on 2023-12-30
	assert.Equal(t, 1100, ExpectedRound(time.Date(2023, 12, 30, 21, 0, 0, 0, KST)))
	assert.Equal(t, 1099, ExpectedRound(time.Date(2023, 12, 30, 20, 0, 0, 0, KST)))
	assert.Equal(t, "2023-12-30", DrawTimeFor(1100).Format("2006-01-02"))
}
