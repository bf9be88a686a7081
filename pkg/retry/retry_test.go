package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Exponential ---

func TestExponential_SuccessImmediate(t *testing.T) {
	err := Exponential(context.Background(), func() error { return nil }, ExponentialConfig{
		InitialInterval: 5 * time.Millisecond,
		MaxElapsedTime:  100 * time.Millisecond,
	})
	assert.NoError(t, err)
}

func TestExponential_RetryThenSuccess(t *testing.T) {
	var calls int
	var onRetryCount int
	err := Exponential(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, ExponentialConfig{
		InitialInterval: time.Millisecond,
		MaxElapsedTime:  time.Second,
		OnRetry:         func(error, time.Duration) { onRetryCount++ },
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, onRetryCount)
}

func TestExponential_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad input")
	var calls int
	err := Exponential(context.Background(), func() error {
		calls++
		return Permanent(sentinel)
	}, ExponentialConfig{InitialInterval: time.Millisecond, MaxElapsedTime: time.Second})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestExponential_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Exponential(ctx, func() error { return errors.New("always") }, ExponentialConfig{
		InitialInterval: time.Millisecond,
	})
	assert.Error(t, err)
}

func TestExponential_InvalidInterval(t *testing.T) {
	err := Exponential(context.Background(), func() error { return nil }, ExponentialConfig{})
	assert.Error(t, err)
}

// --- Constant ---

func TestConstant_FailsAfterAttempts(t *testing.T) {
	var calls int
	err := Constant(context.Background(), func() error {
		calls++
		return errors.New("nope")
	}, time.Millisecond, 3)

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestConstant_RetryThenSuccessBeforeMax(t *testing.T) {
	attempts := 5
	var calls int
	err := Constant(context.Background(), func() error {
		if calls < 2 {
			calls++
			return errors.New("temporary")
		}
		return nil
	}, 2*time.Millisecond, attempts)

	assert.NoError(t, err)
	assert.Equal(t, 2, calls, "should fail twice then succeed")
}

func TestConstant_AttemptsNonPositiveMeansOneAttempt(t *testing.T) {
	var calls int
	err := Constant(context.Background(), func() error {
		calls++
		return errors.New("fail once")
	}, 1*time.Millisecond, 0) // <=0 => 1 attempt

	assert.Error(t, err)
	assert.Equal(t, 1, calls, "should only attempt once when attempts<=0")
}

func TestConstant_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Constant(ctx, func() error {
		calls++
		cancel()
		return errors.New("fail")
	}, time.Hour, 5)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
