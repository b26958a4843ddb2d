package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSleeper records delays without actually sleeping.
type fakeSleeper struct {
	delays []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.delays = append(f.delays, d)
	return nil
}

func refused() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	t.Parallel()
	s := &fakeSleeper{}
	err := doWithSleeper(context.Background(), BackoffConfig(), func() error { return nil }, s)
	require.NoError(t, err)
	assert.Empty(t, s.delays)
}

func TestDo_RetriesConnectionFailures(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s := &fakeSleeper{}

	err := doWithSleeper(context.Background(), BackoffConfig(), func() error {
		if calls.Add(1) < 3 {
			return refused()
		}
		return nil
	}, s)

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, s.delays)
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s := &fakeSleeper{}
	sentinel := errors.New("404 not found")

	err := doWithSleeper(context.Background(), BackoffConfig(), func() error {
		calls.Add(1)
		return sentinel
	}, s)

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, s.delays)
}

func TestDo_ExhaustedReturnsLastError(t *testing.T) {
	t.Parallel()
	s := &fakeSleeper{}
	cfg := BackoffConfig()
	cfg.MaxAttempts = 4

	err := doWithSleeper(context.Background(), cfg, refused, s)

	assert.True(t, IsConnectionFailure(err))
	assert.Len(t, s.delays, 3, "no sleep after the final attempt")
}

func TestDo_StopError(t *testing.T) {
	t.Parallel()
	s := &fakeSleeper{}
	inner := errors.New("permanent")

	err := doWithSleeper(context.Background(), Config{MaxAttempts: 5, InitDelay: time.Second}, func() error {
		return Stop(inner)
	}, s)

	assert.Equal(t, inner, err)
	assert.Empty(t, s.delays)
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := doWithSleeper(ctx, BackoffConfig(), func() error { return nil }, &fakeSleeper{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_OnRetryCallback(t *testing.T) {
	t.Parallel()
	var attempts []int
	cfg := BackoffConfig()
	cfg.MaxAttempts = 3
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	_ = doWithSleeper(context.Background(), cfg, refused, &fakeSleeper{})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestCalcDelay_CapsAtMax(t *testing.T) {
	t.Parallel()
	cfg := BackoffConfig()

	want := []time.Duration{2, 4, 8, 16, 32, 64, 120, 120}
	for attempt, w := range want {
		assert.Equal(t, w*time.Second, CalcDelay(cfg, attempt), "attempt %d", attempt)
	}
	assert.Equal(t, 120*time.Second, CalcDelay(cfg, 200), "large attempts must not overflow")
}

func TestCalcDelay_Jitter(t *testing.T) {
	t.Parallel()
	cfg := Config{InitDelay: 4 * time.Second, MaxDelay: time.Minute, Jitter: true}
	for range 50 {
		d := CalcDelay(cfg, 0)
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestIsConnectionFailure(t *testing.T) {
	t.Parallel()

	assert.True(t, IsConnectionFailure(refused()))
	assert.True(t, IsConnectionFailure(fmt.Errorf("get: %w", syscall.ECONNRESET)))
	assert.False(t, IsConnectionFailure(context.DeadlineExceeded))
	assert.False(t, IsConnectionFailure(nil))
}
