package modeladapter_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/modeladapter/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompleter is a test double for modeladapter.Completer that also
// implements UsageReporter.
type fakeCompleter struct {
	tracker usage.Tracker
	handler func(ctx context.Context, req modeladapter.Request) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, req modeladapter.Request) (string, error) {
	return f.handler(ctx, req)
}

func (f *fakeCompleter) UsageTracker() *usage.Tracker { return &f.tracker }

func rateLimited(retryAfter time.Duration) error {
	return &modeladapter.APIError{Provider: "fake", Status: 429, Body: "slow down", RetryAfter: retryAfter}
}

func TestThrottledCompleter_Passthrough(t *testing.T) {
	fc := &fakeCompleter{handler: func(_ context.Context, req modeladapter.Request) (string, error) {
		return "echo:" + req.System, nil
	}}

	tc := modeladapter.NewThrottledCompleter(fc, modeladapter.ThrottleOpts{})
	got, err := tc.Complete(context.Background(), modeladapter.Request{System: "sys"})

	require.NoError(t, err)
	assert.Equal(t, "echo:sys", got)
}

func TestThrottledCompleter_RetryOn429(t *testing.T) {
	var calls atomic.Int32
	fc := &fakeCompleter{handler: func(context.Context, modeladapter.Request) (string, error) {
		if calls.Add(1) <= 2 {
			return "", rateLimited(0)
		}
		return "ok", nil
	}}

	var sleeps []time.Duration
	tc := modeladapter.NewThrottledCompleter(fc, modeladapter.ThrottleOpts{MaxRetries: 3, BaseDelay: time.Millisecond})
	tc.SetSleepFunc(func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	})

	got, err := tc.Complete(context.Background(), modeladapter.Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, sleeps, 2)
	assert.InDelta(t, float64(time.Millisecond), float64(sleeps[0]), float64(time.Millisecond)/4)
}

func TestThrottledCompleter_RetryAfterWins(t *testing.T) {
	var calls atomic.Int32
	fc := &fakeCompleter{handler: func(context.Context, modeladapter.Request) (string, error) {
		if calls.Add(1) == 1 {
			return "", rateLimited(5 * time.Second)
		}
		return "ok", nil
	}}

	var slept time.Duration
	tc := modeladapter.NewThrottledCompleter(fc, modeladapter.ThrottleOpts{BaseDelay: time.Millisecond})
	tc.SetSleepFunc(func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	})

	_, err := tc.Complete(context.Background(), modeladapter.Request{})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, slept)
}

func TestThrottledCompleter_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	fc := &fakeCompleter{handler: func(context.Context, modeladapter.Request) (string, error) {
		calls.Add(1)
		return "", rateLimited(0)
	}}

	tc := modeladapter.NewThrottledCompleter(fc, modeladapter.ThrottleOpts{MaxRetries: 2, BaseDelay: time.Millisecond})
	tc.SetSleepFunc(func(context.Context, time.Duration) error { return nil })

	_, err := tc.Complete(context.Background(), modeladapter.Request{})

	var apiErr *modeladapter.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.RateLimited())
	assert.Equal(t, int32(3), calls.Load())
}

func TestThrottledCompleter_OtherErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	fc := &fakeCompleter{handler: func(context.Context, modeladapter.Request) (string, error) {
		calls.Add(1)
		return "", &modeladapter.APIError{Provider: "fake", Status: 500, Body: "boom"}
	}}

	tc := modeladapter.NewThrottledCompleter(fc, modeladapter.ThrottleOpts{})
	_, err := tc.Complete(context.Background(), modeladapter.Request{})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestThrottledCompleter_RPMWaitsForWindow(t *testing.T) {
	fc := &fakeCompleter{handler: func(context.Context, modeladapter.Request) (string, error) {
		return "ok", nil
	}}

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tc := modeladapter.NewThrottledCompleter(fc, modeladapter.ThrottleOpts{RPM: 1})
	tc.SetNowFunc(func() time.Time { return now })

	var waited time.Duration
	tc.SetSleepFunc(func(_ context.Context, d time.Duration) error {
		waited += d
		now = now.Add(d)
		return nil
	})

	_, err := tc.Complete(context.Background(), modeladapter.Request{})
	require.NoError(t, err)
	_, err = tc.Complete(context.Background(), modeladapter.Request{})
	require.NoError(t, err)

	assert.Equal(t, time.Minute, waited)
}

func TestThrottledCompleter_TPMCountsUsage(t *testing.T) {
	fc := &fakeCompleter{}
	fc.handler = func(context.Context, modeladapter.Request) (string, error) {
		fc.tracker.Add(usage.TokenCount{InputTokens: 80, OutputTokens: 40})
		return "ok", nil
	}

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tc := modeladapter.NewThrottledCompleter(fc, modeladapter.ThrottleOpts{TPM: 100})
	tc.SetNowFunc(func() time.Time { return now })

	sleeps := 0
	tc.SetSleepFunc(func(_ context.Context, d time.Duration) error {
		sleeps++
		now = now.Add(d)
		return nil
	})

	for range 2 {
		_, err := tc.Complete(context.Background(), modeladapter.Request{})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, sleeps)
	assert.Equal(t, 240, tc.UsageTracker().Total().Total())
}

func TestThrottledCompleter_ContextCancelledDuringWait(t *testing.T) {
	fc := &fakeCompleter{handler: func(context.Context, modeladapter.Request) (string, error) {
		return "", rateLimited(0)
	}}

	tc := modeladapter.NewThrottledCompleter(fc, modeladapter.ThrottleOpts{BaseDelay: time.Millisecond})
	tc.SetSleepFunc(func(context.Context, time.Duration) error { return context.Canceled })

	_, err := tc.Complete(context.Background(), modeladapter.Request{})
	assert.True(t, errors.Is(err, context.Canceled))
}
