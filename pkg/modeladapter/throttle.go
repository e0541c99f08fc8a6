package modeladapter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/germanamz/taskbot/pkg/modeladapter/usage"
)

var _ Completer = (*ThrottledCompleter)(nil)

type windowEntry struct {
	at     time.Time
	tokens int
}

// ThrottleOpts configures a ThrottledCompleter.
type ThrottleOpts struct {
	RPM        int           // Requests per minute (0 = no limit).
	TPM        int           // Tokens per minute, input plus output (0 = no limit).
	MaxRetries int           // Max retries on 429 (default 3).
	BaseDelay  time.Duration // Initial backoff delay (default 1s).
	MaxDelay   time.Duration // Backoff ceiling (default 30s).
}

// ThrottledCompleter wraps a Completer with proactive RPM/TPM throttling over
// a sliding one-minute window and reactive 429 retry with exponential backoff.
// A Retry-After hint from the provider wins when it is longer than the backoff.
type ThrottledCompleter struct {
	inner    Completer
	opts     ThrottleOpts
	mu       sync.Mutex
	window   []windowEntry
	fallback usage.Tracker

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewThrottledCompleter wraps inner with throttling.
func NewThrottledCompleter(inner Completer, opts ThrottleOpts) *ThrottledCompleter {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}

	return &ThrottledCompleter{
		inner:     inner,
		opts:      opts,
		nowFunc:   time.Now,
		sleepFunc: contextSleep,
	}
}

// SetNowFunc overrides the time source (for testing).
func (t *ThrottledCompleter) SetNowFunc(fn func() time.Time) { t.nowFunc = fn }

// SetSleepFunc overrides the sleep function (for testing).
func (t *ThrottledCompleter) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	t.sleepFunc = fn
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// prune drops entries older than one minute. Must be called with mu held.
func (t *ThrottledCompleter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(t.window) && !t.window[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		t.window = append(t.window[:0:0], t.window[i:]...)
	}
}

func (t *ThrottledCompleter) waitForCapacity(ctx context.Context) error {
	if t.opts.RPM <= 0 && t.opts.TPM <= 0 {
		return nil
	}

	for {
		t.mu.Lock()
		now := t.nowFunc()
		t.prune(now)

		tokens := 0
		for _, e := range t.window {
			tokens += e.tokens
		}

		rpmOK := t.opts.RPM <= 0 || len(t.window) < t.opts.RPM
		tpmOK := t.opts.TPM <= 0 || tokens < t.opts.TPM
		if rpmOK && tpmOK {
			t.mu.Unlock()
			return nil
		}

		var wait time.Duration
		if len(t.window) > 0 {
			wait = max(t.window[0].at.Add(time.Minute).Sub(now), 0)
		}
		t.mu.Unlock()

		if err := t.sleepFunc(ctx, max(wait, 10*time.Millisecond)); err != nil {
			return err
		}
	}
}

func (t *ThrottledCompleter) record(tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.window = append(t.window, windowEntry{at: t.nowFunc(), tokens: tokens})
}

func (t *ThrottledCompleter) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.opts.BaseDelay
	b.MaxInterval = t.opts.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.25
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Complete implements Completer.
func (t *ThrottledCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if err := t.waitForCapacity(ctx); err != nil {
		return "", err
	}

	bo := t.newBackOff()

	var lastErr error
	for attempt := 0; attempt <= t.opts.MaxRetries; attempt++ {
		var before usage.TokenCount
		ur, hasUsage := t.inner.(UsageReporter)
		if hasUsage {
			before = ur.UsageTracker().Total()
		}

		text, err := t.inner.Complete(ctx, req)
		if err == nil {
			spent := 0
			if hasUsage {
				spent = ur.UsageTracker().Total().Sub(before).Total()
			}
			t.record(spent)
			return text, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.RateLimited() {
			return "", err
		}
		lastErr = err

		if attempt == t.opts.MaxRetries {
			break
		}

		if err := t.sleepFunc(ctx, max(bo.NextBackOff(), apiErr.RetryAfter)); err != nil {
			return "", err
		}
	}

	return "", lastErr
}

// UsageTracker forwards to the inner completer if it implements UsageReporter.
func (t *ThrottledCompleter) UsageTracker() *usage.Tracker {
	if ur, ok := t.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return &t.fallback
}
