package retry_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"testing"

	"github.com/germanamz/taskbot/pkg/extract"
	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	attempts []int
	errs     int
}

func (r *recordingObserver) ObserveAttempt(_ string, attempt int, err error) {
	r.attempts = append(r.attempts, attempt)
	if err != nil {
		r.errs++
	}
}

func quietPolicy(name string, maxAttempts int) retry.Policy {
	return retry.Policy{
		Name:        name,
		MaxAttempts: maxAttempts,
		Logger:      slog.New(slog.DiscardHandler),
	}
}

func parseInt(s string) (int, error) { return strconv.Atoi(s) }

func TestReparse_SucceedsAfterFailures(t *testing.T) {
	replies := []string{"nope", "still no", "42"}
	calls := 0

	got, rep := retry.Reparse(context.Background(), quietPolicy("n", 3),
		func(context.Context) (string, error) {
			calls++
			return replies[calls-1], nil
		},
		parseInt,
	)

	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, rep.Attempts)
	assert.Equal(t, 2, rep.Retries())
	assert.Len(t, rep.Failures, 2)
	assert.True(t, rep.Succeeded())
}

func TestReparse_ExhaustedReturnsZero(t *testing.T) {
	calls := 0

	got, rep := retry.Reparse(context.Background(), quietPolicy("n", 3),
		func(context.Context) (string, error) {
			calls++
			return "never a number", nil
		},
		parseInt,
	)

	assert.Zero(t, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, rep.Attempts)
	assert.False(t, rep.Succeeded())
}

func TestReparse_APIErrorsRetried(t *testing.T) {
	calls := 0

	got, rep := retry.Reparse(context.Background(), quietPolicy("n", 3),
		func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", &modeladapter.APIError{Status: 503, Body: "busy"}
			}
			return "7", nil
		},
		parseInt,
	)

	assert.Equal(t, 7, got)
	assert.Equal(t, 2, rep.Attempts)
}

func TestReparse_ConfigErrorStops(t *testing.T) {
	calls := 0

	got, rep := retry.Reparse(context.Background(), quietPolicy("n", 3),
		func(context.Context) (string, error) {
			calls++
			return "", &modeladapter.ConfigError{Field: "apiKey", Reason: "required"}
		},
		parseInt,
	)

	assert.Zero(t, got)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rep.Attempts)
}

func TestReparse_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, rep := retry.Reparse(ctx, quietPolicy("n", 5),
		func(context.Context) (string, error) {
			calls++
			cancel()
			return "x", nil
		},
		parseInt,
	)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rep.Attempts)
}

func TestReparse_DefaultCap(t *testing.T) {
	calls := 0
	retry.Reparse(context.Background(), retry.Policy{Logger: slog.New(slog.DiscardHandler)},
		func(context.Context) (string, error) {
			calls++
			return "", errors.New("down")
		},
		parseInt,
	)

	assert.Equal(t, retry.DefaultMaxAttempts, calls)
}

func TestReparse_LogsRawAndProcessed(t *testing.T) {
	var buf bytes.Buffer
	p := retry.Policy{
		Name:        "intent",
		MaxAttempts: 1,
		Logger:      slog.New(slog.NewTextHandler(&buf, nil)),
	}

	retry.Reparse(context.Background(), p,
		func(context.Context) (string, error) { return "<think>x</think>no braces", nil },
		func(text string) (map[string]any, error) { return extract.JSONMap(text) },
	)

	out := buf.String()
	assert.Contains(t, out, "attempt=1")
	assert.Contains(t, out, "name=intent")
	assert.Contains(t, out, `raw="<think>x</think>no braces"`)
	assert.Contains(t, out, `processed="no braces"`)
}

func TestReprocess_SucceedsOnThirdAttempt(t *testing.T) {
	obs := &recordingObserver{}
	p := quietPolicy("task", 3)
	p.Observer = obs

	got, rep, err := retry.Reprocess(context.Background(), p,
		func(_ context.Context, attempt int) (string, error) {
			if attempt < 3 {
				return "", &extract.ValidationError{Missing: []string{"b"}}
			}
			return "done", nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, rep.Attempts)
	assert.Equal(t, []int{1, 2, 3}, obs.attempts)
	assert.Equal(t, 2, obs.errs)
}

func TestReprocess_Exhausted(t *testing.T) {
	calls := 0

	_, rep, err := retry.Reprocess(context.Background(), quietPolicy("task", 3),
		func(_ context.Context, attempt int) (string, error) {
			calls++
			return "", &extract.ValidationError{Missing: []string{"field" + strconv.Itoa(attempt)}}
		},
	)

	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, rep.Attempts)

	var ex *retry.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 3, ex.Attempts)

	var ve *extract.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"field3"}, ve.Missing)
	assert.True(t, strings.HasPrefix(err.Error(), "retry: task: gave up after 3 attempts"))
}

func TestReprocess_ConfigErrorIsTerminal(t *testing.T) {
	calls := 0

	_, rep, err := retry.Reprocess(context.Background(), quietPolicy("task", 3),
		func(context.Context, int) (string, error) {
			calls++
			return "", &modeladapter.ConfigError{Field: "apiKey", Reason: "required"}
		},
	)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rep.Attempts)
	assert.True(t, modeladapter.IsConfigError(err))

	var ex *retry.ExhaustedError
	assert.False(t, errors.As(err, &ex))
}

func TestReprocess_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	_, _, err := retry.Reprocess(ctx, quietPolicy("task", 3),
		func(context.Context, int) (string, error) {
			cancel()
			return "", errors.New("transport closed")
		},
	)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnippet(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, retry.Snippet(short))

	long := strings.Repeat("界", 500)
	assert.Less(t, len([]rune(retry.Snippet(long))), 500)
	assert.True(t, strings.HasSuffix(retry.Snippet(long), "…"))
}
