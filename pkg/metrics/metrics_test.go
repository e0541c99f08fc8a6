package metrics_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/taskbot/pkg/metrics"
	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/modeladapter/usage"
)

type stubCompleter struct {
	tracker usage.Tracker
	err     error
}

func (s *stubCompleter) Complete(context.Context, modeladapter.Request) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.tracker.Add(usage.TokenCount{InputTokens: 10, OutputTokens: 4})
	return "ok", nil
}

func (s *stubCompleter) UsageTracker() *usage.Tracker { return &s.tracker }

func TestWrapCompleter(t *testing.T) {
	rec := metrics.New()
	c := rec.WrapCompleter("openai", &stubCompleter{})

	for range 2 {
		_, err := c.Complete(context.Background(), modeladapter.Request{})
		require.NoError(t, err)
	}

	failing := rec.WrapCompleter("openai", &stubCompleter{err: errors.New("down")})
	_, err := failing.Complete(context.Background(), modeladapter.Request{})
	require.Error(t, err)

	n, err := testutil.GatherAndCount(rec.Registry(), "taskbot_llm_call_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "ok and error series")

	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(`
# HELP taskbot_llm_tokens_used_total Total tokens reported by providers
# TYPE taskbot_llm_tokens_used_total counter
taskbot_llm_tokens_used_total{provider="openai",type="input"} 20
taskbot_llm_tokens_used_total{provider="openai",type="output"} 8
`), "taskbot_llm_tokens_used_total"))
}

func TestObservers(t *testing.T) {
	rec := metrics.New()

	rec.ObserveAttempt("task", 1, errors.New("bad"))
	rec.ObserveAttempt("task", 2, nil)
	rec.ObserveRow(nil)
	rec.ObserveRow(nil)
	rec.ObserveRow(errors.New("x"))
	rec.ObserveIntent("story_general")

	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(`
# HELP taskbot_batch_rows_total Batch rows processed
# TYPE taskbot_batch_rows_total counter
taskbot_batch_rows_total{status="error"} 1
taskbot_batch_rows_total{status="ok"} 2
# HELP taskbot_retry_attempts_total Attempts made by retry loops
# TYPE taskbot_retry_attempts_total counter
taskbot_retry_attempts_total{name="task",status="error"} 1
taskbot_retry_attempts_total{name="task",status="ok"} 1
# HELP taskbot_chat_intent_total Conversation turns by classified intent
# TYPE taskbot_chat_intent_total counter
taskbot_chat_intent_total{intent="story_general"} 1
`), "taskbot_batch_rows_total", "taskbot_retry_attempts_total", "taskbot_chat_intent_total"))
}

func TestNilRecorder(t *testing.T) {
	var rec *metrics.Recorder

	assert.NotPanics(t, func() {
		rec.ObserveAttempt("x", 1, nil)
		rec.ObserveRow(nil)
		rec.ObserveIntent("x")
	})
	assert.NoError(t, rec.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))

	inner := &stubCompleter{}
	assert.Same(t, inner, rec.WrapCompleter("p", inner))
}

func TestWriteTextfile(t *testing.T) {
	rec := metrics.New()
	rec.ObserveRow(nil)

	path := filepath.Join(t.TempDir(), "taskbot.prom")
	require.NoError(t, rec.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `taskbot_batch_rows_total{status="ok"} 1`)
}

func TestMiddlewareInChain(t *testing.T) {
	rec := metrics.New()
	inner := &stubCompleter{}

	c := modeladapter.Chain(inner, modeladapter.Recovery(), rec.Middleware("gemini"))
	_, err := c.Complete(context.Background(), modeladapter.Request{})
	require.NoError(t, err)

	ur, ok := c.(modeladapter.UsageReporter)
	require.True(t, ok)
	assert.Equal(t, 14, ur.UsageTracker().Total().Total())

	n, err := testutil.GatherAndCount(rec.Registry(), "taskbot_llm_call_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
