// Package metrics exposes Prometheus counters for provider calls, retry
// attempts, batch rows and conversation intents. A nil *Recorder is valid and
// records nothing.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/modeladapter/usage"
)

const namespace = "taskbot"

// Recorder owns a private registry so several recorders (one per test, one
// per CLI run) never collide.
type Recorder struct {
	reg *prometheus.Registry

	callTotal     *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	tokensUsed    *prometheus.CounterVec
	retryAttempts *prometheus.CounterVec
	batchRows     *prometheus.CounterVec
	intents       *prometheus.CounterVec
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		callTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_total",
			Help:      "Total number of LLM calls",
		}, []string{"provider", "status"}),
		callDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM call duration in seconds",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		tokensUsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total tokens reported by providers",
		}, []string{"provider", "type"}), // type: input/output
		retryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Attempts made by retry loops",
		}, []string{"name", "status"}),
		batchRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "rows_total",
			Help:      "Batch rows processed",
		}, []string{"status"}),
		intents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "intent_total",
			Help:      "Conversation turns by classified intent",
		}, []string{"intent"}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveAttempt records one retry attempt. It satisfies retry.Observer.
func (r *Recorder) ObserveAttempt(name string, _ int, err error) {
	if r == nil {
		return
	}
	r.retryAttempts.WithLabelValues(name, status(err)).Inc()
}

// ObserveRow records one finished batch row.
func (r *Recorder) ObserveRow(err error) {
	if r == nil {
		return
	}
	r.batchRows.WithLabelValues(status(err)).Inc()
}

// ObserveIntent records the intent a conversation turn was classified as.
func (r *Recorder) ObserveIntent(intent string) {
	if r == nil {
		return
	}
	r.intents.WithLabelValues(intent).Inc()
}

// WriteTextfile writes every metric in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}

// Middleware is WrapCompleter in modeladapter.Chain form.
func (r *Recorder) Middleware(provider string) modeladapter.Middleware {
	return func(next modeladapter.Completer) modeladapter.Completer {
		return r.WrapCompleter(provider, next)
	}
}

type instrumented struct {
	inner    modeladapter.Completer
	provider string
	rec      *Recorder
}

// WrapCompleter counts calls, latency and reported tokens of c. A nil
// Recorder returns c unchanged.
func (r *Recorder) WrapCompleter(provider string, c modeladapter.Completer) modeladapter.Completer {
	if r == nil {
		return c
	}
	return &instrumented{inner: c, provider: provider, rec: r}
}

func (i *instrumented) Complete(ctx context.Context, req modeladapter.Request) (string, error) {
	ur, hasUsage := i.inner.(modeladapter.UsageReporter)

	var before usage.TokenCount
	if hasUsage {
		before = ur.UsageTracker().Total()
	}

	start := time.Now()
	text, err := i.inner.Complete(ctx, req)
	i.rec.callDuration.WithLabelValues(i.provider).Observe(time.Since(start).Seconds())
	i.rec.callTotal.WithLabelValues(i.provider, status(err)).Inc()

	if hasUsage {
		spent := ur.UsageTracker().Total().Sub(before)
		i.rec.tokensUsed.WithLabelValues(i.provider, "input").Add(float64(spent.InputTokens))
		i.rec.tokensUsed.WithLabelValues(i.provider, "output").Add(float64(spent.OutputTokens))
	}

	return text, err
}
