package modeladapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/germanamz/taskbot/pkg/modeladapter/usage"
)

// CompleterFunc adapts a plain function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls the underlying function.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Middleware wraps a Completer, returning a new Completer with added behaviour.
type Middleware func(next Completer) Completer

// Chain applies middleware so that the first one listed is the outermost.
// Usage reporting of the innermost completer is preserved.
func Chain(c Completer, mws ...Middleware) Completer {
	wrapped := c
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}

	if ur, ok := c.(UsageReporter); ok {
		if _, still := wrapped.(UsageReporter); !still {
			return &reporting{Completer: wrapped, tracker: ur}
		}
	}

	return wrapped
}

type reporting struct {
	Completer
	tracker UsageReporter
}

func (r *reporting) UsageTracker() *usage.Tracker { return r.tracker.UsageTracker() }

// --- Recovery middleware ---

// Recovery returns a Middleware that converts a panicking call into an error.
func Recovery() Middleware {
	return func(next Completer) Completer {
		return CompleterFunc(func(ctx context.Context, req Request) (text string, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("modeladapter: completer panicked: %v", r)
				}
			}()

			return next.Complete(ctx, req)
		})
	}
}

// --- Logger middleware ---

// Logger returns a Middleware that logs every call with its duration and
// outcome. Prompt and reply text are never logged here.
func Logger(log *slog.Logger, provider string) Middleware {
	return func(next Completer) Completer {
		return CompleterFunc(func(ctx context.Context, req Request) (string, error) {
			log.DebugContext(ctx, "llm call started",
				"provider", provider,
				"messages", len(req.Messages),
				"temperature", req.Temperature,
			)

			start := time.Now()

			text, err := next.Complete(ctx, req)

			duration := time.Since(start)

			if err != nil {
				log.ErrorContext(ctx, "llm call failed",
					"provider", provider,
					"duration", duration,
					"error", err,
				)
			} else {
				log.InfoContext(ctx, "llm call finished",
					"provider", provider,
					"duration", duration,
					"chars", len(text),
				)
			}

			return text, err
		})
	}
}
