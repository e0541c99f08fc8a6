// Package retry bounds how often an LLM round trip is repeated when the call
// or the extraction of its output fails.
//
// Two policies exist. [Reparse] repeats the same call and gives up quietly
// with a zero value; it suits advisory lookups that must never block a
// conversation. [Reprocess] repeats a whole unit of work (prompt, call,
// extraction, validation) and ends in an [ExhaustedError].
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-runewidth"

	"github.com/germanamz/taskbot/pkg/extract"
	"github.com/germanamz/taskbot/pkg/modeladapter"
)

// DefaultMaxAttempts is used when a Policy leaves MaxAttempts unset.
const DefaultMaxAttempts = 3

// snippetWidth caps the display width of model text in log records.
const snippetWidth = 400

// Observer receives one notification per attempt.
type Observer interface {
	ObserveAttempt(name string, attempt int, err error)
}

// Policy configures a retry loop.
type Policy struct {
	Name        string       // Label for logs and metrics, e.g. "intent".
	MaxAttempts int          // Hard cap, counting the first attempt.
	Logger      *slog.Logger // Defaults to slog.Default().
	Observer    Observer     // Optional.
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Report describes what a retry loop did.
type Report struct {
	Attempts int
	Failures []error // One entry per failed attempt, in order.
}

// Retries returns the number of attempts after the first.
func (r Report) Retries() int { return max(r.Attempts-1, 0) }

// Succeeded reports whether the last attempt succeeded.
func (r Report) Succeeded() bool { return r.Attempts > len(r.Failures) }

// ExhaustedError is returned by Reprocess once every attempt has failed.
type ExhaustedError struct {
	Name     string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: %s: gave up after %d attempts: %v", e.Name, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// terminal reports errors no further attempt can fix.
func terminal(ctx context.Context, err error) bool {
	return modeladapter.IsConfigError(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil
}

func (p Policy) observe(attempt int, err error) {
	if p.Observer != nil {
		p.Observer.ObserveAttempt(p.Name, attempt, err)
	}
}

func (p Policy) logFailure(ctx context.Context, attempt int, err error) {
	attrs := []any{
		"name", p.Name,
		"attempt", attempt,
		"max_attempts", p.maxAttempts(),
		"error", err,
	}

	var ee *extract.ExtractionError
	if errors.As(err, &ee) {
		attrs = append(attrs,
			"raw", Snippet(ee.Raw),
			"processed", Snippet(ee.Processed),
		)
	}

	p.logger().WarnContext(ctx, "retry: attempt failed", attrs...)
}

// Snippet shortens s to the log display width.
func Snippet(s string) string {
	return runewidth.Truncate(s, snippetWidth, "…")
}

// Reparse calls call and feeds its text to parse, repeating both unchanged
// until parse succeeds or MaxAttempts is reached. It never returns an error:
// on exhaustion, a configuration error or a cancelled context it returns the
// zero value of T, and the Report tells what happened.
func Reparse[T any](
	ctx context.Context,
	p Policy,
	call func(ctx context.Context) (string, error),
	parse func(text string) (T, error),
) (T, Report) {
	var zero T
	var rep Report

	for attempt := 1; attempt <= p.maxAttempts(); attempt++ {
		rep.Attempts = attempt

		v, err := func() (T, error) {
			text, err := call(ctx)
			if err != nil {
				return zero, err
			}
			return parse(text)
		}()

		p.observe(attempt, err)

		if err == nil {
			return v, rep
		}

		rep.Failures = append(rep.Failures, err)
		p.logFailure(ctx, attempt, err)

		if terminal(ctx, err) {
			break
		}
	}

	p.logger().WarnContext(ctx, "retry: giving up, using empty result", "name", p.Name, "attempts", rep.Attempts)

	return zero, rep
}

// Reprocess runs unit until it succeeds or MaxAttempts is reached. unit
// receives the 1-based attempt number and must redo the whole piece of work.
// A configuration error or cancelled context is returned as is; otherwise the
// final failure is wrapped in *ExhaustedError.
func Reprocess[T any](
	ctx context.Context,
	p Policy,
	unit func(ctx context.Context, attempt int) (T, error),
) (T, Report, error) {
	var zero T
	var rep Report

	for attempt := 1; attempt <= p.maxAttempts(); attempt++ {
		rep.Attempts = attempt

		v, err := unit(ctx, attempt)
		p.observe(attempt, err)

		if err == nil {
			return v, rep, nil
		}

		rep.Failures = append(rep.Failures, err)
		p.logFailure(ctx, attempt, err)

		if terminal(ctx, err) {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
				return zero, rep, ctxErr
			}
			return zero, rep, err
		}
	}

	last := rep.Failures[len(rep.Failures)-1]
	return zero, rep, &ExhaustedError{Name: p.Name, Attempts: rep.Attempts, Last: last}
}
