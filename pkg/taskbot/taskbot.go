// Package taskbot runs a single structured task: it asks the model for one
// tagged value per requested field and retries the whole round trip until
// every field is present.
package taskbot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/germanamz/taskbot/pkg/chats/message"
	"github.com/germanamz/taskbot/pkg/extract"
	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/prompts"
	"github.com/germanamz/taskbot/pkg/retry"
)

// DefaultSystemPrompt frames every structured task.
const DefaultSystemPrompt = "You are a helpful assistant that generates structured outputs."

// DefaultTemperature is the sampling temperature for structured tasks.
const DefaultTemperature = 0.3

// ErrEmptyTask is returned when Run is called without a task description.
var ErrEmptyTask = errors.New("taskbot: task description is required")

// Options configures a Runner.
type Options struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int            // 0 leaves the provider default.
	MaxAttempts  int            // 0 uses retry.DefaultMaxAttempts.
	Logger       *slog.Logger   // Defaults to slog.Default().
	Observer     retry.Observer // Optional.
}

// DefaultOptions returns the options used by the CLI when nothing is configured.
func DefaultOptions() Options {
	return Options{
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  DefaultTemperature,
		MaxAttempts:  retry.DefaultMaxAttempts,
	}
}

// Runner executes structured tasks against one completer.
type Runner struct {
	completer modeladapter.Completer
	opts      Options
}

// New creates a Runner. An empty SystemPrompt falls back to DefaultSystemPrompt.
func New(c modeladapter.Completer, opts Options) *Runner {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{completer: c, opts: opts}
}

// Run builds the tag prompt for task and fields, calls the model and extracts
// the <output> block. A missing <output> block or any blank requested field
// fails the attempt and the whole round trip is repeated. The result holds
// exactly the requested keys.
func (r *Runner) Run(ctx context.Context, task string, fields []extract.Field) (extract.Result, retry.Report, error) {
	if task == "" {
		return nil, retry.Report{}, ErrEmptyTask
	}
	if err := extract.ValidateFields(fields, nil); err != nil {
		return nil, retry.Report{}, err
	}

	prompt := prompts.BuildTagPrompt(task, fields)
	policy := retry.Policy{
		Name:        "task",
		MaxAttempts: r.opts.MaxAttempts,
		Logger:      r.opts.Logger,
		Observer:    r.opts.Observer,
	}

	res, rep, err := retry.Reprocess(ctx, policy, func(ctx context.Context, attempt int) (extract.Result, error) {
		r.opts.Logger.DebugContext(ctx, "taskbot: sending task", "attempt", attempt, "fields", len(fields))

		text, err := r.completer.Complete(ctx, modeladapter.Request{
			System:      r.opts.SystemPrompt,
			Messages:    []message.Message{message.User(prompt)},
			Temperature: r.opts.Temperature,
			MaxTokens:   r.opts.MaxTokens,
		})
		if err != nil {
			return nil, err
		}

		got, err := extract.TagBlock(text)
		if err != nil {
			return nil, err
		}
		if err := extract.Validate(got, fields); err != nil {
			return nil, err
		}

		return only(got, fields), nil
	})
	if err != nil {
		return nil, rep, err
	}

	r.opts.Logger.InfoContext(ctx, "taskbot: task completed", "attempts", rep.Attempts)

	return res, rep, nil
}

func only(res extract.Result, fields []extract.Field) extract.Result {
	out := make(extract.Result, len(fields))
	for _, f := range fields {
		out[f.Key] = res[f.Key]
	}
	return out
}
