package batch

import (
	"context"
	"errors"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"github.com/germanamz/taskbot/pkg/chats/message"
	"github.com/germanamz/taskbot/pkg/extract"
	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/prompts"
	"github.com/germanamz/taskbot/pkg/retry"
)

// DefaultTemperature is the sampling temperature for row calls.
const DefaultTemperature = 0.3

// RowObserver is notified once per finished row. *metrics.Recorder
// satisfies it.
type RowObserver interface {
	ObserveRow(err error)
}

// Options configures a Processor.
type Options struct {
	Temperature float64
	MaxTokens   int
	MaxAttempts int // Per row; 0 uses retry.DefaultMaxAttempts.
	Logger      *slog.Logger
	Observer    retry.Observer // Per attempt.
	Rows        RowObserver    // Per row.

	// Progress is called after every row with the number of rows done.
	Progress func(done, total int)
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{Temperature: DefaultTemperature, MaxAttempts: retry.DefaultMaxAttempts}
}

// RowError records why one row failed.
type RowError struct {
	Row int // 1-based data row number.
	Err error
}

// Report summarises a batch run.
type Report struct {
	RunID     string
	Total     int
	Successes int
	Errors    int
	Failures  []RowError

	// Output holds every processed row with its output fields merged in.
	// Failed rows carry ErrorMarker in every output field.
	Output *Table
}

// Done returns the number of rows that finished, successfully or not.
func (r *Report) Done() int { return r.Successes + r.Errors }

// Processor runs a template over a table one row at a time.
// A Processor is not safe for concurrent use.
type Processor struct {
	completer modeladapter.Completer
	opts      Options
}

// NewProcessor creates a Processor.
func NewProcessor(c modeladapter.Completer, opts Options) *Processor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Processor{completer: c, opts: opts}
}

// Run processes every row of t in order. Each row is a full reprocess unit:
// substitute the row into template, append the output directive, call the
// model, extract the <output> block and require every field. A row that still
// fails after its retries gets ErrorMarker in every output field and the run
// continues.
//
// A configuration error or a cancelled context stops the run between rows;
// the partial report is returned together with the error.
func (p *Processor) Run(ctx context.Context, t *Table, template string, fields []extract.Field) (*Report, error) {
	if err := extract.ValidateFields(fields, t.Headers); err != nil {
		return nil, err
	}
	if template == "" {
		return nil, errors.New("batch: prompt template is empty")
	}

	rep := &Report{
		RunID:  uuid.NewString(),
		Total:  len(t.Rows),
		Output: &Table{Headers: t.Headers},
	}
	log := p.opts.Logger.With("run_id", rep.RunID)

	log.InfoContext(ctx, "batch: run started", "rows", rep.Total, "fields", len(fields))

	for i, row := range t.Rows {
		if err := ctx.Err(); err != nil {
			log.WarnContext(ctx, "batch: run cancelled", "done", rep.Done(), "total", rep.Total)
			return rep, err
		}

		n := i + 1
		log.InfoContext(ctx, "batch: processing row", "row", n, "total", rep.Total)

		res, err := p.row(ctx, n, row, template, fields)
		if err != nil && (modeladapter.IsConfigError(err) || ctx.Err() != nil) {
			log.ErrorContext(ctx, "batch: run aborted", "row", n, "error", err)
			return rep, err
		}

		out := maps.Clone(row)
		if err != nil {
			log.ErrorContext(ctx, "batch: row failed", "row", n, "error", err)
			rep.Errors++
			rep.Failures = append(rep.Failures, RowError{Row: n, Err: err})
			for _, f := range fields {
				out[f.Key] = ErrorMarker
			}
		} else {
			rep.Successes++
			for _, f := range fields {
				out[f.Key] = res[f.Key]
			}
		}
		rep.Output.Rows = append(rep.Output.Rows, out)

		if p.opts.Rows != nil {
			p.opts.Rows.ObserveRow(err)
		}
		if p.opts.Progress != nil {
			p.opts.Progress(rep.Done(), rep.Total)
		}
	}

	log.InfoContext(ctx, "batch: run finished", "successes", rep.Successes, "errors", rep.Errors)

	return rep, nil
}

func (p *Processor) row(ctx context.Context, n int, row Row, template string, fields []extract.Field) (extract.Result, error) {
	prompt := prompts.BuildBatchPrompt(template, row, fields)
	policy := retry.Policy{
		Name:        "batch_row",
		MaxAttempts: p.opts.MaxAttempts,
		Logger:      p.opts.Logger.With("row", n),
		Observer:    p.opts.Observer,
	}

	res, _, err := retry.Reprocess(ctx, policy, func(ctx context.Context, _ int) (extract.Result, error) {
		text, err := p.completer.Complete(ctx, modeladapter.Request{
			Messages:    []message.Message{message.User(prompt)},
			Temperature: p.opts.Temperature,
			MaxTokens:   p.opts.MaxTokens,
		})
		if err != nil {
			return nil, err
		}

		got, err := extract.TagBlock(text)
		if err != nil {
			return nil, err
		}
		return got, extract.Validate(got, fields)
	})

	return res, err
}
