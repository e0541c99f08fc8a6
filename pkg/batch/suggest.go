package batch

import (
	"context"
	"errors"

	"github.com/germanamz/taskbot/pkg/chats/message"
	"github.com/germanamz/taskbot/pkg/extract"
	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/prompts"
)

// SampleRows is how many rows are shown to the model when suggesting a template.
const SampleRows = 2

// ErrNoSuggestion is recorded when the reply holds no <promptTemplate> element.
var ErrNoSuggestion = errors.New("batch: no <promptTemplate> in reply")

// Suggestion is the outcome of SuggestTemplate.
type Suggestion struct {
	Template string
	Fallback bool  // Template is DefaultBatchTemplate.
	Reason   error // Why the fallback was used.
}

// SuggestTemplate asks the model for a row template that uses only the
// columns the task needs. When the call or the reply is unusable the default
// template listing every column is returned instead, with Fallback set.
// Only a configuration error or a cancelled context is returned as an error.
func (p *Processor) SuggestTemplate(ctx context.Context, t *Table, task string, fields []extract.Field) (Suggestion, error) {
	fallback := func(reason error) Suggestion {
		p.opts.Logger.WarnContext(ctx, "batch: using default template", "reason", reason)
		return Suggestion{
			Template: prompts.DefaultBatchTemplate(task, t.Headers),
			Fallback: true,
			Reason:   reason,
		}
	}

	prompt := prompts.BuildTemplateSuggestionPrompt(t.Headers, t.Head(SampleRows).String(), task, fields)

	text, err := p.completer.Complete(ctx, modeladapter.Request{
		Messages:    []message.Message{message.User(prompt)},
		Temperature: p.opts.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	})
	if err != nil {
		if modeladapter.IsConfigError(err) || ctx.Err() != nil {
			return Suggestion{}, err
		}
		return fallback(err), nil
	}

	tmpl, ok := extract.Element(text, "promptTemplate")
	if !ok || tmpl == "" {
		return fallback(&extract.ExtractionError{Reason: "suggestion", Raw: text, Err: ErrNoSuggestion}), nil
	}

	p.opts.Logger.InfoContext(ctx, "batch: template suggested", "placeholders", prompts.Placeholders(tmpl))

	return Suggestion{Template: tmpl}, nil
}
