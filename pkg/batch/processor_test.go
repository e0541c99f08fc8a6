package batch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/taskbot/pkg/batch"
	"github.com/germanamz/taskbot/pkg/extract"
	"github.com/germanamz/taskbot/pkg/modeladapter"
)

// rowCompleter answers by looking up the prompt: the first key contained in
// the prompt decides the reply.
type rowCompleter struct {
	mu      sync.Mutex
	replies map[string]func() (string, error)
	prompts []string
}

func (c *rowCompleter) Complete(_ context.Context, req modeladapter.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prompt := req.Messages[0].Content
	c.prompts = append(c.prompts, prompt)
	for k, fn := range c.replies {
		if strings.Contains(prompt, k) {
			return fn()
		}
	}
	return "", errors.New("unexpected prompt")
}

func always(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

type rowCounter struct{ ok, failed int }

func (r *rowCounter) ObserveRow(err error) {
	if err != nil {
		r.failed++
		return
	}
	r.ok++
}

func threeRows() *batch.Table {
	return &batch.Table{
		Headers: []string{"review"},
		Rows: []batch.Row{
			{"review": "alpha"},
			{"review": "beta"},
			{"review": "gamma"},
		},
	}
}

func TestRun_RowErrorDoesNotStopBatch(t *testing.T) {
	c := &rowCompleter{replies: map[string]func() (string, error){
		"alpha": always("<output><sentiment>positive</sentiment></output>"),
		"beta": func() (string, error) {
			return "", &modeladapter.APIError{Provider: "openai", Status: 500, Body: "boom"}
		},
		"gamma": always("sure! <output><sentiment>negative</sentiment></output>"),
	}}

	var progress [][2]int
	counter := &rowCounter{}
	opts := batch.DefaultOptions()
	opts.Logger = quiet()
	opts.Rows = counter
	opts.Progress = func(done, total int) { progress = append(progress, [2]int{done, total}) }

	rep, err := batch.NewProcessor(c, opts).Run(
		context.Background(), threeRows(), "Classify: {review}", []extract.Field{{Key: "sentiment"}},
	)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Successes)
	assert.Equal(t, 1, rep.Errors)
	assert.NotEmpty(t, rep.RunID)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, 2, rep.Failures[0].Row)

	require.Len(t, rep.Output.Rows, 3)
	assert.Equal(t, "positive", rep.Output.Rows[0]["sentiment"])
	assert.Equal(t, batch.ErrorMarker, rep.Output.Rows[1]["sentiment"])
	assert.Equal(t, "negative", rep.Output.Rows[2]["sentiment"])
	assert.Equal(t, "beta", rep.Output.Rows[1]["review"])

	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
	assert.Equal(t, 2, counter.ok)
	assert.Equal(t, 1, counter.failed)

	// Row 2 is retried up to the cap; the others succeed first time.
	assert.Len(t, c.prompts, 5)
}

func TestRun_PromptShape(t *testing.T) {
	c := &rowCompleter{replies: map[string]func() (string, error){
		"alpha": always("<output><a>1</a><b>2</b></output>"),
	}}
	opts := batch.DefaultOptions()
	opts.Logger = quiet()

	tbl := &batch.Table{Headers: []string{"review"}, Rows: []batch.Row{{"review": "alpha"}}}
	_, err := batch.NewProcessor(c, opts).Run(context.Background(), tbl, "Review {review} {unknown}",
		[]extract.Field{{Key: "a"}, {Key: "b"}})
	require.NoError(t, err)

	require.Len(t, c.prompts, 1)
	assert.Equal(t,
		"Review alpha {unknown}\n\nReturn your response using the following XML format:\n<output><a></a><b></b></output>",
		c.prompts[0])
}

func TestRun_MissingFieldIsRetried(t *testing.T) {
	calls := 0
	c := &rowCompleter{replies: map[string]func() (string, error){
		"alpha": func() (string, error) {
			calls++
			if calls == 1 {
				return "<output><a></a></output>", nil
			}
			return "<output><a>ok</a></output>", nil
		},
	}}
	opts := batch.DefaultOptions()
	opts.Logger = quiet()

	tbl := &batch.Table{Headers: []string{"review"}, Rows: []batch.Row{{"review": "alpha"}}}
	rep, err := batch.NewProcessor(c, opts).Run(context.Background(), tbl, "{review}", []extract.Field{{Key: "a"}})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Successes)
	assert.Equal(t, "ok", rep.Output.Rows[0]["a"])
	assert.Equal(t, 2, calls)
}

func TestRun_ConfigErrorAborts(t *testing.T) {
	c := &rowCompleter{replies: map[string]func() (string, error){
		"alpha": func() (string, error) {
			return "", &modeladapter.ConfigError{Field: "apiKey", Reason: "required"}
		},
	}}
	opts := batch.DefaultOptions()
	opts.Logger = quiet()

	rep, err := batch.NewProcessor(c, opts).Run(context.Background(), threeRows(), "{review}", []extract.Field{{Key: "x"}})

	assert.True(t, modeladapter.IsConfigError(err))
	require.NotNil(t, rep)
	assert.Zero(t, rep.Done())
	assert.Len(t, c.prompts, 1)
}

func TestRun_CancelStopsBetweenRows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &rowCompleter{replies: map[string]func() (string, error){
		"alpha": func() (string, error) {
			cancel()
			return "<output><x>1</x></output>", nil
		},
	}}
	opts := batch.DefaultOptions()
	opts.Logger = quiet()

	rep, err := batch.NewProcessor(c, opts).Run(ctx, threeRows(), "{review}", []extract.Field{{Key: "x"}})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rep.Successes)
	assert.Len(t, rep.Output.Rows, 1)
}

func TestRun_InvalidFields(t *testing.T) {
	opts := batch.DefaultOptions()
	opts.Logger = quiet()
	p := batch.NewProcessor(&rowCompleter{}, opts)

	_, err := p.Run(context.Background(), threeRows(), "{review}", []extract.Field{{Key: "review"}})
	var fe *extract.FieldSetError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "collides")

	_, err = p.Run(context.Background(), threeRows(), "", []extract.Field{{Key: "x"}})
	require.Error(t, err)
}
