package prompts_test

import (
	"testing"

	"github.com/germanamz/taskbot/pkg/extract"
	"github.com/germanamz/taskbot/pkg/prompts"
	"github.com/stretchr/testify/assert"
)

func TestBuildBatchRowPrompt(t *testing.T) {
	row := map[string]string{"name": "Ada", "city": "London", "first name": "A"}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"simple", "Hello {name} from {city}", "Hello Ada from London"},
		{"repeated", "{name}/{name}", "Ada/Ada"},
		{"unknown kept", "{name} likes {food}", "Ada likes {food}"},
		{"column with space", "{first name}", "A"},
		{"json braces kept", `{"k": {name}}`, `{"k": Ada}`},
		{"no placeholders", "plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, prompts.BuildBatchRowPrompt(tt.template, row))
		})
	}
}

func TestBuildBatchRowPrompt_NoReexpansion(t *testing.T) {
	row := map[string]string{"a": "{b}", "b": "x"}

	assert.Equal(t, "{b} x", prompts.BuildBatchRowPrompt("{a} {b}", row))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, prompts.Placeholders("{a} {b c} {a}"))
	assert.Empty(t, prompts.Placeholders("none"))
}

func TestBuildBatchPrompt(t *testing.T) {
	fields := []extract.Field{{Key: "summary"}, {Key: "score"}}

	got := prompts.BuildBatchPrompt("Review {title}", map[string]string{"title": "Dune"}, fields)

	assert.Equal(t, "Review Dune\n\nReturn your response using the following XML format:\n<output><summary></summary><score></score></output>", got)
}

func TestDefaultBatchTemplate(t *testing.T) {
	got := prompts.DefaultBatchTemplate("Summarise", []string{"title", "body"})

	assert.Equal(t, "Summarise\n\nData: title: {title}, body: {body}", got)
}

func TestBuildTemplateSuggestionPrompt(t *testing.T) {
	got := prompts.BuildTemplateSuggestionPrompt(
		[]string{"title", "body"},
		"title,body\nDune,Sand\n",
		"Summarise books",
		[]extract.Field{{Key: "summary", Description: "one line"}, {Key: "genre"}},
	)

	assert.Contains(t, got, "following columns:\ntitle, body\n")
	assert.Contains(t, got, "Here is the first row:\ntitle,body\nDune,Sand\n\n")
	assert.Contains(t, got, "following task:\nSummarise books\n")
	assert.Contains(t, got, "- \"summary\": one line\n- \"genre\": No description provided.\n")
	assert.Contains(t, got, "<promptTemplate>")
}
