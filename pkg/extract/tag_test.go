package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagBlock(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Result
	}{
		{
			name: "trims values",
			text: "<output><a>  x  </a></output>",
			want: Result{"a": "x"},
		},
		{
			name: "ignores surrounding text",
			text: "Sure!\n<output>\n  <a>1</a>\n  <b>2</b>\n</output>\nHope that helps.",
			want: Result{"a": "1", "b": "2"},
		},
		{
			name: "ignores stray text inside block",
			text: "<output>note: <a>1</a> and also <b>two words</b> done</output>",
			want: Result{"a": "1", "b": "two words"},
		},
		{
			name: "case-insensitive output tag",
			text: "<OUTPUT><a>1</a></Output>",
			want: Result{"a": "1"},
		},
		{
			name: "strips thinking",
			text: "<think><output><a>wrong</a></output></think><output><a>right</a></output>",
			want: Result{"a": "right"},
		},
		{
			name: "first output block wins",
			text: "<output><a>1</a></output><output><a>2</a></output>",
			want: Result{"a": "1"},
		},
		{
			name: "unclosed tag skipped",
			text: "<output><a>1<b>2</b></output>",
			want: Result{"b": "2"},
		},
		{
			name: "duplicate key keeps last",
			text: "<output><a>1</a><a>2</a></output>",
			want: Result{"a": "2"},
		},
		{
			name: "multiline value",
			text: "<output><summary>\nline one\nline two\n</summary></output>",
			want: Result{"summary": "line one\nline two"},
		},
		{
			name: "empty block",
			text: "<output></output>",
			want: Result{},
		},
		{
			name: "extra keys are kept",
			text: "<output><a>1</a><z>9</z></output>",
			want: Result{"a": "1", "z": "9"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TagBlock(tt.text)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("TagBlock() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTagBlock_NoOutput(t *testing.T) {
	_, err := TagBlock("<think>hm</think><a>1</a>")

	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "no output block", ee.Reason)
	assert.Equal(t, "<think>hm</think><a>1</a>", ee.Raw)
	assert.Equal(t, "<a>1</a>", ee.Processed)
}

func TestStripThinking(t *testing.T) {
	assert.Equal(t, "a  b", StripThinking("a <think>x\ny</think> b"))
	assert.Equal(t, "ab", StripThinking("a<THINK>1</think><think>2</think>b"))
}

func TestElement(t *testing.T) {
	reply := "Here you go:\n<suggestion>\n<promptTemplate>\nSummarise {title}\n</promptTemplate>\n</suggestion>"

	got, ok := Element(reply, "promptTemplate")
	require.True(t, ok)
	assert.Equal(t, "Summarise {title}", got)

	_, ok = Element("<promptTemplate>unterminated", "promptTemplate")
	assert.False(t, ok)

	_, ok = Element("nothing here", "promptTemplate")
	assert.False(t, ok)
}
