package batch_test

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/taskbot/pkg/batch"
	"github.com/germanamz/taskbot/pkg/extract"
)

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestReadCSV(t *testing.T) {
	f, err := os.Open("testdata/reviews.csv")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	tbl, err := batch.ReadCSV(f, quiet())
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "review", "stars"}, tbl.Headers)
	require.Equal(t, 3, tbl.Len())

	want := []batch.Row{
		{"id": "1", "review": "Loved it, would buy again", "stars": "5"},
		{"id": "2", "review": "Broke after a week", "stars": "1"},
		{"id": "3", "review": `It's "fine"`, "stars": "3"},
	}
	if diff := cmp.Diff(want, tbl.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSV_SkipsRaggedRows(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	tbl, err := batch.ReadCSV(strings.NewReader("a,b\n1,2\n3\n4,5,6\n7,8\n"), logger)
	require.NoError(t, err)

	assert.Equal(t, []batch.Row{{"a": "1", "b": "2"}, {"a": "7", "b": "8"}}, tbl.Rows)
	assert.Contains(t, logs.String(), "row=2")
	assert.Contains(t, logs.String(), "row=3")
}

func TestReadCSV_Header(t *testing.T) {
	tbl, err := batch.ReadCSV(strings.NewReader("\ufeffname , age\nx,1\n"), quiet())
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, tbl.Headers)

	_, err = batch.ReadCSV(strings.NewReader(""), quiet())
	require.Error(t, err)

	_, err = batch.ReadCSV(strings.NewReader("a,a\n1,2\n"), quiet())
	require.ErrorContains(t, err, "duplicate column")

	_, err = batch.ReadCSV(strings.NewReader("a,\n1,2\n"), quiet())
	require.ErrorContains(t, err, "no name")
}

func TestWriteCSV(t *testing.T) {
	tbl := &batch.Table{
		Headers: []string{"review"},
		Rows: []batch.Row{
			{"review": "good, really", "sentiment": "positive"},
			{"review": "meh", "sentiment": batch.ErrorMarker},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf, []extract.Field{{Key: "sentiment"}}))

	assert.Equal(t, "review,sentiment\n\"good, really\",positive\nmeh,ERROR\n", buf.String())
}

func TestHead(t *testing.T) {
	tbl := &batch.Table{Headers: []string{"a"}, Rows: []batch.Row{{"a": "1"}, {"a": "2"}, {"a": "3"}}}

	assert.Equal(t, "a\n1\n2\n", tbl.Head(2).String())
	assert.Equal(t, 3, tbl.Head(10).Len())
	assert.Equal(t, 0, tbl.Head(-1).Len())
}
