package gemini_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/germanamz/taskbot/pkg/chats/message"
	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/providers/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *gemini.Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := gemini.New(srv.URL+"/v1beta/models/{model}:generateContent", "test-key", "gemini-test")
	a.Client = srv.Client()

	return a
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func readBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}

	return req
}

func textReply(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": text}}}},
		},
		"usageMetadata": map[string]any{"promptTokenCount": 12, "candidatesTokenCount": 3},
	}
}

func TestNew_ExpandsModel(t *testing.T) {
	a := gemini.New(gemini.DefaultURL, "k", "gemini-1.5-flash")

	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent", a.URL)
}

func TestComplete_WireShape(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("x-goog-api-key"))

		req := readBody(t, r)

		sys := req["system_instruction"].(map[string]any)
		parts := sys["parts"].([]any)
		assert.Equal(t, "Be terse.", parts[0].(map[string]any)["text"])

		cfg := req["generationConfig"].(map[string]any)
		assert.InDelta(t, 0.6, cfg["temperature"], 1e-9)
		assert.InDelta(t, 2048, cfg["maxOutputTokens"], 1e-9)

		contents := req["contents"].([]any)
		require.Len(t, contents, 3)
		assert.Equal(t, "user", contents[0].(map[string]any)["role"])
		assert.Equal(t, "model", contents[1].(map[string]any)["role"])
		assert.Equal(t, "user", contents[2].(map[string]any)["role"])

		writeJSON(t, w, textReply("Hi!"))
	})

	got, err := adapter.Complete(context.Background(), modeladapter.Request{
		System: "Be terse.",
		Messages: []message.Message{
			message.User("hello"),
			message.Assistant("hey"),
			message.User("again"),
		},
		Temperature: 0.6,
		MaxTokens:   2048,
	})

	require.NoError(t, err)
	assert.Equal(t, "Hi!", got)
	assert.Equal(t, 15, adapter.Usage.Total().Total())
}

func TestComplete_NoSystemInstruction(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)
		_, ok := req["system_instruction"]
		assert.False(t, ok)

		writeJSON(t, w, textReply("ok"))
	})

	_, err := adapter.Complete(context.Background(), modeladapter.Request{Messages: []message.Message{message.User("x")}})
	require.NoError(t, err)
}

func TestComplete_MergesConsecutiveRoles(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)
		contents := req["contents"].([]any)
		require.Len(t, contents, 1)
		assert.Len(t, contents[0].(map[string]any)["parts"], 2)

		writeJSON(t, w, textReply("ok"))
	})

	_, err := adapter.Complete(context.Background(), modeladapter.Request{
		Messages: []message.Message{message.User("a"), message.User("b")},
	})
	require.NoError(t, err)
}

func TestComplete_NoCandidates(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"candidates": []any{}})
	})

	_, err := adapter.Complete(context.Background(), modeladapter.Request{Messages: []message.Message{message.User("x")}})

	var apiErr *modeladapter.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "empty response", apiErr.Reason)
}

func TestComplete_HTTPError(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
	})

	_, err := adapter.Complete(context.Background(), modeladapter.Request{Messages: []message.Message{message.User("x")}})

	var apiErr *modeladapter.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "google", apiErr.Provider)
}
