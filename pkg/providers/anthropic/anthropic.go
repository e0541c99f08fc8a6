// Package anthropic provides a Completer implementation for the Anthropic Messages API.
package anthropic

import (
	"context"
	"strings"

	"github.com/germanamz/taskbot/pkg/chats/role"
	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/modeladapter/usage"
)

// DefaultURL is the Messages endpoint used when no URL is configured.
const DefaultURL = "https://api.anthropic.com/v1/messages"

// APIVersion is sent as the anthropic-version header.
const APIVersion = "2023-06-01"

const defaultMaxTokens = 4096

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for the Anthropic Messages API.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter posting to endpoint (the full Messages URL).
func New(endpoint, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.Provider = "anthropic"
	a.URL = endpoint
	a.Auth = modeladapter.Auth{Key: apiKey, Header: "x-api-key"}
	a.Name = model
	a.Headers = map[string]string{"anthropic-version": APIVersion}

	return a
}

// Complete sends the request to the Messages API and returns the text of the
// first text block.
func (a *Adapter) Complete(ctx context.Context, req modeladapter.Request) (string, error) {
	var resp apiResponse
	if err := a.PostJSON(ctx, a.buildRequest(req), &resp); err != nil {
		return "", err
	}

	a.Usage.Add(usage.TokenCount{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	})

	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", modeladapter.EmptyResponse(a.Provider)
}

type apiRequest struct {
	Model       string       `json:"model"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// buildRequest lifts system messages into the top-level system field and
// merges consecutive same-role turns, which the API rejects.
func (a *Adapter) buildRequest(req modeladapter.Request) apiRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	out := apiRequest{
		Model:       a.Name,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	system := []string{}
	if req.System != "" {
		system = append(system, req.System)
	}

	for _, m := range req.Messages {
		if m.Role == role.System {
			system = append(system, m.Content)
			continue
		}

		r := "user"
		if m.Role == role.Assistant {
			r = "assistant"
		}

		// A failed reply leaves two user turns in a row; roles must alternate.
		if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == r {
			out.Messages[n-1].Content += "\n\n" + m.Content
			continue
		}

		out.Messages = append(out.Messages, apiMessage{Role: r, Content: m.Content})
	}

	out.System = strings.Join(system, "\n\n")

	return out
}
