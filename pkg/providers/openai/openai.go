// Package openai provides a Completer implementation for the OpenAI Chat
// Completions API and every server that speaks the same wire format (local
// model servers, custom gateways).
package openai

import (
	"context"

	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/modeladapter/usage"
)

// DefaultURL is the hosted OpenAI chat completions endpoint.
const DefaultURL = "https://api.openai.com/v1/chat/completions"

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for OpenAI-compatible endpoints.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter. The provider label only shows up in errors. An
// empty apiKey sends no Authorization header, which keyless local servers
// expect.
func New(provider, endpoint, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.Provider = provider
	a.URL = endpoint
	a.Auth = modeladapter.Auth{Key: apiKey}
	a.Name = model

	return a
}

// Complete sends the request and returns choices[0].message.content.
func (a *Adapter) Complete(ctx context.Context, req modeladapter.Request) (string, error) {
	var resp apiResponse
	if err := a.PostJSON(ctx, a.buildRequest(req), &resp); err != nil {
		return "", err
	}

	if resp.Usage != nil {
		a.Usage.Add(usage.TokenCount{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		})
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return "", modeladapter.EmptyResponse(a.Provider)
	}

	return *resp.Choices[0].Message.Content, nil
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model       string       `json:"model,omitempty"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *Adapter) buildRequest(req modeladapter.Request) apiRequest {
	out := apiRequest{
		Model:       a.Name,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    make([]apiMessage, 0, len(req.Messages)+1),
	}

	if req.System != "" {
		out.Messages = append(out.Messages, apiMessage{Role: "system", Content: req.System})
	}

	for _, m := range req.Messages {
		out.Messages = append(out.Messages, apiMessage{Role: m.Role.String(), Content: m.Content})
	}

	return out
}
