// Package gemini provides a Completer implementation for the Google
// generateContent API.
package gemini

import (
	"context"
	"strings"

	"github.com/germanamz/taskbot/pkg/chats/role"
	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/modeladapter/usage"
)

// DefaultURL is the generateContent endpoint template; {model} is replaced
// with the configured model name.
const DefaultURL = "https://generativelanguage.googleapis.com/v1beta/models/{model}:generateContent"

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for the Google generateContent API.
// The API key travels as the "key" query parameter.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter. A "{model}" placeholder in endpoint is expanded.
func New(endpoint, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.Provider = "google"
	a.URL = strings.ReplaceAll(endpoint, "{model}", model)
	a.Auth = modeladapter.Auth{Key: apiKey, Query: "key"}
	a.Name = model

	return a
}

// Complete sends the request and returns candidates[0].content.parts[0].text.
func (a *Adapter) Complete(ctx context.Context, req modeladapter.Request) (string, error) {
	var resp apiResponse
	if err := a.PostJSON(ctx, a.buildRequest(req), &resp); err != nil {
		return "", err
	}

	if resp.UsageMetadata != nil {
		a.Usage.Add(usage.TokenCount{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		})
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", modeladapter.EmptyResponse(a.Provider)
	}

	return resp.Candidates[0].Content.Parts[0].Text, nil
}

type apiPart struct {
	Text string `json:"text"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type apiRequest struct {
	Contents          []apiContent     `json:"contents"`
	SystemInstruction *apiContent      `json:"system_instruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type apiResponse struct {
	Candidates []struct {
		Content apiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (a *Adapter) buildRequest(req modeladapter.Request) apiRequest {
	out := apiRequest{
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}

	var system []string
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
			r = "model"
		}

		// A failed reply leaves two user turns in a row; roles must alternate.
		if n := len(out.Contents); n > 0 && out.Contents[n-1].Role == r {
			out.Contents[n-1].Parts = append(out.Contents[n-1].Parts, apiPart{Text: m.Content})
			continue
		}

		out.Contents = append(out.Contents, apiContent{Role: r, Parts: []apiPart{{Text: m.Content}}})
	}

	if len(system) > 0 {
		out.SystemInstruction = &apiContent{Parts: []apiPart{{Text: strings.Join(system, "\n\n")}}}
	}

	return out
}
