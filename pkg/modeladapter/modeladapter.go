package modeladapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/germanamz/taskbot/pkg/chats/message"
	"github.com/germanamz/taskbot/pkg/modeladapter/usage"
)

// DefaultTimeout bounds a single provider request when no client or timeout
// is configured.
const DefaultTimeout = 60 * time.Second

// Request is one completion call: the conversation, an optional system
// instruction and the generation parameters.
type Request struct {
	System      string
	Messages    []message.Message
	Temperature float64
	MaxTokens   int
}

// Completer sends a request to an LLM and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// UsageReporter provides token usage information from a completer.
// Completers that embed ModelAdapter implement this interface automatically.
type UsageReporter interface {
	UsageTracker() *usage.Tracker
}

// Auth holds authentication settings for an LLM provider API.
type Auth struct {
	Key    string // API key value.
	Header string // Header name (default: "Authorization").
	Scheme string // Scheme prefix (default: "Bearer" when Header is "Authorization").
	Query  string // When set, the key is sent as this URL query parameter instead of a header.
}

// ModelAdapter holds shared state for LLM provider implementations. Embed it in
// concrete provider structs to get HTTP helpers, auth, custom headers, and
// usage tracking.
type ModelAdapter struct {
	Provider string            // Provider label used in errors (e.g. "anthropic").
	Name     string            // Model identifier (e.g. "gpt-4o").
	Auth     Auth              // Authentication settings.
	URL      string            // Full endpoint URL.
	Client   *http.Client      // HTTP client; falls back to a client with Timeout.
	Timeout  time.Duration     // Timeout of the fallback client (default DefaultTimeout).
	Headers  map[string]string // Extra headers applied to every request.
	Usage    usage.Tracker     // Token usage tracker.

	clientOnce    sync.Once
	defaultClient *http.Client
}

// New creates a ModelAdapter with the given settings.
// A nil client falls back to a client with DefaultTimeout at call time.
func New(provider, endpoint string, auth Auth, client *http.Client) ModelAdapter {
	return ModelAdapter{
		Provider: provider,
		Auth:     auth,
		URL:      endpoint,
		Client:   client,
	}
}

// UsageTracker returns the adapter's token usage tracker.
func (a *ModelAdapter) UsageTracker() *usage.Tracker { return &a.Usage }

func (a *ModelAdapter) httpClient() *http.Client {
	if a.Client != nil {
		return a.Client
	}

	a.clientOnce.Do(func() {
		timeout := a.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		a.defaultClient = &http.Client{Timeout: timeout}
	})

	return a.defaultClient
}

// NewRequest builds an *http.Request against the adapter URL with auth and
// custom headers already applied.
func (a *ModelAdapter) NewRequest(ctx context.Context, method string, body io.Reader) (*http.Request, error) {
	target := a.URL

	if a.Auth.Query != "" && a.Auth.Key != "" {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		q := u.Query()
		q.Set(a.Auth.Query, a.Auth.Key)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	if a.Auth.Key != "" && a.Auth.Query == "" {
		header := a.Auth.Header
		if header == "" {
			header = "Authorization"
		}

		value := a.Auth.Key
		if header == "Authorization" {
			scheme := a.Auth.Scheme
			if scheme == "" {
				scheme = "Bearer"
			}
			value = scheme + " " + value
		} else if a.Auth.Scheme != "" {
			value = a.Auth.Scheme + " " + value
		}

		req.Header.Set(header, value)
	}

	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// Do sends the request using the configured HTTP client.
func (a *ModelAdapter) Do(req *http.Request) (*http.Response, error) {
	return a.httpClient().Do(req) //nolint:gosec // URL comes from provider settings, not request input.
}

// PostJSON marshals payload as JSON, POSTs it to the adapter URL, checks for
// a 2xx status, and unmarshals the response body into dest. Non-2xx responses
// become *APIError; 429 responses also carry RetryAfter.
func (a *ModelAdapter) PostJSON(ctx context.Context, payload any, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", a.Provider, err)
	}

	req, err := a.NewRequest(ctx, http.MethodPost, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", a.Provider, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Do(req)
	if err != nil {
		return fmt.Errorf("%s: do request: %w", a.Provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{
			Provider: a.Provider,
			Status:   resp.StatusCode,
			Body:     string(respBody),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return apiErr
	}

	if dest == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &APIError{Provider: a.Provider, Status: 0, Reason: "decode response: " + err.Error()}
	}

	return nil
}
