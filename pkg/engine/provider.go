package engine

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/providers/anthropic"
	"github.com/germanamz/taskbot/pkg/providers/gemini"
	"github.com/germanamz/taskbot/pkg/providers/openai"
)

// Kind names a provider wire format.
type Kind string

const (
	Google    Kind = "google"
	Anthropic Kind = "anthropic"
	OpenAI    Kind = "openai"
	Local     Kind = "local"
	Custom    Kind = "custom"
)

// Kinds lists every supported provider in display order.
var Kinds = []Kind{Google, Anthropic, OpenAI, Local, Custom}

// DefaultLocalPort is used when a local provider has no port configured.
const DefaultLocalPort = 8080

// ModelOptions lists suggested model names per provider; the first entry is
// the default. Local and custom endpoints take free-form model names.
var ModelOptions = map[Kind][]string{
	Google:    {"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-2.0-pro", "gemini-2.0-flash"},
	Anthropic: {"claude-opus-4-1-20250805", "claude-sonnet-4-20250514", "claude-3.5-sonnet", "claude-3.5-haiku", "claude-3-opus"},
	OpenAI:    {"gpt-5", "gpt-5-mini", "o3", "o4-mini", "gpt-4.1"},
}

// ProviderConfig selects a provider and carries its credentials. It is
// treated as an immutable value per request. The JSON shape matches the
// persisted settings file.
type ProviderConfig struct {
	Provider  Kind   `json:"provider"            yaml:"provider"`
	APIKey    string `json:"apiKey"              yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	APIURL    string `json:"apiUrl"              yaml:"api_url"`
	Model     string `json:"model"               yaml:"model"`
	CustomURL string `json:"customUrl,omitempty" yaml:"custom_url"`
	LocalPort int    `json:"localPort,omitempty" yaml:"local_port"`
}

// UnmarshalJSON accepts localPort as a number or as a numeric string, which
// is how the browser front-end saved it. An empty string means unset.
func (c *ProviderConfig) UnmarshalJSON(data []byte) error {
	type plain ProviderConfig
	aux := struct {
		*plain
		LocalPort json.RawMessage `json:"localPort"`
	}{plain: (*plain)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	port, err := parsePort(aux.LocalPort)
	if err != nil {
		return err
	}
	c.LocalPort = port
	return nil
}

func parsePort(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("engine: localPort: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("engine: localPort %q is not a number", s)
	}
	return n, nil
}

// IsZero reports whether no provider has been selected.
func (c ProviderConfig) IsZero() bool { return c.Provider == "" }

// Validate reports configurations that can never succeed as *ConfigError.
func (c ProviderConfig) Validate() error {
	if _, ok := getFactory(c.Provider); !ok {
		return &modeladapter.ConfigError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	if c.Provider != Local && c.APIKey == "" {
		return &modeladapter.ConfigError{Field: "apiKey", Reason: fmt.Sprintf("required for provider %q", c.Provider)}
	}
	if c.Provider == Custom && c.APIURL == "" && c.CustomURL == "" {
		return &modeladapter.ConfigError{Field: "customUrl", Reason: "required for provider \"custom\""}
	}
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return &modeladapter.ConfigError{Field: "localPort", Reason: "out of range"}
	}
	return nil
}

// Endpoint returns the URL requests are sent to: APIURL when set, otherwise
// the provider default. A google APIURL is only honoured when it is a
// generateContent URL; settings saved by the browser front-end carry the
// OpenAI-compatible google URL, which does not accept this wire format.
func (c ProviderConfig) Endpoint() string {
	if c.APIURL != "" && (c.Provider != Google || strings.Contains(c.APIURL, ":generateContent")) {
		return c.APIURL
	}

	switch c.Provider {
	case Google:
		return gemini.DefaultURL
	case Anthropic:
		return anthropic.DefaultURL
	case OpenAI:
		return openai.DefaultURL
	case Local:
		port := c.LocalPort
		if port == 0 {
			port = DefaultLocalPort
		}
		return "http://localhost:" + strconv.Itoa(port) + "/v1/chat/completions"
	case Custom:
		return c.CustomURL
	}
	return ""
}

// Redacted returns a copy safe for logging.
func (c ProviderConfig) Redacted() ProviderConfig {
	if len(c.APIKey) > 4 {
		c.APIKey = strings.Repeat("*", 4) + c.APIKey[len(c.APIKey)-4:]
	} else if c.APIKey != "" {
		c.APIKey = "****"
	}
	return c
}

// BuildOptions tunes the completer produced by BuildCompleter.
type BuildOptions struct {
	Client   *http.Client               // Overrides the adapter's default client.
	Timeout  time.Duration              // Timeout of the default client (0 = modeladapter.DefaultTimeout).
	Throttle *modeladapter.ThrottleOpts // Wraps the adapter in a ThrottledCompleter when set.
}

// ProviderFactory creates a Completer from a ProviderConfig.
type ProviderFactory func(cfg ProviderConfig, opts BuildOptions) modeladapter.Completer

var (
	factoryMu   sync.RWMutex
	factories   = map[Kind]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories[Google] = newGoogle
		factories[Anthropic] = newAnthropic
		factories[OpenAI] = newOpenAICompatible
		factories[Local] = newOpenAICompatible
		factories[Custom] = newOpenAICompatible
	})
}

// RegisterProvider registers a provider factory under the given kind,
// replacing any existing one.
func RegisterProvider(kind Kind, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

func getFactory(kind Kind) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func applyHTTP(a *modeladapter.ModelAdapter, opts BuildOptions) {
	a.Client = opts.Client
	a.Timeout = opts.Timeout
}

func newGoogle(cfg ProviderConfig, opts BuildOptions) modeladapter.Completer {
	a := gemini.New(cfg.Endpoint(), cfg.APIKey, cfg.Model)
	applyHTTP(&a.ModelAdapter, opts)
	return a
}

func newAnthropic(cfg ProviderConfig, opts BuildOptions) modeladapter.Completer {
	a := anthropic.New(cfg.Endpoint(), cfg.APIKey, cfg.Model)
	applyHTTP(&a.ModelAdapter, opts)
	return a
}

func newOpenAICompatible(cfg ProviderConfig, opts BuildOptions) modeladapter.Completer {
	a := openai.New(string(cfg.Provider), cfg.Endpoint(), cfg.APIKey, cfg.Model)
	applyHTTP(&a.ModelAdapter, opts)
	return a
}

// BuildCompleter validates cfg and creates a Completer using the registered
// factory for its kind. Invalid configurations return *modeladapter.ConfigError.
func BuildCompleter(cfg ProviderConfig, opts BuildOptions) (modeladapter.Completer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factory, _ := getFactory(cfg.Provider)
	c := factory(cfg, opts)

	if opts.Throttle != nil {
		c = modeladapter.NewThrottledCompleter(c, *opts.Throttle)
	}

	return c, nil
}
