package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/germanamz/taskbot/pkg/modeladapter"
)

// Config is the runtime configuration read from YAML. Provider credentials
// normally live in the settings file; Provider here overrides them when set.
type Config struct {
	Provider       ProviderConfig   `yaml:"provider"`
	SettingsFile   string           `yaml:"settings_file"`
	PromptsDir     string           `yaml:"prompts_dir"` // Empty uses the embedded templates.
	BooksDir       string           `yaml:"books_dir"`
	RequestTimeout string           `yaml:"request_timeout"` // Duration string, e.g. "60s".
	RateLimit      RateLimitConfig  `yaml:"rate_limit"`
	Retry          RetryConfig      `yaml:"retry"`
	Generation     GenerationConfig `yaml:"generation"`
	Batch          BatchDefaults    `yaml:"batch"`
}

// RateLimitConfig enables client-side throttling. All zero disables it.
type RateLimitConfig struct {
	RPM        int    `yaml:"rpm"`
	TPM        int    `yaml:"tpm"`
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
}

// Enabled reports whether any throttling field is set.
func (r RateLimitConfig) Enabled() bool {
	return r.RPM > 0 || r.TPM > 0 || r.MaxRetries > 0 || r.BaseDelay != ""
}

// RetryConfig holds the attempt caps of the two retry policies.
type RetryConfig struct {
	TaskAttempts int `yaml:"task_attempts"` // Reprocess cap for tag extraction.
	JSONAttempts int `yaml:"json_attempts"` // Reparse cap for JSON extraction.
}

// Generation holds sampling parameters for one kind of call.
type Generation struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// BatchDefaults is the remembered batch setup: the task, the output fields
// and optionally a template. Command-line values take precedence.
type BatchDefaults struct {
	Task     string       `yaml:"task"`
	Template string       `yaml:"template"`
	Fields   []FieldEntry `yaml:"fields"`
}

// FieldEntry is one output field as written in YAML.
type FieldEntry struct {
	Key         string `yaml:"key"`
	Description string `yaml:"description"`
}

// GenerationConfig holds per-operation sampling parameters.
type GenerationConfig struct {
	Task      Generation `yaml:"task"`
	Batch     Generation `yaml:"batch"`
	Suggest   Generation `yaml:"suggest"`
	Intent    Generation `yaml:"intent"`
	Relevance Generation `yaml:"relevance"`
	Character Generation `yaml:"character"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		SettingsFile:   "taskbot-settings.json",
		BooksDir:       "books",
		RequestTimeout: modeladapter.DefaultTimeout.String(),
		Retry: RetryConfig{
			TaskAttempts: 3,
			JSONAttempts: 3,
		},
		Generation: GenerationConfig{
			Task:      Generation{Temperature: 0.3},
			Batch:     Generation{Temperature: 0.3},
			Suggest:   Generation{Temperature: 0.3},
			Intent:    Generation{Temperature: 0.6, MaxTokens: 2048},
			Relevance: Generation{Temperature: 0.6, MaxTokens: 2048},
			Character: Generation{Temperature: 0.6, MaxTokens: 2048},
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig and returns the result.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing so API keys can stay in the environment (or a .env file).
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig is LoadConfig for in-memory YAML.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := c.Throttle(); err != nil {
		return err
	}
	if c.Retry.TaskAttempts < 1 {
		return fmt.Errorf("engine: config: retry.task_attempts must be at least 1")
	}
	if c.Retry.JSONAttempts < 1 {
		return fmt.Errorf("engine: config: retry.json_attempts must be at least 1")
	}
	if c.SettingsFile == "" {
		return fmt.Errorf("engine: config: settings_file is required")
	}
	if !c.Provider.IsZero() {
		if err := c.Provider.Validate(); err != nil {
			return fmt.Errorf("engine: config: provider: %w", err)
		}
	}
	return nil
}

// Timeout parses RequestTimeout; empty means modeladapter.DefaultTimeout.
func (c Config) Timeout() (time.Duration, error) {
	if c.RequestTimeout == "" {
		return modeladapter.DefaultTimeout, nil
	}

	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("engine: config: invalid request_timeout %q", c.RequestTimeout)
	}

	return d, nil
}

// Throttle converts RateLimit into completer options, or nil when disabled.
func (c Config) Throttle() (*modeladapter.ThrottleOpts, error) {
	rl := c.RateLimit
	if !rl.Enabled() {
		return nil, nil
	}

	opts := &modeladapter.ThrottleOpts{RPM: rl.RPM, TPM: rl.TPM, MaxRetries: rl.MaxRetries}
	if rl.BaseDelay != "" {
		d, err := time.ParseDuration(rl.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("engine: config: invalid rate_limit.base_delay %q: %w", rl.BaseDelay, err)
		}
		opts.BaseDelay = d
	}

	return opts, nil
}

// BuildOptions derives completer options from the config.
func (c Config) BuildOptions() (BuildOptions, error) {
	timeout, err := c.Timeout()
	if err != nil {
		return BuildOptions{}, err
	}

	throttle, err := c.Throttle()
	if err != nil {
		return BuildOptions{}, err
	}

	return BuildOptions{Timeout: timeout, Throttle: throttle}, nil
}
