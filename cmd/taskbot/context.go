package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/germanamz/taskbot/pkg/book"
	"github.com/germanamz/taskbot/pkg/engine"
	"github.com/germanamz/taskbot/pkg/metrics"
	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/prompts"
	"github.com/germanamz/taskbot/pkg/settings"
)

// commandContext carries the persistent flags and the lazily loaded state
// shared by every subcommand.
type commandContext struct {
	configFlag   string
	settingsFlag string
	envFlag      string
	verbose      bool

	configOnce sync.Once
	config     engine.Config
	configErr  error

	logger   *slog.Logger
	recorder *metrics.Recorder

	// Test hooks.
	httpClient  *http.Client
	store       settings.Store
	interactive func() bool
}

func newCommandContext() *commandContext {
	return &commandContext{
		recorder:    metrics.New(),
		interactive: stdioIsTerminal,
	}
}

func stdioIsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// setup runs before every command: .env first so ${VAR} references in the
// YAML resolve, then the logger.
func (c *commandContext) setup(cmd *cobra.Command) error {
	if err := loadDotEnv(c.envFlag); err != nil {
		return err
	}

	c.logger = newLogger(cmd.ErrOrStderr(), c.verbose)
	slog.SetDefault(c.logger)

	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (c *commandContext) ensureConfig() (engine.Config, error) {
	c.configOnce.Do(func() {
		cfg := engine.DefaultConfig()
		if path := resolveConfigPath(c.configFlag); path != "" {
			loaded, err := engine.LoadConfig(path)
			if err != nil {
				c.configErr = err
				return
			}
			cfg = loaded
		}

		if c.settingsFlag != "" {
			cfg.SettingsFile = c.settingsFlag
		}

		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) settingsStore() (settings.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.store = settings.NewFileStore(cfg.SettingsFile)
	return c.store, nil
}

// storeLocation names where settings are kept, for messages.
func storeLocation(s settings.Store) string {
	if p, ok := s.(interface{ Path() string }); ok {
		return p.Path()
	}
	return "memory"
}

// providerConfig returns the provider from the YAML config when it names one,
// otherwise the saved settings.
func (c *commandContext) providerConfig() (engine.ProviderConfig, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return engine.ProviderConfig{}, err
	}
	if !cfg.Provider.IsZero() {
		return cfg.Provider, nil
	}

	store, err := c.settingsStore()
	if err != nil {
		return engine.ProviderConfig{}, err
	}

	pc, err := store.Load()
	if errors.Is(err, settings.ErrNotConfigured) {
		return engine.ProviderConfig{}, fmt.Errorf("no provider configured in %s; run `taskbot configure` first", storeLocation(store))
	}
	return pc, err
}

// completer builds the provider completer wrapped with recovery, logging and
// metrics.
func (c *commandContext) completer() (modeladapter.Completer, engine.ProviderConfig, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, engine.ProviderConfig{}, err
	}

	pc, err := c.providerConfig()
	if err != nil {
		return nil, engine.ProviderConfig{}, err
	}

	opts, err := cfg.BuildOptions()
	if err != nil {
		return nil, pc, err
	}
	opts.Client = c.httpClient

	comp, err := engine.BuildCompleter(pc, opts)
	if err != nil {
		return nil, pc, err
	}

	c.logger.Debug("provider ready", "provider", pc.Provider, "model", pc.Model, "endpoint", pc.Endpoint())

	name := string(pc.Provider)
	return modeladapter.Chain(comp,
		modeladapter.Recovery(),
		modeladapter.Logger(c.logger, name),
		c.recorder.Middleware(name),
	), pc, nil
}

func (c *commandContext) promptSet() (prompts.Set, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	src := prompts.Embedded()
	if cfg.PromptsDir != "" {
		src = prompts.Overlay(prompts.Dir(cfg.PromptsDir), prompts.Embedded())
	}
	return prompts.LoadSet(src)
}

func (c *commandContext) library() (*book.Library, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return book.LoadDir(cfg.BooksDir, c.logger)
}
