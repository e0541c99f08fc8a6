package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/germanamz/taskbot/pkg/engine"
	"github.com/germanamz/taskbot/pkg/settings"
)

type configureFlags struct {
	provider  string
	apiKey    string
	apiURL    string
	model     string
	customURL string
	localPort int
	show      bool
}

func newConfigureCommand(ctx *commandContext) *cobra.Command {
	var flags configureFlags

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Choose the LLM provider and save its credentials",
		Long: "Choose the LLM provider and save its credentials to the settings file.\n" +
			"Without --provider an interactive form is shown.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}

			current, err := store.Load()
			if err != nil && !errors.Is(err, settings.ErrNotConfigured) {
				return err
			}

			if flags.show {
				if current.IsZero() {
					fmt.Fprintf(cmd.OutOrStdout(), "No provider configured in %s\n", storeLocation(store))
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderSettings(current))
				return nil
			}

			next := current
			if flags.provider != "" {
				next = applyConfigureFlags(current, flags)
			} else {
				if !ctx.interactive() {
					return errors.New("configure: --provider is required when not running in a terminal")
				}
				if next, err = runConfigureForm(current); err != nil {
					return err
				}
			}

			if next.Model == "" {
				if models := engine.ModelOptions[next.Provider]; len(models) > 0 {
					next.Model = models[0]
				}
			}
			if err := next.Validate(); err != nil {
				return err
			}
			if err := store.Save(next); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Saved settings to "+storeLocation(store)))
			fmt.Fprintln(cmd.OutOrStdout(), renderSettings(next))
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.provider, "provider", "", "provider kind: google, anthropic, openai, local or custom")
	cmd.Flags().StringVar(&flags.apiKey, "api-key", "", "API key (not needed for local)")
	cmd.Flags().StringVar(&flags.apiURL, "api-url", "", "override the provider endpoint")
	cmd.Flags().StringVar(&flags.model, "model", "", "model name (default: first suggested model)")
	cmd.Flags().StringVar(&flags.customURL, "custom-url", "", "endpoint of an OpenAI-compatible custom provider")
	cmd.Flags().IntVar(&flags.localPort, "local-port", 0, "port of a local OpenAI-compatible server")
	cmd.Flags().BoolVar(&flags.show, "show", false, "print the saved settings and exit")

	return cmd
}

// applyConfigureFlags overlays flag values on the saved settings. Switching
// provider starts from a clean config so stale URLs and models are dropped.
func applyConfigureFlags(cur engine.ProviderConfig, f configureFlags) engine.ProviderConfig {
	next := cur
	kind := engine.Kind(strings.ToLower(strings.TrimSpace(f.provider)))
	if kind != cur.Provider {
		next = engine.ProviderConfig{Provider: kind, APIKey: cur.APIKey}
	}

	if f.apiKey != "" {
		next.APIKey = f.apiKey
	}
	if f.apiURL != "" {
		next.APIURL = f.apiURL
	}
	if f.model != "" {
		next.Model = f.model
	}
	if f.customURL != "" {
		next.CustomURL = f.customURL
	}
	if f.localPort != 0 {
		next.LocalPort = f.localPort
	}
	return next
}

func runConfigureForm(cur engine.ProviderConfig) (engine.ProviderConfig, error) {
	kind := string(cur.Provider)
	if kind == "" {
		kind = string(engine.Google)
	}

	kinds := make([]huh.Option[string], len(engine.Kinds))
	for i, k := range engine.Kinds {
		kinds[i] = huh.NewOption(string(k), string(k))
	}

	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Provider").
			Options(kinds...).
			Value(&kind),
	)).Run(); err != nil {
		return cur, err
	}

	next := cur
	if engine.Kind(kind) != cur.Provider {
		next = engine.ProviderConfig{Provider: engine.Kind(kind)}
	}

	port := ""
	if next.LocalPort != 0 {
		port = strconv.Itoa(next.LocalPort)
	}

	var fields []huh.Field

	if next.Provider != engine.Local {
		fields = append(fields, huh.NewInput().
			Title("API key").
			EchoMode(huh.EchoModePassword).
			Value(&next.APIKey).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("API key is required")
				}
				return nil
			}))
	}

	if models := engine.ModelOptions[next.Provider]; len(models) > 0 {
		if next.Model == "" {
			next.Model = models[0]
		}
		fields = append(fields, huh.NewSelect[string]().
			Title("Model").
			Options(huh.NewOptions(withCurrent(models, next.Model)...)...).
			Value(&next.Model))
	} else {
		fields = append(fields, huh.NewInput().
			Title("Model").
			Placeholder("model name sent with each request").
			Value(&next.Model))
	}

	switch next.Provider {
	case engine.Custom:
		fields = append(fields, huh.NewInput().
			Title("Endpoint URL").
			Placeholder("https://example.com/v1/chat/completions").
			Value(&next.CustomURL).
			Validate(func(s string) error {
				if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
					return errors.New("must be an http(s) URL")
				}
				return nil
			}))
	case engine.Local:
		fields = append(fields, huh.NewInput().
			Title("Local port").
			Placeholder(strconv.Itoa(engine.DefaultLocalPort)).
			Value(&port).
			Validate(validatePort))
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return cur, err
	}

	if port != "" {
		next.LocalPort, _ = strconv.Atoi(port)
	}
	next.APIKey = strings.TrimSpace(next.APIKey)

	return next, nil
}

func validatePort(s string) error {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return errors.New("must be a number between 1 and 65535")
	}
	return nil
}

// withCurrent appends cur to models when it is a custom choice.
func withCurrent(models []string, cur string) []string {
	for _, m := range models {
		if m == cur {
			return models
		}
	}
	return append(append([]string{}, models...), cur)
}

func renderSettings(pc engine.ProviderConfig) string {
	r := pc.Redacted()
	rows := [][]string{
		{"provider", string(r.Provider)},
		{"model", r.Model},
		{"endpoint", r.Endpoint()},
		{"api key", r.APIKey},
	}
	return renderTable([]string{"Setting", "Value"}, rows, nil)
}
