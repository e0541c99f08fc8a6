// Package engine is the composition root for provider access. It owns the
// provider configuration value, the dispatch table that turns a configuration
// into a [github.com/germanamz/taskbot/pkg/modeladapter.Completer], the
// one-shot [SendChat] helper, and the YAML runtime configuration consumed by
// the CLI.
package engine
