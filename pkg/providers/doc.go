// Package providers groups the concrete LLM provider adapters.
//
// Each sub-package owns one wire format and implements
// [github.com/germanamz/taskbot/pkg/modeladapter.Completer]:
//   - [github.com/germanamz/taskbot/pkg/providers/gemini]: Google generateContent
//   - [github.com/germanamz/taskbot/pkg/providers/anthropic]: Anthropic Messages
//   - [github.com/germanamz/taskbot/pkg/providers/openai]: OpenAI chat completions, also used for local and custom endpoints
//
// Provider selection lives in [github.com/germanamz/taskbot/pkg/engine].
package providers
