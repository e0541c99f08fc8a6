// Package modeladapter defines the completion contract shared by every LLM
// provider adapter.
//
// It contains:
//   - [Completer] interface and the [Request] it consumes
//   - embeddable [ModelAdapter] base struct with HTTP helpers, auth (header or
//     query parameter), custom headers and a request timeout
//   - the error taxonomy shared by adapters: [ConfigError] and [APIError]
//   - [ThrottledCompleter], optional requests/tokens-per-minute throttling
//     with 429 backoff
//   - completer [Middleware] and [Chain]: panic recovery and call logging
//   - [github.com/germanamz/taskbot/pkg/modeladapter/usage]: running token totals
//
// This package contains no provider-specific code. Concrete adapters live in
// separate packages that import modeladapter.
package modeladapter
