// Package prompts builds every prompt the application sends. All builders are
// pure functions of their inputs.
//
// Structured tasks use [BuildTagPrompt]; batch rows use [BuildBatchRowPrompt]
// and [BuildBatchPrompt]. Conversation prompts are rendered from a named
// template [Set] loaded through a [Source], by default the templates embedded
// in this package.
package prompts
