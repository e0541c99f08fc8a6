// Package usage keeps running token totals for a completer.
package usage

import "sync"

// TokenCount holds input and output token counts.
type TokenCount struct {
	InputTokens  int
	OutputTokens int
}

// Total returns the sum of input and output tokens.
func (tc TokenCount) Total() int {
	return tc.InputTokens + tc.OutputTokens
}

// Sub returns the tokens spent between an earlier snapshot and tc, never
// below zero.
func (tc TokenCount) Sub(earlier TokenCount) TokenCount {
	return TokenCount{
		InputTokens:  max(tc.InputTokens-earlier.InputTokens, 0),
		OutputTokens: max(tc.OutputTokens-earlier.OutputTokens, 0),
	}
}

// Tracker sums the token counts reported by each call. It is safe for
// concurrent use and the zero value is ready to use.
type Tracker struct {
	mu    sync.Mutex
	total TokenCount
}

// Add records the usage of one call.
func (t *Tracker) Add(tc TokenCount) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.InputTokens += tc.InputTokens
	t.total.OutputTokens += tc.OutputTokens
}

// Total returns the running totals.
func (t *Tracker) Total() TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.total
}
