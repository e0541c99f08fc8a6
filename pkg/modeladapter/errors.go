package modeladapter

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ConfigError reports a provider configuration that can never succeed, such
// as a missing API key or an unknown provider kind. Callers must not retry it.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// APIError is returned when a provider answers with a non-2xx status or with
// a 2xx body that lacks the expected text path.
type APIError struct {
	Provider   string
	Status     int           // HTTP status; 0 when the body was unusable.
	Body       string        // Raw response body, when available.
	Reason     string        // Short description, e.g. "empty response".
	RetryAfter time.Duration // Parsed Retry-After header on 429 responses.
}

func (e *APIError) Error() string {
	prefix := "api"
	if e.Provider != "" {
		prefix = e.Provider
	}

	switch {
	case e.Status == 0:
		return fmt.Sprintf("%s: %s", prefix, e.Reason)
	case e.RetryAfter > 0:
		return fmt.Sprintf("%s: status %d (retry after %s): %s", prefix, e.Status, e.RetryAfter, e.Body)
	default:
		return fmt.Sprintf("%s: status %d: %s", prefix, e.Status, e.Body)
	}
}

// RateLimited reports whether the error carries HTTP 429.
func (e *APIError) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

// EmptyResponse builds the APIError used when a 2xx body has no text.
func EmptyResponse(provider string) *APIError {
	return &APIError{Provider: provider, Reason: "empty response"}
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ParseRetryAfter parses the Retry-After header value as either seconds (integer)
// or an HTTP-date (RFC 7231). Returns zero if unparseable or if the date is in the past.
func ParseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
