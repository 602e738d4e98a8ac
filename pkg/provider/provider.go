// Package provider dispatches prompt generation to named LLM backends.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Result is a successful generation from a backend.
type Result struct {
	Text      string
	LatencyMs float64
	Metadata  map[string]any
}

// Provider is a single LLM backend integration.
type Provider interface {
	// Name returns the backend name ("openai", "gemini", ...).
	Name() string

	// Configured reports whether the backend has credentials.
	Configured() bool

	// Generate produces a completion for prompt using model.
	Generate(ctx context.Context, prompt, model string) (*Result, error)

	// ListModels returns available model identifiers. It is
	// best-effort: any failure yields an empty list, never an error.
	ListModels(ctx context.Context) []string
}

// ErrMissingCredentials marks a backend invoked without an API key.
// Never retried.
var ErrMissingCredentials = errors.New("api key is not configured")

// HTTPError is a non-2xx response from a backend API.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// ConfigError marks a model identifier that cannot be routed to any
// backend. Never retried.
type ConfigError struct {
	Model string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("could not determine provider for model %q", e.Model)
}

// Retryable classifies an error as transient. Client errors (4xx other
// than 429), quota-exhausted 429s, missing credentials, and routing
// errors are permanent; everything else (network failures, 5xx,
// timeouts, ordinary 429s) is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrMissingCredentials) {
		return false
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		status := httpErr.Status

		if status == 429 {
			return !strings.Contains(httpErr.Body, "insufficient_quota")
		}

		if status >= 400 && status < 500 {
			return false
		}
	}

	return true
}
