package provider

import (
	"context"
	"fmt"
)

// mockLatencyMs is the fixed latency reported by the mock backend.
const mockLatencyMs = 42.0

// mock is a deterministic in-process backend used when no real provider
// is configured and in tests.
type mock struct{}

// NewMock creates the deterministic test backend.
func NewMock() Provider {
	return mock{}
}

func (mock) Name() string { return "mock" }

func (mock) Configured() bool { return true }

// Generate returns a canned response that always mentions the same two
// brands, so visibility analysis has predictable input.
func (mock) Generate(
	_ context.Context, prompt, _ string,
) (*Result, error) {
	return &Result{
		Text: fmt.Sprintf(
			"Here is a list of top companies for %s: Acme, Contoso.",
			prompt,
		),
		LatencyMs: mockLatencyMs,
		Metadata:  map[string]any{"provider": "mock"},
	}, nil
}

func (mock) ListModels(_ context.Context) []string {
	return []string{"mock-model", "mock-gpt-4", "mock-gemini"}
}
