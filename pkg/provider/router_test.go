package provider_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandvis/mentionoor/pkg/provider"
)

// fakeBackend records calls and returns scripted results.
type fakeBackend struct {
	name       string
	configured bool
	models     []string
	calls      atomic.Int64

	// generate is invoked per attempt; nil means success.
	generate func(attempt int64) (*provider.Result, error)
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Configured() bool { return f.configured }

func (f *fakeBackend) Generate(
	_ context.Context, prompt, _ string,
) (*provider.Result, error) {
	attempt := f.calls.Add(1)

	if f.generate != nil {
		return f.generate(attempt)
	}

	return &provider.Result{Text: "echo: " + prompt, LatencyMs: 1}, nil
}

func (f *fakeBackend) ListModels(_ context.Context) []string {
	return f.models
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func newTestRouter(defaultName string, backends ...*fakeBackend) (provider.Router, map[string]*fakeBackend) {
	byName := make(map[string]*fakeBackend, len(backends))
	m := make(map[string]provider.Provider, len(backends))

	for _, b := range backends {
		byName[b.name] = b
		m[b.name] = b
	}

	return provider.NewRouter(testLogger(), m, defaultName), byName
}

func TestRouter_PrefixDispatch(t *testing.T) {
	tests := []struct {
		model   string
		backend string
	}{
		{"gpt-4", "openai"},
		{"o1-preview", "openai"},
		{"gemini-2.0-flash", "gemini"},
		{"claude-3-haiku-20240307", "anthropic"},
		{"mock-model", "mock"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			r, byName := newTestRouter("mock",
				&fakeBackend{name: "openai", configured: true},
				&fakeBackend{name: "gemini", configured: true},
				&fakeBackend{name: "anthropic", configured: true},
				&fakeBackend{name: "mock", configured: true},
			)

			_, err := r.Generate(context.Background(), "hello", tt.model)
			require.NoError(t, err)

			for name, b := range byName {
				want := int64(0)
				if name == tt.backend {
					want = 1
				}

				assert.Equal(t, want, b.calls.Load(), "backend %s", name)
			}
		})
	}
}

func TestRouter_DefaultFallback(t *testing.T) {
	r, byName := newTestRouter("openai",
		&fakeBackend{name: "openai", configured: true},
		&fakeBackend{name: "mock", configured: true},
	)

	_, err := r.Generate(context.Background(), "hello", "llama-70b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), byName["openai"].calls.Load())
}

func TestRouter_AutoWithoutMatchFails(t *testing.T) {
	r, _ := newTestRouter("auto",
		&fakeBackend{name: "mock", configured: true},
	)

	_, err := r.Generate(context.Background(), "hello", "llama-70b")
	require.Error(t, err)

	var cfgErr *provider.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "llama-70b")
	assert.False(t, provider.Retryable(err))
}

func TestRouter_RetriesTransientErrors(t *testing.T) {
	backend := &fakeBackend{
		name:       "mock",
		configured: true,
		generate: func(attempt int64) (*provider.Result, error) {
			if attempt < 3 {
				return nil, &provider.HTTPError{
					Status: 503, Body: "overloaded",
				}
			}

			return &provider.Result{Text: "ok"}, nil
		},
	}

	r, _ := newTestRouter("mock", backend)

	result, err := r.Generate(context.Background(), "hello", "mock-model")
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
	assert.Equal(t, int64(3), backend.calls.Load())
}

func TestRouter_DoesNotRetryClientErrors(t *testing.T) {
	backend := &fakeBackend{
		name:       "mock",
		configured: true,
		generate: func(int64) (*provider.Result, error) {
			return nil, &provider.HTTPError{Status: 401, Body: "bad key"}
		},
	}

	r, _ := newTestRouter("mock", backend)

	_, err := r.Generate(context.Background(), "hello", "mock-model")
	require.Error(t, err)
	assert.Equal(t, int64(1), backend.calls.Load())
	assert.Equal(t, "HTTP 401: bad key", err.Error())
}

func TestRouter_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	backend := &fakeBackend{
		name:       "mock",
		configured: true,
		generate: func(int64) (*provider.Result, error) {
			return nil, errors.New("connection reset")
		},
	}

	r, _ := newTestRouter("mock", backend)

	_, err := r.Generate(context.Background(), "hello", "mock-model")
	require.Error(t, err)
	assert.Equal(t, int64(3), backend.calls.Load())
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRouter_ListModelsSkipsUnconfigured(t *testing.T) {
	r, _ := newTestRouter("mock",
		&fakeBackend{name: "openai", configured: false, models: []string{"gpt-4"}},
		&fakeBackend{name: "mock", configured: true, models: []string{"mock-model"}},
	)

	models := r.ListModels(context.Background())

	assert.NotContains(t, models, "openai")
	assert.Equal(t, []string{"mock-model"}, models["mock"])
}

func TestRouter_ListModelsNeverEmptyWithMock(t *testing.T) {
	// Nothing configured except the mock backend: the caller still
	// gets a usable capability signal.
	log := testLogger()
	r := provider.NewRouter(log, map[string]provider.Provider{
		"openai": &fakeBackend{name: "openai"},
		"mock":   provider.NewMock(),
	}, "mock")

	models := r.ListModels(context.Background())
	require.NotEmpty(t, models)
	assert.Contains(t, models["mock"], "mock-model")
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), true},
		{"http 500", &provider.HTTPError{Status: 500}, true},
		{"http 429", &provider.HTTPError{Status: 429, Body: "slow down"}, true},
		{
			"http 429 quota exhausted",
			&provider.HTTPError{Status: 429, Body: `{"error":{"code":"insufficient_quota"}}`},
			false,
		},
		{"http 400", &provider.HTTPError{Status: 400}, false},
		{"http 404", &provider.HTTPError{Status: 404}, false},
		{"missing credentials", provider.ErrMissingCredentials, false},
		{"config error", &provider.ConfigError{Model: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, provider.Retryable(tt.err))
		})
	}
}
