package provider

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brandvis/mentionoor/pkg/config"
)

// Router dispatches generation requests to the backend owning the
// requested model and aggregates model listings across backends.
type Router interface {
	// Generate routes prompt to the backend matching model and applies
	// the retry policy around the call.
	Generate(ctx context.Context, prompt, model string) (*Result, error)

	// ListModels returns backend name -> available models for every
	// configured backend, in parallel. The result is never empty: the
	// mock backend is always present as a baseline capability signal.
	ListModels(ctx context.Context) map[string][]string
}

// Compile-time interface check.
var _ Router = (*router)(nil)

type router struct {
	log         logrus.FieldLogger
	backends    map[string]Provider
	defaultName string
}

// NewRouter creates a Router over an explicit backend mapping. The
// defaultName backend serves models with no recognized prefix; "auto"
// or an unknown name disables the fallback.
func NewRouter(
	log logrus.FieldLogger,
	backends map[string]Provider,
	defaultName string,
) Router {
	return &router{
		log:         log.WithField("component", "provider_router"),
		backends:    backends,
		defaultName: defaultName,
	}
}

// NewRouterFromConfig creates a Router with the standard backends.
// storedKeys holds API keys persisted via the settings endpoint; keys
// set directly in the config take precedence.
func NewRouterFromConfig(
	log logrus.FieldLogger,
	cfg *config.ProvidersConfig,
	storedKeys map[string]string,
) Router {
	pick := func(configured, provider string) string {
		if configured != "" {
			return configured
		}

		return storedKeys[provider]
	}

	timeout := cfg.RequestTimeout

	backends := map[string]Provider{
		"openai":    NewOpenAI(pick(cfg.OpenAIAPIKey, "openai"), timeout),
		"gemini":    NewGemini(pick(cfg.GeminiAPIKey, "gemini"), timeout),
		"anthropic": NewAnthropic(pick(cfg.AnthropicAPIKey, "anthropic"), timeout),
		"mock":      NewMock(),
	}

	return NewRouter(log, backends, cfg.Default)
}

// resolve maps a model identifier to a backend. Prefix rules win; the
// configured default backend catches the rest.
func (r *router) resolve(model string) (Provider, error) {
	var name string

	switch {
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1-"):
		name = "openai"
	case strings.HasPrefix(model, "gemini"):
		name = "gemini"
	case strings.HasPrefix(model, "claude"):
		name = "anthropic"
	case strings.HasPrefix(model, "mock"):
		name = "mock"
	default:
		name = r.defaultName
	}

	backend, ok := r.backends[name]
	if !ok || name == "auto" {
		return nil, &ConfigError{Model: model}
	}

	return backend, nil
}

func (r *router) Generate(
	ctx context.Context, prompt, model string,
) (*Result, error) {
	backend, err := r.resolve(model)
	if err != nil {
		return nil, err
	}

	result, err := withRetry(ctx, func(ctx context.Context) (*Result, error) {
		return backend.Generate(ctx, prompt, model)
	})
	if err != nil {
		r.log.WithError(err).
			WithField("backend", backend.Name()).
			WithField("model", model).
			Debug("Generation failed")

		return nil, err
	}

	return result, nil
}

func (r *router) ListModels(ctx context.Context) map[string][]string {
	var mu sync.Mutex

	results := make(map[string][]string, len(r.backends))

	g, gCtx := errgroup.WithContext(ctx)

	for name, backend := range r.backends {
		if !backend.Configured() {
			continue
		}

		g.Go(func() error {
			models := backend.ListModels(gCtx)

			mu.Lock()
			results[name] = models
			mu.Unlock()

			return nil
		})
	}

	// ListModels is best-effort per backend; no backend returns an error.
	_ = g.Wait()

	return results
}
