package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandvis/mentionoor/pkg/provider"
)

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

			var req struct {
				Model    string `json:"model"`
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "gpt-4", req.Model)
			require.Len(t, req.Messages, 1)
			assert.Equal(t, "best CRM tools?", req.Messages[0].Content)

			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{
						"role":    "assistant",
						"content": "Try Acme CRM.",
					}},
				},
				"usage": map[string]int{"total_tokens": 12},
			})
		}))
	defer srv.Close()

	backend := provider.NewOpenAI(
		"sk-test", time.Second, provider.WithOpenAIBaseURL(srv.URL),
	)

	result, err := backend.Generate(
		context.Background(), "best CRM tools?", "gpt-4",
	)
	require.NoError(t, err)
	assert.Equal(t, "Try Acme CRM.", result.Text)
	assert.Greater(t, result.LatencyMs, 0.0)
}

func TestOpenAI_GenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("invalid api key"))
		}))
	defer srv.Close()

	backend := provider.NewOpenAI(
		"sk-bad", time.Second, provider.WithOpenAIBaseURL(srv.URL),
	)

	_, err := backend.Generate(context.Background(), "p", "gpt-4")
	require.Error(t, err)

	var httpErr *provider.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 401, httpErr.Status)
	assert.Equal(t, "HTTP 401: invalid api key", err.Error())
}

func TestOpenAI_GenerateWithoutKey(t *testing.T) {
	backend := provider.NewOpenAI("", time.Second)

	_, err := backend.Generate(context.Background(), "p", "gpt-4")
	assert.ErrorIs(t, err, provider.ErrMissingCredentials)
	assert.False(t, backend.Configured())
}

func TestOpenAI_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/models", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]string{
					{"id": "o1-mini"}, {"id": "gpt-4"}, {"id": "gpt-3.5-turbo"},
				},
			})
		}))
	defer srv.Close()

	backend := provider.NewOpenAI(
		"sk-test", time.Second, provider.WithOpenAIBaseURL(srv.URL),
	)

	// Sorted for stable output.
	assert.Equal(t,
		[]string{"gpt-3.5-turbo", "gpt-4", "o1-mini"},
		backend.ListModels(context.Background()),
	)
}

func TestOpenAI_ListModelsBestEffort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
	defer srv.Close()

	backend := provider.NewOpenAI(
		"sk-test", time.Second, provider.WithOpenAIBaseURL(srv.URL),
	)

	assert.Empty(t, backend.ListModels(context.Background()))
}

func TestGemini_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			// The bare "gemini" identifier resolves to the default
			// model, and the key travels as a query parameter.
			assert.Equal(t,
				"/models/gemini-2.0-flash:generateContent", r.URL.Path)
			assert.Equal(t, "g-key", r.URL.Query().Get("key"))

			_ = json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{
					{"content": map[string]any{
						"parts": []map[string]string{{"text": "Acme leads."}},
					}},
				},
			})
		}))
	defer srv.Close()

	backend := provider.NewGemini(
		"g-key", time.Second, provider.WithGeminiBaseURL(srv.URL),
	)

	result, err := backend.Generate(context.Background(), "p", "gemini")
	require.NoError(t, err)
	assert.Equal(t, "Acme leads.", result.Text)
}

func TestGemini_GenerateStripsModelsPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t,
				"/models/gemini-1.5-pro:generateContent", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{
					{"content": map[string]any{
						"parts": []map[string]string{{"text": "hi"}},
					}},
				},
			})
		}))
	defer srv.Close()

	backend := provider.NewGemini(
		"g-key", time.Second, provider.WithGeminiBaseURL(srv.URL),
	)

	_, err := backend.Generate(
		context.Background(), "p", "models/gemini-1.5-pro",
	)
	require.NoError(t, err)
}

func TestGemini_BlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"promptFeedback": map[string]string{"blockReason": "SAFETY"},
			})
		}))
	defer srv.Close()

	backend := provider.NewGemini(
		"g-key", time.Second, provider.WithGeminiBaseURL(srv.URL),
	)

	result, err := backend.Generate(context.Background(), "p", "gemini")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "[Blocked:")
	assert.Contains(t, result.Text, "SAFETY")
}

func TestGemini_ListModelsFiltersGenerateContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]any{
					{
						"name":                       "models/gemini-2.0-flash",
						"supportedGenerationMethods": []string{"generateContent"},
					},
					{
						"name":                       "models/embedding-001",
						"supportedGenerationMethods": []string{"embedContent"},
					},
				},
			})
		}))
	defer srv.Close()

	backend := provider.NewGemini(
		"g-key", time.Second, provider.WithGeminiBaseURL(srv.URL),
	)

	assert.Equal(t,
		[]string{"gemini-2.0-flash"},
		backend.ListModels(context.Background()),
	)
}

func TestAnthropic_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/messages", r.URL.Path)
			assert.Equal(t, "a-key", r.Header.Get("x-api-key"))
			assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

			_ = json.NewEncoder(w).Encode(map[string]any{
				"content": []map[string]string{{"text": "Contoso wins."}},
			})
		}))
	defer srv.Close()

	backend := provider.NewAnthropic(
		"a-key", time.Second, provider.WithAnthropicBaseURL(srv.URL),
	)

	result, err := backend.Generate(
		context.Background(), "p", "claude-3-haiku-20240307",
	)
	require.NoError(t, err)
	assert.Equal(t, "Contoso wins.", result.Text)
}

func TestAnthropic_ListModels(t *testing.T) {
	withKey := provider.NewAnthropic("a-key", time.Second)
	assert.NotEmpty(t, withKey.ListModels(context.Background()))

	withoutKey := provider.NewAnthropic("", time.Second)
	assert.Empty(t, withoutKey.ListModels(context.Background()))
}

func TestMock_GenerateIsDeterministic(t *testing.T) {
	backend := provider.NewMock()

	a, err := backend.Generate(context.Background(), "best CRMs", "mock-model")
	require.NoError(t, err)

	b, err := backend.Generate(context.Background(), "best CRMs", "mock-model")
	require.NoError(t, err)

	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, a.LatencyMs, b.LatencyMs)
	assert.Contains(t, a.Text, "Acme")
	assert.Contains(t, a.Text, "Contoso")
	assert.Contains(t, a.Text, "best CRMs")
}
