package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// geminiDefaultModel is used when the caller passes the bare
	// "gemini" identifier.
	geminiDefaultModel = "gemini-2.0-flash"
)

// gemini calls the Google Gemini generateContent API.
type gemini struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// GeminiOption configures the Gemini backend.
type GeminiOption func(*gemini)

// WithGeminiBaseURL overrides the API base URL.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(g *gemini) {
		g.baseURL = url
	}
}

// NewGemini creates the Gemini backend.
func NewGemini(
	apiKey string, timeout time.Duration, opts ...GeminiOption,
) Provider {
	g := &gemini{
		apiKey:  apiKey,
		baseURL: defaultGeminiBaseURL,
		http:    newHTTPClient(timeout),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

func (g *gemini) Name() string { return "gemini" }

func (g *gemini) Configured() bool { return g.apiKey != "" }

// normalizeGeminiModel maps caller-supplied identifiers onto the form
// the API expects: the "models/" prefix is stripped and the bare
// "gemini" identifier resolves to a concrete default model.
func normalizeGeminiModel(model string) string {
	if model == "" || model == "gemini" {
		return geminiDefaultModel
	}

	return strings.TrimPrefix(model, "models/")
}

type geminiGenerateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	PromptFeedback json.RawMessage `json:"promptFeedback,omitempty"`
	UsageMetadata  map[string]any  `json:"usageMetadata"`
}

func (g *gemini) Generate(
	ctx context.Context, prompt, model string,
) (*Result, error) {
	if g.apiKey == "" {
		return nil, ErrMissingCredentials
	}

	model = normalizeGeminiModel(model)

	url := fmt.Sprintf(
		"%s/models/%s:generateContent?key=%s", g.baseURL, model, g.apiKey,
	)

	req := geminiGenerateRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
	}

	start := time.Now()

	var resp geminiGenerateResponse
	if err := doJSON(
		ctx, g.http, http.MethodPost, url, nil, req, &resp,
	); err != nil {
		return nil, err
	}

	var text string

	switch {
	case len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0:
		text = resp.Candidates[0].Content.Parts[0].Text
	case len(resp.PromptFeedback) > 0:
		// Safety-blocked prompts return no candidates; surface the
		// feedback in the text rather than failing the unit.
		text = fmt.Sprintf("[Blocked: %s]", string(resp.PromptFeedback))
	}

	return &Result{
		Text:      text,
		LatencyMs: float64(time.Since(start)) / float64(time.Millisecond),
		Metadata:  map[string]any{"usage": resp.UsageMetadata},
	}, nil
}

type geminiModelsResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

func (g *gemini) ListModels(ctx context.Context) []string {
	if g.apiKey == "" {
		return nil
	}

	var resp geminiModelsResponse
	if err := doJSON(
		ctx, g.http, http.MethodGet,
		g.baseURL+"/models?key="+g.apiKey, nil, nil, &resp,
	); err != nil {
		return nil
	}

	models := make([]string, 0, len(resp.Models))

	for _, m := range resp.Models {
		supported := false

		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" {
				supported = true

				break
			}
		}

		if supported {
			models = append(models, strings.TrimPrefix(m.Name, "models/"))
		}
	}

	return models
}
