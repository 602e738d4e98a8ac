package provider

import (
	"context"
	"net/http"
	"time"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicAPIVersion     = "2023-06-01"
	anthropicMaxTokens      = 1024
)

// anthropic calls the Anthropic messages API.
type anthropic struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// AnthropicOption configures the Anthropic backend.
type AnthropicOption func(*anthropic)

// WithAnthropicBaseURL overrides the API base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(a *anthropic) {
		a.baseURL = url
	}
}

// NewAnthropic creates the Anthropic backend.
func NewAnthropic(
	apiKey string, timeout time.Duration, opts ...AnthropicOption,
) Provider {
	a := &anthropic{
		apiKey:  apiKey,
		baseURL: defaultAnthropicBaseURL,
		http:    newHTTPClient(timeout),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *anthropic) Name() string { return "anthropic" }

func (a *anthropic) Configured() bool { return a.apiKey != "" }

type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage map[string]any `json:"usage"`
}

func (a *anthropic) Generate(
	ctx context.Context, prompt, model string,
) (*Result, error) {
	if a.apiKey == "" {
		return nil, ErrMissingCredentials
	}

	req := anthropicMessagesRequest{
		Model:     model,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens: anthropicMaxTokens,
	}

	start := time.Now()

	var resp anthropicMessagesResponse
	if err := doJSON(
		ctx, a.http, http.MethodPost, a.baseURL+"/messages",
		map[string]string{
			"x-api-key":         a.apiKey,
			"anthropic-version": anthropicAPIVersion,
		},
		req, &resp,
	); err != nil {
		return nil, err
	}

	var text string
	if len(resp.Content) > 0 {
		text = resp.Content[0].Text
	}

	return &Result{
		Text:      text,
		LatencyMs: float64(time.Since(start)) / float64(time.Millisecond),
		Metadata:  map[string]any{"usage": resp.Usage},
	}, nil
}

// ListModels returns a static model list; Anthropic has no listing
// endpoint usable with a bare API key.
func (a *anthropic) ListModels(_ context.Context) []string {
	if a.apiKey == "" {
		return nil
	}

	return []string{
		"claude-3-opus-20240229",
		"claude-3-sonnet-20240229",
		"claude-3-haiku-20240307",
	}
}
