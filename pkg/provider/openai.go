package provider

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openAI calls the OpenAI chat completions API.
type openAI struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// OpenAIOption configures the OpenAI backend.
type OpenAIOption func(*openAI)

// WithOpenAIBaseURL overrides the API base URL.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *openAI) {
		o.baseURL = url
	}
}

// NewOpenAI creates the OpenAI backend.
func NewOpenAI(
	apiKey string, timeout time.Duration, opts ...OpenAIOption,
) Provider {
	o := &openAI{
		apiKey:  apiKey,
		baseURL: defaultOpenAIBaseURL,
		http:    newHTTPClient(timeout),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

func (o *openAI) Name() string { return "openai" }

func (o *openAI) Configured() bool { return o.apiKey != "" }

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
}

func (o *openAI) Generate(
	ctx context.Context, prompt, model string,
) (*Result, error) {
	if o.apiKey == "" {
		return nil, ErrMissingCredentials
	}

	req := openAIChatRequest{
		Model:       model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		Temperature: 0.7,
	}

	start := time.Now()

	var resp openAIChatResponse
	if err := doJSON(
		ctx, o.http, http.MethodPost, o.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + o.apiKey},
		req, &resp,
	); err != nil {
		return nil, err
	}

	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	return &Result{
		Text:      text,
		LatencyMs: float64(time.Since(start)) / float64(time.Millisecond),
		Metadata:  map[string]any{"usage": resp.Usage},
	}, nil
}

type openAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (o *openAI) ListModels(ctx context.Context) []string {
	if o.apiKey == "" {
		return nil
	}

	var resp openAIModelsResponse
	if err := doJSON(
		ctx, o.http, http.MethodGet, o.baseURL+"/models",
		map[string]string{"Authorization": "Bearer " + o.apiKey},
		nil, &resp,
	); err != nil {
		return nil
	}

	models := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		models = append(models, m.ID)
	}

	sort.Strings(models)

	return models
}
