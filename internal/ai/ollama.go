// Package ai provides the Ollama backend for local models
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sonemaro/tella/internal/prompt"
	"github.com/sonemaro/tella/internal/types"
)

// listModelsTimeout bounds the /api/tags call made during setup.
const listModelsTimeout = 5 * time.Second

// OllamaBackend talks to the native Ollama HTTP API
type OllamaBackend struct {
	client      *resty.Client
	model       string
	temperature float64
	maxTokens   int
}

// OllamaChatRequest represents an Ollama chat API request
type OllamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  *OllamaOptions `json:"options,omitempty"`
}

// OllamaOptions represents model options
type OllamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// OllamaChatResponse represents an Ollama chat API response
type OllamaChatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// OllamaModelsResponse represents the response from listing models
type OllamaModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaBackend creates a backend for an Ollama server
func NewOllamaBackend(opts Options) (*OllamaBackend, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}

	return &OllamaBackend{
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(endpoint, "/")).
			SetHeader("Content-Type", "application/json"),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

func (b *OllamaBackend) Name() string {
	return "ollama"
}

func (b *OllamaBackend) Send(ctx context.Context, payload prompt.Payload) (string, error) {
	reqBody := OllamaChatRequest{
		Model:    b.model,
		Messages: messages(payload),
		Stream:   false,
		Format:   "json",
		Options: &OllamaOptions{
			Temperature: b.temperature,
			NumPredict:  b.maxTokens,
		},
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(reqBody).
		Post("/api/chat")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", &StatusError{Code: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}

	var chat OllamaChatResponse
	if err := json.Unmarshal(resp.Body(), &chat); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}
	return chat.Message.Content, nil
}

func (b *OllamaBackend) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listModelsTimeout)
	defer cancel()

	resp, err := b.client.R().
		SetContext(ctx).
		Get("/api/tags")
	if err != nil {
		return nil, fmt.Errorf("failed to reach ollama: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}

	var list OllamaModelsResponse
	if err := json.Unmarshal(resp.Body(), &list); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.Name)
	}
	return models, nil
}
