// Package ai provides the OpenAI-compatible backend
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/sashabaranov/go-openai"

	"github.com/sonemaro/tella/internal/prompt"
	"github.com/sonemaro/tella/internal/types"
)

// OpenAIBackend talks to OpenAI, Cerebras or any OpenAI-compatible endpoint
type OpenAIBackend struct {
	client      *openai.Client
	name        string
	model       string
	temperature float32
	maxTokens   int
	jsonMode    bool
}

// NewOpenAIBackend creates a backend for an OpenAI-compatible chat API
func NewOpenAIBackend(opts Options) (*OpenAIBackend, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("%s endpoint is required", opts.Provider)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("%s model is required", opts.Provider)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.Endpoint

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return &OpenAIBackend{
		client:      openai.NewClientWithConfig(cfg),
		name:        opts.Provider,
		model:       opts.Model,
		temperature: float32(opts.Temperature),
		maxTokens:   maxTokens,
		// Not every compatible server implements response_format.
		jsonMode: opts.Provider != "generic",
	}, nil
}

func (b *OpenAIBackend) Name() string {
	return b.name
}

func (b *OpenAIBackend) Send(ctx context.Context, payload prompt.Payload) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: payload.System},
			{Role: openai.ChatMessageRoleUser, Content: payload.User},
		},
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
	}
	if b.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in reply", types.ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *OpenAIBackend) ListModels(ctx context.Context) ([]string, error) {
	list, err := b.client.ListModels(ctx)
	if err != nil {
		return nil, mapOpenAIError(err)
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.ID)
	}
	sort.Strings(models)
	return models, nil
}

// mapOpenAIError converts go-openai errors into StatusError or
// ErrMalformedResponse; transport errors pass through unchanged.
func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := string(reqErr.Body)
		if body == "" && reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &StatusError{Code: reqErr.HTTPStatusCode, Body: body}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}
	return err
}
