// Package ai sends prompts to a language model and turns the reply into a
// suggestion.
package ai

import (
	"context"
	"fmt"

	"github.com/sonemaro/tella/internal/prompt"
)

// Backend performs exactly one request against a model endpoint. Retries,
// timeouts and parsing are handled by Client.
type Backend interface {
	// Name returns the provider name
	Name() string

	// Send returns the raw text content of the model's reply
	Send(ctx context.Context, payload prompt.Payload) (string, error)

	// ListModels returns available models
	ListModels(ctx context.Context) ([]string, error)
}

// Options configures a backend
type Options struct {
	Provider    string
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func messages(p prompt.Payload) []Message {
	return []Message{
		{Role: "system", Content: p.System},
		{Role: "user", Content: p.User},
	}
}

// StatusError is an HTTP failure reported by a backend. Client maps it onto
// the error taxonomy in the types package.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}
