// Package ai provides factory functions for creating backends
package ai

import (
	"fmt"
)

// NewBackend creates a backend for opts.Provider
func NewBackend(opts Options) (Backend, error) {
	switch opts.Provider {
	case "openai", "cerebras", "generic":
		return NewOpenAIBackend(opts)
	case "ollama":
		return NewOllamaBackend(opts)
	default:
		return nil, fmt.Errorf("unknown provider: %s", opts.Provider)
	}
}

// AvailableProviders returns a list of available provider types
func AvailableProviders() []string {
	return []string{
		"cerebras",
		"ollama",
		"openai",
		"generic",
	}
}
