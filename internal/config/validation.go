// Package config - Settings validation
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s\n  Hint: %s", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult contains all validation errors
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no errors
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// HasWarnings returns true if there are warnings
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// String returns a formatted string of all errors and warnings
func (r *ValidationResult) String() string {
	var sb strings.Builder

	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("  ✗ %s\n", e.Error()))
		}
	}

	if len(r.Warnings) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("  ⚠ %s\n", w.Error()))
		}
	}

	return sb.String()
}

// Validate checks settings and returns all errors and warnings
func Validate(s Settings) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateProvider(s, result)
	validateModel(s, result)
	validateSafety(s, result)
	validateHistory(s, result)

	return result
}

func validateProvider(s Settings, result *ValidationResult) {
	validProviders := []string{ProviderOpenAI, ProviderCerebras, ProviderOllama, ProviderGeneric}
	name := s.Provider.Name

	if name == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "provider.name",
			Message: "provider name is required",
			Hint:    "Set provider.name to one of: " + strings.Join(validProviders, ", "),
		})
		return
	}
	if !containsString(validProviders, name) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "provider.name",
			Message: fmt.Sprintf("unknown provider '%s'", name),
			Hint:    "Known providers: " + strings.Join(validProviders, ", "),
		})
		return
	}

	endpoint := s.Provider.Endpoint
	if endpoint == "" {
		if name == ProviderGeneric {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "provider.endpoint",
				Message: "endpoint URL is required for the generic provider",
				Hint:    "Set provider.endpoint to an OpenAI-compatible base URL",
			})
		}
	} else if u, err := url.ParseRequestURI(endpoint); err != nil || u.Host == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "provider.endpoint",
			Message: fmt.Sprintf("invalid endpoint URL: %s", endpoint),
			Hint:    "Endpoint should be a valid URL like https://api.cerebras.ai/v1",
		})
	}

	if s.Provider.APIKey != "" {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "provider.api_key",
			Message: "API key stored in plain text",
			Hint:    "Use api_key_env or the TELLA_API_KEY environment variable instead",
		})
	}
}

func validateModel(s Settings, result *ValidationResult) {
	if s.Model.Name == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "model.name",
			Message: "model name is required",
			Hint:    "Set model.name to the model you want to use (e.g., llama3.3-70b, llama3.2)",
		})
	}

	if s.Model.Temperature < 0 || s.Model.Temperature > 2 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "model.temperature",
			Message: fmt.Sprintf("temperature out of range: %.2f", s.Model.Temperature),
			Hint:    "Temperature ranges from 0 (deterministic) to 2",
		})
	}

	if s.Model.MaxTokens < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "model.max_tokens",
			Message: "max_tokens cannot be negative",
		})
	}

	if s.Model.TimeoutSeconds <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "model.timeout_seconds",
			Message: "timeout_seconds must be positive",
			Hint:    "30 seconds is a reasonable default",
		})
	}

	if s.Model.MaxRetries < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "model.max_retries",
			Message: "max_retries cannot be negative",
		})
	} else if s.Model.MaxRetries > 5 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "model.max_retries",
			Message: fmt.Sprintf("high max_retries: %d", s.Model.MaxRetries),
			Hint:    "Each retry waits longer than the last",
		})
	}
}

func validateSafety(s Settings, result *ValidationResult) {
	switch strings.ToLower(s.Safety.AutoConfirm) {
	case AutoConfirmNone, "":
	case AutoConfirmSafe:
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "safety.auto_confirm",
			Message: "SAFE commands will run without confirmation",
		})
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "safety.auto_confirm",
			Message: fmt.Sprintf("invalid auto_confirm threshold: %s", s.Safety.AutoConfirm),
			Hint:    "Only 'none' and 'safe' are allowed; riskier commands always ask",
		})
	}

	for i, cmd := range s.Safety.BlockedCommands {
		if strings.TrimSpace(cmd) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("safety.blocked_commands[%d]", i),
				Message: "blocked command is empty",
			})
		}
	}
}

func validateHistory(s Settings, result *ValidationResult) {
	if !s.History.Enabled {
		return
	}
	if s.History.DBPath == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "history.db_path",
			Message: "history is enabled but db_path is empty",
		})
	}
	if s.History.RetentionDays < 1 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "history.retention_days",
			Message: "retention_days is very low",
			Hint:    "Consider setting to at least 7 for useful history",
		})
	}
}

func containsString(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
