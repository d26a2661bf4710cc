package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means no usable API key or provider is set up.
	ErrNotConfigured = errors.New("tella is not configured")
	// ErrEmptyQuery means the query had no non-whitespace content.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrUpstreamTimeout means the model did not answer within the timeout.
	ErrUpstreamTimeout = errors.New("model request timed out")
	// ErrUpstreamUnavailable means the endpoint kept failing at the
	// transport level until retries ran out.
	ErrUpstreamUnavailable = errors.New("model endpoint unavailable")
	// ErrUnauthorized means the endpoint rejected the credentials.
	ErrUnauthorized = errors.New("model endpoint rejected the API key")
	// ErrMalformedResponse means the reply did not carry the required fields.
	ErrMalformedResponse = errors.New("malformed model response")
	ErrUserDeclined      = errors.New("declined by user")
	ErrUserAborted       = errors.New("aborted by user")
)

// UpstreamRejectedError is a non-retryable HTTP failure from the endpoint.
type UpstreamRejectedError struct {
	Status int
	Body   string
}

func (e *UpstreamRejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("model endpoint rejected request (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("model endpoint rejected request (HTTP %d): %s", e.Status, e.Body)
}

// ExecutionFailedError reports a command that ran and exited non-zero.
type ExecutionFailedError struct {
	ExitCode int
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.ExitCode)
}

// RefusedError is returned when the model declines to produce a command,
// usually because the query was not a request for one.
type RefusedError struct {
	Reason string
}

func (e *RefusedError) Error() string {
	if e.Reason == "" {
		return "model did not suggest a command"
	}
	return "model did not suggest a command: " + e.Reason
}

// ExitCode maps an error from a query run to a process exit status.
func ExitCode(err error) int {
	var execErr *ExecutionFailedError
	switch {
	case err == nil, errors.Is(err, ErrUserDeclined):
		return 0
	case errors.As(err, &execErr):
		return execErr.ExitCode
	case errors.Is(err, ErrUserAborted):
		return 130
	case errors.Is(err, ErrEmptyQuery):
		return 2
	default:
		return 1
	}
}
