package ai

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sonemaro/tella/internal/prompt"
	"github.com/sonemaro/tella/internal/types"
)

// Defaults for ClientConfig zero values.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultMaxDelay  = 8 * time.Second
)

// ClientConfig bounds a completion call
type ClientConfig struct {
	Timeout    time.Duration // whole call, retries included
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // first backoff delay, doubled per retry
	MaxDelay   time.Duration // cap on backoff delay
}

// Client wraps a Backend with timeout, retry and parsing
type Client struct {
	backend Backend
	cfg     ClientConfig
	logger  *zap.Logger
}

// NewClient creates a client. A nil logger disables logging.
func NewClient(backend Backend, cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{backend: backend, cfg: cfg, logger: logger}
}

// Backend returns the underlying backend
func (c *Client) Backend() Backend {
	return c.backend
}

// outcome classifies one attempt for the retry loop.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryable
	outcomeFatal
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// attemptResult is what one Send produced, already mapped onto the error
// taxonomy.
type attemptResult struct {
	outcome outcome
	content string
	err     error
}

// Complete sends payload and parses the reply. Errors are from the types
// package taxonomy: ErrUpstreamTimeout, ErrUnauthorized,
// *UpstreamRejectedError, ErrMalformedResponse, *RefusedError,
// ErrUpstreamUnavailable or ErrUserAborted when ctx is cancelled.
func (c *Client) Complete(ctx context.Context, payload prompt.Payload) (*types.Suggestion, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		start := time.Now()
		content, err := c.backend.Send(callCtx, payload)
		res := c.classify(ctx, callCtx, content, err)

		c.logger.Debug("model request",
			zap.String("backend", c.backend.Name()),
			zap.Int("attempt", attempt+1),
			zap.Stringer("outcome", res.outcome),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(res.err))

		switch res.outcome {
		case outcomeSuccess:
			suggestion, err := ParseSuggestion(res.content)
			if err != nil {
				c.logger.Debug("unparseable reply", zap.String("content", res.content))
				return nil, err
			}
			return suggestion, nil
		case outcomeFatal:
			return nil, res.err
		}

		if attempt >= c.cfg.MaxRetries {
			c.logger.Warn("model request failed after retries",
				zap.Int("attempts", attempt+1), zap.Error(res.err))
			return nil, res.err
		}

		delay := c.backoff(attempt)
		c.logger.Debug("retrying model request", zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-callCtx.Done():
			timer.Stop()
			return nil, c.contextError(ctx, callCtx)
		case <-timer.C:
		}
	}
}

// ListModels returns the models the backend offers
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	return c.backend.ListModels(ctx)
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > c.cfg.MaxDelay {
			return c.cfg.MaxDelay
		}
	}
	return delay
}

func (c *Client) classify(parent, callCtx context.Context, content string, err error) attemptResult {
	if err == nil {
		return attemptResult{outcome: outcomeSuccess, content: content}
	}

	if callCtx.Err() != nil {
		return attemptResult{outcome: outcomeFatal, err: c.contextError(parent, callCtx)}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusUnauthorized || statusErr.Code == http.StatusForbidden:
			return attemptResult{outcome: outcomeFatal, err: fmt.Errorf("%w (HTTP %d)", types.ErrUnauthorized, statusErr.Code)}
		case statusErr.Code >= 500:
			return attemptResult{outcome: outcomeRetryable, err: &types.UpstreamRejectedError{Status: statusErr.Code, Body: statusErr.Body}}
		default:
			return attemptResult{outcome: outcomeFatal, err: &types.UpstreamRejectedError{Status: statusErr.Code, Body: statusErr.Body}}
		}
	}

	if errors.Is(err, types.ErrMalformedResponse) {
		return attemptResult{outcome: outcomeFatal, err: err}
	}

	if isTransient(err) {
		return attemptResult{outcome: outcomeRetryable, err: fmt.Errorf("%w: %v", types.ErrUpstreamUnavailable, err)}
	}

	return attemptResult{outcome: outcomeFatal, err: fmt.Errorf("model request failed: %w", err)}
}

// contextError reports an interrupt as ErrUserAborted and an expired call
// deadline as ErrUpstreamTimeout.
func (c *Client) contextError(parent, callCtx context.Context) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return types.ErrUserAborted
	}
	if callCtx.Err() != nil {
		return fmt.Errorf("%w after %s", types.ErrUpstreamTimeout, c.cfg.Timeout)
	}
	return nil
}

// isTransient reports connection-level failures worth retrying. Failures
// that repeat on every attempt, such as a rejected certificate or an
// unsupported URL scheme, are not transient.
func isTransient(err error) bool {
	if badCertificate(err) {
		return false
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return true
	}

	// *url.Error satisfies net.Error too, so only its timeouts count
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func badCertificate(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var authorityErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}
