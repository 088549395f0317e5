// Package llmclient wraps a langchaingo chat model with bounded exponential
// backoff retry, adapted directly from the teacher's LLMRetryWrapper: the
// same retry-budget hierarchy, the same retryable-error heuristic, applied
// here to the Sherlock fallback call and the Subscription Matcher's
// reasoning call instead of the transaction explainer.
package llmclient

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// RetryConfig controls the backoff schedule.
type RetryConfig struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	TimeoutPerRetry time.Duration
}

// DefaultRetryConfig matches the teacher's timeout hierarchy: each provider
// call gets its own bounded attempt, leaving headroom under the orchestrator's
// overall deadline.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        30 * time.Second,
		BackoffFactor:   2.0,
		TimeoutPerRetry: 30 * time.Second,
	}
}

// RetryWrapper wraps an llms.Model with retry behaviour.
type RetryWrapper struct {
	model  llms.Model
	config RetryConfig
}

// NewRetryWrapper builds a wrapper around model using cfg.
func NewRetryWrapper(model llms.Model, cfg RetryConfig) *RetryWrapper {
	return &RetryWrapper{model: model, config: cfg}
}

// GenerateContent retries the underlying model call with exponential
// backoff, respecting both the parent context deadline (leaving a 5s buffer
// for cleanup) and the configured max retries.
func (w *RetryWrapper) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if w.model == nil {
		return nil, errors.New("llm model not configured")
	}

	delay := w.config.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		attemptCtx, cancel := boundedContext(ctx, w.config.TimeoutPerRetry)
		resp, err := w.model.GenerateContent(attemptCtx, messages, options...)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == w.config.MaxRetries || !isRetryableError(err) {
			return nil, lastErr
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * w.config.BackoffFactor)
		if delay > w.config.MaxDelay {
			delay = w.config.MaxDelay
		}
	}

	return nil, lastErr
}

func boundedContext(parent context.Context, perAttempt time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok {
		remaining := time.Until(deadline) - 5*time.Second
		if remaining < perAttempt {
			if remaining <= 0 {
				remaining = time.Second
			}
			return context.WithTimeout(parent, remaining)
		}
	}
	return context.WithTimeout(parent, perAttempt)
}

// isRetryableError mirrors the teacher's string-matching heuristic: context
// cancellation/deadlines, connection errors, common retryable HTTP statuses,
// provider-side rate-limit/overload wording, and DNS/network errors.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	retryableSubstrings := []string{
		"context canceled", "context deadline exceeded",
		"connection refused", "connection reset", "broken pipe",
		"no such host", "network is unreachable", "temporary failure",
		"429", "500", "502", "503", "504",
		"rate limit", "rate_limit", "overloaded", "server error", "service unavailable",
	}
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isRetryableError(urlErr.Err)
	}

	return false
}
