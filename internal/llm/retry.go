package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for backend calls.
type RetryConfig struct {
	MaxRetries int           // retry attempts after the first call (0 = none)
	RetryDelay time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap on the exponential backoff
	Timeout    time.Duration // per-attempt timeout
}

// DefaultRetryConfig returns the configuration used when none is given.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		RetryDelay: time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    time.Minute,
	}
}

// RetryProvider wraps a Provider with per-attempt timeouts and backoff.
type RetryProvider struct {
	inner  Provider
	config *RetryConfig
}

// NewRetryProvider wraps inner. A nil config uses DefaultRetryConfig.
func NewRetryProvider(inner Provider, config *RetryConfig) *RetryProvider {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryProvider{inner: inner, config: config}
}

func (r *RetryProvider) Name() string { return r.inner.Name() }

func (r *RetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	return withRetry(ctx, r, func(ctx context.Context) (*Response, error) {
		return r.inner.Complete(ctx, prompt, opts)
	})
}

func (r *RetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return withRetry(ctx, r, func(ctx context.Context) ([][]float32, error) {
		return r.inner.Embed(ctx, texts)
	})
}

func withRetry[T any](ctx context.Context, r *RetryProvider, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if r.config.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		}
		out, err := call(attemptCtx)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, fmt.Errorf("non-retryable error: %w", err)
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, lastErr)
}

// backoff returns RetryDelay * 2^(attempt-1), capped at MaxDelay.
func (r *RetryProvider) backoff(attempt int) time.Duration {
	delay := r.config.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if r.config.MaxDelay > 0 && delay >= r.config.MaxDelay {
			return r.config.MaxDelay
		}
	}
	return delay
}

// IsRetryable reports whether err is worth another attempt. Caller
// cancellation, missing embeddings support, daily token limits and 4xx
// responses other than 429 are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrEmbeddingsUnsupported) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	dailyLimit := strings.Contains(msg, "tokens per day") || strings.Contains(msg, "TPD")

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests:
			return !dailyLimit
		case se.Code >= 500:
			return true
		case se.Code >= 400:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	if strings.Contains(msg, "429") || strings.Contains(msg, http.StatusText(http.StatusTooManyRequests)) {
		return !dailyLimit
	}
	for _, code := range []int{500, 502, 503, 504} {
		if strings.Contains(msg, fmt.Sprint(code)) || strings.Contains(msg, http.StatusText(code)) {
			return true
		}
	}
	for _, code := range []string{"400", "401", "403", "404"} {
		if strings.Contains(msg, code) {
			return false
		}
	}
	return true
}

// WrapWithRetry wraps provider using the retry fields of cfg.
func WrapWithRetry(provider Provider, cfg ProviderConfig) Provider {
	if provider == nil {
		return nil
	}
	rc := DefaultRetryConfig()
	if cfg.Timeout > 0 {
		rc.Timeout = cfg.Timeout
	}
	if cfg.MaxRetries > 0 {
		rc.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		rc.RetryDelay = cfg.RetryDelay
	}
	return NewRetryProvider(provider, rc)
}
