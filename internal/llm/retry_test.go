package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func fastRetry(max int) *RetryConfig {
	return &RetryConfig{MaxRetries: max, RetryDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Timeout: time.Second}
}

func TestNewRetryProvider_NilConfig(t *testing.T) {
	r := NewRetryProvider(&scriptedProvider{name: "x"}, nil)
	if r.config.MaxRetries != DefaultRetryConfig().MaxRetries {
		t.Fatalf("expected default retries, got %d", r.config.MaxRetries)
	}
	if r.Name() != "x" {
		t.Fatalf("expected name x, got %s", r.Name())
	}
}

func TestRetryProvider_Complete_RetriesThenSucceeds(t *testing.T) {
	inner := &scriptedProvider{errs: []error{errors.New("503 Service Unavailable"), errors.New("502")}}
	r := NewRetryProvider(inner, fastRetry(3))

	resp, err := r.Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestRetryProvider_Complete_StopsOnNonRetryable(t *testing.T) {
	inner := &scriptedProvider{errs: []error{&StatusError{Code: 401, Err: errors.New("bad key")}}}
	r := NewRetryProvider(inner, fastRetry(3))

	_, err := r.Complete(context.Background(), &Prompt{}, nil)
	if err == nil || !strings.Contains(err.Error(), "non-retryable") {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestRetryProvider_Embed_ExhaustsBudget(t *testing.T) {
	fail := errors.New("500 Internal Server Error")
	inner := &scriptedProvider{errs: []error{fail, fail, fail, fail}}
	r := NewRetryProvider(inner, fastRetry(2))

	_, err := r.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, fail) {
		t.Fatalf("expected wrapped last error, got %v", err)
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestRetryProvider_RespectsCancellation(t *testing.T) {
	inner := &scriptedProvider{errs: []error{errors.New("503"), errors.New("503")}}
	r := NewRetryProvider(inner, &RetryConfig{MaxRetries: 5, RetryDelay: time.Hour, MaxDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := r.Complete(ctx, &Prompt{}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"unsupported", fmt.Errorf("x: %w", ErrEmbeddingsUnsupported), false},
		{"status 429", &StatusError{Code: 429, Err: errors.New("slow down")}, true},
		{"status 429 daily", &StatusError{Code: 429, Err: errors.New("tokens per day exceeded")}, false},
		{"status 503", &StatusError{Code: 503, Err: errors.New("x")}, true},
		{"status 404", &StatusError{Code: 404, Err: errors.New("x")}, false},
		{"text 429", errors.New("429 Too Many Requests"), true},
		{"text TPD", errors.New("429 rate limit TPD"), false},
		{"text 504", errors.New("Gateway Timeout"), true},
		{"text 400", errors.New("400 Bad Request"), false},
		{"unknown", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryProvider_Backoff(t *testing.T) {
	r := NewRetryProvider(&scriptedProvider{}, &RetryConfig{RetryDelay: 100 * time.Millisecond, MaxDelay: time.Second})
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := r.backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestWrapWithRetry(t *testing.T) {
	if WrapWithRetry(nil, ProviderConfig{}) != nil {
		t.Fatal("expected nil for nil provider")
	}
	p := WrapWithRetry(&scriptedProvider{}, ProviderConfig{Timeout: 3 * time.Minute, MaxRetries: 5, RetryDelay: 2 * time.Second})
	r, ok := p.(*RetryProvider)
	if !ok {
		t.Fatalf("expected *RetryProvider, got %T", p)
	}
	if r.config.Timeout != 3*time.Minute || r.config.MaxRetries != 5 || r.config.RetryDelay != 2*time.Second {
		t.Errorf("config not applied: %+v", r.config)
	}
}
