package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimitProvider_BurstPassesImmediately(t *testing.T) {
	inner := &scriptedProvider{name: "test", tokens: 10}
	rl := NewRateLimitProvider(inner, &RateLimitConfig{RequestsPerMinute: 60, TokensPerMinute: 10000, BurstSize: 3})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := rl.Complete(context.Background(), &Prompt{}, nil); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("burst should not wait, took %v", elapsed)
	}
	stats := rl.Stats()
	if stats.Requests != 3 || stats.Tokens != 30 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestRateLimitProvider_WaitHonoursContext(t *testing.T) {
	inner := &scriptedProvider{}
	rl := NewRateLimitProvider(inner, &RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})

	if _, err := rl.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := rl.Embed(ctx, []string{"a"}); err == nil {
		t.Fatal("expected the second call to be limited")
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("expected 1 inner call, got %d", got)
	}
}

func TestRateLimitProvider_Unlimited(t *testing.T) {
	inner := &scriptedProvider{}
	rl := NewRateLimitProvider(inner, &RateLimitConfig{})
	for i := 0; i < 50; i++ {
		if _, err := rl.Embed(context.Background(), []string{"a"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := inner.calls.Load(); got != 50 {
		t.Errorf("expected 50 calls, got %d", got)
	}
}

func TestRateLimitProvider_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	rl := NewRateLimitProvider(&scriptedProvider{errs: []error{boom}}, nil)
	if _, err := rl.Complete(context.Background(), &Prompt{}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestWithRateLimit_Nil(t *testing.T) {
	if WithRateLimit(nil, nil) != nil {
		t.Fatal("expected nil")
	}
}
