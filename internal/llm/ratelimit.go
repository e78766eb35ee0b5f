package llm

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds request and token throughput per minute. Zero
// disables the corresponding limit.
type RateLimitConfig struct {
	RequestsPerMinute int
	TokensPerMinute   int
	BurstSize         int
}

// DefaultRateLimitConfig matches free-tier Groq quotas.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 25,
		TokensPerMinute:   25000,
		BurstSize:         3,
	}
}

// RateLimitProvider gates calls to inner behind token buckets. Token usage
// reported by a completion is charged after the fact, so a large response
// delays the calls that follow it.
type RateLimitProvider struct {
	inner    Provider
	config   *RateLimitConfig
	requests *rate.Limiter
	tokens   *rate.Limiter

	requestCount atomic.Int64
	tokenCount   atomic.Int64
}

// NewRateLimitProvider wraps inner. A nil config uses DefaultRateLimitConfig.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	p := &RateLimitProvider{inner: inner, config: config}
	if config.RequestsPerMinute > 0 {
		burst := config.BurstSize
		if burst <= 0 {
			burst = 1
		}
		p.requests = rate.NewLimiter(perMinute(config.RequestsPerMinute), burst)
	}
	if config.TokensPerMinute > 0 {
		p.tokens = rate.NewLimiter(perMinute(config.TokensPerMinute), config.TokensPerMinute)
	}
	return p
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

func (r *RateLimitProvider) Name() string { return r.inner.Name() }

func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil {
		r.charge(resp.TotalTokens())
	}
	return resp, err
}

func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) wait(ctx context.Context) error {
	if r.requests != nil {
		if err := r.requests.Wait(ctx); err != nil {
			return err
		}
	}
	if r.tokens != nil {
		if err := r.tokens.Wait(ctx); err != nil {
			return err
		}
	}
	r.requestCount.Add(1)
	return nil
}

func (r *RateLimitProvider) charge(n int) {
	if n <= 0 {
		return
	}
	r.tokenCount.Add(int64(n))
	if r.tokens == nil {
		return
	}
	if n > r.tokens.Burst() {
		n = r.tokens.Burst()
	}
	r.tokens.ReserveN(time.Now(), n)
}

// RateLimitStats reports totals since construction.
type RateLimitStats struct {
	Requests int64
	Tokens   int64
}

func (r *RateLimitProvider) Stats() RateLimitStats {
	return RateLimitStats{Requests: r.requestCount.Load(), Tokens: r.tokenCount.Load()}
}

// WithRateLimit wraps p, passing nil through.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
