package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/riskmap/internal/llm"
)

const (
	DefaultCloudModel       = "nomic-embed-text-v1_5"
	DefaultCloudBatchSize   = 50
	DefaultCloudConcurrency = 2
)

// CloudOptions configures Cloud. Zero values use the defaults.
type CloudOptions struct {
	Model       string
	BatchSize   int
	Concurrency int
}

// Cloud embeds through an llm.Provider. A nil provider stands for a missing
// API key.
type Cloud struct {
	provider llm.Provider
	opts     CloudOptions
}

// NewCloud creates a cloud embedding provider.
func NewCloud(p llm.Provider, opts CloudOptions) *Cloud {
	if opts.Model == "" {
		opts.Model = DefaultCloudModel
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultCloudBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultCloudConcurrency
	}
	return &Cloud{provider: p, opts: opts}
}

func (c *Cloud) Name() string  { return "cloud" }
func (c *Cloud) Model() string { return c.opts.Model }

// Configured reports whether an API key is present.
func (c *Cloud) Configured() bool { return c != nil && c.provider != nil }

func (c *Cloud) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany sends BatchSize-sized chunks, up to Concurrency at a time, and
// reassembles the results in input order.
func (c *Cloud) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.Configured() {
		return nil, ErrNoAPIKey
	}
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	inputs := prepare(texts)
	out := make([][]float32, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for _, span := range chunks(len(inputs), c.opts.BatchSize) {
		start, end := span[0], span[1]
		g.Go(func() error {
			vecs, err := c.provider.Embed(gctx, inputs[start:end])
			if err != nil {
				return fmt.Errorf("embedding: cloud batch [%d:%d]: %w", start, end, err)
			}
			if err := validate(vecs, end-start); err != nil {
				return fmt.Errorf("embedding: cloud batch [%d:%d] returned %d vectors: %w", start, end, len(vecs), err)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
