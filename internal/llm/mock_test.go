package llm

import (
	"context"
	"sync/atomic"
)

// scriptedProvider returns errs in order, then succeeds.
type scriptedProvider struct {
	name   string
	errs   []error
	tokens int
	calls  atomic.Int64
}

func (m *scriptedProvider) Name() string { return m.name }

func (m *scriptedProvider) next() error {
	n := int(m.calls.Add(1)) - 1
	if n < len(m.errs) {
		return m.errs[n]
	}
	return nil
}

func (m *scriptedProvider) Complete(ctx context.Context, _ *Prompt, _ *RequestOptions) (*Response, error) {
	if err := m.next(); err != nil {
		return nil, err
	}
	return &Response{Content: "ok", InputTokens: m.tokens / 2, OutputTokens: m.tokens - m.tokens/2}, nil
}

func (m *scriptedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := m.next(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}
