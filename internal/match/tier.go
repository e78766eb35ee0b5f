package match

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/riskmap/internal/embedding"
	"github.com/efebarandurmaz/riskmap/internal/lexical"
	"github.com/efebarandurmaz/riskmap/internal/vector"
)

// variant is the closed set of retrieval strategies.
type variant int

const (
	cloudVector variant = iota
	localVector
	lexicalOnly
)

const (
	TierLexical       = "lexical"
	TierUninitialized = "uninitialized"

	ProviderCloud = "cloud"
	ProviderLocal = "local"
	ProviderTFIDF = "tfidf"
)

func (v variant) provider() string {
	switch v {
	case cloudVector:
		return ProviderCloud
	case localVector:
		return ProviderLocal
	}
	return ProviderTFIDF
}

// selectTier picks the first tier whose index build succeeded. A cloud
// success only counts when the cloud provider is configured.
func selectTier(cloudConfigured, cloudOK, localOK bool) variant {
	switch {
	case cloudConfigured && cloudOK:
		return cloudVector
	case localOK:
		return localVector
	default:
		return lexicalOnly
	}
}

type scored struct {
	ID    string
	Name  string
	Score float64
}

type retriever interface {
	query(ctx context.Context, text string, k int) ([]scored, error)
}

type vectorRetriever struct {
	provider embedding.Provider
	store    vector.Store
}

func (r vectorRetriever) query(ctx context.Context, text string, k int) ([]scored, error) {
	emb, err := r.provider.EmbedOne(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.store.Query(ctx, emb, k)
	if err != nil {
		return nil, fmt.Errorf("query %s store: %w", r.store.Name(), err)
	}
	out := make([]scored, len(hits))
	for i, h := range hits {
		out[i] = scored{ID: h.ID, Name: h.Name, Score: h.Similarity}
	}
	return out, nil
}

type lexicalRetriever struct {
	index *lexical.Index
}

func (r lexicalRetriever) query(_ context.Context, text string, k int) ([]scored, error) {
	hits := r.index.Query(text, k)
	out := make([]scored, len(hits))
	for i, h := range hits {
		out[i] = scored{ID: h.ID, Name: h.Name, Score: h.Score}
	}
	return out, nil
}
