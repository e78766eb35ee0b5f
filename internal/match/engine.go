// Package match maps free-text scenarios to the most similar reference
// cases. Retrieval prefers cloud embeddings, then local embeddings, then a
// lexical TF-IDF index; the chosen tier sticks until an explicit resync.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/efebarandurmaz/riskmap/internal/corpus"
	"github.com/efebarandurmaz/riskmap/internal/embedding"
	"github.com/efebarandurmaz/riskmap/internal/lexical"
	"github.com/efebarandurmaz/riskmap/internal/observability"
	"github.com/efebarandurmaz/riskmap/internal/vector"
)

// DefaultTopK is used when a caller passes topK <= 0.
const DefaultTopK = 5

// CorpusLoader supplies the documents to index.
type CorpusLoader interface {
	Load(ctx context.Context) corpus.Corpus
}

// Configurable is implemented by providers that may lack credentials.
type Configurable interface {
	Configured() bool
}

// Options wires an Engine. Cloud and Local may be nil; Store defaults to an
// in-memory store.
type Options struct {
	Loader  CorpusLoader
	Cloud   embedding.Provider
	Local   embedding.Provider
	Store   vector.Store
	TopK    int
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Audit   observability.Sink
}

type session struct {
	docs     corpus.Corpus
	variant  variant
	tier     string
	model    string
	primary  retriever
	fallback lexicalRetriever
	builtAt  time.Time
}

// Engine is safe for concurrent use.
type Engine struct {
	opts   Options
	logger *slog.Logger

	mu   sync.RWMutex
	sess *session
}

// New creates an Engine. Nothing is indexed until the first query, Preload
// or Resync.
func New(opts Options) *Engine {
	if opts.Store == nil {
		opts.Store = vector.NewMemory()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{opts: opts, logger: logger}
}

// FindSimilar returns up to topK cases ordered by similarity. It never
// fails: an empty corpus or blank query yields an empty slice, and a
// query-time vector failure falls back to the lexical index for that query.
func (e *Engine) FindSimilar(ctx context.Context, query string, topK int) []MatchResult {
	if topK <= 0 {
		topK = e.opts.TopK
	}
	text := corpus.NormalizeText(query)
	if text == "" {
		return []MatchResult{}
	}

	sess := e.acquire(ctx)
	defer e.mu.RUnlock()

	if len(sess.docs) == 0 {
		e.opts.Metrics.Query(sess.tier, "empty")
		return []MatchResult{}
	}
	hits, err := sess.primary.query(ctx, text, topK)
	if err == nil {
		e.opts.Metrics.Query(sess.tier, "ok")
		return toResults(hits)
	}
	if sess.variant == lexicalOnly {
		e.logger.Warn("lexical query failed", "err", err)
		e.opts.Metrics.Query(sess.tier, "empty")
		return []MatchResult{}
	}
	e.logger.Warn("vector query failed, using lexical fallback", "tier", sess.tier, "err", err)
	hits, err = sess.fallback.query(ctx, text, topK)
	if err != nil {
		e.opts.Metrics.Query(sess.tier, "empty")
		return []MatchResult{}
	}
	e.opts.Metrics.Query(sess.tier, "fallback")
	return toResults(hits)
}

// Status reports the active tier without forcing a build.
func (e *Engine) Status(ctx context.Context) Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.sess == nil {
		return Status{Tier: TierUninitialized}
	}
	return Status{
		Tier:      e.sess.tier,
		Provider:  e.sess.variant.provider(),
		Model:     e.sess.model,
		Documents: len(e.sess.docs),
		BuiltAt:   e.sess.builtAt,
	}
}

// Preload builds the session if it does not exist yet.
func (e *Engine) Preload(ctx context.Context) Status {
	e.acquire(ctx)
	e.mu.RUnlock()
	return e.Status(ctx)
}

// Resync reloads the corpus and re-runs tier selection. It waits for
// in-flight queries and blocks new ones until the rebuild finishes.
func (e *Engine) Resync(ctx context.Context) Status {
	e.mu.Lock()
	e.sess = e.build(ctx)
	sess := e.sess
	e.mu.Unlock()

	observability.Emit(ctx, e.opts.Audit, &observability.Event{
		Type:    observability.EventMatcherResync,
		Success: true,
		Message: fmt.Sprintf("matcher resynced: %s", sess.tier),
		Details: map[string]any{"tier": sess.tier, "provider": sess.variant.provider(), "documents": len(sess.docs)},
	})
	return e.Status(ctx)
}

// acquire returns the session with the read lock held. The caller must
// RUnlock.
func (e *Engine) acquire(ctx context.Context) *session {
	e.mu.RLock()
	if e.sess != nil {
		return e.sess
	}
	e.mu.RUnlock()

	e.mu.Lock()
	if e.sess == nil {
		e.sess = e.build(ctx)
	}
	e.mu.Unlock()

	e.mu.RLock()
	return e.sess
}

func (e *Engine) build(ctx context.Context) *session {
	var docs corpus.Corpus
	if e.opts.Loader != nil {
		docs = e.opts.Loader.Load(ctx)
	}
	sess := &session{
		docs:     docs,
		fallback: lexicalRetriever{index: lexical.Build(docs)},
		builtAt:  time.Now(),
	}

	var cloudConfigured, cloudOK, localOK bool
	if len(docs) > 0 {
		cloudConfigured = configured(e.opts.Cloud)
		if cloudConfigured {
			cloudOK = e.index(ctx, e.opts.Cloud, docs)
		}
		if !cloudOK && configured(e.opts.Local) {
			localOK = e.index(ctx, e.opts.Local, docs)
		}
	} else {
		e.logger.Warn("corpus is empty, matcher will return no cases")
	}

	sess.variant = selectTier(cloudConfigured, cloudOK, localOK)
	switch sess.variant {
	case cloudVector:
		sess.primary = vectorRetriever{provider: e.opts.Cloud, store: e.opts.Store}
		sess.model = e.opts.Cloud.Model()
		sess.tier = "vector/" + e.opts.Store.Name()
	case localVector:
		sess.primary = vectorRetriever{provider: e.opts.Local, store: e.opts.Store}
		sess.model = e.opts.Local.Model()
		sess.tier = "vector/" + e.opts.Store.Name()
	default:
		sess.primary = sess.fallback
		sess.tier = TierLexical
		if len(docs) > 0 {
			e.logger.Warn("no embedding tier available, using lexical matching")
		}
	}

	e.logger.Info("tier selected", "tier", sess.tier, "provider", sess.variant.provider(), "model", sess.model, "documents", len(docs))
	e.opts.Metrics.TierSelected(sess.tier, sess.variant.provider())
	observability.Emit(ctx, e.opts.Audit, &observability.Event{
		Type:    observability.EventMatcherTier,
		Success: true,
		Message: "tier selected: " + sess.tier,
		Details: map[string]any{"tier": sess.tier, "provider": sess.variant.provider(), "model": sess.model, "documents": len(docs)},
	})
	return sess
}

func configured(p embedding.Provider) bool {
	if p == nil {
		return false
	}
	if c, ok := p.(Configurable); ok {
		return c.Configured()
	}
	return true
}

// index embeds the whole corpus with p and replaces the store contents.
// Any failure, including a partial batch, rejects the tier.
func (e *Engine) index(ctx context.Context, p embedding.Provider, docs corpus.Corpus) bool {
	ctx, span := observability.StartTierSpan(ctx, p.Name(), len(docs))
	defer span.End()

	err := func() error {
		vecs, err := p.EmbedMany(ctx, docs.Texts())
		if err != nil {
			return err
		}
		records := make([]vector.Record, len(docs))
		for i, d := range docs {
			records[i] = vector.Record{
				ID:        d.ID,
				Embedding: vecs[i],
				Metadata:  map[string]string{"name": d.Name},
			}
		}
		return e.opts.Store.ReplaceAll(ctx, records)
	}()
	if err != nil {
		observability.RecordError(span, err)
		e.logger.Warn("embedding tier unavailable", "provider", p.Name(), "model", p.Model(), "err", err)
		return false
	}
	return true
}
