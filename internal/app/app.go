// Package app assembles the matcher, the workflow runner and their
// collaborators from configuration. Both binaries start from New.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/efebarandurmaz/riskmap/internal/config"
	"github.com/efebarandurmaz/riskmap/internal/corpus"
	"github.com/efebarandurmaz/riskmap/internal/embedding"
	"github.com/efebarandurmaz/riskmap/internal/graph"
	graphneo4j "github.com/efebarandurmaz/riskmap/internal/graph/neo4j"
	"github.com/efebarandurmaz/riskmap/internal/llm"
	"github.com/efebarandurmaz/riskmap/internal/llm/openai"
	"github.com/efebarandurmaz/riskmap/internal/match"
	"github.com/efebarandurmaz/riskmap/internal/observability"
	"github.com/efebarandurmaz/riskmap/internal/recommend"
	"github.com/efebarandurmaz/riskmap/internal/scenario"
	"github.com/efebarandurmaz/riskmap/internal/secrets"
	"github.com/efebarandurmaz/riskmap/internal/store"
	"github.com/efebarandurmaz/riskmap/internal/vector"
	"github.com/efebarandurmaz/riskmap/internal/vector/qdrant"
	vectorsqlite "github.com/efebarandurmaz/riskmap/internal/vector/sqlite"
	"github.com/efebarandurmaz/riskmap/internal/workflow"
)

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *store.Store
	Engine    *match.Engine
	Runner    *workflow.Runner
	Scenarios *scenario.Service
	Metrics   *observability.Metrics
	Tracing   *observability.TracerProvider
	Lineage   graph.Repository
	LLM       llm.Provider
	// Cloud is the key-gated embedding tier. It reports not configured
	// when no API key resolved, even for keyless providers like ollama.
	Cloud *embedding.Cloud

	closers []func(context.Context) error
}

// New wires every component. Optional backends that fail to connect are
// logged and replaced by their in-process equivalents; only the case
// database and config errors are fatal.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	if cfg.Metrics.Enabled {
		a.Metrics = observability.NewMetrics()
	}

	tcfg := observability.DefaultTracingConfig()
	tcfg.OTLPEndpoint = cfg.Tracing.Endpoint
	tcfg.SampleRate = cfg.Tracing.SampleRate
	tp, err := observability.InitTracing(ctx, tcfg)
	if err != nil {
		logger.Warn("tracing disabled", "err", err)
	} else {
		a.Tracing = tp
		a.onClose(tp.Shutdown)
	}

	sm, err := secrets.NewManager(secrets.Config{Provider: cfg.Secrets.Provider, FilePath: cfg.Secrets.FilePath})
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Corpus.DataDir)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.onClose(func(context.Context) error { return st.Close() })
	if cfg.Corpus.Seed {
		a.seed(ctx)
	}

	audit := a.auditSinks(cfg)

	factory := llm.NewFactory()
	openai.Register(factory)
	a.LLM, err = a.provider(ctx, factory, sm, cfg.LLM.ResolveForRole(config.RoleRecommend))
	if err != nil {
		return nil, err
	}
	embedCfg := cfg.LLM.ResolveForRole(config.RoleEmbedding)
	embedLLM := a.LLM
	if _, ok := cfg.LLM.Roles[config.RoleEmbedding]; ok {
		if embedLLM, err = a.provider(ctx, factory, sm, embedCfg); err != nil {
			return nil, err
		}
	}
	if embedLLM != nil && a.apiKey(ctx, sm, embedCfg) == "" {
		a.Logger.Info("cloud embedding tier needs an API key, keyless endpoints are served by the local tier", "provider", embedCfg.Provider)
		embedLLM = nil
	}
	a.Cloud = embedding.NewCloud(embedLLM, embedding.CloudOptions{
		Model:       cfg.LLM.EmbedModel,
		BatchSize:   cfg.LLM.BatchSize,
		Concurrency: cfg.LLM.Concurrency,
	})

	engineOpts := match.Options{
		Loader:  corpus.NewLoader(st, cfg.Corpus.StaticPath, logger),
		Cloud:   a.Cloud,
		Store:   a.vectorStore(cfg.Vector),
		Logger:  logger,
		Metrics: a.Metrics,
		Audit:   audit,
	}
	if cfg.Local.Enabled {
		client := embedding.NewOllamaClient(cfg.Local.BaseURL, cfg.Local.Timeout)
		engineOpts.Local = embedding.NewLocal(client,
			&embedding.OllamaLoader{Client: client, Model: cfg.Local.Model, AutoPull: cfg.Local.AutoPull},
			embedding.LocalOptions{Model: cfg.Local.Model, BatchSize: cfg.Local.BatchSize, Logger: logger})
	}
	a.Engine = match.New(engineOpts)

	gen := recommend.New(a.LLM, a.Store, logger)
	gen.Model = cfg.LLM.Model
	gen.Temperature = cfg.LLM.Temperature
	gen.MaxTokens = cfg.LLM.MaxTokens

	a.Runner = workflow.NewRunner(workflow.Options{
		Matcher:     a.Engine,
		Recommender: gen,
		Logger:      logger,
		Metrics:     a.Metrics,
		Audit:       audit,
	})
	a.Lineage = a.lineage(ctx, cfg.Graph, sm)
	a.Scenarios = scenario.New(a.Runner, st, a.Lineage, logger)
	return a, nil
}

// ProviderName names the LLM in use, or "" when recommendations are off.
func (a *App) ProviderName() string {
	if a.LLM == nil {
		return ""
	}
	return a.LLM.Name()
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) seed(ctx context.Context) {
	path := a.Config.Corpus.ReferencePath
	if path == "" {
		return
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		a.Logger.Debug("no reference cases file", "path", path)
		return
	}
	cases, err := store.LoadReferenceFile(path)
	if err != nil {
		a.Logger.Warn("reference cases unusable", "path", path, "err", err)
		return
	}
	n, err := a.Store.SeedReferenceCases(ctx, cases)
	if err != nil {
		a.Logger.Warn("seeding reference cases failed", "err", err)
		return
	}
	if n > 0 {
		a.Logger.Info("reference cases seeded", "added", n)
	}
}

func (a *App) apiKey(ctx context.Context, sm *secrets.Manager, c config.LLMConfig) string {
	if key := sm.Resolve(ctx, c.APIKey, secrets.SecretCloudAPIKey); key != "" {
		return key
	}
	return sm.Resolve(ctx, "", secrets.SecretLLMAPIKey)
}

// provider builds an LLM client. A missing API key disables the provider
// rather than failing every call, except for ollama which needs none.
func (a *App) provider(ctx context.Context, f *llm.ProviderFactory, sm *secrets.Manager, c config.LLMConfig) (llm.Provider, error) {
	key := a.apiKey(ctx, sm, c)
	if key == "" && c.Provider != "ollama" {
		if c.Provider != "" && c.Provider != "none" {
			a.Logger.Warn("no API key for LLM provider, cloud tier and recommendations disabled", "provider", c.Provider)
		}
		return nil, nil
	}
	p, err := f.Create(llm.ProviderConfig{
		Provider:   c.Provider,
		APIKey:     key,
		Model:      c.Model,
		BaseURL:    c.BaseURL,
		EmbedModel: c.EmbedModel,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
		RateLimit: &llm.RateLimitConfig{
			RequestsPerMinute: c.RequestsPerMinute,
			TokensPerMinute:   c.TokensPerMinute,
			BurstSize:         llm.DefaultRateLimitConfig().BurstSize,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	return p, nil
}

func (a *App) vectorStore(c config.VectorConfig) vector.Store {
	switch c.Backend {
	case "sqlite", "":
		s, err := vectorsqlite.Open(c.DataDir, c.Collection)
		if err != nil {
			a.Logger.Warn("sqlite vector store unavailable, using in-memory store", "err", err)
			return vector.NewMemory()
		}
		a.onClose(func(context.Context) error { return s.Close() })
		return s
	case "qdrant":
		s, err := qdrant.New(c.Host, c.Port, c.Collection)
		if err != nil {
			a.Logger.Warn("qdrant unavailable, using in-memory store", "host", c.Host, "err", err)
			return vector.NewMemory()
		}
		a.onClose(func(context.Context) error { return s.Close() })
		return s
	}
	return vector.NewMemory()
}

func (a *App) auditSinks(cfg *config.Config) observability.Sink {
	var sinks observability.Multi
	if cfg.Audit.Store {
		sinks = append(sinks, a.Store)
	}
	if cfg.Audit.Enabled {
		l, err := observability.NewAuditLogger(&observability.AuditConfig{Enabled: true, OutputPath: cfg.Audit.Path})
		if err != nil {
			a.Logger.Warn("audit log unavailable", "path", cfg.Audit.Path, "err", err)
		} else {
			sinks = append(sinks, l)
			a.onClose(func(context.Context) error { return l.Close() })
		}
	}
	if cfg.NATS.URL != "" {
		n, err := observability.DialNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			a.Logger.Warn("nats audit sink unavailable", "url", cfg.NATS.URL, "err", err)
		} else {
			sinks = append(sinks, n)
			a.onClose(func(context.Context) error { return n.Close() })
		}
	}
	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

func (a *App) lineage(ctx context.Context, c config.GraphConfig, sm *secrets.Manager) graph.Repository {
	if c.URI == "" {
		return graph.NewMemory()
	}
	password := sm.Resolve(ctx, c.Password, secrets.SecretNeo4jPassword)
	repo, err := graphneo4j.NewNeo4j(ctx, c.URI, c.Username, password)
	if err != nil {
		a.Logger.Warn("neo4j lineage unavailable, keeping lineage in memory", "uri", c.URI, "err", err)
		return graph.NewMemory()
	}
	a.onClose(repo.Close)
	return repo
}
