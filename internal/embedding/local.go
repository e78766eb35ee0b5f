package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const (
	DefaultLocalModel     = "all-minilm"
	DefaultLocalBatchSize = 32
)

// ModelLoader makes a local model ready for use.
type ModelLoader interface {
	Load(ctx context.Context) error
}

// Embedder is the minimal backend Local needs.
type Embedder interface {
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}

// OllamaLoader checks that a model is present and optionally pulls it.
type OllamaLoader struct {
	Client   *OllamaClient
	Model    string
	AutoPull bool
}

func (l *OllamaLoader) Load(ctx context.Context) error {
	ok, err := l.Client.HasModel(ctx, l.Model)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if !l.AutoPull {
		return fmt.Errorf("model %s not present and auto-pull disabled", l.Model)
	}
	return l.Client.Pull(ctx, l.Model)
}

// LocalOptions configures Local.
type LocalOptions struct {
	Model     string
	BatchSize int
	Logger    *slog.Logger
}

// Local embeds with a model served by the local Ollama daemon. The model is
// loaded at most once per Local; a failed load is remembered and never
// retried.
type Local struct {
	backend Embedder
	loader  ModelLoader
	opts    LocalOptions
	logger  *slog.Logger

	once    sync.Once
	loadErr error
}

// NewLocal creates a local provider. loader may be nil when the backend
// needs no preparation.
func NewLocal(backend Embedder, loader ModelLoader, opts LocalOptions) *Local {
	if opts.Model == "" {
		opts.Model = DefaultLocalModel
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultLocalBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{backend: backend, loader: loader, opts: opts, logger: logger}
}

func (l *Local) Name() string  { return "local" }
func (l *Local) Model() string { return l.opts.Model }

func (l *Local) ensureLoaded(ctx context.Context) error {
	l.once.Do(func() {
		if l.loader == nil {
			return
		}
		l.logger.Info("loading local embedding model", "model", l.opts.Model)
		if err := l.loader.Load(ctx); err != nil {
			l.loadErr = err
			l.logger.Warn("local embedding model failed to load", "model", l.opts.Model, "err", err)
			return
		}
		l.logger.Info("local embedding model ready", "model", l.opts.Model)
	})
	if l.loadErr != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, l.loadErr)
	}
	return nil
}

func (l *Local) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := l.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (l *Local) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if err := l.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	inputs := prepare(texts)
	out := make([][]float32, 0, len(inputs))
	for _, span := range chunks(len(inputs), l.opts.BatchSize) {
		vecs, err := l.backend.Embed(ctx, l.opts.Model, inputs[span[0]:span[1]])
		if err != nil {
			return nil, fmt.Errorf("embedding: local batch [%d:%d]: %w", span[0], span[1], err)
		}
		if err := validate(vecs, span[1]-span[0]); err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}
