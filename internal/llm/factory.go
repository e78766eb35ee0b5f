package llm

import (
	"fmt"
	"sort"
	"time"
)

// ProviderConfig holds everything needed to build a provider.
type ProviderConfig struct {
	Provider   string // preset name: "groq", "openai", "ollama", "together", "deepseek", "custom"
	APIKey     string
	Model      string // chat model used for recommendations
	BaseURL    string // overrides the preset URL
	EmbedModel string

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	RateLimit *RateLimitConfig // nil disables rate limiting
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// ProviderFactory maps preset names to constructors.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// NewFactory returns an empty factory.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{constructors: make(map[string]ProviderConstructor)}
}

// Register adds a constructor under name, replacing any previous one.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds the configured provider. An empty or "none" provider returns
// nil without error so the caller runs without an LLM. The result is wrapped
// with rate limiting (innermost) and retries when configured.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}
	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (registered: %v)", cfg.Provider, f.Names())
	}
	p, err := ctor(cfg)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	if cfg.RateLimit != nil {
		p = NewRateLimitProvider(p, cfg.RateLimit)
	}
	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		p = WrapWithRetry(p, cfg)
	}
	return p, nil
}

// Names lists registered presets in sorted order.
func (f *ProviderFactory) Names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders maps OpenAI-compatible presets to their default base URLs.
var KnownProviders = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"groq":     "https://api.groq.com/openai/v1",
	"ollama":   "http://localhost:11434/v1",
	"together": "https://api.together.xyz/v1",
	"deepseek": "https://api.deepseek.com/v1",
}
