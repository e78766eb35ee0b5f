// Package secrets resolves credentials from the environment or a local JSON
// file, with the environment as fallback.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// SecretKey identifies common secret types.
type SecretKey string

const (
	// SecretCloudAPIKey is read as RISKMAP_GROQ_API_KEY or GROQ_API_KEY from
	// the environment.
	SecretCloudAPIKey    SecretKey = "groq_api_key"
	SecretLLMAPIKey      SecretKey = "llm_api_key"
	SecretNeo4jPassword  SecretKey = "neo4j_password"
	SecretTemporalAPIKey SecretKey = "temporal_api_key"
)

// DefaultEnvPrefix is prepended to environment lookups.
const DefaultEnvPrefix = "RISKMAP_"

// ErrNotFound is returned when no backend holds the secret.
var ErrNotFound = errors.New("secret not found")

// Provider is the interface for secret backends.
type Provider interface {
	// Get retrieves a secret by key.
	Get(ctx context.Context, key string) (string, error)
	// Name returns the provider name.
	Name() string
}

// Config configures the secrets manager.
type Config struct {
	// Provider specifies which backend to use: "env" or "file"
	Provider string
	// FilePath for the file backend (development only)
	FilePath string
	// EnvPrefix for environment variable names (default: "RISKMAP_")
	EnvPrefix string
}

// Manager provides unified access to secrets from multiple backends.
type Manager struct {
	primary  Provider
	fallback Provider
	cache    map[string]string
	cacheMu  sync.RWMutex
}

// NewManager creates a secrets manager with the specified configuration.
func NewManager(cfg Config) (*Manager, error) {
	env := NewEnvProvider(cfg.EnvPrefix)
	m := &Manager{primary: env, cache: make(map[string]string)}

	switch cfg.Provider {
	case "env", "":
	case "file":
		if cfg.FilePath == "" {
			return nil, errors.New("secrets: file provider requires a path")
		}
		fp, err := NewFileProvider(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("secrets: create file provider: %w", err)
		}
		m.primary, m.fallback = fp, env
	default:
		return nil, fmt.Errorf("secrets: unknown provider %q", cfg.Provider)
	}
	return m, nil
}

// Backend names the primary provider.
func (m *Manager) Backend() string { return m.primary.Name() }

// Get retrieves a secret, trying primary then fallback.
func (m *Manager) Get(ctx context.Context, key SecretKey) (string, error) {
	k := string(key)
	m.cacheMu.RLock()
	val, ok := m.cache[k]
	m.cacheMu.RUnlock()
	if ok {
		return val, nil
	}

	for _, p := range []Provider{m.primary, m.fallback} {
		if p == nil {
			continue
		}
		if val, err := p.Get(ctx, k); err == nil && val != "" {
			m.cacheMu.Lock()
			m.cache[k] = val
			m.cacheMu.Unlock()
			return val, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, k)
}

// Resolve returns configured when it is set, otherwise the secret, otherwise
// the empty string.
func (m *Manager) Resolve(ctx context.Context, configured string, key SecretKey) string {
	if configured != "" || m == nil {
		return configured
	}
	val, _ := m.Get(ctx, key)
	return val
}

// ClearCache clears the secrets cache.
func (m *Manager) ClearCache() {
	m.cacheMu.Lock()
	m.cache = make(map[string]string)
	m.cacheMu.Unlock()
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-based secrets provider.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	// Try with prefix first
	envKey := p.prefix + strings.ToUpper(key)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}
	if val := os.Getenv(strings.ToUpper(key)); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("env var not found: %s", envKey)
}
