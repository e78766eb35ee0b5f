package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "configs/riskmap.yaml"

// Config holds all application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Local    LocalConfig    `mapstructure:"local"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Corpus   CorpusConfig   `mapstructure:"corpus"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Server   ServerConfig   `mapstructure:"server"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
	Log      LogConfig      `mapstructure:"log"`
}

type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	EmbedModel        string        `mapstructure:"embed_model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	BatchSize         int           `mapstructure:"batch_size"`
	Concurrency       int           `mapstructure:"concurrency"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	TokensPerMinute   int           `mapstructure:"tokens_per_minute"`

	// Per-role overrides. Keys are "embedding" or "recommend". Each
	// override inherits unset fields from the top-level LLM config.
	Roles map[string]LLMRoleOverride `mapstructure:"roles"`
}

// LLMRoleOverride allows a different provider for embeddings or
// recommendations.
type LLMRoleOverride struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// Roles that may be overridden.
const (
	RoleEmbedding = "embedding"
	RoleRecommend = "recommend"
)

// ResolveForRole returns an LLMConfig with role-specific overrides applied.
func (c LLMConfig) ResolveForRole(role string) LLMConfig {
	override, ok := c.Roles[role]
	if !ok {
		return c
	}
	resolved := c
	if override.Provider != "" {
		resolved.Provider = override.Provider
	}
	if override.Model != "" {
		resolved.Model = override.Model
	}
	if override.APIKey != "" {
		resolved.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		resolved.BaseURL = override.BaseURL
	}
	return resolved
}

// LocalConfig drives the Ollama embedding tier.
type LocalConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	AutoPull  bool          `mapstructure:"auto_pull"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// VectorConfig selects the vector store: "sqlite", "qdrant" or "memory".
type VectorConfig struct {
	Backend    string `mapstructure:"backend"`
	DataDir    string `mapstructure:"data_dir"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

// CorpusConfig locates the case database and the bundled case files.
type CorpusConfig struct {
	DataDir       string `mapstructure:"data_dir"`
	StaticPath    string `mapstructure:"static_path"`
	ReferencePath string `mapstructure:"reference_path"`
	Seed          bool   `mapstructure:"seed"`
}

// GraphConfig enables Neo4j lineage when URI is set.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// TemporalConfig enables durable dispatch when Host is set.
type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// NATSConfig enables the NATS audit sink when URL is set.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Store   bool   `mapstructure:"store"`
}

type TracingConfig struct {
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type SecretsConfig struct {
	Provider string `mapstructure:"provider"`
	FilePath string `mapstructure:"file_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.model", "llama-3.1-8b-instant")
	v.SetDefault("llm.embed_model", "nomic-embed-text-v1_5")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.batch_size", 50)
	v.SetDefault("llm.concurrency", 2)
	v.SetDefault("llm.timeout", time.Minute)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.requests_per_minute", 25)
	v.SetDefault("llm.tokens_per_minute", 25000)

	v.SetDefault("local.enabled", true)
	v.SetDefault("local.base_url", "http://localhost:11434")
	v.SetDefault("local.model", "all-minilm")
	v.SetDefault("local.auto_pull", false)
	v.SetDefault("local.batch_size", 32)
	v.SetDefault("local.timeout", 2*time.Minute)

	v.SetDefault("vector.backend", "sqlite")
	v.SetDefault("vector.data_dir", "data/vectors")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "historical_cases")

	v.SetDefault("corpus.data_dir", "data")
	v.SetDefault("corpus.static_path", "data/historical_cases.json")
	v.SetDefault("corpus.reference_path", "data/reference_cases.json")
	v.SetDefault("corpus.seed", true)

	v.SetDefault("graph.uri", "")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")

	v.SetDefault("temporal.host", "")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "riskmap-scenarios")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "riskmap.audit")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.path", "")
	v.SetDefault("audit.store", true)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("server.addr", ":8000")

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.file_path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty; cloud embeddings and recommendations need a key", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}
	switch c.Vector.Backend {
	case "", "sqlite", "qdrant", "memory":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown vector backend '%s', using in-memory store", c.Vector.Backend))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0, 1]", c.Tracing.SampleRate))
	}
	return warnings
}

// Load reads .env, then the config file, then RISKMAP_* environment
// overrides. An empty path looks for DefaultPath and tolerates its absence;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: reading .env: %v\n", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RISKMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}
	return &cfg, nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(c LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
