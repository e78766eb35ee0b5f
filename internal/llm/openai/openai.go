// Package openai adapts OpenAI-compatible APIs (Groq, OpenAI, Together,
// DeepSeek, Ollama's /v1 surface) to llm.Provider.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/efebarandurmaz/riskmap/internal/llm"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultEmbedModel = "text-embedding-3-small"
	defaultMaxTokens  = 1024
)

// Client implements llm.Provider on go-openai.
type Client struct {
	name       string
	model      string
	embedModel string
	api        *goopenai.Client
}

// New creates a provider named name (used in logs and status output).
func New(name, apiKey, model, baseURL, embedModel string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}
	if name == "" {
		name = "openai"
	}
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	return &Client{
		name:       name,
		model:      model,
		embedModel: embedModel,
		api:        goopenai.NewClientWithConfig(cfg),
	}
}

func (c *Client) Name() string { return c.name }

// EmbedModel returns the embeddings model identifier.
func (c *Client) EmbedModel() string { return c.embedModel }

func (c *Client) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	var msgs []goopenai.ChatCompletionMessage
	if prompt.SystemPrompt != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: prompt.SystemPrompt})
	}
	for _, m := range prompt.Messages {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	req := goopenai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: defaultMaxTokens,
	}
	if opts != nil {
		if opts.MaxTokens != nil {
			req.MaxTokens = *opts.MaxTokens
		}
		if opts.Temperature != nil {
			req.Temperature = float32(*opts.Temperature)
		}
		if opts.TopP != nil {
			req.TopP = float32(*opts.TopP)
		}
		if len(opts.StopSeqs) > 0 {
			req.Stop = opts.StopSeqs
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapError("chat", err)
	}

	out := &llm.Response{
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		out.StopReason = string(resp.Choices[0].FinishReason)
	}
	return out, nil
}

// Embed returns one vector per text. The response is reordered by index and
// its length checked so callers can rely on positional alignment.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("openai embed: no input")
	}
	resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, wrapError("embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// wrapError exposes the HTTP status of go-openai errors as llm.StatusError.
func wrapError(op string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("openai %s: %w", op, &llm.StatusError{Code: apiErr.HTTPStatusCode, Err: err})
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("openai %s: %w", op, &llm.StatusError{Code: reqErr.HTTPStatusCode, Err: err})
	}
	return fmt.Errorf("openai %s: %w", op, err)
}

// Register adds every OpenAI-compatible preset plus "custom" (which requires
// an explicit base URL) to f.
func Register(f *llm.ProviderFactory) {
	for name, url := range llm.KnownProviders {
		preset, base := name, url
		f.Register(preset, func(c llm.ProviderConfig) (llm.Provider, error) {
			url := base
			if c.BaseURL != "" {
				url = c.BaseURL
			}
			return New(preset, c.APIKey, c.Model, url, c.EmbedModel), nil
		})
	}
	f.Register("custom", func(c llm.ProviderConfig) (llm.Provider, error) {
		if c.BaseURL == "" {
			return nil, errors.New("custom LLM provider requires a base URL")
		}
		return New("custom", c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
}
