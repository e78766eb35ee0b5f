package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaURL is the address of a locally running Ollama daemon.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaClient speaks the subset of the Ollama REST API needed for
// embeddings: /api/embed, /api/tags and /api/pull.
type OllamaClient struct {
	baseURL string
	http    *http.Client
}

// NewOllamaClient creates a client for baseURL (DefaultOllamaURL when empty).
func NewOllamaClient(baseURL string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the daemon's vectors for input, in order.
func (c *OllamaClient) Embed(ctx context.Context, model string, input []string) ([][]float32, error) {
	var resp embedResponse
	if err := c.post(ctx, "/api/embed", embedRequest{Model: model, Input: input}, &resp); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// HasModel reports whether model (with or without a ":tag" suffix) is
// present locally.
func (c *OllamaClient) HasModel(ctx context.Context, model string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.do(req, &tags); err != nil {
		return false, err
	}
	for _, m := range tags.Models {
		if m.Name == model || strings.TrimSuffix(m.Name, ":latest") == model {
			return true, nil
		}
	}
	return false, nil
}

// Pull downloads model and blocks until the daemon reports completion.
func (c *OllamaClient) Pull(ctx context.Context, model string) error {
	var resp struct {
		Status string `json:"status"`
	}
	body := map[string]any{"model": model, "stream": false}
	if err := c.post(ctx, "/api/pull", body, &resp); err != nil {
		return err
	}
	if resp.Status != "success" {
		return fmt.Errorf("ollama pull %s: status %q", model, resp.Status)
	}
	return nil
}

func (c *OllamaClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *OllamaClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama %s: %s: %s", req.URL.Path, resp.Status, bytes.TrimSpace(body))
	}
	return json.Unmarshal(body, out)
}
