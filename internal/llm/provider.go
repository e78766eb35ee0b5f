// Package llm abstracts the OpenAI-compatible completion and embedding
// backends used for cloud embeddings and recommendation text.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the interface every backend implements.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "groq", "openai").
	Name() string
}

// ErrEmbeddingsUnsupported is returned by providers without an embeddings endpoint.
var ErrEmbeddingsUnsupported = errors.New("llm: embeddings not supported")

// StatusError carries the HTTP status code of a failed backend call so retry
// classification does not depend on error text.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }
