// Package embedding turns texts into dense vectors through a cloud
// OpenAI-compatible API or a local Ollama daemon.
package embedding

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNoAPIKey means the cloud provider is not configured.
	ErrNoAPIKey = errors.New("embedding: no API key configured")
	// ErrPartialBatch means at least one input produced no vector.
	ErrPartialBatch = errors.New("embedding: partial batch")
	// ErrModelUnavailable means the local model could not be loaded.
	ErrModelUnavailable = errors.New("embedding: local model unavailable")
	// ErrEmptyInput is returned for an empty text slice.
	ErrEmptyInput = errors.New("embedding: no input texts")
)

// Provider produces embeddings. EmbedMany returns either one vector per input
// in input order or an error; it never returns a shortened slice.
type Provider interface {
	Name() string
	Model() string
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// prepare substitutes a single space for blank texts, which most backends
// reject.
func prepare(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			t = " "
		}
		out[i] = t
	}
	return out
}

func chunks(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		out = append(out, [2]int{start, end})
	}
	return out
}

func validate(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return ErrPartialBatch
	}
	for _, v := range vecs {
		if len(v) == 0 {
			return ErrPartialBatch
		}
	}
	return nil
}
