// Package vector stores document embeddings and answers nearest-neighbour
// queries by cosine similarity.
package vector

import (
	"context"
	"errors"
	"math"
	"sort"
)

// ErrInvalidBatch rejects empty or inconsistent ReplaceAll input.
var ErrInvalidBatch = errors.New("vector: invalid batch")

// Record is one stored embedding. Metadata always carries "name".
type Record struct {
	ID        string
	Embedding []float32
	Metadata  map[string]string
}

// Hit is one query result.
type Hit struct {
	ID         string
	Name       string
	Similarity float64
}

// Store is a replace-all vector collection.
type Store interface {
	// Name labels the backend ("sqlite", "qdrant", "in-memory").
	Name() string
	// ReplaceAll discards the current contents and stores records. A failure
	// is an overall failure.
	ReplaceAll(ctx context.Context, records []Record) error
	// Query returns up to n hits by similarity, descending, ties in
	// insertion order. An empty store yields no hits and no error.
	Query(ctx context.Context, embedding []float32, n int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// ValidateBatch checks that records is non-empty, ids are present and every
// embedding has the same non-zero dimension. It returns that dimension.
func ValidateBatch(records []Record) (int, error) {
	if len(records) == 0 {
		return 0, ErrInvalidBatch
	}
	dim := len(records[0].Embedding)
	if dim == 0 {
		return 0, ErrInvalidBatch
	}
	for _, r := range records {
		if r.ID == "" || len(r.Embedding) != dim {
			return 0, ErrInvalidBatch
		}
	}
	return dim, nil
}

// Cosine returns the cosine similarity of a and b, 0 when either is a zero
// vector or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Clamp01 bounds s to [0, 1].
func Clamp01(s float64) float64 {
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Rank scores every record against query with 1 - cosine distance (clamped)
// and returns the best n, stable on input order.
func Rank(records []Record, query []float32, n int) []Hit {
	if n <= 0 || len(records) == 0 {
		return []Hit{}
	}
	hits := make([]Hit, len(records))
	for i, r := range records {
		hits[i] = Hit{ID: r.ID, Name: r.Metadata["name"], Similarity: Clamp01(Cosine(query, r.Embedding))}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if n < len(hits) {
		hits = hits[:n]
	}
	return hits
}
