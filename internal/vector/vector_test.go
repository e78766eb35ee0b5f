package vector

import (
	"context"
	"errors"
	"math"
	"testing"
)

func rec(id string, v ...float32) Record {
	return Record{ID: id, Embedding: v, Metadata: map[string]string{"name": "n-" + id}}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero", []float32{0, 0}, []float32{1, 1}, 0},
		{"dim mismatch", []float32{1}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateBatch(t *testing.T) {
	bad := [][]Record{
		nil,
		{rec("a")},
		{rec("a", 1, 2), rec("b", 1)},
		{rec("", 1)},
	}
	for i, b := range bad {
		if _, err := ValidateBatch(b); !errors.Is(err, ErrInvalidBatch) {
			t.Errorf("case %d: expected ErrInvalidBatch, got %v", i, err)
		}
	}
	if dim, err := ValidateBatch([]Record{rec("a", 1, 2)}); err != nil || dim != 2 {
		t.Errorf("expected dim 2, got %d, %v", dim, err)
	}
}

func TestMemory_QueryOrdering(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if hits, err := m.Query(ctx, []float32{1, 0}, 3); err != nil || len(hits) != 0 {
		t.Fatalf("empty store: %v, %v", hits, err)
	}

	err := m.ReplaceAll(ctx, []Record{rec("x", 0, 1), rec("a", 1, 0), rec("b", 1, 0), rec("neg", -1, 0)})
	if err != nil {
		t.Fatal(err)
	}
	hits, err := m.Query(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 4 {
		t.Fatalf("expected n clamped to 4, got %d", len(hits))
	}
	if hits[0].ID != "a" || hits[1].ID != "b" {
		t.Errorf("ties must keep insertion order: %+v", hits)
	}
	if hits[0].Similarity != 1 || hits[0].Name != "n-a" {
		t.Errorf("unexpected top hit %+v", hits[0])
	}
	if hits[3].Similarity != 0 {
		t.Errorf("negative cosine must clamp to 0, got %v", hits[3].Similarity)
	}
}

func TestMemory_ReplaceAllRejectsInvalid(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.ReplaceAll(ctx, []Record{rec("a", 1)})
	if err := m.ReplaceAll(ctx, nil); !errors.Is(err, ErrInvalidBatch) {
		t.Fatalf("expected ErrInvalidBatch, got %v", err)
	}
	if n, _ := m.Count(ctx); n != 1 {
		t.Fatalf("invalid batch must not touch state, count=%d", n)
	}
}
