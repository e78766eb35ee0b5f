package graph

import (
	"context"
	"testing"
)

func TestMemory_ScenariosForCase(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.RecordMatches(ctx, ScenarioNode{ID: "s1"}, []Link{{CaseID: "A", Similarity: 40}, {CaseID: "B", Similarity: 10}})
	m.RecordMatches(ctx, ScenarioNode{ID: "s2"}, []Link{{CaseID: "A", Similarity: 90}})
	m.RecordMatches(ctx, ScenarioNode{ID: "s3"}, []Link{{CaseID: "C", Similarity: 90}})

	got, err := m.ScenariosForCase(ctx, "A")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "s2" || got[1] != "s1" {
		t.Fatalf("unexpected scenarios %v", got)
	}

	// Re-recording replaces the previous edges.
	m.RecordMatches(ctx, ScenarioNode{ID: "s1"}, []Link{{CaseID: "C", Similarity: 5}})
	got, _ = m.ScenariosForCase(ctx, "A")
	if len(got) != 1 || got[0] != "s2" {
		t.Fatalf("expected only s2 after replace, got %v", got)
	}
}
