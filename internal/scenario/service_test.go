package scenario

import (
	"context"
	"errors"
	"testing"

	"github.com/efebarandurmaz/riskmap/internal/graph"
	"github.com/efebarandurmaz/riskmap/internal/match"
	"github.com/efebarandurmaz/riskmap/internal/store"
	"github.com/efebarandurmaz/riskmap/internal/workflow"
)

type fixedRunner struct{ cases []match.MatchResult }

func (r fixedRunner) Run(_ context.Context, id string, in workflow.Input) workflow.Result {
	return workflow.Result{ScenarioID: id, ScenarioName: in.Name, RiskType: in.RiskType, HistoricalCases: r.cases}
}

func TestSubmit_PersistsAndRecordsLineage(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	lineage := graph.NewMemory()
	cases := []match.MatchResult{{ID: "A", Name: "Rate shock", Similarity: "91%"}, {ID: "B", Name: "Drought", Similarity: "3%"}}
	svc := New(fixedRunner{cases: cases}, st, lineage, nil)

	res, err := svc.Submit(ctx, workflow.Input{Name: "Rate shock", RiskType: "Market"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Result(ctx, res.ScenarioID)
	if err != nil || got.ScenarioName != "Rate shock" {
		t.Fatalf("unexpected stored result %+v err=%v", got, err)
	}
	ids, _ := lineage.ScenariosForCase(ctx, "A")
	if len(ids) != 1 || ids[0] != res.ScenarioID {
		t.Fatalf("lineage not recorded: %v", ids)
	}
	recent, err := svc.Recent(ctx, 10)
	if err != nil || len(recent) != 1 || !recent[0].HasResult {
		t.Fatalf("unexpected recent %+v err=%v", recent, err)
	}
}

func TestResult_PendingAndMissing(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	svc := New(fixedRunner{}, st, nil, nil)

	id, err := svc.Create(ctx, workflow.Input{Name: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Result(ctx, id); !errors.Is(err, ErrPending) {
		t.Errorf("expected ErrPending, got %v", err)
	}
	if _, err := svc.Result(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLinks(t *testing.T) {
	links := Links([]match.MatchResult{{ID: "A", Similarity: "42%"}, {ID: "B", Similarity: "bad"}})
	if links[0].Similarity != 42 || links[0].Rank != 1 || links[1].Similarity != 0 || links[1].Rank != 2 {
		t.Fatalf("unexpected links %+v", links)
	}
}
