package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/efebarandurmaz/riskmap/internal/corpus"
	"github.com/efebarandurmaz/riskmap/internal/match"
	"github.com/efebarandurmaz/riskmap/internal/recommend"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }

type docsLoader corpus.Corpus

func (d docsLoader) Load(context.Context) corpus.Corpus { return corpus.Corpus(d) }

func lexicalEngine() *match.Engine {
	return match.New(match.Options{Loader: docsLoader{
		{ID: "A", Name: "Rate shock", Text: "rate shock market"},
		{ID: "B", Name: "Drought", Text: "unrelated drought"},
	}})
}

// flakyMatcher panics on the first failures calls.
type flakyMatcher struct {
	failures int32
	calls    atomic.Int32
	results  []match.MatchResult
}

func (m *flakyMatcher) FindSimilar(context.Context, string, int) []match.MatchResult {
	if m.calls.Add(1) <= m.failures {
		panic("matcher unavailable")
	}
	return m.results
}

type stubRecommender struct {
	lines []string
	err   error
	got   recommend.Request
}

func (s *stubRecommender) Generate(_ context.Context, req recommend.Request) ([]string, error) {
	s.got = req
	return s.lines, s.err
}

func countSteps(log []StepEntry, step string, status Status) int {
	n := 0
	for _, e := range log {
		if e.Step == step && e.Status == status {
			n++
		}
	}
	return n
}

func TestRun_EmptyNameFailsAfterRetries(t *testing.T) {
	r := NewRunner(Options{Matcher: lexicalEngine(), Now: fixedNow})
	res := r.Run(context.Background(), "scn-1", Input{Name: "   ", Description: "x"})

	if res.Error == nil || *res.Error != "scenario name is required" {
		t.Fatalf("unexpected error %v", res.Error)
	}
	if got := countSteps(res.StepLog, StepNormalize, StatusError); got != MaxRetries+1 {
		t.Errorf("expected %d normalize errors, got %d", MaxRetries+1, got)
	}
	if got := countSteps(res.StepLog, StepEnrich, StatusSkipped); got != MaxRetries+1 {
		t.Errorf("expected %d skipped enrich entries, got %d", MaxRetries+1, got)
	}
	if res.ScenarioName != "scn-1" || res.RiskType != FallbackRiskType {
		t.Errorf("fallbacks not applied: %+v", res)
	}
	if res.ConfidenceScore != nil {
		t.Errorf("expected no confidence score, got %v", *res.ConfidenceScore)
	}
	if len(res.HistoricalCases) != 0 || res.HistoricalCases == nil {
		t.Errorf("expected empty non-nil cases, got %#v", res.HistoricalCases)
	}
}

func TestRun_MatchesLexicalCorpus(t *testing.T) {
	rec := &stubRecommender{lines: []string{"Hedge duration", "Review ALM limits"}}
	r := NewRunner(Options{Matcher: lexicalEngine(), Recommender: rec, Now: fixedNow})
	res := r.Run(context.Background(), "scn-2", Input{Name: " Rate   shock ", RiskType: ""})

	if res.Error != nil {
		t.Fatalf("unexpected error %q", *res.Error)
	}
	if len(res.HistoricalCases) == 0 || res.HistoricalCases[0].ID != "A" {
		t.Fatalf("expected A first, got %+v", res.HistoricalCases)
	}
	if res.ScenarioName != "Rate shock" || res.RiskType != DefaultRiskType {
		t.Errorf("unexpected processed fields: %q %q", res.ScenarioName, res.RiskType)
	}
	if res.CreatedAt != "2026-03-14" {
		t.Errorf("unexpected createdAt %q", res.CreatedAt)
	}
	if len(res.StepLog) != 2 || res.StepLog[0].Step != StepNormalize || res.StepLog[1].Step != StepEnrich {
		t.Fatalf("unexpected step log %+v", res.StepLog)
	}
	if !strings.Contains(res.StepLog[1].Detail, "historical=2 recommendations=2") {
		t.Errorf("unexpected enrich detail %q", res.StepLog[1].Detail)
	}
	if rec.got.ScenarioName != "Rate shock" || len(rec.got.Cases) != len(res.HistoricalCases) {
		t.Errorf("recommender got %+v", rec.got)
	}
	if res.ConfidenceScore == nil || *res.ConfidenceScore <= 0 || *res.ConfidenceScore > 1 {
		t.Errorf("unexpected confidence %v", res.ConfidenceScore)
	}
}

func TestRun_RetriesAfterStagePanic(t *testing.T) {
	m := &flakyMatcher{failures: 2, results: []match.MatchResult{{ID: "A", Name: "Rate shock", Similarity: "87%"}}}
	r := NewRunner(Options{Matcher: m, Now: fixedNow})
	res := r.Run(context.Background(), "scn-3", Input{Name: "Rate shock"})

	if res.Error != nil {
		t.Fatalf("expected recovery, got %q", *res.Error)
	}
	if got := countSteps(res.StepLog, StepEnrich, StatusError); got != 2 {
		t.Errorf("expected 2 enrich errors, got %d", got)
	}
	if got := countSteps(res.StepLog, StepEnrich, StatusOK); got != 1 {
		t.Errorf("expected 1 enrich ok, got %d", got)
	}
	if got := countSteps(res.StepLog, StepNormalize, StatusOK); got != 3 {
		t.Errorf("expected 3 normalize entries, got %d", got)
	}
	if res.ConfidenceScore == nil || *res.ConfidenceScore != 0.87 {
		t.Errorf("expected confidence 0.87, got %v", res.ConfidenceScore)
	}
}

func TestRun_GivesUpAfterMaxRetries(t *testing.T) {
	m := &flakyMatcher{failures: 10}
	r := NewRunner(Options{Matcher: m, Now: fixedNow})
	res := r.Run(context.Background(), "scn-4", Input{Name: "Rate shock"})

	if res.Error == nil || *res.Error != "matcher unavailable" {
		t.Fatalf("unexpected error %v", res.Error)
	}
	if got := m.calls.Load(); got != MaxRetries+1 {
		t.Errorf("expected %d matcher calls, got %d", MaxRetries+1, got)
	}
}

func TestRun_RecommenderErrorDegrades(t *testing.T) {
	rec := &stubRecommender{err: errors.New("quota")}
	r := NewRunner(Options{Matcher: lexicalEngine(), Recommender: rec, Now: fixedNow})
	res := r.Run(context.Background(), "scn-5", Input{Name: "Rate shock"})

	if res.Error != nil {
		t.Fatalf("unexpected error %q", *res.Error)
	}
	if res.Recommendations == nil || len(res.Recommendations) != 0 {
		t.Errorf("expected empty recommendations, got %#v", res.Recommendations)
	}
}

func TestRun_RunnerPanicIsRecorded(t *testing.T) {
	r := NewRunner(Options{Now: fixedNow})
	r.sequence = func(context.Context, State, int) State { panic("graph exploded") }
	res := r.Run(context.Background(), "scn-6", Input{Name: "x"})

	if res.Error == nil || *res.Error != "graph exploded" {
		t.Fatalf("unexpected error %v", res.Error)
	}
	if got := countSteps(res.StepLog, StepRunner, StatusError); got != MaxRetries+1 {
		t.Errorf("expected %d runner entries, got %d", MaxRetries+1, got)
	}
}

func TestWithEntry_DoesNotAlias(t *testing.T) {
	base := State{}.withEntry(StepEntry{Step: "a"})
	x := base.withEntry(StepEntry{Step: "x"})
	y := base.withEntry(StepEntry{Step: "y"})
	if len(base.StepLog) != 1 || x.StepLog[1].Step != "x" || y.StepLog[1].Step != "y" {
		t.Fatalf("step logs alias: base=%v x=%v y=%v", base.StepLog, x.StepLog, y.StepLog)
	}
}

func TestResult_JSONShape(t *testing.T) {
	r := NewRunner(Options{Now: fixedNow})
	res := r.Run(context.Background(), "scn-7", Input{Name: "Rate shock"})
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"scenario_id", "scenarioName", "riskType", "createdAt", "historicalCases", "step_log", "error", "recommendations"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, b)
		}
	}
	if _, ok := m["confidenceScore"]; ok {
		t.Errorf("confidenceScore should be omitted without cases")
	}
}
