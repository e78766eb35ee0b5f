package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/efebarandurmaz/riskmap/internal/config"
	"github.com/efebarandurmaz/riskmap/internal/match"
	"github.com/efebarandurmaz/riskmap/internal/workflow"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		LLM:    config.LLMConfig{Provider: "none"},
		Vector: config.VectorConfig{Backend: "sqlite", DataDir: filepath.Join(dir, "vectors")},
		Corpus: config.CorpusConfig{
			DataDir:       dir,
			StaticPath:    "../../data/historical_cases.json",
			ReferencePath: "../../data/reference_cases.json",
			Seed:          true,
		},
		Audit:   config.AuditConfig{Store: true},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func TestNew_LexicalEndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close(ctx)

	if a.ProviderName() != "" {
		t.Errorf("expected no LLM, got %q", a.ProviderName())
	}
	st := a.Engine.Preload(ctx)
	if st.Tier != match.TierLexical || st.Documents != 50 {
		t.Fatalf("unexpected status %+v", st)
	}

	res, err := a.Scenarios.Submit(ctx, workflow.Input{Name: "Liquidity crisis", Description: "wholesale funding markets seized"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Error != nil {
		t.Fatalf("unexpected workflow error %q", *res.Error)
	}
	if len(res.HistoricalCases) == 0 || res.HistoricalCases[0].ID != "HC-003" {
		t.Fatalf("expected HC-003 first, got %+v", res.HistoricalCases)
	}
	if len(res.Recommendations) == 0 || res.Recommendations[0] != "Maintain HQLA buffer" {
		t.Errorf("expected curated recommendations of HC-003 without an LLM, got %v", res.Recommendations)
	}

	stored, err := a.Scenarios.Result(ctx, res.ScenarioID)
	if err != nil || stored.ScenarioID != res.ScenarioID {
		t.Fatalf("result not persisted: %+v err=%v", stored, err)
	}
	if n, err := a.Store.AuditCount(ctx, res.ScenarioID); err != nil || n == 0 {
		t.Fatalf("expected audit rows, n=%d err=%v", n, err)
	}
}

func TestNew_MissingKeyDisablesProvider(t *testing.T) {
	t.Setenv("RISKMAP_GROQ_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("RISKMAP_LLM_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")
	cfg := testConfig(t)
	cfg.LLM.Provider = "groq"
	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)
	if a.LLM != nil {
		t.Fatalf("expected nil provider without key, got %s", a.LLM.Name())
	}
}

func TestNew_KeylessOllamaStaysOffCloudTier(t *testing.T) {
	for _, k := range []string{"RISKMAP_GROQ_API_KEY", "GROQ_API_KEY", "RISKMAP_LLM_API_KEY", "LLM_API_KEY"} {
		t.Setenv(k, "")
	}
	cfg := testConfig(t)
	cfg.LLM.Provider = "ollama"
	cfg.LLM.BaseURL = "http://127.0.0.1:1/v1"
	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)

	if a.LLM == nil || a.LLM.Name() != "ollama" {
		t.Fatalf("expected keyless ollama for recommendations, got %v", a.LLM)
	}
	if a.Cloud.Configured() {
		t.Fatal("cloud embedding tier must require an API key")
	}
	st := a.Engine.Preload(ctx)
	if st.Provider == match.ProviderCloud {
		t.Fatalf("keyless endpoint reported as cloud tier: %+v", st)
	}
}
