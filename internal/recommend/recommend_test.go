package recommend

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/efebarandurmaz/riskmap/internal/llm"
	"github.com/efebarandurmaz/riskmap/internal/match"
)

type cannedProvider struct {
	content string
	err     error
	prompt  *llm.Prompt
	opts    *llm.RequestOptions
}

func (c *cannedProvider) Name() string { return "canned" }

func (c *cannedProvider) Complete(_ context.Context, p *llm.Prompt, o *llm.RequestOptions) (*llm.Response, error) {
	c.prompt, c.opts = p, o
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{Content: c.content}, nil
}

func (c *cannedProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, llm.ErrEmbeddingsUnsupported
}

func TestParseLines(t *testing.T) {
	raw := "<think>plan</think>\n1. Hedge rate exposure\n\n- Review limits\n• Stress test\n* \n2) Add controls\n> Escalate\nSeventh\nEighth"
	got := ParseLines(raw)
	want := []string{"Hedge rate exposure", "Review limits", "Stress test", "Add controls", "Escalate"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseLines = %q, want %q", got, want)
	}
}

func TestGenerate_NoProvider(t *testing.T) {
	out, err := New(nil, nil, nil).Generate(context.Background(), Request{ScenarioName: "x"})
	if out != nil || err != nil {
		t.Fatalf("expected nil, nil; got %v, %v", out, err)
	}
}

func TestGenerate_BuildsPrompt(t *testing.T) {
	p := &cannedProvider{content: "Do A\nDo B"}
	cases := make([]match.MatchResult, 12)
	for i := range cases {
		cases[i] = match.MatchResult{ID: "HC", Name: "Case name", Similarity: "50%"}
	}
	out, err := New(p, nil, nil).Generate(context.Background(), Request{ScenarioName: "Rate shock", Cases: cases})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("unexpected output %v", out)
	}
	user := p.prompt.Messages[0].Content
	if !strings.Contains(user, "  10. Case name (similarity: 50%)") || strings.Contains(user, "11.") {
		t.Errorf("prompt should list exactly 10 cases:\n%s", user)
	}
	if !strings.Contains(user, "Risk type: Not specified") {
		t.Errorf("missing default risk type:\n%s", user)
	}
	if *p.opts.Temperature != 0.3 || *p.opts.MaxTokens != 512 {
		t.Errorf("unexpected options %+v", p.opts)
	}
}

func TestGenerate_ProviderError(t *testing.T) {
	boom := errors.New("boom")
	if _, err := New(&cannedProvider{err: boom}, nil, nil).Generate(context.Background(), Request{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

type curatedTable map[string][]string

func (c curatedTable) CuratedRecommendations(_ context.Context, ids []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, id := range ids {
		if recs, ok := c[id]; ok {
			out[id] = recs
		}
	}
	return out, nil
}

var pastActions = curatedTable{
	"HC-001": {"Hedge rate exposure", "Reprice deposits"},
	"HC-002": {"hedge rate exposure", "Raise liquidity buffer"},
}

var matchedCases = []match.MatchResult{
	{ID: "HC-002", Name: "Funding squeeze", Similarity: "80%"},
	{ID: "HC-001", Name: "Rate shock", Similarity: "70%"},
	{ID: "HC-404", Name: "Unknown", Similarity: "10%"},
}

func TestGenerate_CuratedFallback(t *testing.T) {
	tests := []struct {
		name     string
		provider llm.Provider
	}{
		{"no provider", nil},
		{"provider error", &cannedProvider{err: errors.New("rate limited")}},
	}
	want := []string{"hedge rate exposure", "Raise liquidity buffer", "Reprice deposits"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := New(tt.provider, pastActions, nil).Generate(context.Background(), Request{ScenarioName: "x", Cases: matchedCases})
			if err != nil {
				t.Fatalf("expected fallback without error, got %v", err)
			}
			if !reflect.DeepEqual(out, want) {
				t.Fatalf("fallback = %q, want %q", out, want)
			}
		})
	}
}

func TestGenerate_FallbackCapsAtMax(t *testing.T) {
	many := curatedTable{"HC-001": {"a", "b", "c", "d", "e", "f", "g", "h"}}
	out, err := New(nil, many, nil).Generate(context.Background(), Request{Cases: []match.MatchResult{{ID: "HC-001"}}})
	if err != nil || len(out) != MaxRecommendations {
		t.Fatalf("expected %d recommendations, got %v err=%v", MaxRecommendations, out, err)
	}
}

func TestGenerate_PromptIncludesPastActions(t *testing.T) {
	p := &cannedProvider{content: "Do A"}
	if _, err := New(p, pastActions, nil).Generate(context.Background(), Request{ScenarioName: "x", Cases: matchedCases}); err != nil {
		t.Fatal(err)
	}
	user := p.prompt.Messages[0].Content
	if !strings.Contains(user, "Past actions: Hedge rate exposure; Reprice deposits") {
		t.Errorf("prompt missing curated recommendations:\n%s", user)
	}
	if strings.Count(user, "Past actions:") != 2 {
		t.Errorf("expected past actions for the two known cases:\n%s", user)
	}
}
