// Package recommend asks an LLM for short, actionable mitigations given a
// scenario and its matched historical cases.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/efebarandurmaz/riskmap/internal/llm"
	"github.com/efebarandurmaz/riskmap/internal/match"
)

const (
	DefaultModel       = "llama-3.1-8b-instant"
	MaxRecommendations = 6
	maxPromptCases     = 10
)

const systemPrompt = `You are a banking risk and compliance advisor. Given a hypothetical scenario and a list of similar historical cases, you produce a short list of clear, actionable recommendations (controls, mitigations, or next steps). Output only the recommendations, one per line, as short bullet-style lines. No numbering, no preamble, no explanation. Each line should be one recommendation (max 1-2 sentences). Produce between 3 and 6 recommendations.`

// Request is the input for one generation.
type Request struct {
	ScenarioName string
	Description  string
	RiskType     string
	Cases        []match.MatchResult
}

// Curated looks up the recommendations recorded for reference cases.
type Curated interface {
	CuratedRecommendations(ctx context.Context, ids []string) (map[string][]string, error)
}

// Generator produces recommendations. A nil Provider disables generation;
// the curated recommendations of the matched cases then stand in.
type Generator struct {
	Provider    llm.Provider
	Curated     Curated
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

// New returns a Generator with the default sampling settings.
func New(p llm.Provider, curated Curated, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{Provider: p, Curated: curated, Model: DefaultModel, Temperature: 0.3, MaxTokens: 512, Logger: logger}
}

// Generate returns at most MaxRecommendations lines. When the LLM is
// missing or fails, the matched cases' curated recommendations are returned
// instead; an LLM error only surfaces when there are none.
func (g *Generator) Generate(ctx context.Context, req Request) ([]string, error) {
	curated := g.lookup(ctx, req.Cases)
	if g.Provider == nil {
		g.logger().Info("no LLM provider configured, using curated recommendations", "count", countCurated(curated))
		return fallback(req.Cases, curated), nil
	}
	resp, err := g.Provider.Complete(ctx, llm.NewUserPrompt(systemPrompt, userPrompt(req, curated)), &llm.RequestOptions{
		Temperature: llm.Float(g.Temperature),
		MaxTokens:   llm.Int(g.MaxTokens),
	})
	if err != nil {
		if out := fallback(req.Cases, curated); out != nil {
			g.logger().Warn("LLM recommendations failed, using curated recommendations", "err", err, "count", len(out))
			return out, nil
		}
		return nil, fmt.Errorf("recommend: %w", err)
	}
	out := ParseLines(resp.Content)
	g.logger().Info("recommendations generated", "count", len(out), "model", resp.Model)
	return out, nil
}

func (g *Generator) lookup(ctx context.Context, cases []match.MatchResult) map[string][]string {
	if g.Curated == nil || len(cases) == 0 {
		return nil
	}
	ids := make([]string, 0, len(cases))
	for _, c := range cases {
		if c.ID != "" {
			ids = append(ids, c.ID)
		}
	}
	curated, err := g.Curated.CuratedRecommendations(ctx, ids)
	if err != nil {
		g.logger().Warn("curated recommendations unavailable", "err", err)
		return nil
	}
	return curated
}

func countCurated(curated map[string][]string) int {
	n := 0
	for _, recs := range curated {
		n += len(recs)
	}
	return n
}

// fallback merges curated recommendations in match order, dropping
// duplicates, up to MaxRecommendations. It returns nil when there are none.
func fallback(cases []match.MatchResult, curated map[string][]string) []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range cases {
		for _, r := range curated[c.ID] {
			r = strings.TrimSpace(r)
			key := strings.ToLower(r)
			if r == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
			if len(out) == MaxRecommendations {
				return out
			}
		}
	}
	return out
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func userPrompt(req Request, curated map[string][]string) string {
	var cases []string
	for i, c := range req.Cases {
		if i == maxPromptCases {
			break
		}
		name := c.Name
		if name == "" {
			name = c.ID
		}
		if name == "" {
			name = "Case"
		}
		line := fmt.Sprintf("  %d. %s", i+1, name)
		if c.Similarity != "" {
			line += fmt.Sprintf(" (similarity: %s)", c.Similarity)
		}
		cases = append(cases, line)
		if recs := curated[c.ID]; len(recs) > 0 {
			cases = append(cases, "     Past actions: "+strings.Join(recs, "; "))
		}
	}
	return fmt.Sprintf("Scenario name: %s\nRisk type: %s\nDescription: %s\n\nSimilar historical cases:\n%s\n\nList 3 to 6 actionable recommendations, one per line.",
		orDefault(req.ScenarioName, "Unnamed"),
		orDefault(req.RiskType, "Not specified"),
		orDefault(req.Description, "No description."),
		strings.Join(cases, "\n"))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

const bulletChars = "0123456789.-)>•* \t"

// ParseLines strips reasoning blocks, splits on newlines and removes list
// markers. Blank lines are skipped before the cap is applied.
func ParseLines(raw string) []string {
	raw = llm.StripThinkingTags(raw)
	var lines []string
	for _, ln := range strings.Split(raw, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) > MaxRecommendations {
		lines = lines[:MaxRecommendations]
	}
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		if ln = strings.TrimLeft(ln, bulletChars); ln != "" {
			out = append(out, ln)
		}
	}
	return out
}
