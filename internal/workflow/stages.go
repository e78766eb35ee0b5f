package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/efebarandurmaz/riskmap/internal/match"
	"github.com/efebarandurmaz/riskmap/internal/recommend"
)

// Matcher finds historical cases for a query.
type Matcher interface {
	FindSimilar(ctx context.Context, query string, topK int) []match.MatchResult
}

// Recommender produces recommendation lines.
type Recommender interface {
	Generate(ctx context.Context, req recommend.Request) ([]string, error)
}

// enrichTopK is the number of cases requested per scenario.
const enrichTopK = 5

type stage struct {
	name string
	run  func(ctx context.Context, st State) State
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

func (r *Runner) normalize(_ context.Context, st State) State {
	name := collapse(st.Input.Name)
	if name == "" {
		st.Processed = nil
		st.Err = "scenario name is required"
		return st.withEntry(r.entry(StepNormalize, StatusError, st.Err))
	}
	risk := collapse(st.Input.RiskType)
	if risk == "" {
		risk = DefaultRiskType
	}
	st.Processed = &Scenario{Name: name, Description: collapse(st.Input.Description), RiskType: risk}
	st.Err = ""
	return st.withEntry(r.entry(StepNormalize, StatusOK, ""))
}

func (r *Runner) enrich(ctx context.Context, st State) State {
	if st.Err != "" || st.Processed == nil {
		return st.withEntry(r.entry(StepEnrich, StatusSkipped, "previous error"))
	}
	p := st.Processed
	query := strings.TrimSpace(p.Name + " " + p.Description + " " + p.RiskType)
	if query == "" {
		query = "risk"
	}

	cases := []match.MatchResult{}
	if r.matcher != nil {
		if found := r.matcher.FindSimilar(ctx, query, enrichTopK); found != nil {
			cases = found
		}
	}

	recs := []string{}
	if r.recommender != nil {
		out, err := r.recommender.Generate(ctx, recommend.Request{
			ScenarioName: p.Name,
			Description:  p.Description,
			RiskType:     p.RiskType,
			Cases:        cases,
		})
		if err != nil {
			r.logger.WarnContext(ctx, "recommendations unavailable", "scenario_id", st.ScenarioID, "err", err)
		} else if out != nil {
			recs = out
		}
	}

	st.HistoricalCases = cases
	st.Recommendations = recs
	detail := fmt.Sprintf("riskType=%s historical=%d recommendations=%d", p.RiskType, len(cases), len(recs))
	return st.withEntry(r.entry(StepEnrich, StatusOK, detail))
}
