// Package scenario ties submission, the workflow run, persistence and
// lineage together. The HTTP API, the Temporal activity and the CLI all go
// through Service.
package scenario

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/riskmap/internal/graph"
	"github.com/efebarandurmaz/riskmap/internal/match"
	"github.com/efebarandurmaz/riskmap/internal/store"
	"github.com/efebarandurmaz/riskmap/internal/workflow"
)

// Runner executes the workflow for one scenario.
type Runner interface {
	Run(ctx context.Context, scenarioID string, in workflow.Input) workflow.Result
}

// Store is the persistence the service needs. It may be nil.
type Store interface {
	SaveScenario(ctx context.Context, id string, in workflow.Input) error
	SaveResult(ctx context.Context, res workflow.Result) error
	GetResult(ctx context.Context, id string) (workflow.Result, bool, error)
	RecentScenarios(ctx context.Context, limit int) ([]store.ScenarioSummary, error)
}

// ErrPending means the scenario exists but has no result yet.
var ErrPending = errors.New("scenario: result pending")

// Service is safe for concurrent use.
type Service struct {
	runner  Runner
	store   Store
	lineage graph.Repository
	logger  *slog.Logger
}

// New creates a Service. store and lineage may be nil.
func New(runner Runner, st Store, lineage graph.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, store: st, lineage: lineage, logger: logger}
}

// NewID returns a fresh scenario identifier.
func NewID() string { return uuid.NewString() }

// Create records the scenario and returns its ID without running it.
func (s *Service) Create(ctx context.Context, in workflow.Input) (string, error) {
	id := NewID()
	if s.store != nil {
		if err := s.store.SaveScenario(ctx, id, in); err != nil {
			return "", err
		}
	}
	return id, nil
}

// Run executes the workflow for an existing scenario ID and persists the
// outcome. Persistence and lineage failures are logged; the result is
// always returned.
func (s *Service) Run(ctx context.Context, id string, in workflow.Input) workflow.Result {
	res := s.runner.Run(ctx, id, in)
	if s.store != nil {
		if err := s.store.SaveResult(ctx, res); err != nil {
			s.logger.WarnContext(ctx, "saving result failed", "scenario_id", id, "err", err)
		}
	}
	if s.lineage != nil && len(res.HistoricalCases) > 0 {
		node := graph.ScenarioNode{ID: id, Name: res.ScenarioName, RiskType: res.RiskType}
		if err := s.lineage.RecordMatches(ctx, node, Links(res.HistoricalCases)); err != nil {
			s.logger.WarnContext(ctx, "recording lineage failed", "scenario_id", id, "err", err)
		}
	}
	return res
}

// Submit is Create followed by Run.
func (s *Service) Submit(ctx context.Context, in workflow.Input) (workflow.Result, error) {
	id, err := s.Create(ctx, in)
	if err != nil {
		return workflow.Result{}, err
	}
	return s.Run(ctx, id, in), nil
}

// Result loads a stored result. It returns store.ErrNotFound for unknown
// IDs and ErrPending for scenarios still running.
func (s *Service) Result(ctx context.Context, id string) (workflow.Result, error) {
	if s.store == nil {
		return workflow.Result{}, store.ErrNotFound
	}
	res, ok, err := s.store.GetResult(ctx, id)
	if err != nil {
		return workflow.Result{}, err
	}
	if !ok {
		return workflow.Result{}, ErrPending
	}
	return res, nil
}

// Recent lists the newest scenarios.
func (s *Service) Recent(ctx context.Context, limit int) ([]store.ScenarioSummary, error) {
	if s.store == nil {
		return []store.ScenarioSummary{}, nil
	}
	return s.store.RecentScenarios(ctx, limit)
}

// Links converts matched cases to lineage edges, ranked from 1.
func Links(cases []match.MatchResult) []graph.Link {
	out := make([]graph.Link, 0, len(cases))
	for i, c := range cases {
		sim, _ := match.ParseSimilarity(c.Similarity)
		out = append(out, graph.Link{CaseID: c.ID, CaseName: c.Name, Similarity: sim, Rank: i + 1})
	}
	return out
}
