package temporal

import (
	"context"
	"errors"

	wf "github.com/efebarandurmaz/riskmap/internal/workflow"
)

// ScenarioRunner executes and persists a scenario.
type ScenarioRunner interface {
	Run(ctx context.Context, id string, in wf.Input) wf.Result
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Scenarios ScenarioRunner
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// RunScenarioActivity runs the workflow for a scenario that was already
// recorded by the submitter.
func RunScenarioActivity(ctx context.Context, input ScenarioInput) (wf.Result, error) {
	if deps == nil || deps.Scenarios == nil {
		return wf.Result{}, errors.New("temporal: scenario runner not configured")
	}
	return deps.Scenarios.Run(ctx, input.ScenarioID, input.Input), nil
}
