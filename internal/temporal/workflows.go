package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	wf "github.com/efebarandurmaz/riskmap/internal/workflow"
)

// DefaultTaskQueue is the queue the worker polls.
const DefaultTaskQueue = "riskmap-scenarios"

// ScenarioInput holds the workflow parameters.
type ScenarioInput struct {
	ScenarioID string
	Input      wf.Input
}

// ScenarioWorkflow runs one scenario through the in-process runner inside an
// activity. Stage retries happen in the runner, so the activity itself is
// attempted once.
func ScenarioWorkflow(ctx workflow.Context, input ScenarioInput) (*wf.Result, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("scenario workflow started", "scenario_id", input.ScenarioID)

	var res wf.Result
	if err := workflow.ExecuteActivity(ctx, RunScenarioActivity, input).Get(ctx, &res); err != nil {
		return nil, fmt.Errorf("run scenario %s: %w", input.ScenarioID, err)
	}

	logger.Info("scenario workflow finished", "scenario_id", input.ScenarioID, "cases", len(res.HistoricalCases))
	return &res, nil
}
