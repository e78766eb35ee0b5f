package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	wf "github.com/efebarandurmaz/riskmap/internal/workflow"
)

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(ScenarioWorkflow)
	w.RegisterActivity(RunScenarioActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// Dispatcher starts scenario workflows on a Temporal cluster.
type Dispatcher struct {
	Client    client.Client
	TaskQueue string
}

// Dispatch starts ScenarioWorkflow with the scenario ID as workflow ID and
// returns without waiting for it.
func (d *Dispatcher) Dispatch(ctx context.Context, id string, in wf.Input) error {
	queue := d.TaskQueue
	if queue == "" {
		queue = DefaultTaskQueue
	}
	opts := client.StartWorkflowOptions{ID: "scenario-" + id, TaskQueue: queue}
	if _, err := d.Client.ExecuteWorkflow(ctx, opts, ScenarioWorkflow, ScenarioInput{ScenarioID: id, Input: in}); err != nil {
		return fmt.Errorf("starting scenario workflow %s: %w", id, err)
	}
	return nil
}
