// Package workflow runs a scenario through normalize and enrich stages with
// an append-only step log and bounded retries.
package workflow

import (
	"time"

	"github.com/efebarandurmaz/riskmap/internal/match"
)

const (
	// MaxRetries bounds re-invocations after the first attempt.
	MaxRetries = 2
	// DefaultRiskType applies when the input leaves the risk type blank.
	DefaultRiskType = "Market"
	// FallbackRiskType is reported when no scenario was processed.
	FallbackRiskType = "Market Risk"

	StepNormalize = "normalize"
	StepEnrich    = "enrich"
	StepRunner    = "runner"
)

// Status of a step log entry.
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Input is the raw scenario as submitted.
type Input struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	RiskType    string `json:"riskType"`
}

// Scenario is the normalized form of Input.
type Scenario struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	RiskType    string `json:"riskType"`
}

// StepEntry records one stage invocation.
type StepEntry struct {
	Step      string    `json:"step"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"ts"`
	Detail    string    `json:"detail,omitempty"`
}

// State flows by value through the stages.
type State struct {
	ScenarioID      string
	Input           Input
	Processed       *Scenario
	HistoricalCases []match.MatchResult
	Recommendations []string
	Err             string
	StepLog         []StepEntry
	RetryCount      int
}

// withEntry returns s with e appended to a fresh copy of the step log, so
// earlier states never observe later entries.
func (s State) withEntry(e StepEntry) State {
	log := make([]StepEntry, len(s.StepLog), len(s.StepLog)+1)
	copy(log, s.StepLog)
	s.StepLog = append(log, e)
	return s
}

// Result is the caller-facing outcome of a run.
type Result struct {
	ScenarioID      string              `json:"scenario_id"`
	ScenarioName    string              `json:"scenarioName"`
	RiskType        string              `json:"riskType"`
	ConfidenceScore *float64            `json:"confidenceScore,omitempty"`
	CreatedAt       string              `json:"createdAt"`
	Recommendations []string            `json:"recommendations"`
	HistoricalCases []match.MatchResult `json:"historicalCases"`
	StepLog         []StepEntry         `json:"step_log"`
	Error           *string             `json:"error"`
}
