package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/efebarandurmaz/riskmap/internal/match"
	"github.com/efebarandurmaz/riskmap/internal/observability"
)

// Options wires a Runner. Matcher and Recommender may be nil.
type Options struct {
	Matcher     Matcher
	Recommender Recommender
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	Audit       observability.Sink
	Now         func() time.Time
}

// Runner executes the stage sequence. It is safe for concurrent use.
type Runner struct {
	matcher     Matcher
	recommender Recommender
	logger      *slog.Logger
	metrics     *observability.Metrics
	audit       observability.Sink
	now         func() time.Time

	stages   []stage
	sequence func(ctx context.Context, st State, attempt int) State
}

func NewRunner(opts Options) *Runner {
	r := &Runner{
		matcher:     opts.Matcher,
		recommender: opts.Recommender,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		audit:       opts.Audit,
		now:         opts.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	r.stages = []stage{
		{name: StepNormalize, run: r.normalize},
		{name: StepEnrich, run: r.enrich},
	}
	r.sequence = r.runStages
	return r
}

func (r *Runner) entry(step string, status Status, detail string) StepEntry {
	return StepEntry{Step: step, Status: status, Timestamp: r.now(), Detail: detail}
}

// Run never fails: every problem ends up in Result.Error and the step log.
func (r *Runner) Run(ctx context.Context, scenarioID string, in Input) Result {
	start := time.Now()
	r.logger.InfoContext(ctx, "workflow started", "scenario_id", scenarioID)
	observability.Emit(ctx, r.audit, &observability.Event{
		Type: observability.EventWorkflowStart, ScenarioID: scenarioID, Success: true,
		Details: map[string]any{"name": in.Name, "riskType": in.RiskType},
	})

	st := State{ScenarioID: scenarioID, Input: in}
	for attempt := 1; attempt <= MaxRetries+1; attempt++ {
		r.metrics.Attempt()
		r.logger.InfoContext(ctx, "workflow attempt", "scenario_id", scenarioID, "attempt", attempt)
		st = r.attempt(ctx, st, attempt)
		if st.Err == "" || attempt > MaxRetries {
			break
		}
		st.RetryCount++
		r.logger.WarnContext(ctx, "workflow error, retrying", "scenario_id", scenarioID, "attempt", attempt, "err", st.Err)
		observability.Emit(ctx, r.audit, &observability.Event{
			Type: observability.EventWorkflowRetry, ScenarioID: scenarioID, Message: st.Err,
			Details: map[string]any{"retry_count": st.RetryCount},
		})
	}

	res := r.result(st)
	elapsed := time.Since(start)
	r.metrics.WorkflowDuration(elapsed)
	r.logger.InfoContext(ctx, "workflow finished", "scenario_id", scenarioID,
		"retries", st.RetryCount, "cases", len(res.HistoricalCases), "err", st.Err)
	observability.Emit(ctx, r.audit, &observability.Event{
		Type: observability.EventWorkflowEnd, ScenarioID: scenarioID, Success: st.Err == "",
		DurationMS: elapsed.Milliseconds(), Message: st.Err,
		Details: map[string]any{"retry_count": st.RetryCount, "historical": len(res.HistoricalCases)},
	})
	return res
}

// attempt runs the sequence once. A panic outside any stage becomes a
// runner error entry on the last known state.
func (r *Runner) attempt(ctx context.Context, st State, n int) (out State) {
	out = st
	defer func() {
		if p := recover(); p != nil {
			msg := fmt.Sprint(p)
			r.logger.ErrorContext(ctx, "workflow invoke failed", "scenario_id", st.ScenarioID, "attempt", n, "panic", msg)
			out.Err = msg
			out = out.withEntry(r.entry(StepRunner, StatusError, msg))
			r.observe(ctx, out, n)
		}
	}()
	return r.sequence(ctx, st, n)
}

func (r *Runner) runStages(ctx context.Context, st State, attempt int) State {
	for _, s := range r.stages {
		st = r.guard(ctx, s, st, attempt)
		r.observe(ctx, st, attempt)
	}
	return st
}

// guard runs one stage inside a span and converts a panic into an error
// entry for that stage.
func (r *Runner) guard(ctx context.Context, s stage, st State, attempt int) (out State) {
	ctx, span := observability.StartStageSpan(ctx, st.ScenarioID, s.name, attempt)
	defer span.End()
	defer func() {
		if p := recover(); p != nil {
			msg := fmt.Sprint(p)
			r.logger.ErrorContext(ctx, "workflow stage failed", "scenario_id", st.ScenarioID, "step", s.name, "panic", msg)
			out = st
			out.Err = msg
			out = out.withEntry(r.entry(s.name, StatusError, msg))
			observability.RecordError(span, fmt.Errorf("%s: %s", s.name, msg))
		}
	}()
	return s.run(ctx, st)
}

// observe logs, counts and audits the newest step entry.
func (r *Runner) observe(ctx context.Context, st State, attempt int) {
	if len(st.StepLog) == 0 {
		return
	}
	e := st.StepLog[len(st.StepLog)-1]
	level := slog.LevelInfo
	if e.Status == StatusError {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "workflow step", "scenario_id", st.ScenarioID, "step", e.Step,
		"status", e.Status, "attempt", attempt, "detail", e.Detail)
	r.metrics.Step(e.Step, string(e.Status))
	observability.Emit(ctx, r.audit, &observability.Event{
		Type: observability.EventWorkflowStep, ScenarioID: st.ScenarioID, Step: e.Step,
		Success: e.Status != StatusError, Message: e.Detail,
		Details: map[string]any{"status": string(e.Status), "attempt": attempt},
	})
}

func (r *Runner) result(st State) Result {
	res := Result{
		ScenarioID:      st.ScenarioID,
		ScenarioName:    st.ScenarioID,
		RiskType:        FallbackRiskType,
		CreatedAt:       r.now().Format(time.DateOnly),
		Recommendations: st.Recommendations,
		HistoricalCases: st.HistoricalCases,
		StepLog:         st.StepLog,
	}
	if p := st.Processed; p != nil {
		if p.Name != "" {
			res.ScenarioName = p.Name
		}
		if p.RiskType != "" {
			res.RiskType = p.RiskType
		}
	}
	if len(st.StepLog) > 0 {
		res.CreatedAt = st.StepLog[0].Timestamp.Format(time.DateOnly)
	}
	if res.Recommendations == nil {
		res.Recommendations = []string{}
	}
	if res.HistoricalCases == nil {
		res.HistoricalCases = []match.MatchResult{}
	}
	if res.StepLog == nil {
		res.StepLog = []StepEntry{}
	}
	res.ConfidenceScore = confidence(res.HistoricalCases)
	if st.Err != "" {
		msg := st.Err
		res.Error = &msg
	}
	return res
}

// confidence is the top similarity as a fraction rounded to two decimals.
func confidence(cases []match.MatchResult) *float64 {
	if len(cases) == 0 {
		return nil
	}
	n, ok := match.ParseSimilarity(cases[0].Similarity)
	if !ok {
		return nil
	}
	v := math.Round(float64(n)) / 100
	return &v
}
