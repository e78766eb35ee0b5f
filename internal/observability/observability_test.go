package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingSink struct {
	events []*Event
	err    error
}

func (r *recordingSink) Log(e *Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestAuditLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditWriter(&buf, "s1")
	l.Log(&Event{Type: EventWorkflowStart, ScenarioID: "abc", Success: true})
	l.Log(&Event{Type: EventWorkflowEnd, ScenarioID: "abc"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var got Event
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != EventWorkflowStart || got.SessionID != "s1" || got.Timestamp.IsZero() {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	l := newAuditLogger(&buf, &AuditConfig{Enabled: false})
	l.Log(&Event{Type: EventWorkflowStep})
	if buf.Len() != 0 {
		t.Fatal("disabled logger must not write")
	}
}

func TestMultiAndEmit(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("down")}
	m := Multi{a, nil, b}

	if err := m.Log(&Event{Type: EventMatcherTier}); err == nil {
		t.Fatal("expected joined error")
	}
	Emit(context.Background(), m, &Event{Type: EventMatcherResync})
	Emit(context.Background(), nil, &Event{Type: EventMatcherResync})
	if len(a.events) != 2 || len(b.events) != 2 {
		t.Fatalf("expected both sinks to see both events, got %d and %d", len(a.events), len(b.events))
	}
	if a.events[1].Timestamp.IsZero() {
		t.Error("Emit should stamp the event")
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.TierSelected("lexical", "tfidf")
	m.Step("enrich", "ok")
	m.Step("enrich", "ok")
	m.Attempt()

	if got := testutil.ToFloat64(m.steps.WithLabelValues("enrich", "ok")); got != 2 {
		t.Errorf("expected 2 enrich steps, got %v", got)
	}
	if got := testutil.ToFloat64(m.tierSelected.WithLabelValues("lexical", "tfidf")); got != 1 {
		t.Errorf("expected 1 tier selection, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "riskmap_workflow_attempts_total 1") {
		t.Errorf("exposition missing attempts counter:\n%s", rec.Body.String())
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.TierSelected("a", "b")
	m.Query("a", "ok")
	m.Step("s", "ok")
	m.Attempt()
	m.WorkflowDuration(0)
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, span := StartStageSpan(context.Background(), "id", "normalize", 1)
	RecordError(span, errors.New("x"))
	span.End()
	_, span = StartTierSpan(ctx, "cloud", 3)
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
