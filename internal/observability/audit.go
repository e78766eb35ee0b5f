// Package observability carries the audit trail, tracing and Prometheus
// metrics shared by the matcher and the workflow.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// EventType categorizes audit events.
type EventType string

const (
	EventWorkflowStart EventType = "workflow.start"
	EventWorkflowEnd   EventType = "workflow.end"
	EventWorkflowStep  EventType = "workflow.step"
	EventWorkflowRetry EventType = "workflow.retry"
	EventMatcherTier   EventType = "matcher.tier"
	EventMatcherResync EventType = "matcher.resync"
)

// Event is a single audit record.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	Type       EventType      `json:"event_type"`
	SessionID  string         `json:"session_id,omitempty"`
	ScenarioID string         `json:"scenario_id,omitempty"`
	Step       string         `json:"step,omitempty"`
	Success    bool           `json:"success"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Sink receives audit events.
type Sink interface {
	Log(event *Event) error
}

// Emit sends event to sink without blocking the caller on failure: errors
// are logged at debug level and dropped. A nil sink is a no-op.
func Emit(ctx context.Context, sink Sink, event *Event) {
	if sink == nil || event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := sink.Log(event); err != nil {
		slog.Default().DebugContext(ctx, "audit event dropped", "type", event.Type, "err", err)
	}
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Log(event *Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Log(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AuditConfig configures the JSONL audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // file path, "stdout" or "stderr"
	SessionID  string
}

// AuditLogger writes one JSON object per line.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// NewAuditLogger opens the configured output. A nil config writes to stdout.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = &AuditConfig{Enabled: true, OutputPath: "stdout"}
	}
	var w io.Writer
	switch config.OutputPath {
	case "stdout", "":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		w = f
	}
	return newAuditLogger(w, config), nil
}

// NewAuditWriter logs to an arbitrary writer.
func NewAuditWriter(w io.Writer, sessionID string) *AuditLogger {
	return newAuditLogger(w, &AuditConfig{Enabled: true, SessionID: sessionID})
}

func newAuditLogger(w io.Writer, config *AuditConfig) *AuditLogger {
	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return &AuditLogger{writer: w, sessionID: sessionID, enabled: config.Enabled}
}

func (l *AuditLogger) Log(event *Event) error {
	if !l.enabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// Close closes the output file, leaving stdout and stderr open.
func (l *AuditLogger) Close() error {
	if c, ok := l.writer.(io.Closer); ok && c != os.Stdout && c != os.Stderr {
		return c.Close()
	}
	return nil
}
