package observability

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultAuditSubject is the subject audit events are published on.
const DefaultAuditSubject = "riskmap.audit"

// NATSSink publishes audit events as JSON, one message per event. The
// subject is suffixed with the event type (riskmap.audit.workflow.step).
type NATSSink struct {
	nc      *nats.Conn
	subject string
	owned   bool
}

// DialNATS connects to url and returns a sink that owns the connection.
func DialNATS(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("riskmap-audit"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	s := NewNATSSink(nc, subject)
	s.owned = true
	return s, nil
}

// NewNATSSink wraps an existing connection.
func NewNATSSink(nc *nats.Conn, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultAuditSubject
	}
	return &NATSSink{nc: nc, subject: subject}
}

func (s *NATSSink) Log(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.nc.Publish(s.subject+"."+string(event.Type), data)
}

// Close drains the connection when the sink created it.
func (s *NATSSink) Close() error {
	if s.owned {
		return s.nc.Drain()
	}
	return nil
}
