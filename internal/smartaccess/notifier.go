package smartaccess

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultFlaggedSubject is the NATS subject anomaly notifications publish to.
const DefaultFlaggedSubject = "sentra.smartaccess.flagged"

// FlaggedEvent is the notification payload for a flagged anomaly.
type FlaggedEvent struct {
	IdentityID string    `json:"employee_id"`
	Score      float64   `json:"score"`
	Threshold  float64   `json:"threshold"`
	Page       string    `json:"page"`
	DeviceID   string    `json:"device_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier publishes anomaly notifications. Publishing is best-effort;
// failures never block or fail collect.
type Notifier interface {
	NotifyFlagged(ctx context.Context, event FlaggedEvent) error
}

// NATSNotifier publishes flagged events to a NATS subject.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

// NewNATSNotifier creates a notifier on an established NATS connection.
// An empty subject uses DefaultFlaggedSubject.
func NewNATSNotifier(conn *nats.Conn, subject string) *NATSNotifier {
	if subject == "" {
		subject = DefaultFlaggedSubject
	}
	return &NATSNotifier{conn: conn, subject: subject}
}

// NotifyFlagged publishes the flagged event as JSON.
func (n *NATSNotifier) NotifyFlagged(_ context.Context, event FlaggedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding flagged event: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publishing flagged event: %w", err)
	}
	return nil
}

// NoopNotifier discards notifications. Used when no broker is configured.
type NoopNotifier struct{}

// NotifyFlagged discards the event.
func (NoopNotifier) NotifyFlagged(context.Context, FlaggedEvent) error {
	return nil
}

var (
	_ Notifier = (*NATSNotifier)(nil)
	_ Notifier = NoopNotifier{}
)
