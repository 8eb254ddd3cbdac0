// Package notify delivers user-facing notifications raised by the engine.
// Delivery is best-effort: the engine never fails or retries a primary
// operation because a notification could not be sent.
package notify

import (
	"context"
	"time"
)

// Kind classifies a notification for the delivery side.
type Kind string

const (
	KindDecision   Kind = "decision"
	KindEscalation Kind = "escalation"
	KindAssignment Kind = "assignment"
)

// Notification is one message for one recipient.
type Notification struct {
	Kind        Kind           `json:"kind"`
	RecipientID string         `json:"recipient_id"`
	WorkflowID  string         `json:"workflow_id"`
	RequestID   string         `json:"request_id,omitempty"`
	Subject     string         `json:"subject"`
	Data        map[string]any `json:"data,omitempty"`
	RaisedAt    time.Time      `json:"raised_at"`
}

// Notifier is the interface for the external notification sink.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Close() error
}

// Noop is a Notifier that discards everything (used when NATS is not configured).
type Noop struct{}

func (Noop) Notify(ctx context.Context, n Notification) error { return nil }

func (Noop) Close() error { return nil }
