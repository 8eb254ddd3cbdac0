package model

import (
	"encoding/json"
	"time"
)

// EscalationEvent records one escalation level increase on an open request.
// Append-only; emitted outward, never mutated.
type EscalationEvent struct {
	ID          int64     `json:"id"`
	RequestID   string    `json:"request_id"`
	FromLevel   int       `json:"from_level"`
	ToLevel     int       `json:"to_level"`
	DaysOverdue int       `json:"days_overdue"`
	RaisedAt    time.Time `json:"raised_at"`
}

// AuditEntry is a persisted audit record, mirroring what is published to NATS.
// Every state-changing operation produces exactly one entry.
type AuditEntry struct {
	ID         int64           `json:"id"`
	Topic      string          `json:"topic"`
	WorkflowID string          `json:"workflow_id"`
	RequestID  string          `json:"request_id,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}
