package model

import "time"

// WorkflowStatus represents the lifecycle state of a workflow instance.
type WorkflowStatus string

const (
	WorkflowNotStarted WorkflowStatus = "not_started"
	WorkflowInGate     WorkflowStatus = "in_gate"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowTerminated WorkflowStatus = "terminated"
)

// String returns the string representation of the status.
func (s WorkflowStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowNotStarted, WorkflowInGate, WorkflowCompleted, WorkflowTerminated:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowTerminated
}

// WorkflowInstance is the per-entity state machine record. There is exactly
// one instance per (entity type, entity id).
type WorkflowInstance struct {
	ID          string         `json:"id"`
	EntityType  EntityType     `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	CurrentGate string         `json:"current_gate,omitempty"`
	Status      WorkflowStatus `json:"status"`
	RequesterID string         `json:"requester_id"`

	// Version is bumped on every gate transition; store updates are
	// conditional on the expected version (optimistic concurrency).
	Version int `json:"version"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// History is populated by queries, not stored on the workflows row.
	// Append-only, ordered by closed_at.
	History []*GateRecord `json:"history,omitempty"`
}

// GateRecord is one completed gate in a workflow's history.
type GateRecord struct {
	ID         int64     `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	GateName   string    `json:"gate_name"`
	RequestID  string    `json:"request_id"`
	Decision   Decision  `json:"decision"`
	DecidedBy  string    `json:"decided_by"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// WorkflowStatusView is the read-only projection returned by GetStatus.
type WorkflowStatusView struct {
	WorkflowID      string            `json:"workflow_id"`
	EntityType      EntityType        `json:"entity_type"`
	EntityID        string            `json:"entity_id"`
	Status          WorkflowStatus    `json:"status"`
	CurrentGate     string            `json:"current_gate,omitempty"`
	RequestID       string            `json:"request_id,omitempty"`
	DueAt           *time.Time        `json:"due_at,omitempty"`
	EscalationLevel int               `json:"escalation_level"`
	Checklist       ChecklistProgress `json:"checklist_progress"`
}
