package model

import "time"

// RequestStatus represents the lifecycle of an approval request.
type RequestStatus string

const (
	RequestOpen    RequestStatus = "open"
	RequestDecided RequestStatus = "decided"
)

// String returns the string representation of the status.
func (s RequestStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s RequestStatus) IsValid() bool {
	return s == RequestOpen || s == RequestDecided
}

// ApprovalRequest is one open (or decided) gate instance. At most one open
// request exists per workflow at any time.
type ApprovalRequest struct {
	ID          string        `json:"id"`
	WorkflowID  string        `json:"workflow_id"`
	EntityType  EntityType    `json:"entity_type"`
	GateName    string        `json:"gate_name"`
	RequesterID string        `json:"requester_id"`
	Status      RequestStatus `json:"status"`

	SelfCheck         map[string]bool `json:"self_check"`
	ReviewerChecklist map[string]bool `json:"reviewer_checklist"`

	AssignedEvaluators []string `json:"assigned_evaluators"`

	Decision  Decision   `json:"decision,omitempty"`
	DecidedBy string     `json:"decided_by,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`

	OpenedAt        time.Time `json:"opened_at"`
	DueAt           time.Time `json:"due_at"`
	EscalationLevel int       `json:"escalation_level"`

	// Relational data -- populated by queries, not stored on the requests row.
	Evaluations []*ExpertEvaluation `json:"evaluations,omitempty"`
	Consensus   *ConsensusResult    `json:"consensus,omitempty"`
}

// IsAssigned reports whether the evaluator is in the assigned set.
func (r *ApprovalRequest) IsAssigned(evaluatorID string) bool {
	for _, id := range r.AssignedEvaluators {
		if id == evaluatorID {
			return true
		}
	}
	return false
}

// ChecklistProgress summarizes required-item completion for one request,
// suitable for rendering "N of M reviewer items still required".
type ChecklistProgress struct {
	SelfCheckDone     int `json:"self_check_done"`
	SelfCheckRequired int `json:"self_check_required"`
	ReviewerDone      int `json:"reviewer_done"`
	ReviewerRequired  int `json:"reviewer_required"`
}

// Complete reports whether every required item has been checked.
func (p ChecklistProgress) Complete() bool {
	return p.SelfCheckDone >= p.SelfCheckRequired && p.ReviewerDone >= p.ReviewerRequired
}

// Progress computes required-item completion against the gate definition.
// Only required items count; optional items never block a decision.
func (r *ApprovalRequest) Progress(def *GateDefinition) ChecklistProgress {
	var p ChecklistProgress
	for _, item := range def.SelfCheckItems {
		if !item.Required {
			continue
		}
		p.SelfCheckRequired++
		if r.SelfCheck[item.Key] {
			p.SelfCheckDone++
		}
	}
	for _, item := range def.ReviewerChecklistItems {
		if !item.Required {
			continue
		}
		p.ReviewerRequired++
		if r.ReviewerChecklist[item.Key] {
			p.ReviewerDone++
		}
	}
	return p
}

// MissingRequired returns the keys of required items not yet checked true,
// self-check items first, in definition order.
func (r *ApprovalRequest) MissingRequired(def *GateDefinition) []string {
	var missing []string
	for _, item := range def.SelfCheckItems {
		if item.Required && !r.SelfCheck[item.Key] {
			missing = append(missing, item.Key)
		}
	}
	for _, item := range def.ReviewerChecklistItems {
		if item.Required && !r.ReviewerChecklist[item.Key] {
			missing = append(missing, item.Key)
		}
	}
	return missing
}

// OverdueFilter holds criteria for querying open overdue requests.
type OverdueFilter struct {
	MinLevel   int        `json:"min_level,omitempty"`
	EntityType EntityType `json:"entity_type,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}
