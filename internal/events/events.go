package events

import (
	"context"

	"github.com/civora/approvals/internal/model"
)

// Event topic constants
const (
	TopicWorkflowStarted    = "approvals.workflow.started"
	TopicWorkflowAdvanced   = "approvals.workflow.advanced"
	TopicWorkflowCompleted  = "approvals.workflow.completed"
	TopicWorkflowTerminated = "approvals.workflow.terminated"
	TopicWorkflowDeleted    = "approvals.workflow.deleted"

	TopicRequestOpened    = "approvals.request.opened"
	TopicRequestDecided   = "approvals.request.decided"
	TopicRequestEscalated = "approvals.request.escalated"

	TopicChecklistUpdated    = "approvals.checklist.updated"
	TopicEvaluatorsAssigned  = "approvals.evaluators.assigned"
	TopicEvaluationSubmitted = "approvals.evaluation.submitted"
)

// Event types

type WorkflowStarted struct {
	Workflow *model.WorkflowInstance `json:"workflow"`
	Request  *model.ApprovalRequest  `json:"request"`
}

type WorkflowAdvanced struct {
	Workflow *model.WorkflowInstance `json:"workflow"`
	FromGate string                  `json:"from_gate"`
	Decision model.Decision          `json:"decision"`
	// Request is the newly opened request, nil when the workflow ended.
	Request *model.ApprovalRequest `json:"request,omitempty"`
}

type WorkflowEnded struct {
	Workflow *model.WorkflowInstance `json:"workflow"`
	Decision model.Decision          `json:"decision"`
}

type WorkflowDeleted struct {
	WorkflowID string `json:"workflow_id"`
}

type RequestOpened struct {
	Request *model.ApprovalRequest `json:"request"`
}

type RequestDecided struct {
	Request  *model.ApprovalRequest `json:"request"`
	Decision model.Decision         `json:"decision"`
}

type RequestEscalated struct {
	Escalation *model.EscalationEvent `json:"escalation"`
}

type ChecklistUpdated struct {
	RequestID string `json:"request_id"`
	Reviewer  bool   `json:"reviewer"`
	Key       string `json:"key"`
	Value     bool   `json:"value"`
}

type EvaluatorsAssigned struct {
	RequestID  string   `json:"request_id"`
	Evaluators []string `json:"evaluators"`
}

type EvaluationSubmitted struct {
	Evaluation *model.ExpertEvaluation `json:"evaluation"`
	Consensus  *model.ConsensusResult  `json:"consensus"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
