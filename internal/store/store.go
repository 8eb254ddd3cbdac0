package store

import (
	"context"
	"time"

	"github.com/civora/approvals/internal/model"
)

// Store defines the persistence interface for the approval engine.
type Store interface {
	// Workflow instances
	CreateWorkflow(ctx context.Context, wf *model.WorkflowInstance) error
	GetWorkflow(ctx context.Context, entityType model.EntityType, entityID string) (*model.WorkflowInstance, error)
	GetWorkflowByID(ctx context.Context, id string) (*model.WorkflowInstance, error)
	// UpdateWorkflowGate persists current_gate and status, conditional on the
	// stored version matching expectedVersion. Returns ErrVersionConflict when
	// another transition won the race.
	UpdateWorkflowGate(ctx context.Context, wf *model.WorkflowInstance, expectedVersion int) error
	SoftDeleteWorkflow(ctx context.Context, id string) error

	// Gate history (append-only, ordered by closed_at)
	AppendGateRecord(ctx context.Context, rec *model.GateRecord) error
	GetHistory(ctx context.Context, workflowID string) ([]*model.GateRecord, error)

	// Approval requests
	CreateRequest(ctx context.Context, req *model.ApprovalRequest) error
	GetRequest(ctx context.Context, id string) (*model.ApprovalRequest, error)
	// GetOpenRequest returns the single open request for a workflow, or nil
	// when no request is open.
	GetOpenRequest(ctx context.Context, workflowID string) (*model.ApprovalRequest, error)
	SetChecklistItem(ctx context.Context, id string, reviewer bool, key string, value bool) error
	SetAssignedEvaluators(ctx context.Context, id string, evaluators []string) error
	DecideRequest(ctx context.Context, id string, decision model.Decision, decidedBy string, decidedAt time.Time) error
	ListOpenRequests(ctx context.Context) ([]*model.ApprovalRequest, error)
	ListOverdue(ctx context.Context, filter model.OverdueFilter) ([]*model.ApprovalRequest, int, error) // returns requests, total count, error

	// Expert evaluations and consensus
	AddEvaluation(ctx context.Context, e *model.ExpertEvaluation) error
	GetEvaluations(ctx context.Context, requestID string) ([]*model.ExpertEvaluation, error)
	SetConsensus(ctx context.Context, requestID string, res *model.ConsensusResult) error

	// Escalations
	// EscalateRequest raises the stored level from fromLevel to toLevel as a
	// compare-and-swap; returns false when the stored level no longer matches
	// fromLevel (another sweep won) or the request is no longer open.
	EscalateRequest(ctx context.Context, id string, fromLevel, toLevel int) (bool, error)
	RecordEscalation(ctx context.Context, ev *model.EscalationEvent) error
	GetEscalations(ctx context.Context, requestID string) ([]*model.EscalationEvent, error)

	// Audit trail
	RecordAudit(ctx context.Context, entry *model.AuditEntry) error
	GetAuditTrail(ctx context.Context, requestID string) ([]*model.AuditEntry, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
