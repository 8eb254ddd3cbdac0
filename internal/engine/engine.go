// Package engine implements the gate state machine: starting workflows,
// checklist and evaluation intake, consensus gating, and the atomic
// decide-and-advance transition. All business rules live here; the store
// only persists and the server only translates HTTP.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/civora/approvals/internal/authz"
	"github.com/civora/approvals/internal/consensus"
	"github.com/civora/approvals/internal/events"
	"github.com/civora/approvals/internal/idgen"
	"github.com/civora/approvals/internal/model"
	"github.com/civora/approvals/internal/notify"
	"github.com/civora/approvals/internal/registry"
	"github.com/civora/approvals/internal/sla"
	"github.com/civora/approvals/internal/store"
)

// Engine drives workflow instances through their gate tables.
type Engine struct {
	store     store.Store
	registry  *registry.Registry
	publisher events.Publisher
	notifier  notify.Notifier
	authz     authz.Checker
	logger    *slog.Logger
	locks     *workflowLocks

	now func() time.Time
}

// New constructs an Engine. Publisher and notifier may be the noop
// implementations; authz may be authz.AllowAll{}.
func New(st store.Store, reg *registry.Registry, pub events.Publisher, not notify.Notifier, checker authz.Checker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     st,
		registry:  reg,
		publisher: pub,
		notifier:  not,
		authz:     checker,
		logger:    logger,
		locks:     newWorkflowLocks(),
		now:       time.Now,
	}
}

// StartWorkflow creates the workflow instance for an entity and opens an
// approval request at the entity type's entry gate. Exactly one workflow
// exists per (entity type, entity id); starting twice fails.
func (e *Engine) StartWorkflow(ctx context.Context, entityType model.EntityType, entityID, requesterID string) (*model.WorkflowInstance, *model.ApprovalRequest, error) {
	if !entityType.IsValid() || entityID == "" {
		return nil, nil, errors.New("entity type and entity id are required")
	}
	if requesterID == "" {
		return nil, nil, errors.New("requester id is required")
	}

	firstGate, err := e.registry.FirstGate(entityType)
	if err != nil {
		return nil, nil, err
	}
	def, err := e.registry.Get(entityType, firstGate)
	if err != nil {
		return nil, nil, err
	}

	existing, err := e.store.GetWorkflow(ctx, entityType, entityID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("check existing workflow: %w", err)
	}
	if existing != nil {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrAlreadyStarted, entityType, entityID)
	}

	now := e.now().UTC()
	wfID, err := idgen.WorkflowID()
	if err != nil {
		return nil, nil, err
	}
	wf := &model.WorkflowInstance{
		ID:          wfID,
		EntityType:  entityType,
		EntityID:    entityID,
		CurrentGate: firstGate,
		Status:      model.WorkflowInGate,
		RequesterID: requesterID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	req, err := e.newRequest(wf, def, now)
	if err != nil {
		return nil, nil, err
	}

	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateWorkflow(ctx, wf); err != nil {
			return err
		}
		if err := tx.CreateRequest(ctx, req); err != nil {
			return err
		}
		return e.audit(ctx, tx, events.TopicWorkflowStarted, wf.ID, req.ID, requesterID, events.WorkflowStarted{Workflow: wf, Request: req})
	})
	if err != nil {
		// A concurrent start can slip past the existence check above and
		// lose to the store's uniqueness guarantee instead.
		if errors.Is(err, store.ErrDuplicateWorkflow) {
			return nil, nil, fmt.Errorf("%w: %s/%s", ErrAlreadyStarted, entityType, entityID)
		}
		return nil, nil, err
	}

	e.publish(ctx, events.TopicWorkflowStarted, events.WorkflowStarted{Workflow: wf, Request: req})
	e.publish(ctx, events.TopicRequestOpened, events.RequestOpened{Request: req})
	return wf, req, nil
}

// newRequest builds the open request for a gate, with the SLA clock armed.
func (e *Engine) newRequest(wf *model.WorkflowInstance, def *model.GateDefinition, now time.Time) (*model.ApprovalRequest, error) {
	id, err := idgen.RequestID()
	if err != nil {
		return nil, err
	}
	return &model.ApprovalRequest{
		ID:                id,
		WorkflowID:        wf.ID,
		EntityType:        wf.EntityType,
		GateName:          def.GateName,
		RequesterID:       wf.RequesterID,
		Status:            model.RequestOpen,
		SelfCheck:         make(map[string]bool),
		ReviewerChecklist: make(map[string]bool),
		OpenedAt:          now,
		DueAt:             sla.DueAt(now, def.SLADays),
	}, nil
}

// GetStatus returns the read-only projection for an entity's workflow.
func (e *Engine) GetStatus(ctx context.Context, entityType model.EntityType, entityID string) (*model.WorkflowStatusView, error) {
	wf, err := e.store.GetWorkflow(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	view := &model.WorkflowStatusView{
		WorkflowID:  wf.ID,
		EntityType:  wf.EntityType,
		EntityID:    wf.EntityID,
		Status:      wf.Status,
		CurrentGate: wf.CurrentGate,
	}
	if wf.Status != model.WorkflowInGate {
		return view, nil
	}
	req, err := e.store.GetOpenRequest(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: workflow %s is in gate %s with no open request", ErrInconsistentState, wf.ID, wf.CurrentGate)
	}
	def, err := e.registry.Get(wf.EntityType, req.GateName)
	if err != nil {
		return nil, err
	}
	due := req.DueAt
	view.RequestID = req.ID
	view.DueAt = &due
	view.EscalationLevel = req.EscalationLevel
	view.Checklist = req.Progress(def)
	return view, nil
}

// GetHistory returns the workflow's completed gates, oldest first.
func (e *Engine) GetHistory(ctx context.Context, entityType model.EntityType, entityID string) ([]*model.GateRecord, error) {
	wf, err := e.store.GetWorkflow(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return e.store.GetHistory(ctx, wf.ID)
}

// GetRequest returns a request with its evaluations and escalations attached.
func (e *Engine) GetRequest(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	req, err := e.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	evals, err := e.store.GetEvaluations(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	req.Evaluations = evals
	return req, nil
}

// SetSelfCheckItem records a requester's self-check answer. Only the
// workflow's requester may do this, only while the request is open, and only
// for keys the gate declares.
func (e *Engine) SetSelfCheckItem(ctx context.Context, requestID, actorID, key string, value bool) (*model.ApprovalRequest, error) {
	return e.setChecklistItem(ctx, requestID, actorID, key, value, false)
}

// SetReviewerItem records a reviewer checklist answer. The actor must hold
// the reviewer role for the request's entity type.
func (e *Engine) SetReviewerItem(ctx context.Context, requestID, actorID, key string, value bool) (*model.ApprovalRequest, error) {
	return e.setChecklistItem(ctx, requestID, actorID, key, value, true)
}

func (e *Engine) setChecklistItem(ctx context.Context, requestID, actorID, key string, value bool, reviewer bool) (*model.ApprovalRequest, error) {
	req, def, unlock, err := e.lockedOpenRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if reviewer {
		if !e.authz.CanReview(actorID, req.EntityType) {
			return nil, ErrNotAuthorized
		}
		if def.ReviewerItem(key) == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChecklistItem, key)
		}
	} else {
		if actorID != req.RequesterID {
			return nil, ErrNotRequester
		}
		if def.SelfCheckItem(key) == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChecklistItem, key)
		}
	}

	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.SetChecklistItem(ctx, req.ID, reviewer, key, value); err != nil {
			return err
		}
		return e.audit(ctx, tx, events.TopicChecklistUpdated, req.WorkflowID, req.ID, actorID,
			events.ChecklistUpdated{RequestID: req.ID, Reviewer: reviewer, Key: key, Value: value})
	})
	if err != nil {
		return nil, err
	}

	if reviewer {
		req.ReviewerChecklist[key] = value
	} else {
		req.SelfCheck[key] = value
	}
	e.publish(ctx, events.TopicChecklistUpdated, events.ChecklistUpdated{RequestID: req.ID, Reviewer: reviewer, Key: key, Value: value})
	return req, nil
}

// AssignEvaluators replaces the request's assigned evaluator set. The gate
// must require expert consensus and the actor must hold the assigner role.
func (e *Engine) AssignEvaluators(ctx context.Context, requestID, actorID string, evaluators []string) (*model.ApprovalRequest, error) {
	req, def, unlock, err := e.lockedOpenRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if !def.RequiresExpertConsensus {
		return nil, ErrConsensusNotRequired
	}
	if !e.authz.CanAssign(actorID, req.EntityType) {
		return nil, ErrNotAuthorized
	}

	seen := make(map[string]bool, len(evaluators))
	deduped := make([]string, 0, len(evaluators))
	for _, id := range evaluators {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		deduped = append(deduped, id)
	}
	if len(deduped) == 0 {
		return nil, errors.New("at least one evaluator is required")
	}
	for _, id := range deduped {
		if !e.authz.CanEvaluate(id, req.EntityType) {
			return nil, fmt.Errorf("%w: %s", ErrNotEvaluator, id)
		}
	}

	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.SetAssignedEvaluators(ctx, req.ID, deduped); err != nil {
			return err
		}
		return e.audit(ctx, tx, events.TopicEvaluatorsAssigned, req.WorkflowID, req.ID, actorID,
			events.EvaluatorsAssigned{RequestID: req.ID, Evaluators: deduped})
	})
	if err != nil {
		return nil, err
	}

	req.AssignedEvaluators = deduped
	e.publish(ctx, events.TopicEvaluatorsAssigned, events.EvaluatorsAssigned{RequestID: req.ID, Evaluators: deduped})
	for _, id := range deduped {
		e.notify(ctx, notify.Notification{
			Kind:        notify.KindAssignment,
			RecipientID: id,
			WorkflowID:  req.WorkflowID,
			RequestID:   req.ID,
			Subject:     fmt.Sprintf("assigned as evaluator for %s gate %s", req.EntityType, req.GateName),
			RaisedAt:    e.now().UTC(),
		})
	}
	return req, nil
}

// SubmitEvaluation records one expert's scores and recommendation, then
// recomputes and persists the consensus over all evaluations received so far.
func (e *Engine) SubmitEvaluation(ctx context.Context, requestID string, eval *model.ExpertEvaluation) (*model.ConsensusResult, error) {
	req, def, unlock, err := e.lockedOpenRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if !def.RequiresExpertConsensus {
		return nil, ErrConsensusNotRequired
	}
	if err := model.ValidateEvaluation(eval); err != nil {
		return nil, err
	}
	if !req.IsAssigned(eval.EvaluatorID) {
		return nil, fmt.Errorf("%w: %s", ErrNotAssigned, eval.EvaluatorID)
	}

	existing, err := e.store.GetEvaluations(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	for _, prev := range existing {
		if prev.EvaluatorID == eval.EvaluatorID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEvaluation, eval.EvaluatorID)
		}
	}

	now := e.now().UTC()
	eval.RequestID = req.ID
	eval.OverallScore = eval.Overall()
	eval.SubmittedAt = now

	all := append(existing, eval)
	res := consensus.Compute(all, now)

	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.AddEvaluation(ctx, eval); err != nil {
			return err
		}
		if err := tx.SetConsensus(ctx, req.ID, res); err != nil {
			return err
		}
		return e.audit(ctx, tx, events.TopicEvaluationSubmitted, req.WorkflowID, req.ID, eval.EvaluatorID,
			events.EvaluationSubmitted{Evaluation: eval, Consensus: res})
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events.TopicEvaluationSubmitted, events.EvaluationSubmitted{Evaluation: eval, Consensus: res})
	return res, nil
}

// Decide closes the request with a decision and advances the workflow in one
// atomic transition: the decision freezes the request, a gate record is
// appended, and either the next gate's request opens or the workflow ends.
func (e *Engine) Decide(ctx context.Context, requestID, actorID string, decision model.Decision) (*model.WorkflowInstance, *model.ApprovalRequest, error) {
	req, def, unlock, err := e.lockedOpenRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	// Withdraw is the requester pulling their own submission; everything
	// else needs the reviewer role.
	if decision == model.DecisionWithdraw {
		if actorID != req.RequesterID && !e.authz.CanReview(actorID, req.EntityType) {
			return nil, nil, ErrNotAuthorized
		}
	} else if !e.authz.CanReview(actorID, req.EntityType) {
		return nil, nil, ErrNotAuthorized
	}

	if !def.AllowsDecision(decision) {
		return nil, nil, fmt.Errorf("%w: %q at gate %s", ErrDecisionNotAllowed, decision, def.GateName)
	}

	wf, err := e.store.GetWorkflowByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, nil, err
	}
	if wf.Status.IsTerminal() {
		return nil, nil, ErrWorkflowEnded
	}

	now := e.now().UTC()
	next := def.NextGateByDecision[decision]

	var nextReq *model.ApprovalRequest
	fromGate := wf.CurrentGate
	expectedVersion := wf.Version
	switch {
	case next == model.TransitionCompleted:
		wf.Status = model.WorkflowCompleted
		wf.CurrentGate = ""
	case next == model.TransitionTerminated:
		wf.Status = model.WorkflowTerminated
		wf.CurrentGate = ""
	default:
		nextDef, err := e.registry.Get(wf.EntityType, next)
		if err != nil {
			return nil, nil, err
		}
		wf.CurrentGate = next
		nextReq, err = e.newRequest(wf, nextDef, now)
		if err != nil {
			return nil, nil, err
		}
	}
	wf.Version = expectedVersion + 1
	wf.UpdatedAt = now

	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		// The gating reads happen on transaction state, not on the snapshot
		// taken above, so a checklist or evaluation write that landed in the
		// meantime is observed before the decision freezes the request.
		cur, err := tx.GetRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.RequestOpen {
			return ErrRequestDecided
		}
		// Withdrawal abandons the submission; it is never blocked by
		// checklist or consensus state.
		if decision != model.DecisionWithdraw {
			if missing := cur.MissingRequired(def); len(missing) > 0 {
				return &ChecklistIncompleteError{Missing: missing}
			}
			if def.RequiresExpertConsensus {
				evals, err := tx.GetEvaluations(ctx, cur.ID)
				if err != nil {
					return err
				}
				if !consensus.Reached(consensus.Compute(evals, now), def) {
					return ErrConsensusNotReached
				}
			}
		}

		if err := tx.DecideRequest(ctx, req.ID, decision, actorID, now); err != nil {
			return err
		}
		if err := tx.AppendGateRecord(ctx, &model.GateRecord{
			WorkflowID: wf.ID,
			GateName:   fromGate,
			RequestID:  req.ID,
			Decision:   decision,
			DecidedBy:  actorID,
			OpenedAt:   req.OpenedAt,
			ClosedAt:   now,
		}); err != nil {
			return err
		}
		if err := tx.UpdateWorkflowGate(ctx, wf, expectedVersion); err != nil {
			return err
		}
		if nextReq != nil {
			if err := tx.CreateRequest(ctx, nextReq); err != nil {
				return err
			}
		}
		return e.audit(ctx, tx, events.TopicRequestDecided, wf.ID, req.ID, actorID,
			events.RequestDecided{Request: req, Decision: decision})
	})
	if err != nil {
		return nil, nil, err
	}

	req.Status = model.RequestDecided
	req.Decision = decision
	req.DecidedBy = actorID
	req.DecidedAt = &now

	e.publish(ctx, events.TopicRequestDecided, events.RequestDecided{Request: req, Decision: decision})
	switch wf.Status {
	case model.WorkflowCompleted:
		e.publish(ctx, events.TopicWorkflowCompleted, events.WorkflowEnded{Workflow: wf, Decision: decision})
	case model.WorkflowTerminated:
		e.publish(ctx, events.TopicWorkflowTerminated, events.WorkflowEnded{Workflow: wf, Decision: decision})
	default:
		e.publish(ctx, events.TopicWorkflowAdvanced, events.WorkflowAdvanced{Workflow: wf, FromGate: fromGate, Decision: decision, Request: nextReq})
		if nextReq != nil {
			e.publish(ctx, events.TopicRequestOpened, events.RequestOpened{Request: nextReq})
		}
	}

	e.notify(ctx, notify.Notification{
		Kind:        notify.KindDecision,
		RecipientID: wf.RequesterID,
		WorkflowID:  wf.ID,
		RequestID:   req.ID,
		Subject:     fmt.Sprintf("gate %s decided: %s", fromGate, decision),
		Data:        map[string]any{"decision": decision.String(), "status": wf.Status.String()},
		RaisedAt:    now,
	})
	return wf, req, nil
}

// ListOverdue returns open requests at or above the given escalation level.
func (e *Engine) ListOverdue(ctx context.Context, filter model.OverdueFilter) ([]*model.ApprovalRequest, int, error) {
	return e.store.ListOverdue(ctx, filter)
}

// GetAuditTrail returns the audit entries recorded for a request.
func (e *Engine) GetAuditTrail(ctx context.Context, requestID string) ([]*model.AuditEntry, error) {
	if _, err := e.store.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return e.store.GetAuditTrail(ctx, requestID)
}

// GetEscalations returns the escalation events recorded for a request.
func (e *Engine) GetEscalations(ctx context.Context, requestID string) ([]*model.EscalationEvent, error) {
	return e.store.GetEscalations(ctx, requestID)
}

// DeleteWorkflow soft-deletes a workflow. Deleted workflows disappear from
// lookups but their rows and audit trail remain.
func (e *Engine) DeleteWorkflow(ctx context.Context, id string) error {
	wf, err := e.store.GetWorkflowByID(ctx, id)
	if err != nil {
		return err
	}
	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.SoftDeleteWorkflow(ctx, wf.ID); err != nil {
			return err
		}
		return e.audit(ctx, tx, events.TopicWorkflowDeleted, wf.ID, "", "", events.WorkflowDeleted{WorkflowID: wf.ID})
	})
	if err != nil {
		return err
	}
	e.publish(ctx, events.TopicWorkflowDeleted, events.WorkflowDeleted{WorkflowID: wf.ID})
	return nil
}

// lockedOpenRequest resolves the request's workflow, takes that workflow's
// lock, and re-reads the request under it. Callers hold the lock for the rest
// of their mutation so checklist writes, evaluations, and decisions on one
// workflow are serialized within this process. The release func must be
// called even when the mutation fails.
func (e *Engine) lockedOpenRequest(ctx context.Context, requestID string) (*model.ApprovalRequest, *model.GateDefinition, func(), error) {
	first, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, nil, err
	}
	unlock := e.locks.acquire(first.WorkflowID)
	req, def, err := e.openRequest(ctx, requestID)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	return req, def, unlock, nil
}

// openRequest loads a request and its gate definition, failing when the
// request is already decided.
func (e *Engine) openRequest(ctx context.Context, requestID string) (*model.ApprovalRequest, *model.GateDefinition, error) {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if req.Status != model.RequestOpen {
		return nil, nil, ErrRequestDecided
	}
	def, err := e.registry.Get(req.EntityType, req.GateName)
	if err != nil {
		return nil, nil, err
	}
	return req, def, nil
}

// audit persists an audit entry inside the caller's transaction.
func (e *Engine) audit(ctx context.Context, tx store.Store, topic, workflowID, requestID, actor string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	return tx.RecordAudit(ctx, &model.AuditEntry{
		Topic:      topic,
		WorkflowID: workflowID,
		RequestID:  requestID,
		Actor:      actor,
		Payload:    raw,
		CreatedAt:  e.now().UTC(),
	})
}

// publish emits an event best-effort. The state change already committed;
// a publish failure is logged, never surfaced.
func (e *Engine) publish(ctx context.Context, topic string, event any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, topic, event); err != nil {
		e.logger.Warn("event publish failed", "topic", topic, "error", err)
	}
}

// notify delivers a notification best-effort.
func (e *Engine) notify(ctx context.Context, n notify.Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("notification failed", "kind", n.Kind, "recipient", n.RecipientID, "error", err)
	}
}
