package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by engine operations. The HTTP layer maps these onto
// status codes, so handlers must be able to identify them with errors.Is.
var (
	// ErrAlreadyStarted is returned when a workflow already exists for the
	// (entity type, entity id) pair.
	ErrAlreadyStarted = errors.New("workflow already started for entity")

	// ErrWorkflowEnded is returned when an operation targets a completed or
	// terminated workflow.
	ErrWorkflowEnded = errors.New("workflow has ended")

	// ErrRequestDecided is returned when a mutation targets a request that
	// already has a decision recorded.
	ErrRequestDecided = errors.New("request already decided")

	// ErrNotRequester is returned when someone other than the workflow's
	// requester submits a self-check update.
	ErrNotRequester = errors.New("only the requester may update the self-check")

	// ErrNotAuthorized is returned when the actor lacks the reviewer or
	// assigner role required by the operation.
	ErrNotAuthorized = errors.New("actor is not authorized for this action")

	// ErrUnknownChecklistItem is returned when a checklist update names a key
	// the gate definition does not declare.
	ErrUnknownChecklistItem = errors.New("unknown checklist item")

	// ErrDecisionNotAllowed is returned when the decision is not in the
	// gate's allowed set.
	ErrDecisionNotAllowed = errors.New("decision not allowed at this gate")

	// ErrConsensusNotRequired is returned when evaluator operations target a
	// gate without expert consensus.
	ErrConsensusNotRequired = errors.New("gate does not require expert consensus")

	// ErrNotAssigned is returned when an evaluation arrives from an
	// evaluator who is not in the request's assigned set.
	ErrNotAssigned = errors.New("evaluator is not assigned to this request")

	// ErrDuplicateEvaluation is returned when an assigned evaluator submits
	// a second evaluation for the same request.
	ErrDuplicateEvaluation = errors.New("evaluator already submitted an evaluation")

	// ErrConsensusNotReached is returned when a decision is attempted on a
	// consensus gate before quorum and agreement are met.
	ErrConsensusNotReached = errors.New("expert consensus not reached")

	// ErrNotEvaluator is returned when an assignment names a user who does
	// not hold the evaluator role for the entity type.
	ErrNotEvaluator = errors.New("user does not hold the evaluator role")

	// ErrInconsistentState is returned when stored workflow state violates a
	// structural invariant, such as an in-gate workflow with no open request.
	ErrInconsistentState = errors.New("workflow state is inconsistent")
)

// ChecklistIncompleteError reports which required checklist items are still
// unchecked when a decision is attempted.
type ChecklistIncompleteError struct {
	Missing []string
}

func (e *ChecklistIncompleteError) Error() string {
	return fmt.Sprintf("required checklist items incomplete: %s", strings.Join(e.Missing, ", "))
}
