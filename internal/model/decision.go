package model

// EntityType identifies the kind of entity moving through a workflow.
// Well-known constants are provided below, but entity types are extensible;
// any type with a gate table in the registry is valid.
type EntityType string

const (
	EntityChallenge   EntityType = "challenge"
	EntityPilot       EntityType = "pilot"
	EntityPolicy      EntityType = "policy"
	EntityRNDProposal EntityType = "rnd_proposal"
	EntityProgramApp  EntityType = "program_application"
)

// String returns the string representation of the entity type.
func (e EntityType) String() string {
	return string(e)
}

// IsValid reports whether the entity type is a non-empty string.
// Entity types are extensible, so any non-empty value is accepted;
// the registry decides whether a gate table exists for it.
func (e EntityType) IsValid() bool {
	return e != ""
}

// Decision is the outcome recorded when a gate closes. The set of decisions a
// gate accepts is configured per gate definition; these constants cover the
// vocabulary used by the stock gate tables.
type Decision string

const (
	DecisionApprove         Decision = "approve"
	DecisionReject          Decision = "reject"
	DecisionConditional     Decision = "conditional"
	DecisionRequiresChanges Decision = "requires_changes"
	DecisionWithdraw        Decision = "withdraw"
)

// String returns the string representation of the decision.
func (d Decision) String() string {
	return string(d)
}

// IsValid reports whether the decision is a non-empty string.
// Decisions are registry-driven; the gate definition's allowed set is the
// authoritative check.
func (d Decision) IsValid() bool {
	return d != ""
}

// Transition targets that end a workflow instead of naming a next gate.
const (
	TransitionCompleted  = "@completed"
	TransitionTerminated = "@terminated"
)

// IsTerminalTransition reports whether a next-gate value is a terminal marker
// rather than a gate name.
func IsTerminalTransition(next string) bool {
	return next == TransitionCompleted || next == TransitionTerminated
}
