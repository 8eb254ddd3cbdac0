package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateGateDefinition checks a gate definition for constraint violations.
// Registries run this at load time and refuse to start on failure.
func ValidateGateDefinition(g *GateDefinition) error {
	var ve ValidationError

	if !g.EntityType.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{Field: "entity_type", Message: "is required"})
	}
	if strings.TrimSpace(g.GateName) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "gate_name", Message: "is required"})
	}
	if IsTerminalTransition(g.GateName) {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "gate_name",
			Message: fmt.Sprintf("%q collides with a terminal marker", g.GateName),
		})
	}

	if g.SLADays <= 0 {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "sla_days",
			Message: fmt.Sprintf("must be positive, got %d", g.SLADays),
		})
	}

	if len(g.AllowedDecisions) == 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "allowed_decisions", Message: "at least one decision is required"})
	}
	for _, d := range g.AllowedDecisions {
		if !d.IsValid() {
			ve.Errors = append(ve.Errors, FieldError{Field: "allowed_decisions", Message: "contains an empty decision"})
		}
	}

	// Every decision in the transition table must be allowed, and every
	// allowed decision must have a transition.
	for d := range g.NextGateByDecision {
		if !g.AllowsDecision(d) {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "next",
				Message: fmt.Sprintf("decision %q is not in allowed_decisions", d),
			})
		}
	}
	for _, d := range g.AllowedDecisions {
		if _, ok := g.NextGateByDecision[d]; !ok {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "next",
				Message: fmt.Sprintf("allowed decision %q has no transition", d),
			})
		}
	}

	if g.RequiresExpertConsensus {
		if g.ConsensusThresholdPct < 50 || g.ConsensusThresholdPct > 100 {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "consensus_threshold_pct",
				Message: fmt.Sprintf("must be between 50 and 100, got %d", g.ConsensusThresholdPct),
			})
		}
		if g.MinEvaluators < 1 {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "min_evaluators",
				Message: fmt.Sprintf("must be at least 1, got %d", g.MinEvaluators),
			})
		}
	}

	seen := make(map[string]struct{}, len(g.SelfCheckItems)+len(g.ReviewerChecklistItems))
	checkItems := func(field string, items []ChecklistItemSpec) {
		for _, item := range items {
			if strings.TrimSpace(item.Key) == "" {
				ve.Errors = append(ve.Errors, FieldError{Field: field, Message: "item key is required"})
				continue
			}
			if _, dup := seen[item.Key]; dup {
				ve.Errors = append(ve.Errors, FieldError{
					Field:   field,
					Message: fmt.Sprintf("duplicate item key %q", item.Key),
				})
			}
			seen[item.Key] = struct{}{}
		}
	}
	checkItems("self_check_items", g.SelfCheckItems)
	checkItems("reviewer_checklist_items", g.ReviewerChecklistItems)

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateEvaluation checks an evaluation's scores and recommendation.
// Every fixed dimension must be scored 0-100, with no extra dimensions.
func ValidateEvaluation(e *ExpertEvaluation) error {
	var ve ValidationError

	if strings.TrimSpace(e.EvaluatorID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "evaluator_id", Message: "is required"})
	}
	if !e.Recommendation.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "recommendation",
			Message: fmt.Sprintf("invalid value %q", e.Recommendation),
		})
	}

	for _, dim := range Dimensions {
		score, ok := e.Scores[dim]
		if !ok {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "scores",
				Message: fmt.Sprintf("missing dimension %q", dim),
			})
			continue
		}
		if score < 0 || score > 100 {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "scores",
				Message: fmt.Sprintf("%s must be between 0 and 100, got %d", dim, score),
			})
		}
	}
	if len(e.Scores) > len(Dimensions) {
		known := make(map[string]struct{}, len(Dimensions))
		for _, dim := range Dimensions {
			known[dim] = struct{}{}
		}
		for dim := range e.Scores {
			if _, ok := known[dim]; !ok {
				ve.Errors = append(ve.Errors, FieldError{
					Field:   "scores",
					Message: fmt.Sprintf("unknown dimension %q", dim),
				})
			}
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
