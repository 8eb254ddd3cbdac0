// Package authz decides who may act on an approval request. The engine
// consults a Checker before reviewer checklist updates, evaluator
// assignment, and decisions; requester-only rules are enforced by the
// engine itself since they depend on workflow state.
package authz

import "github.com/civora/approvals/internal/model"

// Checker reports whether an actor may perform privileged gate actions.
type Checker interface {
	// CanReview reports whether the actor may tick reviewer checklist
	// items and record decisions for the given entity type.
	CanReview(actorID string, entityType model.EntityType) bool
	// CanAssign reports whether the actor may assign evaluators for the
	// given entity type.
	CanAssign(actorID string, entityType model.EntityType) bool
	// CanEvaluate reports whether the user may serve as an expert evaluator
	// for the given entity type.
	CanEvaluate(userID string, entityType model.EntityType) bool
}

// AllowAll grants every actor every action. Used in tests and in
// deployments that gate access at the network layer instead.
type AllowAll struct{}

func (AllowAll) CanReview(string, model.EntityType) bool   { return true }
func (AllowAll) CanAssign(string, model.EntityType) bool   { return true }
func (AllowAll) CanEvaluate(string, model.EntityType) bool { return true }

// StaticRoles is a fixed in-memory role table. Reviewers may also assign
// evaluators; assigners may not review. Evaluators hold only the evaluator
// capability; an empty Evaluators table admits anyone as evaluator, so
// deployments that do not curate an expert pool keep working.
type StaticRoles struct {
	// Reviewers maps entity type to the set of reviewer actor IDs. The
	// wildcard entity type "*" applies to every entity type.
	Reviewers  map[model.EntityType][]string
	Assigners  map[model.EntityType][]string
	Evaluators map[model.EntityType][]string
}

func (s *StaticRoles) CanReview(actorID string, entityType model.EntityType) bool {
	return contains(s.Reviewers, actorID, entityType)
}

func (s *StaticRoles) CanAssign(actorID string, entityType model.EntityType) bool {
	if contains(s.Reviewers, actorID, entityType) {
		return true
	}
	return contains(s.Assigners, actorID, entityType)
}

func (s *StaticRoles) CanEvaluate(userID string, entityType model.EntityType) bool {
	if len(s.Evaluators) == 0 {
		return true
	}
	return contains(s.Evaluators, userID, entityType)
}

func contains(table map[model.EntityType][]string, actorID string, entityType model.EntityType) bool {
	for _, et := range []model.EntityType{entityType, "*"} {
		for _, id := range table[et] {
			if id == actorID {
				return true
			}
		}
	}
	return false
}
