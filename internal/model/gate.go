package model

// ChecklistItemSpec describes one item of a self-check or reviewer checklist.
type ChecklistItemSpec struct {
	Key      string `json:"key" toml:"key"`
	Label    string `json:"label" toml:"label"`
	Required bool   `json:"required" toml:"required"`
}

// GateDefinition is the immutable configuration of one gate for one entity
// type. Definitions are loaded once at startup and identified by
// (entity type, gate name).
type GateDefinition struct {
	EntityType EntityType `json:"entity_type"`
	GateName   string     `json:"gate_name"`
	Order      int        `json:"order"`

	SelfCheckItems        []ChecklistItemSpec `json:"self_check_items"`
	ReviewerChecklistItems []ChecklistItemSpec `json:"reviewer_checklist_items"`

	SLADays          int        `json:"sla_days"`
	AllowedDecisions []Decision `json:"allowed_decisions"`

	RequiresExpertConsensus bool `json:"requires_expert_consensus"`
	ConsensusThresholdPct   int  `json:"consensus_threshold_pct"`
	MinEvaluators           int  `json:"min_evaluators"`

	// NextGateByDecision maps each allowed decision to the gate opened next,
	// or to a terminal marker (@completed / @terminated). A decision may map
	// back to this gate's own name; re-entry opens a fresh request.
	NextGateByDecision map[Decision]string `json:"next_gate_by_decision"`
}

// AllowsDecision reports whether the decision is in the gate's allowed set.
func (g *GateDefinition) AllowsDecision(d Decision) bool {
	for _, a := range g.AllowedDecisions {
		if a == d {
			return true
		}
	}
	return false
}

// SelfCheckItem returns the self-check spec for key, or nil if unknown.
func (g *GateDefinition) SelfCheckItem(key string) *ChecklistItemSpec {
	for i := range g.SelfCheckItems {
		if g.SelfCheckItems[i].Key == key {
			return &g.SelfCheckItems[i]
		}
	}
	return nil
}

// ReviewerItem returns the reviewer checklist spec for key, or nil if unknown.
func (g *GateDefinition) ReviewerItem(key string) *ChecklistItemSpec {
	for i := range g.ReviewerChecklistItems {
		if g.ReviewerChecklistItems[i].Key == key {
			return &g.ReviewerChecklistItems[i]
		}
	}
	return nil
}
