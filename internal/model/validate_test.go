package model

import (
	"strings"
	"testing"
)

func validDef() *GateDefinition {
	return &GateDefinition{
		EntityType: EntityPilot,
		GateName:   "expert_review",
		Order:      2,
		SLADays:    7,
		SelfCheckItems: []ChecklistItemSpec{
			{Key: "results_attached", Label: "Results attached", Required: true},
		},
		ReviewerChecklistItems: []ChecklistItemSpec{
			{Key: "metrics_verified", Label: "Metrics verified", Required: true},
		},
		AllowedDecisions:        []Decision{DecisionApprove, DecisionReject, DecisionRequiresChanges},
		RequiresExpertConsensus: true,
		ConsensusThresholdPct:   75,
		MinEvaluators:           3,
		NextGateByDecision: map[Decision]string{
			DecisionApprove:         "rollout",
			DecisionReject:          TransitionTerminated,
			DecisionRequiresChanges: "expert_review",
		},
	}
}

func TestValidateGateDefinition_Valid(t *testing.T) {
	if err := ValidateGateDefinition(validDef()); err != nil {
		t.Fatalf("ValidateGateDefinition() = %v, want nil", err)
	}
}

func TestValidateGateDefinition_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GateDefinition)
		wantMsg string
	}{
		{
			name:    "missing entity type",
			mutate:  func(g *GateDefinition) { g.EntityType = "" },
			wantMsg: "entity_type",
		},
		{
			name:    "missing gate name",
			mutate:  func(g *GateDefinition) { g.GateName = "  " },
			wantMsg: "gate_name",
		},
		{
			name:    "terminal marker as gate name",
			mutate:  func(g *GateDefinition) { g.GateName = TransitionCompleted },
			wantMsg: "terminal marker",
		},
		{
			name:    "zero sla days",
			mutate:  func(g *GateDefinition) { g.SLADays = 0 },
			wantMsg: "sla_days",
		},
		{
			name:    "negative sla days",
			mutate:  func(g *GateDefinition) { g.SLADays = -3 },
			wantMsg: "sla_days",
		},
		{
			name:    "no allowed decisions",
			mutate:  func(g *GateDefinition) { g.AllowedDecisions = nil; g.NextGateByDecision = nil },
			wantMsg: "allowed_decisions",
		},
		{
			name: "transition for disallowed decision",
			mutate: func(g *GateDefinition) {
				g.NextGateByDecision[DecisionWithdraw] = TransitionTerminated
			},
			wantMsg: `"withdraw" is not in allowed_decisions`,
		},
		{
			name: "allowed decision without transition",
			mutate: func(g *GateDefinition) {
				delete(g.NextGateByDecision, DecisionReject)
			},
			wantMsg: `"reject" has no transition`,
		},
		{
			name:    "threshold below 50",
			mutate:  func(g *GateDefinition) { g.ConsensusThresholdPct = 49 },
			wantMsg: "consensus_threshold_pct",
		},
		{
			name:    "threshold above 100",
			mutate:  func(g *GateDefinition) { g.ConsensusThresholdPct = 101 },
			wantMsg: "consensus_threshold_pct",
		},
		{
			name:    "zero min evaluators with consensus",
			mutate:  func(g *GateDefinition) { g.MinEvaluators = 0 },
			wantMsg: "min_evaluators",
		},
		{
			name: "duplicate checklist key",
			mutate: func(g *GateDefinition) {
				g.ReviewerChecklistItems = append(g.ReviewerChecklistItems,
					ChecklistItemSpec{Key: "results_attached", Label: "dup", Required: false})
			},
			wantMsg: "duplicate item key",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := validDef()
			tc.mutate(g)
			err := ValidateGateDefinition(g)
			if err == nil {
				t.Fatal("ValidateGateDefinition() = nil, want error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestValidateGateDefinition_NoConsensusSkipsThreshold(t *testing.T) {
	g := validDef()
	g.RequiresExpertConsensus = false
	g.ConsensusThresholdPct = 0
	g.MinEvaluators = 0
	if err := ValidateGateDefinition(g); err != nil {
		t.Fatalf("ValidateGateDefinition() = %v, want nil when consensus disabled", err)
	}
}

func fullScores(v int) map[string]int {
	m := make(map[string]int, len(Dimensions))
	for _, dim := range Dimensions {
		m[dim] = v
	}
	return m
}

func TestValidateEvaluation(t *testing.T) {
	good := &ExpertEvaluation{
		EvaluatorID:    "ex-1",
		Scores:         fullScores(70),
		Recommendation: RecommendApprove,
	}
	if err := ValidateEvaluation(good); err != nil {
		t.Fatalf("ValidateEvaluation() = %v, want nil", err)
	}

	tests := []struct {
		name    string
		mutate  func(*ExpertEvaluation)
		wantMsg string
	}{
		{
			name:    "missing evaluator",
			mutate:  func(e *ExpertEvaluation) { e.EvaluatorID = "" },
			wantMsg: "evaluator_id",
		},
		{
			name:    "bad recommendation",
			mutate:  func(e *ExpertEvaluation) { e.Recommendation = "maybe" },
			wantMsg: "recommendation",
		},
		{
			name:    "missing dimension",
			mutate:  func(e *ExpertEvaluation) { delete(e.Scores, "impact") },
			wantMsg: `missing dimension "impact"`,
		},
		{
			name:    "score out of range",
			mutate:  func(e *ExpertEvaluation) { e.Scores["risk"] = 101 },
			wantMsg: "risk must be between 0 and 100",
		},
		{
			name:    "negative score",
			mutate:  func(e *ExpertEvaluation) { e.Scores["impact"] = -1 },
			wantMsg: "impact must be between 0 and 100",
		},
		{
			name:    "unknown dimension",
			mutate:  func(e *ExpertEvaluation) { e.Scores["vibes"] = 50 },
			wantMsg: `unknown dimension "vibes"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := &ExpertEvaluation{
				EvaluatorID:    "ex-1",
				Scores:         fullScores(70),
				Recommendation: RecommendApprove,
			}
			tc.mutate(e)
			err := ValidateEvaluation(e)
			if err == nil {
				t.Fatal("ValidateEvaluation() = nil, want error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.wantMsg)
			}
		})
	}
}
