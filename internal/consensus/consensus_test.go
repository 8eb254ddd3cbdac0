package consensus

import (
	"math"
	"testing"
	"time"

	"github.com/civora/approvals/internal/model"
)

func eval(id string, overall float64, rec model.Recommendation) *model.ExpertEvaluation {
	return &model.ExpertEvaluation{
		EvaluatorID:    id,
		OverallScore:   overall,
		Recommendation: rec,
	}
}

func TestCompute_Empty(t *testing.T) {
	if got := Compute(nil, time.Now()); got != nil {
		t.Errorf("Compute(nil) = %+v, want nil", got)
	}
	if got := Compute([]*model.ExpertEvaluation{}, time.Now()); got != nil {
		t.Errorf("Compute(empty) = %+v, want nil", got)
	}
}

func TestCompute_SingleEvaluator(t *testing.T) {
	res := Compute([]*model.ExpertEvaluation{eval("ex-1", 62.5, model.RecommendReject)}, time.Now())
	if res == nil {
		t.Fatal("Compute() = nil")
	}
	if res.Recommendation != model.RecommendReject {
		t.Errorf("Recommendation = %q, want reject", res.Recommendation)
	}
	if res.AgreementPct != 100 {
		t.Errorf("AgreementPct = %v, want 100", res.AgreementPct)
	}
	if res.AggregateScore != 62.5 {
		t.Errorf("AggregateScore = %v, want 62.5", res.AggregateScore)
	}
	if res.Evaluators != 1 {
		t.Errorf("Evaluators = %d, want 1", res.Evaluators)
	}
}

func TestCompute_MajorityWithDissent(t *testing.T) {
	// Scenario: [approve, approve, reject] resolves to approve at 66.7%.
	evals := []*model.ExpertEvaluation{
		eval("ex-1", 80, model.RecommendApprove),
		eval("ex-2", 70, model.RecommendApprove),
		eval("ex-3", 30, model.RecommendReject),
	}
	res := Compute(evals, time.Now())
	if res.Recommendation != model.RecommendApprove {
		t.Errorf("Recommendation = %q, want approve", res.Recommendation)
	}
	if math.Abs(res.AgreementPct-200.0/3) > 1e-9 {
		t.Errorf("AgreementPct = %v, want 66.67", res.AgreementPct)
	}
	if res.AggregateScore != 60 {
		t.Errorf("AggregateScore = %v, want 60", res.AggregateScore)
	}
}

func TestCompute_Unanimous(t *testing.T) {
	evals := []*model.ExpertEvaluation{
		eval("ex-1", 90, model.RecommendApprove),
		eval("ex-2", 85, model.RecommendApprove),
		eval("ex-3", 95, model.RecommendApprove),
	}
	res := Compute(evals, time.Now())
	if res.AgreementPct != 100 {
		t.Errorf("AgreementPct = %v, want 100", res.AgreementPct)
	}
	if res.AggregateScore != 90 {
		t.Errorf("AggregateScore = %v, want 90", res.AggregateScore)
	}
}

func TestCompute_TieResolvesToConditional(t *testing.T) {
	tests := []struct {
		name string
		recs []model.Recommendation
	}{
		{"approve vs reject", []model.Recommendation{model.RecommendApprove, model.RecommendReject}},
		{"approve vs conditional", []model.Recommendation{model.RecommendApprove, model.RecommendConditional}},
		{"three-way split", []model.Recommendation{model.RecommendApprove, model.RecommendReject, model.RecommendConditional}},
		{"two-two split", []model.Recommendation{
			model.RecommendApprove, model.RecommendApprove,
			model.RecommendReject, model.RecommendReject,
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var evals []*model.ExpertEvaluation
			for i, r := range tc.recs {
				evals = append(evals, eval(string(rune('a'+i)), 50, r))
			}
			res := Compute(evals, time.Now())
			if res.Recommendation != model.RecommendConditional {
				t.Errorf("Recommendation = %q, want conditional on tie", res.Recommendation)
			}
		})
	}
}

func TestCompute_OrderIndependent(t *testing.T) {
	a := eval("ex-1", 80, model.RecommendApprove)
	b := eval("ex-2", 60, model.RecommendApprove)
	c := eval("ex-3", 40, model.RecommendReject)

	now := time.Now()
	perms := [][]*model.ExpertEvaluation{
		{a, b, c}, {a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a},
	}

	first := Compute(perms[0], now)
	for i, p := range perms[1:] {
		got := Compute(p, now)
		if got.Recommendation != first.Recommendation ||
			got.AgreementPct != first.AgreementPct ||
			got.AggregateScore != first.AggregateScore ||
			got.Evaluators != first.Evaluators {
			t.Errorf("permutation %d: %+v != %+v", i+1, got, first)
		}
	}
}

func TestCompute_Idempotent(t *testing.T) {
	evals := []*model.ExpertEvaluation{
		eval("ex-1", 75, model.RecommendConditional),
		eval("ex-2", 55, model.RecommendReject),
		eval("ex-3", 65, model.RecommendConditional),
	}
	now := time.Now()
	first := Compute(evals, now)
	second := Compute(evals, now)
	if *first != *second {
		t.Errorf("Compute not idempotent: %+v != %+v", first, second)
	}
}

func TestReached(t *testing.T) {
	def := &model.GateDefinition{
		RequiresExpertConsensus: true,
		ConsensusThresholdPct:   75,
		MinEvaluators:           3,
	}

	if Reached(nil, def) {
		t.Error("Reached(nil) = true, want false")
	}

	// Below quorum, even at full agreement.
	res := &model.ConsensusResult{AgreementPct: 100, Evaluators: 2}
	if Reached(res, def) {
		t.Error("Reached below quorum = true, want false")
	}

	// Quorum met but agreement under threshold (scenario: 2 of 3 = 66.7 < 75).
	res = &model.ConsensusResult{AgreementPct: 200.0 / 3, Evaluators: 3}
	if Reached(res, def) {
		t.Error("Reached under threshold = true, want false")
	}

	// Threshold met exactly.
	res = &model.ConsensusResult{AgreementPct: 75, Evaluators: 3}
	if !Reached(res, def) {
		t.Error("Reached at threshold = false, want true")
	}

	res = &model.ConsensusResult{AgreementPct: 100, Evaluators: 3}
	if !Reached(res, def) {
		t.Error("Reached(unanimous) = false, want true")
	}
}
