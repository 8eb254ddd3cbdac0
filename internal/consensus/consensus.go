// Package consensus aggregates independent expert evaluations into one
// consensus outcome. Computation is pure and order-independent: the same
// evaluation set always yields the same result regardless of submission order.
package consensus

import (
	"time"

	"github.com/civora/approvals/internal/model"
)

// MethodMajority is the only aggregation method currently implemented.
const MethodMajority = "majority"

// Compute derives a consensus result from the evaluations on file.
// Returns nil when no evaluations exist; a decision cannot proceed without one.
//
// The resolved recommendation is the strict majority among the categorical
// recommendations. A tie resolves to conditional, the conservative middle
// ground. AgreementPct counts the evaluations matching the resolved
// recommendation, so a single evaluation is trivially 100% agreement.
func Compute(evals []*model.ExpertEvaluation, now time.Time) *model.ConsensusResult {
	if len(evals) == 0 {
		return nil
	}

	var scoreSum float64
	counts := make(map[model.Recommendation]int, 3)
	for _, e := range evals {
		scoreSum += e.OverallScore
		counts[e.Recommendation]++
	}

	rec := resolve(counts)

	agreement := float64(counts[rec]) / float64(len(evals)) * 100

	return &model.ConsensusResult{
		Method:         MethodMajority,
		AggregateScore: scoreSum / float64(len(evals)),
		Recommendation: rec,
		AgreementPct:   agreement,
		Evaluators:     len(evals),
		ComputedAt:     now,
	}
}

// resolve picks the strict-majority recommendation, or conditional on a tie.
// Iterating a fixed order keeps the result independent of map iteration.
func resolve(counts map[model.Recommendation]int) model.Recommendation {
	ordered := []model.Recommendation{
		model.RecommendApprove,
		model.RecommendReject,
		model.RecommendConditional,
	}

	best := model.RecommendConditional
	bestCount := -1
	tied := false
	for _, r := range ordered {
		c := counts[r]
		switch {
		case c > bestCount:
			best, bestCount, tied = r, c, false
		case c == bestCount && c > 0:
			tied = true
		}
	}
	if tied {
		return model.RecommendConditional
	}
	return best
}

// Reached reports whether the consensus satisfies the gate's quorum and
// agreement threshold. A nil result never reaches consensus.
func Reached(res *model.ConsensusResult, def *model.GateDefinition) bool {
	if res == nil {
		return false
	}
	if res.Evaluators < def.MinEvaluators {
		return false
	}
	return res.AgreementPct >= float64(def.ConsensusThresholdPct)
}
