package model

import "time"

// Recommendation is an expert's categorical verdict on one request.
type Recommendation string

const (
	RecommendApprove     Recommendation = "approve"
	RecommendReject      Recommendation = "reject"
	RecommendConditional Recommendation = "conditional"
)

// String returns the string representation of the recommendation.
func (r Recommendation) String() string {
	return string(r)
}

// IsValid checks whether the recommendation is a known value.
func (r Recommendation) IsValid() bool {
	switch r {
	case RecommendApprove, RecommendReject, RecommendConditional:
		return true
	}
	return false
}

// Dimensions is the fixed set of scoring dimensions every evaluation covers.
// Each is scored 0-100.
var Dimensions = []string{
	"relevance",
	"feasibility",
	"innovation",
	"impact",
	"scalability",
	"cost_effectiveness",
	"sustainability",
	"risk",
}

// ExpertEvaluation is one evaluator's scored review of a request. Immutable
// once submitted; at most one per (request, evaluator).
type ExpertEvaluation struct {
	RequestID      string         `json:"request_id"`
	EvaluatorID    string         `json:"evaluator_id"`
	Scores         map[string]int `json:"scores"`
	OverallScore   float64        `json:"overall_score"`
	Recommendation Recommendation `json:"recommendation"`
	SubmittedAt    time.Time      `json:"submitted_at"`
}

// Overall returns the arithmetic mean of the dimension scores.
func (e *ExpertEvaluation) Overall() float64 {
	if len(e.Scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range e.Scores {
		sum += s
	}
	return float64(sum) / float64(len(e.Scores))
}

// ConsensusResult is the aggregate outcome derived from the evaluations on
// file. Recomputed on every evaluation change until the request is decided,
// then frozen.
type ConsensusResult struct {
	Method         string         `json:"method"`
	AggregateScore float64        `json:"aggregate_score"`
	Recommendation Recommendation `json:"recommendation"`
	AgreementPct   float64        `json:"agreement_pct"`
	Evaluators     int            `json:"evaluators"`
	ComputedAt     time.Time      `json:"computed_at"`
}
