package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/civora/approvals/internal/model"
)

// submitEvaluationRequest is the JSON body for POST /v1/requests/{id}/evaluations.
type submitEvaluationRequest struct {
	EvaluatorID    string         `json:"evaluator_id"`
	Scores         map[string]int `json:"scores"`
	Recommendation string         `json:"recommendation"`
}

// handleSubmitEvaluation handles POST /v1/requests/{id}/evaluations.
func (s *ApprovalsServer) handleSubmitEvaluation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body submitEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.EvaluatorID == "" {
		writeError(w, http.StatusBadRequest, "evaluator_id is required")
		return
	}

	eval := &model.ExpertEvaluation{
		RequestID:      id,
		EvaluatorID:    body.EvaluatorID,
		Scores:         body.Scores,
		Recommendation: model.Recommendation(body.Recommendation),
	}

	consensus, err := s.engine.SubmitEvaluation(r.Context(), id, eval)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"evaluation": eval,
		"consensus":  consensus,
	})
}

// decideRequest is the JSON body for POST /v1/requests/{id}/decide.
type decideRequest struct {
	ActorID  string `json:"actor_id"`
	Decision string `json:"decision"`
}

// handleDecide handles POST /v1/requests/{id}/decide.
func (s *ApprovalsServer) handleDecide(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body decideRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}
	if body.Decision == "" {
		writeError(w, http.StatusBadRequest, "decision is required")
		return
	}

	wf, decided, err := s.engine.Decide(r.Context(), id, body.ActorID, model.Decision(body.Decision))
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workflow": wf,
		"request":  decided,
	})
}

// handleListOverdue handles GET /v1/overdue.
// Supported query params: min_level, entity_type, limit, offset.
func (s *ApprovalsServer) handleListOverdue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter model.OverdueFilter
	if v := q.Get("min_level"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "min_level must be a non-negative integer")
			return
		}
		filter.MinLevel = n
	}
	if v := q.Get("entity_type"); v != "" {
		filter.EntityType = model.EntityType(v)
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	requests, total, err := s.engine.ListOverdue(r.Context(), filter)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if requests == nil {
		requests = []*model.ApprovalRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": requests,
		"total":    total,
	})
}
