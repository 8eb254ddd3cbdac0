package server

import (
	"encoding/json"
	"net/http"

	"github.com/civora/approvals/internal/model"
)

// handleGetRequest handles GET /v1/requests/{id}.
func (s *ApprovalsServer) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	req, err := s.engine.GetRequest(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// checklistItemRequest is the JSON body for the self-check and
// reviewer-check endpoints.
type checklistItemRequest struct {
	ActorID string `json:"actor_id"`
	Key     string `json:"key"`
	Value   bool   `json:"value"`
}

func decodeChecklistItem(w http.ResponseWriter, r *http.Request) (checklistItemRequest, bool) {
	var body checklistItemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return body, false
	}
	if body.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return body, false
	}
	if body.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return body, false
	}
	return body, true
}

// handleSelfCheck handles POST /v1/requests/{id}/self-check.
func (s *ApprovalsServer) handleSelfCheck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, ok := decodeChecklistItem(w, r)
	if !ok {
		return
	}

	req, err := s.engine.SetSelfCheckItem(r.Context(), id, body.ActorID, body.Key, body.Value)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// handleReviewerCheck handles POST /v1/requests/{id}/reviewer-check.
func (s *ApprovalsServer) handleReviewerCheck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, ok := decodeChecklistItem(w, r)
	if !ok {
		return
	}

	req, err := s.engine.SetReviewerItem(r.Context(), id, body.ActorID, body.Key, body.Value)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// assignEvaluatorsRequest is the JSON body for POST /v1/requests/{id}/evaluators.
type assignEvaluatorsRequest struct {
	ActorID    string   `json:"actor_id"`
	Evaluators []string `json:"evaluators"`
}

// handleAssignEvaluators handles POST /v1/requests/{id}/evaluators.
func (s *ApprovalsServer) handleAssignEvaluators(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body assignEvaluatorsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}
	if len(body.Evaluators) == 0 {
		writeError(w, http.StatusBadRequest, "evaluators is required")
		return
	}

	req, err := s.engine.AssignEvaluators(r.Context(), id, body.ActorID, body.Evaluators)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// handleGetAuditTrail handles GET /v1/requests/{id}/audit.
func (s *ApprovalsServer) handleGetAuditTrail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	entries, err := s.engine.GetAuditTrail(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if entries == nil {
		entries = []*model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleGetEscalations handles GET /v1/requests/{id}/escalations.
func (s *ApprovalsServer) handleGetEscalations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	escalations, err := s.engine.GetEscalations(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if escalations == nil {
		escalations = []*model.EscalationEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"escalations": escalations})
}
