package server

import (
	"encoding/json"
	"net/http"

	"github.com/civora/approvals/internal/model"
)

// startWorkflowRequest is the JSON body for POST /v1/workflows.
type startWorkflowRequest struct {
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	RequestedBy string `json:"requested_by"`
}

// handleStartWorkflow handles POST /v1/workflows.
func (s *ApprovalsServer) handleStartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req startWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.EntityType == "" {
		writeError(w, http.StatusBadRequest, "entity_type is required")
		return
	}
	if req.EntityID == "" {
		writeError(w, http.StatusBadRequest, "entity_id is required")
		return
	}
	if req.RequestedBy == "" {
		writeError(w, http.StatusBadRequest, "requested_by is required")
		return
	}

	wf, first, err := s.engine.StartWorkflow(r.Context(), model.EntityType(req.EntityType), req.EntityID, req.RequestedBy)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"workflow": wf,
		"request":  first,
	})
}

// handleGetStatus handles GET /v1/workflows/{entity_type}/{entity_id}.
func (s *ApprovalsServer) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entity_type")
	entityID := r.PathValue("entity_id")

	view, err := s.engine.GetStatus(r.Context(), model.EntityType(entityType), entityID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleGetHistory handles GET /v1/workflows/{entity_type}/{entity_id}/history.
func (s *ApprovalsServer) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entity_type")
	entityID := r.PathValue("entity_id")

	records, err := s.engine.GetHistory(r.Context(), model.EntityType(entityType), entityID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if records == nil {
		records = []*model.GateRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

// handleDeleteWorkflow handles DELETE /v1/workflows/{id}.
func (s *ApprovalsServer) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := s.engine.DeleteWorkflow(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
