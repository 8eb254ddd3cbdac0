package server

import (
	"encoding/json"
	"net/http"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *ApprovalsServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/workflows", s.handleStartWorkflow)
	mux.HandleFunc("GET /v1/workflows/{entity_type}/{entity_id}", s.handleGetStatus)
	mux.HandleFunc("GET /v1/workflows/{entity_type}/{entity_id}/history", s.handleGetHistory)
	mux.HandleFunc("DELETE /v1/workflows/{id}", s.handleDeleteWorkflow)
	mux.HandleFunc("GET /v1/requests/{id}", s.handleGetRequest)
	mux.HandleFunc("POST /v1/requests/{id}/self-check", s.handleSelfCheck)
	mux.HandleFunc("POST /v1/requests/{id}/reviewer-check", s.handleReviewerCheck)
	mux.HandleFunc("POST /v1/requests/{id}/evaluators", s.handleAssignEvaluators)
	mux.HandleFunc("POST /v1/requests/{id}/evaluations", s.handleSubmitEvaluation)
	mux.HandleFunc("POST /v1/requests/{id}/decide", s.handleDecide)
	mux.HandleFunc("GET /v1/requests/{id}/audit", s.handleGetAuditTrail)
	mux.HandleFunc("GET /v1/requests/{id}/escalations", s.handleGetEscalations)
	mux.HandleFunc("GET /v1/overdue", s.handleListOverdue)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *ApprovalsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
