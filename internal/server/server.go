package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/civora/approvals/internal/engine"
	"github.com/civora/approvals/internal/model"
	"github.com/civora/approvals/internal/registry"
	"github.com/civora/approvals/internal/store"
)

// ApprovalsServer exposes the workflow engine over HTTP and fans out
// engine events to connected SSE clients through the hub.
type ApprovalsServer struct {
	engine *engine.Engine
	hub    *Hub
	logger *slog.Logger
}

// New returns an ApprovalsServer over the given engine. The hub should be
// the same one whose Fanout publisher was handed to the engine, so that
// every published event also reaches SSE subscribers.
func New(eng *engine.Engine, hub *Hub, logger *slog.Logger) *ApprovalsServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalsServer{
		engine: eng,
		hub:    hub,
		logger: logger,
	}
}

// respondError maps engine and store errors onto HTTP status codes.
func (s *ApprovalsServer) respondError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error()})
		return
	}

	var ci *engine.ChecklistIncompleteError
	if errors.As(err, &ci) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   ci.Error(),
			"missing": ci.Missing,
		})
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrNotRequester),
		errors.Is(err, engine.ErrNotAuthorized),
		errors.Is(err, engine.ErrNotAssigned):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, engine.ErrAlreadyStarted),
		errors.Is(err, engine.ErrWorkflowEnded),
		errors.Is(err, engine.ErrRequestDecided),
		errors.Is(err, engine.ErrDuplicateEvaluation),
		errors.Is(err, engine.ErrConsensusNotReached),
		errors.Is(err, store.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrUnknownChecklistItem),
		errors.Is(err, engine.ErrDecisionNotAllowed),
		errors.Is(err, engine.ErrConsensusNotRequired),
		errors.Is(err, engine.ErrNotEvaluator):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
