package handlers

import (
	"context"
	"net/http"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/service"
)

// GraphEngine covers graph-wide maintenance and inspection.
type GraphEngine interface {
	Stats(ctx context.Context) (domain.GraphStats, error)
	Audit(ctx context.Context, action domain.AuditAction, limit int) ([]domain.AuditEntry, error)
}

type Maintenance interface {
	RunOnce(ctx context.Context) *service.PruneResult
}

type GraphHandler struct {
	engine GraphEngine
	pruner Maintenance
}

func NewGraphHandler(engine GraphEngine, pruner Maintenance) *GraphHandler {
	return &GraphHandler{engine: engine, pruner: pruner}
}

func (h *GraphHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.Stats(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Prune verifies the graph against storage and drops weak or stale edges.
func (h *GraphHandler) Prune(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pruner.RunOnce(r.Context()))
}

type auditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
	Count   int                 `json:"count"`
}

func (h *GraphHandler) Audit(w http.ResponseWriter, r *http.Request) {
	action := domain.AuditAction(r.URL.Query().Get("action"))
	if action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	entries, err := h.engine.Audit(r.Context(), action, limitParam(r, 100))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Entries: entries, Count: len(entries)})
}
