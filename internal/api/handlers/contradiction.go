package handlers

import (
	"context"
	"net/http"

	"github.com/Harshitk-cp/engram-causal/internal/contradiction"
	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/propagation"
	"github.com/google/uuid"
)

type ContradictionEngine interface {
	DetectContradictions(ctx context.Context, m *domain.Memory) ([]domain.ContradictionResult, error)
	ApplyContradiction(ctx context.Context, r domain.ContradictionResult) (*propagation.Plan, error)
	ApplyConfirmation(ctx context.Context, confirmed, confirming uuid.UUID) (*propagation.Plan, error)
	Consensus(ctx context.Context) ([]contradiction.ConsensusGroup, error)
}

type ContradictionHandler struct {
	engine   ContradictionEngine
	memories MemoryReader
}

func NewContradictionHandler(engine ContradictionEngine, memories MemoryReader) *ContradictionHandler {
	return &ContradictionHandler{engine: engine, memories: memories}
}

type detectResponse struct {
	MemoryID       uuid.UUID                    `json:"memory_id"`
	Contradictions []domain.ContradictionResult `json:"contradictions"`
	Count          int                          `json:"count"`
}

// Detect runs the detector for a stored memory without applying anything.
func (h *ContradictionHandler) Detect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}
	m, err := h.memories.GetByID(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	found, err := h.engine.DetectContradictions(r.Context(), m)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if found == nil {
		found = []domain.ContradictionResult{}
	}
	writeJSON(w, http.StatusOK, detectResponse{MemoryID: id, Contradictions: found, Count: len(found)})
}

type applyContradictionRequest struct {
	NewMemoryID      string   `json:"new_memory_id"`
	ExistingMemoryID string   `json:"existing_memory_id"`
	Type             string   `json:"contradiction_type"`
	Confidence       float64  `json:"confidence"`
	Evidence         []string `json:"evidence,omitempty"`
}

func (h *ContradictionHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req applyContradictionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	newID, errN := uuid.Parse(req.NewMemoryID)
	existingID, errE := uuid.Parse(req.ExistingMemoryID)
	if errN != nil || errE != nil {
		writeError(w, http.StatusBadRequest, "new_memory_id and existing_memory_id must be UUIDs")
		return
	}
	ct := domain.ContradictionType(req.Type)
	switch ct {
	case domain.ContradictionDirect, domain.ContradictionPartial, domain.ContradictionSupersedes, domain.ContradictionTemporal:
	default:
		writeError(w, http.StatusBadRequest, "invalid contradiction_type")
		return
	}
	if req.Confidence <= 0 || req.Confidence > 1 {
		req.Confidence = 1
	}

	plan, err := h.engine.ApplyContradiction(r.Context(), domain.ContradictionResult{
		NewMemoryID:      newID,
		ExistingMemoryID: existingID,
		Type:             ct,
		Confidence:       req.Confidence,
		Evidence:         req.Evidence,
		SuggestedAction:  domain.ActionFlagForReview,
		Strategy:         "manual",
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type confirmRequest struct {
	ConfirmedID  string `json:"confirmed_id"`
	ConfirmingID string `json:"confirming_id"`
}

func (h *ContradictionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	confirmed, errA := uuid.Parse(req.ConfirmedID)
	confirming, errB := uuid.Parse(req.ConfirmingID)
	if errA != nil || errB != nil {
		writeError(w, http.StatusBadRequest, "confirmed_id and confirming_id must be UUIDs")
		return
	}

	plan, err := h.engine.ApplyConfirmation(r.Context(), confirmed, confirming)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *ContradictionHandler) Consensus(w http.ResponseWriter, r *http.Request) {
	groups, err := h.engine.Consensus(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if groups == nil {
		groups = []contradiction.ConsensusGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups, "count": len(groups)})
}
