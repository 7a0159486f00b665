package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/service"
	"github.com/Harshitk-cp/engram-causal/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MemoryReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error)
}

// MemoryWriter is the storage side of the memory routes.
type MemoryWriter interface {
	MemoryReader
	Create(ctx context.Context, m *domain.Memory) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MemoryEvents are the engine hooks fired on memory writes.
type MemoryEvents interface {
	ProcessMemory(ctx context.Context, id uuid.UUID) (*service.ProcessResult, error)
	OnMemoryDeleted(ctx context.Context, id uuid.UUID) error
}

type MemoryHandler struct {
	memories MemoryWriter
	engine   MemoryEvents
	logger   *zap.Logger
}

func NewMemoryHandler(memories MemoryWriter, engine MemoryEvents, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{memories: memories, engine: engine, logger: logger}
}

type createMemoryRequest struct {
	Type            string    `json:"type"`
	Content         string    `json:"content"`
	Summary         string    `json:"summary,omitempty"`
	Confidence      *float64  `json:"confidence,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	LinkedPatterns  []string  `json:"linked_patterns,omitempty"`
	LinkedFiles     []string  `json:"linked_files,omitempty"`
	LinkedFunctions []string  `json:"linked_functions,omitempty"`
	Supersedes      string    `json:"supersedes,omitempty"`
	Embedding       []float32 `json:"embedding,omitempty"`
}

type createMemoryResponse struct {
	*domain.Memory
	Causal *service.ProcessResult `json:"causal,omitempty"`
}

// Create stores a memory and runs the inference and contradiction pass on it.
// A failed pass is logged; the memory stays stored.
func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMemoryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Type == "" {
		req.Type = string(domain.MemoryTypeSemantic)
	}
	if !domain.ValidMemoryType(req.Type) {
		writeError(w, http.StatusBadRequest, "invalid memory type")
		return
	}

	m := &domain.Memory{
		Type:            domain.MemoryType(req.Type),
		Content:         req.Content,
		Summary:         req.Summary,
		Confidence:      domain.DefaultConfidence,
		Tags:            req.Tags,
		LinkedPatterns:  req.LinkedPatterns,
		LinkedFiles:     req.LinkedFiles,
		LinkedFunctions: req.LinkedFunctions,
		Embedding:       req.Embedding,
	}
	// Explicit zero is a valid confidence
	if req.Confidence != nil {
		m.Confidence = domain.ClampConfidence(*req.Confidence)
	}
	if req.Supersedes != "" {
		id, err := uuid.Parse(req.Supersedes)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid supersedes")
			return
		}
		m.Supersedes = &id
	}

	if err := h.memories.Create(r.Context(), m); err != nil {
		h.logger.Error("failed to create memory", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create memory")
		return
	}

	resp := createMemoryResponse{Memory: m}
	result, err := h.engine.ProcessMemory(r.Context(), m.ID)
	if err != nil {
		h.logger.Warn("causal pass failed", zap.String("memory_id", m.ID.String()), zap.Error(err))
	} else {
		resp.Causal = result
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *MemoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, m)
}

// Delete removes the memory; its node stays in the graph as dangling.
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}
	if err := h.memories.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "memory not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete memory")
		return
	}
	if err := h.engine.OnMemoryDeleted(r.Context(), id); err != nil {
		h.logger.Warn("failed to mark node dangling", zap.String("memory_id", id.String()), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
