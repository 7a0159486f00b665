package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/inference"
	"github.com/Harshitk-cp/engram-causal/internal/narrative"
	"github.com/Harshitk-cp/engram-causal/internal/traversal"
	"github.com/google/uuid"
)

// CausalEngine is the part of the engine the edge and query routes use.
type CausalEngine interface {
	AddEdge(ctx context.Context, edge domain.CausalEdge) (domain.CausalEdge, bool, error)
	RemoveEdge(ctx context.Context, source, target uuid.UUID, relation domain.Relation) error
	Infer(ctx context.Context, a, b uuid.UUID) (inference.Candidate, bool, error)
	TraceOrigins(ctx context.Context, id uuid.UUID, cfg *traversal.Config) (traversal.Result, error)
	TraceEffects(ctx context.Context, id uuid.UUID, cfg *traversal.Config) (traversal.Result, error)
	Bidirectional(ctx context.Context, id uuid.UUID, cfg *traversal.Config) (traversal.Result, error)
	Neighbors(ctx context.Context, id uuid.UUID, cfg *traversal.Config) (traversal.Result, error)
	Counterfactual(ctx context.Context, id uuid.UUID, cfg *traversal.Config) (traversal.Result, error)
	Intervention(ctx context.Context, change traversal.EdgeChange, cfg *traversal.Config) (traversal.InterventionResult, error)
	Narrative(ctx context.Context, id uuid.UUID) (narrative.Narrative, error)
	Why(ctx context.Context, id uuid.UUID) (narrative.WhyContext, error)
}

type CausalHandler struct {
	engine   CausalEngine
	defaults traversal.Config
}

func NewCausalHandler(engine CausalEngine, defaults traversal.Config) *CausalHandler {
	return &CausalHandler{engine: engine, defaults: defaults}
}

type addEdgeRequest struct {
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Relation string   `json:"relation"`
	Strength float64  `json:"strength"`
	Evidence []string `json:"evidence,omitempty"`
}

type addEdgeResponse struct {
	Edge    domain.CausalEdge `json:"edge"`
	Created bool              `json:"created"`
}

func (h *CausalHandler) AddEdge(w http.ResponseWriter, r *http.Request) {
	var req addEdgeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	source, err := uuid.Parse(req.SourceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source_id")
		return
	}
	target, err := uuid.Parse(req.TargetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid target_id")
		return
	}
	relation, err := domain.ParseRelation(req.Relation)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Strength == 0 {
		req.Strength = 1
	}

	now := time.Now().UTC()
	edge := domain.CausalEdge{
		Source:    source,
		Target:    target,
		Relation:  relation,
		Strength:  req.Strength,
		CreatedAt: now,
	}
	for _, desc := range req.Evidence {
		edge.Evidence = append(edge.Evidence, domain.Evidence{Description: desc, Source: "api", Timestamp: now})
	}

	stored, created, err := h.engine.AddEdge(r.Context(), edge)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, addEdgeResponse{Edge: stored, Created: created})
}

// RemoveEdge takes source_id, target_id and relation as query parameters.
func (h *CausalHandler) RemoveEdge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, err := uuid.Parse(q.Get("source_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source_id")
		return
	}
	target, err := uuid.Parse(q.Get("target_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid target_id")
		return
	}
	relation, err := domain.ParseRelation(q.Get("relation"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.RemoveEdge(r.Context(), source, target, relation); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inferRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

type inferResponse struct {
	Accepted  bool                `json:"accepted"`
	Candidate inference.Candidate `json:"candidate"`
}

func (h *CausalHandler) Infer(w http.ResponseWriter, r *http.Request) {
	var req inferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, errA := uuid.Parse(req.SourceID)
	b, errB := uuid.Parse(req.TargetID)
	if errA != nil || errB != nil {
		writeError(w, http.StatusBadRequest, "source_id and target_id must be UUIDs")
		return
	}

	c, ok, err := h.engine.Infer(r.Context(), a, b)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if c.Signals == nil {
		c.Signals = []inference.Signal{}
	}
	writeJSON(w, http.StatusOK, inferResponse{Accepted: ok, Candidate: c})
}

type traceFunc func(ctx context.Context, id uuid.UUID, cfg *traversal.Config) (traversal.Result, error)

func (h *CausalHandler) trace(fn traceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid memory id")
			return
		}
		cfg, err := traversalConfig(r, h.defaults)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		res, err := fn(r.Context(), id, cfg)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *CausalHandler) Origins(w http.ResponseWriter, r *http.Request) {
	h.trace(h.engine.TraceOrigins)(w, r)
}

func (h *CausalHandler) Effects(w http.ResponseWriter, r *http.Request) {
	h.trace(h.engine.TraceEffects)(w, r)
}

func (h *CausalHandler) Bidirectional(w http.ResponseWriter, r *http.Request) {
	h.trace(h.engine.Bidirectional)(w, r)
}

func (h *CausalHandler) Neighbors(w http.ResponseWriter, r *http.Request) {
	h.trace(h.engine.Neighbors)(w, r)
}

func (h *CausalHandler) Counterfactual(w http.ResponseWriter, r *http.Request) {
	h.trace(h.engine.Counterfactual)(w, r)
}

type interventionRequest struct {
	SourceID    string   `json:"source_id"`
	TargetID    string   `json:"target_id"`
	Relation    string   `json:"relation"`
	NewStrength *float64 `json:"new_strength,omitempty"`
	NewRelation *string  `json:"new_relation,omitempty"`
}

func (h *CausalHandler) Intervention(w http.ResponseWriter, r *http.Request) {
	var req interventionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	source, errS := uuid.Parse(req.SourceID)
	target, errT := uuid.Parse(req.TargetID)
	if errS != nil || errT != nil {
		writeError(w, http.StatusBadRequest, "source_id and target_id must be UUIDs")
		return
	}
	relation, err := domain.ParseRelation(req.Relation)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	change := traversal.EdgeChange{Source: source, Target: target, Relation: relation, NewStrength: req.NewStrength}
	if req.NewRelation != nil {
		nr, err := domain.ParseRelation(*req.NewRelation)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		change.NewRelation = &nr
	}
	cfg, err := traversalConfig(r, h.defaults)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.Intervention(r.Context(), change, cfg)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *CausalHandler) Narrative(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}
	n, err := h.engine.Narrative(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// Why returns the explanation as JSON, or as markdown with ?format=markdown.
func (h *CausalHandler) Why(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}
	why, err := h.engine.Why(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(narrative.RenderMarkdown(why)))
		return
	}
	writeJSON(w, http.StatusOK, why)
}
