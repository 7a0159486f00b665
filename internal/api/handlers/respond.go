package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/store"
	"github.com/Harshitk-cp/engram-causal/internal/traversal"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine sentinels onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNodeNotFound),
		errors.Is(err, domain.ErrEdgeNotFound),
		errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidRelation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrCycleDetected):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConcurrencyTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrGraphInconsistency):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func pathID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

// traversalConfig overrides def with max_depth, min_strength and max_nodes
// from the query string. Nil means no override was given.
func traversalConfig(r *http.Request, def traversal.Config) (*traversal.Config, error) {
	q := r.URL.Query()
	if q.Get("max_depth") == "" && q.Get("min_strength") == "" && q.Get("max_nodes") == "" {
		return nil, nil
	}
	cfg := def
	if s := q.Get("max_depth"); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil || d <= 0 {
			return nil, errors.New("invalid max_depth")
		}
		cfg.MaxDepth = d
	}
	if s := q.Get("min_strength"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 || v > 1 {
			return nil, errors.New("invalid min_strength")
		}
		cfg.MinStrength = v
	}
	if s := q.Get("max_nodes"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil, errors.New("invalid max_nodes")
		}
		cfg.MaxNodes = n
	}
	return &cfg, nil
}

func limitParam(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return def
}
