package domain

import (
	"context"

	"github.com/google/uuid"
)

// CausalStore persists causal edges. One row per (source, target, relation).
type CausalStore interface {
	AddEdge(ctx context.Context, edge *CausalEdge) error
	GetEdges(ctx context.Context, nodeID uuid.UUID) ([]CausalEdge, error)
	RemoveEdge(ctx context.Context, source, target uuid.UUID, relation Relation) error
	UpdateStrength(ctx context.Context, source, target uuid.UUID, relation Relation, strength float64) error
	AddEvidence(ctx context.Context, source, target uuid.UUID, relation Relation, ev Evidence) error
	ListNodeIDs(ctx context.Context) ([]uuid.UUID, error)
	EdgeCount(ctx context.Context) (int, error)
}

// MemoryStore is the narrow view of memory records the causal core needs.
type MemoryStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Memory, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Memory, error)
	ListByTypes(ctx context.Context, types []MemoryType, limit int) ([]Memory, error)
	// UpdateConfidence applies a delta, clamps to [0,1] and returns the new value.
	UpdateConfidence(ctx context.Context, id uuid.UUID, delta float64, reason string) (float64, error)
	// ApplyAdjustments applies a whole propagation event at once.
	ApplyAdjustments(ctx context.Context, adjustments []ConfidenceAdjustment) error
}

type AuditStore interface {
	Append(ctx context.Context, entries ...AuditEntry) error
	ListByAction(ctx context.Context, action AuditAction, limit int) ([]AuditEntry, error)
}

// SimilarityProvider exposes precomputed embedding similarity between two memories.
// ok is false when either memory has no embedding.
type SimilarityProvider interface {
	Similarity(ctx context.Context, a, b uuid.UUID) (score float64, ok bool, err error)
}

// SignalProvider exposes pattern-match and file co-occurrence signals owned by detector subsystems.
type SignalProvider interface {
	PatternMatch(ctx context.Context, a, b *Memory) (score float64, ok bool, err error)
	FileCoOccurrence(ctx context.Context, a, b *Memory) (score float64, ok bool, err error)
}

// CandidateFinder returns memories likely related to m, nearest first.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, m *Memory, limit int) ([]Memory, error)
}
