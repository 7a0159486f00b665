package graph

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"go.uber.org/zap"
)

type edgeKey struct {
	source, target string
	relation       domain.Relation
}

func keyOf(e domain.CausalEdge) edgeKey {
	return edgeKey{source: e.Source.String(), target: e.Target.String(), relation: e.Relation}
}

// FromStorage validates a persisted edge row before it enters the graph.
func FromStorage(e domain.CausalEdge) (domain.CausalEdge, error) {
	rel, err := domain.ParseRelation(string(e.Relation))
	if err != nil {
		return domain.CausalEdge{}, err
	}
	e.Relation = rel
	e.Strength = domain.ClampStrength(e.Strength)
	return e, nil
}

// RebuildStats reports what a rebuild loaded.
type RebuildStats struct {
	Nodes   int
	Edges   int
	Skipped int
}

// Rebuild loads every persisted edge into a fresh graph. Nodes are hydrated
// as unknown; callers fill in types and summaries afterwards. A cycle in
// storage yields domain.ErrGraphInconsistency.
func Rebuild(ctx context.Context, store domain.CausalStore, logger *zap.Logger) (*Graph, RebuildStats, error) {
	var stats RebuildStats

	ids, err := store.ListNodeIDs(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("list node ids: %w", err)
	}

	g := New()
	seen := make(map[edgeKey]bool)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		g.EnsureNode(id, Unknown)

		edges, err := store.GetEdges(ctx, id)
		if err != nil {
			return nil, stats, fmt.Errorf("load edges for %s: %w", id, err)
		}
		for _, raw := range edges {
			e, err := FromStorage(raw)
			if err != nil {
				stats.Skipped++
				logger.Warn("skipping stored edge",
					zap.String("source_id", raw.Source.String()),
					zap.String("target_id", raw.Target.String()),
					zap.Error(err))
				continue
			}
			k := keyOf(e)
			if seen[k] {
				continue
			}
			seen[k] = true
			if e.Source == e.Target {
				return nil, stats, fmt.Errorf("%w: self loop on %s", domain.ErrGraphInconsistency, e.Source)
			}
			src := g.EnsureNode(e.Source, Unknown)
			tgt := g.EnsureNode(e.Target, Unknown)
			g.insert(e, src, tgt)
		}
	}

	if HasCycle(g) {
		return nil, stats, fmt.Errorf("%w: stored edges contain a cycle", domain.ErrGraphInconsistency)
	}
	stats.Nodes = g.NodeCount()
	stats.Edges = g.EdgeCount()
	return g, stats, nil
}
