package traversal

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/graph"
	"github.com/google/uuid"
)

// Counterfactual answers "what depends on this memory": the nodes reachable
// forward from id within the budget that nothing else reaches once id is
// removed. Only memories that are not themselves downstream of id count as
// independent support, however deep they sit. Computed on a snapshot; g is
// not modified.
func Counterfactual(ctx context.Context, g *graph.Graph, id uuid.UUID, cfg Config) Result {
	cfg = cfg.normalize()
	res := TraceEffects(ctx, g, id, cfg)
	if len(res.Nodes) == 0 || res.Truncation == TruncatedCancelled {
		return res
	}

	downstream := descendants(g, id, cfg.MinStrength)

	snap := g.Clone()
	snap.RemoveNode(id)
	kept := reachableFromOutside(snap, downstream, cfg.MinStrength)

	affected := res.Nodes[:0:0]
	for _, n := range res.Nodes {
		if !kept[n.MemoryID] {
			affected = append(affected, n)
		}
	}
	res.Nodes = affected
	res.MaxDepthReached = 0
	for _, n := range affected {
		res.MaxDepthReached = max(res.MaxDepthReached, n.Depth)
	}
	return res
}

// descendants is every live node forward-reachable from id through edges at
// or above minStrength, without a depth or node budget.
func descendants(g *graph.Graph, id uuid.UUID, minStrength float64) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool)
	start, ok := g.Lookup(id)
	if !ok {
		return out
	}
	visited := map[graph.NodeIndex]bool{start: true}
	queue := []graph.NodeIndex{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, a := range g.Outgoing(cur) {
			if a.Edge.Strength < minStrength || visited[a.Neighbor] {
				continue
			}
			visited[a.Neighbor] = true
			if g.IsDangling(a.Neighbor) {
				continue
			}
			out[g.NodeID(a.Neighbor)] = true
			queue = append(queue, a.Neighbor)
		}
	}
	return out
}

// reachableFromOutside marks every node of set that a live node outside set
// still reaches through edges at or above minStrength.
func reachableFromOutside(g *graph.Graph, set map[uuid.UUID]bool, minStrength float64) map[uuid.UUID]bool {
	kept := make(map[uuid.UUID]bool)
	visited := make(map[graph.NodeIndex]bool)
	var queue []graph.NodeIndex

	for _, e := range g.Edges() {
		if set[e.Source] || !set[e.Target] || e.Strength < minStrength {
			continue
		}
		src, _ := g.Lookup(e.Source)
		if g.IsDangling(src) {
			continue
		}
		tgt, _ := g.Lookup(e.Target)
		if !visited[tgt] {
			visited[tgt] = true
			queue = append(queue, tgt)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		kept[g.NodeID(cur)] = true
		for _, a := range g.Outgoing(cur) {
			if a.Edge.Strength < minStrength || visited[a.Neighbor] {
				continue
			}
			visited[a.Neighbor] = true
			queue = append(queue, a.Neighbor)
		}
	}
	return kept
}

// EdgeChange is a hypothetical modification of one edge.
type EdgeChange struct {
	Source      uuid.UUID        `json:"source_id"`
	Target      uuid.UUID        `json:"target_id"`
	Relation    domain.Relation  `json:"relation"`
	NewStrength *float64         `json:"new_strength,omitempty"`
	NewRelation *domain.Relation `json:"new_relation,omitempty"`
}

// Impact describes how one downstream node would change under an intervention.
type Impact struct {
	MemoryID        uuid.UUID         `json:"memory_id"`
	Summary         string            `json:"summary"`
	ReachableBefore bool              `json:"reachable_before"`
	ReachableAfter  bool              `json:"reachable_after"`
	Before          float64           `json:"confidence_before"`
	After           float64           `json:"confidence_after"`
	Delta           float64           `json:"delta"`
	RelationsBefore []domain.Relation `json:"relations_before,omitempty"`
	RelationsAfter  []domain.Relation `json:"relations_after,omitempty"`
}

type InterventionResult struct {
	Change     EdgeChange        `json:"change"`
	Edge       domain.CausalEdge `json:"edge"`
	Impacts    []Impact          `json:"impacts"`
	Incomplete bool              `json:"incomplete"`
	Truncation Truncation        `json:"truncation,omitempty"`
}

const impactEpsilon = 1e-9

// Intervention applies change to a snapshot and reports every node
// downstream of the edge's source whose chain confidence, reachability or
// path relations differ. g is not modified.
func Intervention(ctx context.Context, g *graph.Graph, change EdgeChange, cfg Config) (InterventionResult, error) {
	cfg = cfg.normalize()
	out := InterventionResult{Change: change, Impacts: []Impact{}}

	edge, ok := g.FindEdge(change.Source, change.Target, change.Relation)
	if !ok {
		return out, fmt.Errorf("%w: %s -[%s]-> %s", domain.ErrEdgeNotFound, change.Source, change.Relation, change.Target)
	}
	out.Edge = edge

	snap := g.Clone()
	if change.NewStrength != nil {
		if err := snap.UpdateStrength(change.Source, change.Target, change.Relation, *change.NewStrength); err != nil {
			return out, err
		}
	}
	if change.NewRelation != nil && *change.NewRelation != change.Relation {
		if _, exists := snap.FindEdge(change.Source, change.Target, *change.NewRelation); exists {
			return out, fmt.Errorf("%w: edge with relation %s already exists", domain.ErrInvalidRelation, *change.NewRelation)
		}
		if err := snap.SetRelation(change.Source, change.Target, change.Relation, *change.NewRelation); err != nil {
			return out, err
		}
	}

	before := TraceEffects(ctx, g, change.Source, cfg)
	after := TraceEffects(ctx, snap, change.Source, cfg)
	if before.Incomplete || after.Incomplete {
		out.Incomplete = true
		out.Truncation = before.Truncation
		if out.Truncation == "" {
			out.Truncation = after.Truncation
		}
	}

	afterByID := make(map[uuid.UUID]TraversedNode, len(after.Nodes))
	for _, n := range after.Nodes {
		afterByID[n.MemoryID] = n
	}
	seen := make(map[uuid.UUID]bool, len(before.Nodes))
	for _, b := range before.Nodes {
		seen[b.MemoryID] = true
		a, reachable := afterByID[b.MemoryID]
		imp := Impact{
			MemoryID:        b.MemoryID,
			Summary:         b.Summary,
			ReachableBefore: true,
			ReachableAfter:  reachable,
			Before:          b.ChainConfidence,
			RelationsBefore: b.Relations,
		}
		if reachable {
			imp.After = a.ChainConfidence
			imp.RelationsAfter = a.Relations
		}
		imp.Delta = imp.After - imp.Before
		if !reachable || math.Abs(imp.Delta) > impactEpsilon || !slices.Equal(b.Relations, a.Relations) {
			out.Impacts = append(out.Impacts, imp)
		}
	}
	for _, a := range after.Nodes {
		if seen[a.MemoryID] {
			continue
		}
		out.Impacts = append(out.Impacts, Impact{
			MemoryID:       a.MemoryID,
			Summary:        a.Summary,
			ReachableAfter: true,
			After:          a.ChainConfidence,
			Delta:          a.ChainConfidence,
			RelationsAfter: a.Relations,
		})
	}
	return out, nil
}
