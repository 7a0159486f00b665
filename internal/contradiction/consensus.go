package contradiction

import (
	"sort"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/graph"
	"github.com/google/uuid"
)

// ConsensusGroup is a memory backed by enough independent supporters.
type ConsensusGroup struct {
	MemoryID   uuid.UUID   `json:"memory_id"`
	Supporters []uuid.UUID `json:"supporters"`
	Boosted    bool        `json:"boosted"`
}

// IndependentSupporters returns the live sources of supports edges into id,
// excluding the given memories. A supporter directly linked to one already
// counted is treated as derived from it and not counted again. Callers must
// hold at least a read lock.
func IndependentSupporters(g *graph.Graph, id uuid.UUID, exclude ...uuid.UUID) []uuid.UUID {
	idx, ok := g.Lookup(id)
	if !ok {
		return nil
	}
	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, x := range exclude {
		skip[x] = true
	}

	var candidates []graph.NodeIndex
	for _, a := range g.Incoming(idx) {
		if a.Edge.Relation != domain.RelationSupports || g.IsDangling(a.Neighbor) || skip[g.NodeID(a.Neighbor)] {
			continue
		}
		candidates = append(candidates, a.Neighbor)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return g.NodeID(candidates[i]).String() < g.NodeID(candidates[j]).String()
	})

	counted := make(map[graph.NodeIndex]bool, len(candidates))
	var out []uuid.UUID
	for _, c := range candidates {
		if linkedToAny(g, c, counted) {
			continue
		}
		counted[c] = true
		out = append(out, g.NodeID(c))
	}
	return out
}

func linkedToAny(g *graph.Graph, n graph.NodeIndex, set map[graph.NodeIndex]bool) bool {
	for _, a := range g.Outgoing(n) {
		if set[a.Neighbor] {
			return true
		}
	}
	for _, a := range g.Incoming(n) {
		if set[a.Neighbor] {
			return true
		}
	}
	return false
}

// DetectConsensus lists every live memory with at least threshold
// independent supporters, ordered by supporter count then ID.
func DetectConsensus(g *graph.Graph, threshold int) []ConsensusGroup {
	groups := []ConsensusGroup{}
	for _, id := range g.NodeIDs() {
		idx, ok := g.Lookup(id)
		if !ok || g.IsDangling(idx) {
			continue
		}
		supporters := IndependentSupporters(g, id)
		if len(supporters) < threshold {
			continue
		}
		groups = append(groups, ConsensusGroup{
			MemoryID:   id,
			Supporters: supporters,
			Boosted:    g.IsBoosted(id),
		})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].Supporters) != len(groups[j].Supporters) {
			return len(groups[i].Supporters) > len(groups[j].Supporters)
		}
		return groups[i].MemoryID.String() < groups[j].MemoryID.String()
	})
	return groups
}
