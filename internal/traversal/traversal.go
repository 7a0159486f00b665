// Package traversal answers read queries over the causal graph. Every mode
// runs on the same bounded BFS; exhausting a budget yields a partial result
// flagged Incomplete rather than an error.
//
// Callers must hold at least a read lock on the graph for the duration of a call.
package traversal

import (
	"context"
	"slices"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/graph"
	"github.com/google/uuid"
)

const (
	DefaultMaxDepth    = 5
	DefaultMinStrength = 0.3
	DefaultMaxNodes    = 50

	// cancelCheckInterval is how many expansions run between context checks.
	cancelCheckInterval = 20
)

type Config struct {
	MaxDepth    int     `json:"max_depth"`
	MinStrength float64 `json:"min_strength"`
	MaxNodes    int     `json:"max_nodes"`
}

func DefaultConfig() Config {
	return Config{
		MaxDepth:    DefaultMaxDepth,
		MinStrength: DefaultMinStrength,
		MaxNodes:    DefaultMaxNodes,
	}
}

// normalize fills zero fields with defaults.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MinStrength < 0 {
		c.MinStrength = 0
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = d.MaxNodes
	}
	return c
}

type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

type Truncation string

const (
	TruncatedNodeBudget Truncation = "node_budget"
	TruncatedDepthLimit Truncation = "depth_limit"
	TruncatedCancelled  Truncation = "cancelled"
)

// TraversedNode is one node reached by a traversal, with the path that reached it.
type TraversedNode struct {
	MemoryID   uuid.UUID         `json:"memory_id"`
	MemoryType domain.MemoryType `json:"memory_type"`
	Summary    string            `json:"summary"`
	Depth      int               `json:"depth"`
	Direction  Direction         `json:"direction"`
	// Parent is the node this one was reached from.
	Parent          uuid.UUID         `json:"parent_id"`
	Edge            domain.CausalEdge `json:"edge"`
	Strengths       []float64         `json:"strengths"`
	Relations       []domain.Relation `json:"relations"`
	ChainConfidence float64           `json:"chain_confidence"`
}

type Result struct {
	Origin          uuid.UUID         `json:"origin"`
	OriginNode      domain.CausalNode `json:"origin_node"`
	Found           bool              `json:"found"`
	Nodes           []TraversedNode   `json:"nodes"`
	MaxDepthReached int               `json:"max_depth_reached"`
	Incomplete      bool              `json:"incomplete"`
	Truncation      Truncation        `json:"truncation,omitempty"`
}

func (r *Result) truncate(reason Truncation) {
	r.Incomplete = true
	if r.Truncation == "" || r.Truncation == TruncatedDepthLimit {
		r.Truncation = reason
	}
}

// IDs returns the reached memory IDs in result order.
func (r *Result) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		ids = append(ids, n.MemoryID)
	}
	return ids
}

type queued struct {
	idx       graph.NodeIndex
	depth     int
	strengths []float64
	relations []domain.Relation
}

type walk struct {
	directions  []Direction
	maxDepth    int
	minStrength float64
	maxNodes    int
	// depthBounded reports hitting maxDepth as a truncation.
	depthBounded bool
}

// bfs is the shared core. The origin itself is never part of Nodes.
func bfs(ctx context.Context, g *graph.Graph, origin uuid.UUID, w walk) Result {
	res := Result{Origin: origin, Nodes: []TraversedNode{}}
	start, ok := g.Lookup(origin)
	if !ok {
		return res
	}
	res.Found = true
	res.OriginNode = g.Node(start)
	if g.IsDangling(start) {
		return res
	}

	visited := map[graph.NodeIndex]bool{start: true}
	queue := []queued{{idx: start}}
	expansions := 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		expansions++
		if expansions%cancelCheckInterval == 0 && ctx.Err() != nil {
			res.truncate(TruncatedCancelled)
			return res
		}

		for _, dir := range w.directions {
			adj := g.Outgoing(cur.idx)
			if dir == Backward {
				adj = g.Incoming(cur.idx)
			}
			for _, a := range adj {
				if a.Edge.Strength < w.minStrength || visited[a.Neighbor] || g.IsDangling(a.Neighbor) {
					continue
				}
				if cur.depth >= w.maxDepth {
					if w.depthBounded {
						res.truncate(TruncatedDepthLimit)
					}
					continue
				}
				if len(res.Nodes) >= w.maxNodes {
					res.truncate(TruncatedNodeBudget)
					return res
				}
				visited[a.Neighbor] = true

				next := queued{
					idx:       a.Neighbor,
					depth:     cur.depth + 1,
					strengths: append(slices.Clone(cur.strengths), a.Edge.Strength),
					relations: append(slices.Clone(cur.relations), a.Edge.Relation),
				}
				node := g.Node(a.Neighbor)
				res.Nodes = append(res.Nodes, TraversedNode{
					MemoryID:        node.MemoryID,
					MemoryType:      node.MemoryType,
					Summary:         node.Summary,
					Depth:           next.depth,
					Direction:       dir,
					Parent:          g.NodeID(cur.idx),
					Edge:            a.Edge,
					Strengths:       next.strengths,
					Relations:       next.relations,
					ChainConfidence: domain.ChainConfidence(next.strengths, next.depth),
				})
				if next.depth > res.MaxDepthReached {
					res.MaxDepthReached = next.depth
				}
				queue = append(queue, next)
			}
		}
	}
	return res
}

// TraceOrigins walks incoming edges: what caused this memory.
func TraceOrigins(ctx context.Context, g *graph.Graph, id uuid.UUID, cfg Config) Result {
	cfg = cfg.normalize()
	return bfs(ctx, g, id, walk{
		directions:   []Direction{Backward},
		maxDepth:     cfg.MaxDepth,
		minStrength:  cfg.MinStrength,
		maxNodes:     cfg.MaxNodes,
		depthBounded: true,
	})
}

// TraceEffects walks outgoing edges: what this memory caused.
func TraceEffects(ctx context.Context, g *graph.Graph, id uuid.UUID, cfg Config) Result {
	cfg = cfg.normalize()
	return bfs(ctx, g, id, walk{
		directions:   []Direction{Forward},
		maxDepth:     cfg.MaxDepth,
		minStrength:  cfg.MinStrength,
		maxNodes:     cfg.MaxNodes,
		depthBounded: true,
	})
}

// Neighbors returns direct adjacency in both directions, ignoring depth and
// strength filters. The node budget still applies.
func Neighbors(ctx context.Context, g *graph.Graph, id uuid.UUID, cfg Config) Result {
	cfg = cfg.normalize()
	return bfs(ctx, g, id, walk{
		directions: []Direction{Backward, Forward},
		maxDepth:   1,
		maxNodes:   cfg.MaxNodes,
	})
}

// Bidirectional is the union of origins and effects. A node reachable both
// ways keeps the shallower entry, origins first on ties. If the union
// exceeds the node budget it is cut to the shallowest MaxNodes entries.
func Bidirectional(ctx context.Context, g *graph.Graph, id uuid.UUID, cfg Config) Result {
	cfg = cfg.normalize()
	origins := TraceOrigins(ctx, g, id, cfg)
	effects := TraceEffects(ctx, g, id, cfg)

	res := origins
	res.Nodes = slices.Clone(origins.Nodes)
	pos := make(map[uuid.UUID]int, len(res.Nodes))
	for i, n := range res.Nodes {
		pos[n.MemoryID] = i
	}
	for _, n := range effects.Nodes {
		if i, ok := pos[n.MemoryID]; ok {
			if n.Depth < res.Nodes[i].Depth {
				res.Nodes[i] = n
			}
			continue
		}
		pos[n.MemoryID] = len(res.Nodes)
		res.Nodes = append(res.Nodes, n)
	}
	if effects.Incomplete {
		res.truncate(effects.Truncation)
	}
	if effects.MaxDepthReached > res.MaxDepthReached {
		res.MaxDepthReached = effects.MaxDepthReached
	}
	if len(res.Nodes) > cfg.MaxNodes {
		slices.SortStableFunc(res.Nodes, func(a, b TraversedNode) int { return a.Depth - b.Depth })
		res.Nodes = res.Nodes[:cfg.MaxNodes]
		res.truncate(TruncatedNodeBudget)
		res.MaxDepthReached = 0
		for _, n := range res.Nodes {
			res.MaxDepthReached = max(res.MaxDepthReached, n.Depth)
		}
	}
	return res
}
