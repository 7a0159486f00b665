// Package graph holds the in-memory causal DAG. Nodes and edges live in
// arenas addressed by stable indices; adjacency lists hold edge indices.
package graph

import (
	"fmt"
	"slices"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/google/uuid"
)

type NodeIndex int

type EdgeIndex int

// NodeInfo carries the descriptive fields used when a node is created lazily.
type NodeInfo struct {
	Type    domain.MemoryType
	Summary string
}

// Unknown is used for nodes known only through edge rows.
var Unknown = NodeInfo{Type: domain.MemoryTypeUnknown}

// InfoOf builds NodeInfo from a memory record.
func InfoOf(m *domain.Memory) NodeInfo {
	if m == nil {
		return Unknown
	}
	return NodeInfo{Type: m.Type, Summary: m.Label()}
}

type edgeSlot struct {
	edge domain.CausalEdge
	from NodeIndex
	to   NodeIndex
	live bool
}

// Adjacent is an edge seen from one of its endpoints.
type Adjacent struct {
	Index    EdgeIndex
	Edge     domain.CausalEdge
	Neighbor NodeIndex
}

type Graph struct {
	nodes   []domain.CausalNode
	removed []bool
	index   map[uuid.UUID]NodeIndex
	edges   []edgeSlot
	out     [][]EdgeIndex
	in      [][]EdgeIndex
	live    int
	boosted map[uuid.UUID]bool
}

func New() *Graph {
	return &Graph{
		index:   make(map[uuid.UUID]NodeIndex),
		boosted: make(map[uuid.UUID]bool),
	}
}

// EnsureNode returns the index for id, creating the node if needed. A known
// type or summary is never replaced by an unknown one, but an unknown node
// picks up real info when it becomes available.
func (g *Graph) EnsureNode(id uuid.UUID, info NodeInfo) NodeIndex {
	if idx, ok := g.index[id]; ok {
		n := &g.nodes[idx]
		if n.MemoryType == domain.MemoryTypeUnknown && info.Type != "" && info.Type != domain.MemoryTypeUnknown {
			n.MemoryType = info.Type
		}
		if n.Summary == "" && info.Summary != "" {
			n.Summary = info.Summary
		}
		return idx
	}
	if info.Type == "" {
		info.Type = domain.MemoryTypeUnknown
	}
	idx := NodeIndex(len(g.nodes))
	g.nodes = append(g.nodes, domain.CausalNode{
		MemoryID:   id,
		MemoryType: info.Type,
		Summary:    info.Summary,
	})
	g.removed = append(g.removed, false)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	g.index[id] = idx
	return idx
}

func (g *Graph) Lookup(id uuid.UUID) (NodeIndex, bool) {
	idx, ok := g.index[id]
	return idx, ok
}

func (g *Graph) Node(idx NodeIndex) domain.CausalNode {
	return g.nodes[idx]
}

func (g *Graph) NodeID(idx NodeIndex) uuid.UUID {
	return g.nodes[idx].MemoryID
}

func (g *Graph) IsDangling(idx NodeIndex) bool {
	return g.nodes[idx].Dangling
}

// NodeCount returns the number of nodes that have not been removed.
func (g *Graph) NodeCount() int {
	return len(g.index)
}

func (g *Graph) EdgeCount() int {
	return g.live
}

// NodeIDs returns live node IDs in creation order.
func (g *Graph) NodeIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(g.index))
	for idx, n := range g.nodes {
		if !g.removed[idx] {
			out = append(out, n.MemoryID)
		}
	}
	return out
}

// capacity is the size of the node arena, removed slots included.
func (g *Graph) capacity() int {
	return len(g.nodes)
}

// AddEdge validates and inserts an edge, creating missing endpoints lazily.
// An edge with the same (source, target, relation) is merged: the stronger
// strength wins and evidence is appended. Returns true when a new edge was
// created. On error the graph is not modified.
func (g *Graph) AddEdge(edge domain.CausalEdge, source, target NodeInfo) (bool, error) {
	if !domain.ValidRelation(string(edge.Relation)) {
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidRelation, edge.Relation)
	}
	if edge.Source == edge.Target {
		return false, fmt.Errorf("%w: self loop on %s", domain.ErrCycleDetected, edge.Source)
	}
	edge.Strength = domain.ClampStrength(edge.Strength)
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}

	src, srcOK := g.index[edge.Source]
	tgt, tgtOK := g.index[edge.Target]
	if srcOK && tgtOK {
		if ei, ok := g.findEdge(src, tgt, edge.Relation); ok {
			slot := &g.edges[ei]
			if edge.Strength > slot.edge.Strength {
				slot.edge.Strength = edge.Strength
			}
			slot.edge.Evidence = append(slot.edge.Evidence, edge.Evidence...)
			g.EnsureNode(edge.Source, source)
			g.EnsureNode(edge.Target, target)
			return false, nil
		}
		if WouldCreateCycle(g, src, tgt) {
			return false, fmt.Errorf("%w: %s -> %s", domain.ErrCycleDetected, edge.Source, edge.Target)
		}
	}

	src = g.EnsureNode(edge.Source, source)
	tgt = g.EnsureNode(edge.Target, target)
	edge.Evidence = slices.Clone(edge.Evidence)
	g.insert(edge, src, tgt)
	return true, nil
}

// insert appends an edge without any validation.
func (g *Graph) insert(edge domain.CausalEdge, src, tgt NodeIndex) EdgeIndex {
	ei := EdgeIndex(len(g.edges))
	g.edges = append(g.edges, edgeSlot{edge: edge, from: src, to: tgt, live: true})
	g.out[src] = append(g.out[src], ei)
	g.in[tgt] = append(g.in[tgt], ei)
	g.live++
	return ei
}

func (g *Graph) findEdge(src, tgt NodeIndex, relation domain.Relation) (EdgeIndex, bool) {
	for _, ei := range g.out[src] {
		slot := g.edges[ei]
		if slot.to == tgt && slot.edge.Relation == relation {
			return ei, true
		}
	}
	return 0, false
}

func (g *Graph) lookupEdge(source, target uuid.UUID, relation domain.Relation) (EdgeIndex, bool) {
	src, ok := g.index[source]
	if !ok {
		return 0, false
	}
	tgt, ok := g.index[target]
	if !ok {
		return 0, false
	}
	return g.findEdge(src, tgt, relation)
}

// FindEdge returns a copy of the edge (source, target, relation).
func (g *Graph) FindEdge(source, target uuid.UUID, relation domain.Relation) (domain.CausalEdge, bool) {
	ei, ok := g.lookupEdge(source, target, relation)
	if !ok {
		return domain.CausalEdge{}, false
	}
	return g.edges[ei].edge, true
}

// EdgesBetween returns every edge from source to target regardless of relation.
func (g *Graph) EdgesBetween(source, target uuid.UUID) []domain.CausalEdge {
	src, ok := g.index[source]
	if !ok {
		return nil
	}
	tgt, ok := g.index[target]
	if !ok {
		return nil
	}
	var out []domain.CausalEdge
	for _, ei := range g.out[src] {
		if g.edges[ei].to == tgt {
			out = append(out, g.edges[ei].edge)
		}
	}
	return out
}

func (g *Graph) RemoveEdge(source, target uuid.UUID, relation domain.Relation) bool {
	ei, ok := g.lookupEdge(source, target, relation)
	if !ok {
		return false
	}
	g.detach(ei)
	return true
}

func (g *Graph) detach(ei EdgeIndex) {
	slot := &g.edges[ei]
	if !slot.live {
		return
	}
	slot.live = false
	g.out[slot.from] = slices.DeleteFunc(g.out[slot.from], func(x EdgeIndex) bool { return x == ei })
	g.in[slot.to] = slices.DeleteFunc(g.in[slot.to], func(x EdgeIndex) bool { return x == ei })
	g.live--
}

func (g *Graph) UpdateStrength(source, target uuid.UUID, relation domain.Relation, strength float64) error {
	ei, ok := g.lookupEdge(source, target, relation)
	if !ok {
		return domain.ErrEdgeNotFound
	}
	g.edges[ei].edge.Strength = domain.ClampStrength(strength)
	return nil
}

// SetRelation changes the relation of an existing edge. Used on snapshots only.
func (g *Graph) SetRelation(source, target uuid.UUID, from, to domain.Relation) error {
	if !domain.ValidRelation(string(to)) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRelation, to)
	}
	ei, ok := g.lookupEdge(source, target, from)
	if !ok {
		return domain.ErrEdgeNotFound
	}
	g.edges[ei].edge.Relation = to
	return nil
}

func (g *Graph) AddEvidence(source, target uuid.UUID, relation domain.Relation, ev domain.Evidence) error {
	ei, ok := g.lookupEdge(source, target, relation)
	if !ok {
		return domain.ErrEdgeNotFound
	}
	g.edges[ei].edge.Evidence = append(g.edges[ei].edge.Evidence, ev)
	return nil
}

// RestoreEdge overwrites the strength and evidence of an existing edge with
// a previously captured copy, undoing a merge.
func (g *Graph) RestoreEdge(prev domain.CausalEdge) error {
	ei, ok := g.lookupEdge(prev.Source, prev.Target, prev.Relation)
	if !ok {
		return domain.ErrEdgeNotFound
	}
	slot := &g.edges[ei]
	slot.edge.Strength = prev.Strength
	slot.edge.Evidence = slices.Clone(prev.Evidence)
	return nil
}

// SnapshotEdge returns a copy of the edge whose evidence does not share storage
// with the graph, suitable for RestoreEdge.
func (g *Graph) SnapshotEdge(source, target uuid.UUID, relation domain.Relation) (domain.CausalEdge, bool) {
	edge, ok := g.FindEdge(source, target, relation)
	if !ok {
		return edge, false
	}
	edge.Evidence = slices.Clone(edge.Evidence)
	return edge, true
}

func (g *Graph) adjacent(list []EdgeIndex, outgoing bool) []Adjacent {
	out := make([]Adjacent, 0, len(list))
	for _, ei := range list {
		slot := g.edges[ei]
		n := slot.to
		if !outgoing {
			n = slot.from
		}
		out = append(out, Adjacent{Index: ei, Edge: slot.edge, Neighbor: n})
	}
	return out
}

func (g *Graph) Outgoing(idx NodeIndex) []Adjacent {
	return g.adjacent(g.out[idx], true)
}

func (g *Graph) Incoming(idx NodeIndex) []Adjacent {
	return g.adjacent(g.in[idx], false)
}

// MarkDangling flags a node whose memory was deleted. Its edges stay for audit.
func (g *Graph) MarkDangling(id uuid.UUID) bool {
	idx, ok := g.index[id]
	if !ok || g.nodes[idx].Dangling {
		return false
	}
	g.nodes[idx].Dangling = true
	return true
}

// RemoveNode detaches a node and all of its edges. Only snapshots use this;
// the live graph keeps dangling nodes instead.
func (g *Graph) RemoveNode(id uuid.UUID) bool {
	idx, ok := g.index[id]
	if !ok {
		return false
	}
	for _, ei := range slices.Clone(g.out[idx]) {
		g.detach(ei)
	}
	for _, ei := range slices.Clone(g.in[idx]) {
		g.detach(ei)
	}
	g.removed[idx] = true
	delete(g.index, id)
	return true
}

// Edges returns copies of all live edges in insertion order.
func (g *Graph) Edges() []domain.CausalEdge {
	out := make([]domain.CausalEdge, 0, g.live)
	for _, slot := range g.edges {
		if slot.live {
			out = append(out, slot.edge)
		}
	}
	return out
}

// Prune removes weak edges and old inferred edges that never gained evidence.
func (g *Graph) Prune(rules domain.PruningRules, now time.Time) domain.PruneResult {
	var result domain.PruneResult
	for i := range g.edges {
		slot := g.edges[i]
		if !slot.live {
			continue
		}
		switch {
		case slot.edge.Strength < rules.MinStrength:
			result.Weak++
		case rules.MaxUnvalidatedAge > 0 && slot.edge.Inferred && len(slot.edge.Evidence) == 0 &&
			now.Sub(slot.edge.CreatedAt) > rules.MaxUnvalidatedAge:
			result.Unvalidated++
		default:
			continue
		}
		result.Edges = append(result.Edges, slot.edge)
		g.detach(EdgeIndex(i))
	}
	result.Removed = len(result.Edges)
	return result
}

func (g *Graph) IsBoosted(id uuid.UUID) bool {
	return g.boosted[id]
}

func (g *Graph) MarkBoosted(id uuid.UUID) {
	g.boosted[id] = true
}

func (g *Graph) UnmarkBoosted(id uuid.UUID) {
	delete(g.boosted, id)
}

func (g *Graph) Stats() domain.GraphStats {
	stats := domain.GraphStats{Nodes: g.NodeCount(), Edges: g.live}
	for idx, n := range g.nodes {
		if !g.removed[idx] && n.Dangling {
			stats.Dangling++
		}
	}
	return stats
}

// Clone returns an independent snapshot.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:   slices.Clone(g.nodes),
		removed: slices.Clone(g.removed),
		index:   make(map[uuid.UUID]NodeIndex, len(g.index)),
		edges:   make([]edgeSlot, len(g.edges)),
		out:     make([][]EdgeIndex, len(g.out)),
		in:      make([][]EdgeIndex, len(g.in)),
		live:    g.live,
		boosted: make(map[uuid.UUID]bool, len(g.boosted)),
	}
	for id, idx := range g.index {
		c.index[id] = idx
	}
	for i, slot := range g.edges {
		slot.edge.Evidence = slices.Clone(slot.edge.Evidence)
		c.edges[i] = slot
	}
	for i := range g.out {
		c.out[i] = slices.Clone(g.out[i])
		c.in[i] = slices.Clone(g.in[i])
	}
	for id := range g.boosted {
		c.boosted[id] = true
	}
	return c
}
