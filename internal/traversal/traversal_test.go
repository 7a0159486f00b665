package traversal

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/graph"
	"github.com/google/uuid"
)

type fixture struct {
	g   *graph.Graph
	ids map[string]uuid.UUID
}

func newFixture() *fixture {
	return &fixture{g: graph.New(), ids: make(map[string]uuid.UUID)}
}

func (f *fixture) id(name string) uuid.UUID {
	if id, ok := f.ids[name]; ok {
		return id
	}
	id := uuid.New()
	f.ids[name] = id
	return id
}

func (f *fixture) link(t *testing.T, src, tgt string, rel domain.Relation, strength float64) {
	t.Helper()
	_, err := f.g.AddEdge(domain.CausalEdge{
		Source:   f.id(src),
		Target:   f.id(tgt),
		Relation: rel,
		Strength: strength,
	}, graph.NodeInfo{Summary: src}, graph.NodeInfo{Summary: tgt})
	if err != nil {
		t.Fatalf("link %s -> %s: %v", src, tgt, err)
	}
}

func (f *fixture) names(ids []uuid.UUID) []string {
	byID := make(map[uuid.UUID]string, len(f.ids))
	for name, id := range f.ids {
		byID[id] = name
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int)
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
		if seen[s] < 0 {
			return false
		}
	}
	return true
}

// A→B (0.8), B→C (0.7): origins of C are [B, A] and A's chain confidence is 0.72.
func TestTraceOrigins_Scenario(t *testing.T) {
	f := newFixture()
	f.link(t, "A", "B", domain.RelationCaused, 0.8)
	f.link(t, "B", "C", domain.RelationCaused, 0.7)

	res := TraceOrigins(context.Background(), f.g, f.id("C"), Config{MaxDepth: 5})
	got := f.names(res.IDs())
	if len(got) != 2 || got[0] != "B" || got[1] != "A" {
		t.Fatalf("origins = %v, want [B A]", got)
	}
	if res.Incomplete {
		t.Errorf("unexpected truncation %s", res.Truncation)
	}
	if c := res.Nodes[1].ChainConfidence; math.Abs(c-0.72) > 1e-9 {
		t.Errorf("chain confidence = %v, want 0.72", c)
	}
	if c := res.Nodes[0].ChainConfidence; math.Abs(c-0.7) > 1e-9 {
		t.Errorf("B chain confidence = %v, want 0.7", c)
	}
	if res.MaxDepthReached != 2 {
		t.Errorf("max depth = %d, want 2", res.MaxDepthReached)
	}
}

func TestTraceEffects_SkipsWeakEdges(t *testing.T) {
	f := newFixture()
	f.link(t, "A", "B", domain.RelationCaused, 0.8)
	f.link(t, "A", "C", domain.RelationEnabled, 0.2)

	res := TraceEffects(context.Background(), f.g, f.id("A"), DefaultConfig())
	if got := f.names(res.IDs()); len(got) != 1 || got[0] != "B" {
		t.Errorf("effects = %v, want [B]", got)
	}
}

func TestTraversal_UnknownOrigin(t *testing.T) {
	res := TraceEffects(context.Background(), graph.New(), uuid.New(), DefaultConfig())
	if res.Found || len(res.Nodes) != 0 || res.Incomplete {
		t.Errorf("result = %+v, want empty", res)
	}
}

func TestTraversal_DepthLimit(t *testing.T) {
	f := newFixture()
	chain := []string{"n0", "n1", "n2", "n3", "n4"}
	for i := 0; i+1 < len(chain); i++ {
		f.link(t, chain[i], chain[i+1], domain.RelationCaused, 0.9)
	}

	res := TraceEffects(context.Background(), f.g, f.id("n0"), Config{MaxDepth: 2, MaxNodes: 50})
	if len(res.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(res.Nodes))
	}
	if !res.Incomplete || res.Truncation != TruncatedDepthLimit {
		t.Errorf("incomplete=%v truncation=%q, want depth_limit", res.Incomplete, res.Truncation)
	}
}

func TestTraversal_NodeBudget(t *testing.T) {
	f := newFixture()
	for i := 0; i < 10; i++ {
		f.link(t, "hub", string(rune('a'+i)), domain.RelationEnabled, 0.9)
	}

	res := TraceEffects(context.Background(), f.g, f.id("hub"), Config{MaxDepth: 5, MaxNodes: 4})
	if len(res.Nodes) != 4 {
		t.Fatalf("nodes = %d, want 4", len(res.Nodes))
	}
	if !res.Incomplete || res.Truncation != TruncatedNodeBudget {
		t.Errorf("incomplete=%v truncation=%q, want node_budget", res.Incomplete, res.Truncation)
	}
}

// randomDAG links nodes only from lower to higher index so it is always acyclic.
func randomDAG(t *testing.T, r *rand.Rand, n int) (*graph.Graph, []uuid.UUID) {
	t.Helper()
	g := graph.New()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if r.Float64() < 0.15 {
				_, err := g.AddEdge(domain.CausalEdge{
					Source:   ids[i],
					Target:   ids[j],
					Relation: domain.AllRelations[r.Intn(len(domain.AllRelations))],
					Strength: r.Float64(),
				}, graph.Unknown, graph.Unknown)
				if err != nil {
					t.Fatalf("add edge: %v", err)
				}
			}
		}
	}
	return g, ids
}

func TestTraversal_BoundsHold(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	g, ids := randomDAG(t, r, 60)
	configs := []Config{
		{MaxDepth: 1, MinStrength: 0, MaxNodes: 5},
		{MaxDepth: 3, MinStrength: 0.2, MaxNodes: 10},
		{MaxDepth: 5, MinStrength: 0.3, MaxNodes: 50},
	}
	for _, cfg := range configs {
		for _, id := range ids {
			for _, res := range []Result{
				TraceOrigins(context.Background(), g, id, cfg),
				TraceEffects(context.Background(), g, id, cfg),
				Bidirectional(context.Background(), g, id, cfg),
				Neighbors(context.Background(), g, id, cfg),
			} {
				if len(res.Nodes) > cfg.MaxNodes {
					t.Fatalf("nodes = %d exceeds %d", len(res.Nodes), cfg.MaxNodes)
				}
				for _, n := range res.Nodes {
					if n.Depth > cfg.MaxDepth {
						t.Fatalf("depth %d exceeds %d", n.Depth, cfg.MaxDepth)
					}
				}
			}
		}
	}
}

func TestBidirectional_IsUnion(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	g, ids := randomDAG(t, r, 40)
	cfg := Config{MaxDepth: 5, MinStrength: 0.3, MaxNodes: 200}

	for _, id := range ids {
		origins := TraceOrigins(context.Background(), g, id, cfg)
		effects := TraceEffects(context.Background(), g, id, cfg)
		both := Bidirectional(context.Background(), g, id, cfg)

		want := make(map[uuid.UUID]bool)
		for _, n := range origins.Nodes {
			want[n.MemoryID] = true
		}
		for _, n := range effects.Nodes {
			want[n.MemoryID] = true
		}
		if len(both.Nodes) != len(want) {
			t.Fatalf("union size = %d, want %d", len(both.Nodes), len(want))
		}
		for _, n := range both.Nodes {
			if !want[n.MemoryID] {
				t.Fatalf("unexpected node %s", n.MemoryID)
			}
		}
	}
}

func TestNeighbors_IgnoresStrengthFilter(t *testing.T) {
	f := newFixture()
	f.link(t, "up", "mid", domain.RelationCaused, 0.05)
	f.link(t, "mid", "down", domain.RelationSupports, 0.1)
	f.link(t, "down", "far", domain.RelationCaused, 0.9)

	res := Neighbors(context.Background(), f.g, f.id("mid"), Config{MinStrength: 0.5})
	if got := f.names(res.IDs()); !equalSets(got, []string{"up", "down"}) {
		t.Errorf("neighbors = %v, want [up down]", got)
	}
	if res.Incomplete {
		t.Error("neighbors should not be flagged incomplete by depth")
	}
}

func TestTraversal_SkipsDangling(t *testing.T) {
	f := newFixture()
	f.link(t, "A", "B", domain.RelationCaused, 0.8)
	f.link(t, "B", "C", domain.RelationCaused, 0.8)
	f.g.MarkDangling(f.id("B"))

	res := TraceEffects(context.Background(), f.g, f.id("A"), DefaultConfig())
	if len(res.Nodes) != 0 {
		t.Errorf("effects = %v, want none past a dangling node", f.names(res.IDs()))
	}
}

func TestTraversal_Cancelled(t *testing.T) {
	f := newFixture()
	for i := 0; i < 40; i++ {
		f.link(t, string(rune('A'+i)), string(rune('A'+i+1)), domain.RelationCaused, 0.9)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := TraceEffects(ctx, f.g, f.id("A"), Config{MaxDepth: 100, MaxNodes: 100})
	if !res.Incomplete || res.Truncation != TruncatedCancelled {
		t.Fatalf("incomplete=%v truncation=%q, want cancelled", res.Incomplete, res.Truncation)
	}
	if len(res.Nodes) == 0 || len(res.Nodes) >= 40 {
		t.Errorf("nodes = %d, want a partial result", len(res.Nodes))
	}
}

// P→X→Y, P→Z, W→Z: removing P strands X and Y but Z keeps W.
func TestCounterfactual_Scenario(t *testing.T) {
	f := newFixture()
	f.link(t, "P", "X", domain.RelationCaused, 0.9)
	f.link(t, "X", "Y", domain.RelationEnabled, 0.8)
	f.link(t, "P", "Z", domain.RelationDerivedFrom, 0.7)
	f.link(t, "W", "Z", domain.RelationSupports, 0.9)
	f.link(t, "Q", "P", domain.RelationCaused, 0.9)

	res := Counterfactual(context.Background(), f.g, f.id("P"), DefaultConfig())
	if got := f.names(res.IDs()); !equalSets(got, []string{"X", "Y"}) {
		t.Errorf("affected = %v, want [X Y]", got)
	}
	if f.g.NodeCount() != 6 || f.g.EdgeCount() != 5 {
		t.Error("counterfactual modified the live graph")
	}
}

func TestCounterfactual_KeptThroughChain(t *testing.T) {
	f := newFixture()
	f.link(t, "P", "X", domain.RelationCaused, 0.9)
	f.link(t, "X", "Y", domain.RelationCaused, 0.9)
	f.link(t, "R", "S", domain.RelationCaused, 0.9)
	f.link(t, "S", "X", domain.RelationCaused, 0.9)

	res := Counterfactual(context.Background(), f.g, f.id("P"), DefaultConfig())
	if len(res.Nodes) != 0 {
		t.Errorf("affected = %v, want none", f.names(res.IDs()))
	}
}

// D is downstream of P beyond the depth budget, so its edge into X is not
// independent support for X.
func TestCounterfactual_DescendantBeyondBudgetIsNotIndependent(t *testing.T) {
	f := newFixture()
	f.link(t, "R", "P", domain.RelationCaused, 0.9)
	f.link(t, "P", "X", domain.RelationCaused, 0.9)
	chain := []string{"P", "A1", "A2", "A3", "A4", "A5", "D", "X"}
	for i := 0; i+1 < len(chain); i++ {
		f.link(t, chain[i], chain[i+1], domain.RelationEnabled, 0.8)
	}

	cfg := DefaultConfig()
	cfg.MaxDepth = 5
	res := Counterfactual(context.Background(), f.g, f.id("P"), cfg)
	got := f.names(res.IDs())
	if !equalSets(got, []string{"X", "A1", "A2", "A3", "A4", "A5"}) {
		t.Errorf("affected = %v, want [X A1 A2 A3 A4 A5]", got)
	}
}

func TestIntervention(t *testing.T) {
	f := newFixture()
	f.link(t, "A", "B", domain.RelationCaused, 0.8)
	f.link(t, "B", "C", domain.RelationCaused, 0.7)
	f.link(t, "A", "D", domain.RelationSupports, 0.9)

	weaker := 0.4
	res, err := Intervention(context.Background(), f.g, EdgeChange{
		Source:      f.id("A"),
		Target:      f.id("B"),
		Relation:    domain.RelationCaused,
		NewStrength: &weaker,
	}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := make([]uuid.UUID, 0, len(res.Impacts))
	for _, imp := range res.Impacts {
		got = append(got, imp.MemoryID)
		if imp.Delta >= 0 {
			t.Errorf("impact on %s should lower confidence, delta=%v", imp.MemoryID, imp.Delta)
		}
	}
	if names := f.names(got); !equalSets(names, []string{"B", "C"}) {
		t.Errorf("impacted = %v, want [B C]", names)
	}

	e, _ := f.g.FindEdge(f.id("A"), f.id("B"), domain.RelationCaused)
	if e.Strength != 0.8 {
		t.Error("intervention modified the live graph")
	}
}

func TestIntervention_BelowThresholdCutsReachability(t *testing.T) {
	f := newFixture()
	f.link(t, "A", "B", domain.RelationCaused, 0.8)
	f.link(t, "B", "C", domain.RelationCaused, 0.7)

	weak := 0.1
	res, err := Intervention(context.Background(), f.g, EdgeChange{
		Source: f.id("A"), Target: f.id("B"), Relation: domain.RelationCaused, NewStrength: &weak,
	}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Impacts) != 2 {
		t.Fatalf("impacts = %d, want 2", len(res.Impacts))
	}
	for _, imp := range res.Impacts {
		if !imp.ReachableBefore || imp.ReachableAfter {
			t.Errorf("impact %+v should lose reachability", imp)
		}
	}
}

func TestIntervention_RelationChange(t *testing.T) {
	f := newFixture()
	f.link(t, "A", "B", domain.RelationCaused, 0.8)

	rel := domain.RelationSupports
	res, err := Intervention(context.Background(), f.g, EdgeChange{
		Source: f.id("A"), Target: f.id("B"), Relation: domain.RelationCaused, NewRelation: &rel,
	}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Impacts) != 1 || res.Impacts[0].Delta != 0 {
		t.Fatalf("impacts = %+v", res.Impacts)
	}
	if res.Impacts[0].RelationsAfter[0] != domain.RelationSupports {
		t.Errorf("relations after = %v", res.Impacts[0].RelationsAfter)
	}
}

func TestIntervention_UnknownEdge(t *testing.T) {
	f := newFixture()
	f.link(t, "A", "B", domain.RelationCaused, 0.8)

	_, err := Intervention(context.Background(), f.g, EdgeChange{
		Source: f.id("B"), Target: f.id("A"), Relation: domain.RelationCaused,
	}, DefaultConfig())
	if !errors.Is(err, domain.ErrEdgeNotFound) {
		t.Errorf("err = %v, want ErrEdgeNotFound", err)
	}
}
