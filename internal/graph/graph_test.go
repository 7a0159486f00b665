package graph

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/google/uuid"
)

func edge(src, tgt uuid.UUID, rel domain.Relation, strength float64) domain.CausalEdge {
	return domain.CausalEdge{
		Source:    src,
		Target:    tgt,
		Relation:  rel,
		Strength:  strength,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func mustAdd(t *testing.T, g *Graph, e domain.CausalEdge) {
	t.Helper()
	if _, err := g.AddEdge(e, Unknown, Unknown); err != nil {
		t.Fatalf("AddEdge(%s -> %s): %v", e.Source, e.Target, err)
	}
}

func TestAddEdge_CreatesNodesLazily(t *testing.T) {
	g := New()
	a, b := uuid.New(), uuid.New()

	created, err := g.AddEdge(edge(a, b, domain.RelationCaused, 0.8),
		NodeInfo{Type: domain.MemoryTypeDecision, Summary: "use postgres"}, Unknown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected a new edge")
	}
	if g.NodeCount() != 2 || g.EdgeCount() != 1 {
		t.Fatalf("nodes=%d edges=%d, want 2/1", g.NodeCount(), g.EdgeCount())
	}
	idx, ok := g.Lookup(a)
	if !ok {
		t.Fatal("source node missing")
	}
	if n := g.Node(idx); n.MemoryType != domain.MemoryTypeDecision || n.Summary != "use postgres" {
		t.Errorf("node = %+v", n)
	}
	idx, _ = g.Lookup(b)
	if g.Node(idx).MemoryType != domain.MemoryTypeUnknown {
		t.Errorf("target type = %s, want unknown", g.Node(idx).MemoryType)
	}
}

func TestEnsureNode_DoesNotDowngradeType(t *testing.T) {
	g := New()
	id := uuid.New()
	g.EnsureNode(id, NodeInfo{Type: domain.MemoryTypeInsight, Summary: "cache warmup"})
	idx := g.EnsureNode(id, Unknown)

	if n := g.Node(idx); n.MemoryType != domain.MemoryTypeInsight || n.Summary != "cache warmup" {
		t.Errorf("node overwritten: %+v", n)
	}

	other := uuid.New()
	g.EnsureNode(other, Unknown)
	idx = g.EnsureNode(other, NodeInfo{Type: domain.MemoryTypeFact, Summary: "filled later"})
	if n := g.Node(idx); n.MemoryType != domain.MemoryTypeFact || n.Summary != "filled later" {
		t.Errorf("unknown node not filled: %+v", n)
	}
}

func TestAddEdge_ClampsStrength(t *testing.T) {
	g := New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	mustAdd(t, g, edge(a, b, domain.RelationCaused, 1.7))
	mustAdd(t, g, edge(b, c, domain.RelationCaused, -0.4))

	e, _ := g.FindEdge(a, b, domain.RelationCaused)
	if e.Strength != 1 {
		t.Errorf("strength = %v, want 1", e.Strength)
	}
	e, _ = g.FindEdge(b, c, domain.RelationCaused)
	if e.Strength != 0 {
		t.Errorf("strength = %v, want 0", e.Strength)
	}
}

func TestAddEdge_InvalidRelation(t *testing.T) {
	g := New()
	_, err := g.AddEdge(edge(uuid.New(), uuid.New(), "inspired", 0.5), Unknown, Unknown)
	if !errors.Is(err, domain.ErrInvalidRelation) {
		t.Fatalf("err = %v, want ErrInvalidRelation", err)
	}
	if g.NodeCount() != 0 {
		t.Errorf("rejected edge created %d nodes", g.NodeCount())
	}
}

func TestAddEdge_MergesSameKey(t *testing.T) {
	g := New()
	a, b := uuid.New(), uuid.New()
	first := edge(a, b, domain.RelationSupports, 0.4)
	first.Evidence = []domain.Evidence{{Description: "same files"}}
	second := edge(a, b, domain.RelationSupports, 0.7)
	second.Evidence = []domain.Evidence{{Description: "explicit reference"}}

	mustAdd(t, g, first)
	created, err := g.AddEdge(second, Unknown, Unknown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("merge should not create a new edge")
	}
	if g.EdgeCount() != 1 {
		t.Fatalf("edges = %d, want 1", g.EdgeCount())
	}
	e, _ := g.FindEdge(a, b, domain.RelationSupports)
	if e.Strength != 0.7 {
		t.Errorf("strength = %v, want 0.7", e.Strength)
	}
	if len(e.Evidence) != 2 {
		t.Errorf("evidence = %v, want 2 entries", e.EvidenceDescriptions())
	}

	// A different relation between the same pair is a separate edge.
	mustAdd(t, g, edge(a, b, domain.RelationCaused, 0.5))
	if got := len(g.EdgesBetween(a, b)); got != 2 {
		t.Errorf("edges between = %d, want 2", got)
	}
}

// Scenario: A→B, B→C, then C→A must be rejected and leave the graph as it was.
func TestAddEdge_RejectsCycle(t *testing.T) {
	g := New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	mustAdd(t, g, edge(a, b, domain.RelationCaused, 0.8))
	mustAdd(t, g, edge(b, c, domain.RelationCaused, 0.7))

	before := g.Clone()
	_, err := g.AddEdge(edge(c, a, domain.RelationCaused, 0.9), Unknown, Unknown)
	if !errors.Is(err, domain.ErrCycleDetected) {
		t.Fatalf("err = %v, want ErrCycleDetected", err)
	}
	if !reflect.DeepEqual(before, g) {
		t.Error("graph changed after rejected insert")
	}
	if HasCycle(g) {
		t.Error("graph has a cycle")
	}
}

func TestAddEdge_RejectsSelfLoop(t *testing.T) {
	g := New()
	a := uuid.New()
	_, err := g.AddEdge(edge(a, a, domain.RelationSupports, 0.5), Unknown, Unknown)
	if !errors.Is(err, domain.ErrCycleDetected) {
		t.Fatalf("err = %v, want ErrCycleDetected", err)
	}
	if g.NodeCount() != 0 {
		t.Error("self loop created a node")
	}
}

func TestAcyclicity_AdversarialSequence(t *testing.T) {
	g := New()
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		ids[i] = uuid.New()
	}
	// Every ordered pair in both directions; half of them must be rejected.
	rejected := 0
	for i := range ids {
		for j := range ids {
			if i == j {
				continue
			}
			_, err := g.AddEdge(edge(ids[i], ids[j], domain.RelationEnabled, 0.5), Unknown, Unknown)
			if err != nil {
				if !errors.Is(err, domain.ErrCycleDetected) {
					t.Fatalf("unexpected error: %v", err)
				}
				rejected++
			}
			if HasCycle(g) {
				t.Fatalf("cycle after inserting %d -> %d", i, j)
			}
		}
	}
	if want := len(ids) * (len(ids) - 1) / 2; rejected != want {
		t.Errorf("rejected = %d, want %d", rejected, want)
	}
}

func TestRemoveEdge(t *testing.T) {
	g := New()
	a, b := uuid.New(), uuid.New()
	mustAdd(t, g, edge(a, b, domain.RelationCaused, 0.8))

	if !g.RemoveEdge(a, b, domain.RelationCaused) {
		t.Fatal("expected edge to be removed")
	}
	if g.RemoveEdge(a, b, domain.RelationCaused) {
		t.Error("second removal should report false")
	}
	idx, _ := g.Lookup(a)
	if len(g.Outgoing(idx)) != 0 || g.EdgeCount() != 0 {
		t.Error("edge still attached")
	}
	// The reverse direction is allowed once the edge is gone.
	mustAdd(t, g, edge(b, a, domain.RelationCaused, 0.8))
}

func TestUpdateStrengthAndEvidence(t *testing.T) {
	g := New()
	a, b := uuid.New(), uuid.New()
	mustAdd(t, g, edge(a, b, domain.RelationEnabled, 0.5))

	if err := g.UpdateStrength(a, b, domain.RelationEnabled, 0.9); err != nil {
		t.Fatalf("UpdateStrength: %v", err)
	}
	if err := g.AddEvidence(a, b, domain.RelationEnabled, domain.Evidence{Description: "confirmed in review"}); err != nil {
		t.Fatalf("AddEvidence: %v", err)
	}
	e, _ := g.FindEdge(a, b, domain.RelationEnabled)
	if e.Strength != 0.9 || len(e.Evidence) != 1 {
		t.Errorf("edge = %+v", e)
	}

	if err := g.UpdateStrength(b, a, domain.RelationEnabled, 0.1); !errors.Is(err, domain.ErrEdgeNotFound) {
		t.Errorf("err = %v, want ErrEdgeNotFound", err)
	}
}

func TestRestoreEdge_UndoesMerge(t *testing.T) {
	g := New()
	a, b := uuid.New(), uuid.New()
	first := edge(a, b, domain.RelationCaused, 0.5)
	first.Evidence = []domain.Evidence{{Description: "first"}}
	mustAdd(t, g, first)

	prev, ok := g.SnapshotEdge(a, b, domain.RelationCaused)
	if !ok {
		t.Fatal("edge not found")
	}
	second := edge(a, b, domain.RelationCaused, 0.9)
	second.Evidence = []domain.Evidence{{Description: "second"}}
	mustAdd(t, g, second)

	if err := g.RestoreEdge(prev); err != nil {
		t.Fatalf("RestoreEdge: %v", err)
	}
	e, _ := g.FindEdge(a, b, domain.RelationCaused)
	if e.Strength != 0.5 {
		t.Errorf("strength = %v, want 0.5", e.Strength)
	}
	if got := e.EvidenceDescriptions(); !reflect.DeepEqual(got, []string{"first"}) {
		t.Errorf("evidence = %v, want [first]", got)
	}

	if err := g.RestoreEdge(edge(b, a, domain.RelationCaused, 0.5)); !errors.Is(err, domain.ErrEdgeNotFound) {
		t.Errorf("err = %v, want ErrEdgeNotFound", err)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	g := New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	mustAdd(t, g, edge(a, b, domain.RelationCaused, 0.8))
	mustAdd(t, g, edge(b, c, domain.RelationCaused, 0.7))

	snap := g.Clone()
	snap.RemoveNode(b)
	_ = snap.AddEvidence(a, b, domain.RelationCaused, domain.Evidence{Description: "x"})

	if g.NodeCount() != 3 || g.EdgeCount() != 2 {
		t.Fatalf("original changed: nodes=%d edges=%d", g.NodeCount(), g.EdgeCount())
	}
	if snap.NodeCount() != 2 || snap.EdgeCount() != 0 {
		t.Errorf("snapshot nodes=%d edges=%d, want 2/0", snap.NodeCount(), snap.EdgeCount())
	}
	if _, ok := snap.Lookup(b); ok {
		t.Error("removed node still resolvable")
	}
}

func TestMarkDangling_KeepsEdges(t *testing.T) {
	g := New()
	a, b := uuid.New(), uuid.New()
	mustAdd(t, g, edge(a, b, domain.RelationCaused, 0.8))

	if !g.MarkDangling(a) {
		t.Fatal("expected node to be marked")
	}
	if g.MarkDangling(a) {
		t.Error("second mark should report false")
	}
	if g.EdgeCount() != 1 {
		t.Error("dangling node lost its edges")
	}
	if s := g.Stats(); s.Dangling != 1 || s.Nodes != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestPrune(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	g := New()
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	mustAdd(t, g, edge(a, b, domain.RelationCaused, 0.1))

	stale := edge(b, c, domain.RelationEnabled, 0.6)
	stale.Inferred = true
	stale.CreatedAt = now.Add(-40 * 24 * time.Hour)
	mustAdd(t, g, stale)

	validated := edge(c, d, domain.RelationEnabled, 0.6)
	validated.Inferred = true
	validated.CreatedAt = now.Add(-40 * 24 * time.Hour)
	validated.Evidence = []domain.Evidence{{Description: "seen twice"}}
	mustAdd(t, g, validated)

	explicit := edge(a, d, domain.RelationSupports, 0.5)
	explicit.CreatedAt = now.Add(-400 * 24 * time.Hour)
	mustAdd(t, g, explicit)

	res := g.Prune(domain.DefaultPruningRules(), now)
	if res.Removed != 2 || res.Weak != 1 || res.Unvalidated != 1 {
		t.Errorf("prune result = %+v", res)
	}
	if g.EdgeCount() != 2 {
		t.Errorf("edges = %d, want 2", g.EdgeCount())
	}
	if _, ok := g.FindEdge(c, d, domain.RelationEnabled); !ok {
		t.Error("validated edge pruned")
	}
}

func TestBoostedSet_ClonedWithGraph(t *testing.T) {
	g := New()
	id := uuid.New()
	g.MarkBoosted(id)
	snap := g.Clone()
	if !snap.IsBoosted(id) {
		t.Error("boosted set not cloned")
	}
	snap.MarkBoosted(uuid.New())
	if len(g.boosted) != 1 {
		t.Error("clone shares boosted map")
	}
}

func TestManager_WriteTimeout(t *testing.T) {
	m := NewManager(2, time.Millisecond)
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.Write(context.Background(), func(*Graph) error { return nil })
	if !errors.Is(err, domain.ErrConcurrencyTimeout) {
		t.Fatalf("err = %v, want ErrConcurrencyTimeout", err)
	}
	err = m.Read(context.Background(), func(*Graph) error { return nil })
	if !errors.Is(err, domain.ErrConcurrencyTimeout) {
		t.Fatalf("read err = %v, want ErrConcurrencyTimeout", err)
	}
}

func TestManager_ConcurrentReaders(t *testing.T) {
	m := NewManager(0, time.Millisecond)
	m.mu.RLock()
	defer m.mu.RUnlock()

	called := false
	err := m.Read(context.Background(), func(*Graph) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("read blocked by another reader: %v", err)
	}
}

func TestManager_CancelledWhileWaiting(t *testing.T) {
	m := NewManager(10, 50*time.Millisecond)
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Write(ctx, func(*Graph) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
