package narrative

import (
	"context"
	"strings"
	"testing"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/graph"
	"github.com/Harshitk-cp/engram-causal/internal/traversal"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testGraph struct {
	g   *graph.Graph
	ids map[string]uuid.UUID
}

func newTestGraph() *testGraph {
	return &testGraph{g: graph.New(), ids: map[string]uuid.UUID{}}
}

func (tg *testGraph) id(name string) uuid.UUID {
	if id, ok := tg.ids[name]; ok {
		return id
	}
	tg.ids[name] = uuid.New()
	return tg.ids[name]
}

func (tg *testGraph) link(t *testing.T, src, tgt string, rel domain.Relation, strength float64, evidence ...string) {
	t.Helper()
	e := domain.CausalEdge{Source: tg.id(src), Target: tg.id(tgt), Relation: rel, Strength: strength}
	for _, ev := range evidence {
		e.Evidence = append(e.Evidence, domain.Evidence{Description: ev})
	}
	_, err := tg.g.AddEdge(e, graph.NodeInfo{Summary: src}, graph.NodeInfo{Summary: tgt})
	require.NoError(t, err)
}

func (tg *testGraph) narrate(name string) Narrative {
	ctx := context.Background()
	cfg := traversal.DefaultConfig()
	return Build(
		traversal.TraceOrigins(ctx, tg.g, tg.id(name), cfg),
		traversal.TraceEffects(ctx, tg.g, tg.id(name), cfg),
	)
}

func texts(s *Section) []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, e.Text)
	}
	return out
}

func TestBuild_Sections(t *testing.T) {
	tg := newTestGraph()
	tg.link(t, "slow queries", "add index", domain.RelationCaused, 0.9, "p99 latency dropped after index")
	tg.link(t, "load test", "add index", domain.RelationSupports, 0.8)
	tg.link(t, "never add indexes", "add index", domain.RelationContradicts, 0.7)
	tg.link(t, "add index", "faster dashboard", domain.RelationEnabled, 0.85)
	tg.link(t, "add index", "index runbook", domain.RelationDerivedFrom, 0.6, "runbook cites the index decision")

	n := tg.narrate("add index")

	require.Len(t, n.Sections, 4)
	assert.Equal(t, []string{SectionOrigins, SectionEffects, SectionSupport, SectionConflicts},
		[]string{n.Sections[0].Title, n.Sections[1].Title, n.Sections[2].Title, n.Sections[3].Title})

	assert.Equal(t, []string{"slow queries caused add index"}, texts(n.Section(SectionOrigins)))
	assert.ElementsMatch(t, []string{
		"add index enabled faster dashboard",
		"index runbook was derived from add index",
	}, texts(n.Section(SectionEffects)))
	assert.Equal(t, []string{"load test supports add index"}, texts(n.Section(SectionSupport)))
	assert.Equal(t, []string{"never add indexes contradicts add index"}, texts(n.Section(SectionConflicts)))

	assert.ElementsMatch(t, []string{
		"p99 latency dropped after index",
		"runbook cites the index decision",
	}, n.EvidenceRefs)
	assert.Contains(t, n.KeyPoints, "slow queries (caused: 90%)")
	assert.Len(t, n.KeyPoints, 5)

	want := domain.ChainConfidence([]float64{0.9, 0.8, 0.7, 0.85, 0.6}, 1)
	assert.InDelta(t, want, n.Confidence, 1e-9)
	assert.Equal(t, LevelOf(want), n.ConfidenceLevel)
	assert.Contains(t, n.Summary, "5 connections")
}

func TestBuild_ChainConfidencePerEntry(t *testing.T) {
	tg := newTestGraph()
	tg.link(t, "A", "B", domain.RelationCaused, 0.8)
	tg.link(t, "B", "C", domain.RelationCaused, 0.7)

	n := tg.narrate("C")
	origins := n.Section(SectionOrigins)
	require.NotNil(t, origins)
	require.Len(t, origins.Entries, 2)
	assert.Equal(t, "A caused B", origins.Entries[1].Text)
	assert.InDelta(t, 0.72, origins.Entries[1].ChainConfidence, 1e-9)
	assert.Equal(t, 2, origins.Entries[1].Depth)
}

func TestBuild_UnknownMemory(t *testing.T) {
	tg := newTestGraph()
	n := tg.narrate("ghost")
	assert.Equal(t, SummaryNoContext, n.Summary)
	assert.Equal(t, LevelVeryLow, n.ConfidenceLevel)
	assert.Empty(t, n.Sections)
}

func TestBuild_ExcludesDangling(t *testing.T) {
	tg := newTestGraph()
	tg.link(t, "deleted", "kept", domain.RelationCaused, 0.9)
	tg.g.MarkDangling(tg.id("deleted"))

	n := tg.narrate("kept")
	assert.Equal(t, SummaryNoRelationships, n.Summary)
	assert.Empty(t, n.KeyPoints)
}

func TestLevelOf(t *testing.T) {
	tests := []struct {
		score float64
		want  ConfidenceLevel
	}{
		{0.95, LevelHigh},
		{0.8, LevelHigh},
		{0.79, LevelMedium},
		{0.5, LevelMedium},
		{0.3, LevelLow},
		{0.29, LevelVeryLow},
		{0, LevelVeryLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelOf(tt.score), "score %v", tt.score)
	}
}

func TestRender_AllRelations(t *testing.T) {
	for _, rel := range domain.AllRelations {
		got := Render(rel, "S", "T")
		assert.Contains(t, got, "S", rel)
		assert.Contains(t, got, "T", rel)
	}
	assert.Equal(t, "T was triggered by S", Render(domain.RelationTriggeredBy, "S", "T"))
}

func TestWhyAndMarkdown(t *testing.T) {
	tg := newTestGraph()
	tg.link(t, "incident", "postmortem", domain.RelationCaused, 0.9, "linked in ticket")
	tg.link(t, "postmortem", "new alert", domain.RelationEnabled, 0.8)

	ctx := context.Background()
	cfg := traversal.DefaultConfig()
	w := Why(
		traversal.TraceOrigins(ctx, tg.g, tg.id("postmortem"), cfg),
		traversal.TraceEffects(ctx, tg.g, tg.id("postmortem"), cfg),
	)
	assert.Equal(t, 2, w.TotalReachable)
	require.Len(t, w.Origins, 1)
	assert.Equal(t, tg.id("incident"), w.Origins[0].MemoryID)

	md := RenderMarkdown(w)
	for _, want := range []string{
		"## Causal Explanation",
		"### Origins",
		"- incident caused postmortem (90%)",
		"### Effects",
		"**Chain confidence:**",
		"- linked in ticket",
		"## Origins (1 upstream nodes)",
		"- new alert (depth: 1)",
	} {
		assert.True(t, strings.Contains(md, want), "markdown missing %q:\n%s", want, md)
	}

	empty := RenderMarkdown(Why(traversal.Result{}, traversal.Result{}))
	assert.Equal(t, "No causal information available for this memory.", empty)
}
