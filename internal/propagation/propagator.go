// Package propagation turns contradictions and confirmations into confidence
// deltas spread over supporting memories.
//
// Planning runs under the graph write lock and only touches the graph. The
// resulting Plan is applied to storage by the caller after the lock is
// released; Undo reverts the graph part if that fails.
package propagation

import (
	"fmt"
	"slices"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/contradiction"
	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/graph"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Plan struct {
	Adjustments []domain.ConfidenceAdjustment `json:"adjustments"`
	// Edge is the contradicts, supersedes or supports edge requested by the event.
	Edge        domain.CausalEdge   `json:"edge"`
	EdgeCreated bool                `json:"edge_created"`
	EdgeError   string              `json:"edge_error,omitempty"`
	Supporters  []uuid.UUID         `json:"supporters"`
	Resisted    bool                `json:"consensus_resisted"`
	Boosted     bool                `json:"consensus_boosted"`
	// Replaced holds inferred edges removed so the conflict edge could be recorded.
	Replaced    []domain.CausalEdge `json:"replaced,omitempty"`
	Audit       []domain.AuditEntry `json:"-"`

	edgeErr error
	prior   *domain.CausalEdge
}

// EdgeErr returns the error that rejected the edge, if any.
func (p *Plan) EdgeErr() error {
	return p.edgeErr
}

// Prior returns the edge as it was before the plan merged into it.
func (p *Plan) Prior() (domain.CausalEdge, bool) {
	if p.prior == nil {
		return domain.CausalEdge{}, false
	}
	return *p.prior, true
}

// Undo reverts the graph changes made while planning. Callers must hold the write lock.
func (p *Plan) Undo(g *graph.Graph) {
	if p.EdgeCreated {
		g.RemoveEdge(p.Edge.Source, p.Edge.Target, p.Edge.Relation)
	} else if p.prior != nil {
		_ = g.RestoreEdge(*p.prior)
	}
	for _, e := range p.Replaced {
		_, _ = g.AddEdge(e, graph.Unknown, graph.Unknown)
	}
	if p.Boosted {
		g.UnmarkBoosted(p.Edge.Target)
	}
}

// IDs returns the memories touched by the plan's adjustments.
func (p *Plan) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Adjustments))
	for _, a := range p.Adjustments {
		ids = append(ids, a.MemoryID)
	}
	return ids
}

type Propagator struct {
	rules  domain.PropagationRules
	logger *zap.Logger
}

func NewPropagator(rules domain.PropagationRules, logger *zap.Logger) *Propagator {
	if rules.MaxDepth <= 0 {
		rules.MaxDepth = domain.DefaultPropagationDepth
	}
	return &Propagator{rules: rules, logger: logger}
}

func (p *Propagator) Rules() domain.PropagationRules {
	return p.rules
}

// PlanContradiction records the contradiction edge and computes deltas for
// the existing memory and its supporters. With enough independent
// supporters the contradiction is resisted: no negative deltas are planned
// and a one-time consensus boost is applied instead.
func (p *Propagator) PlanContradiction(g *graph.Graph, r domain.ContradictionResult, newInfo, existingInfo graph.NodeInfo) *Plan {
	now := time.Now().UTC()
	plan := &Plan{Adjustments: []domain.ConfidenceAdjustment{}}

	evidence := make([]domain.Evidence, 0, len(r.Evidence))
	for _, e := range r.Evidence {
		evidence = append(evidence, domain.Evidence{Description: e, Source: r.Strategy, Timestamp: now})
	}
	plan.Edge = domain.CausalEdge{
		Source:    r.NewMemoryID,
		Target:    r.ExistingMemoryID,
		Relation:  r.EdgeRelation(),
		Strength:  r.Confidence,
		Evidence:  evidence,
		Inferred:  true,
		CreatedAt: now,
	}
	p.displaceInferred(g, plan)
	p.addEdge(g, plan, newInfo, existingInfo)
	plan.Audit = append(plan.Audit, domain.NewEdgeAudit(domain.AuditContradictionDetected,
		r.NewMemoryID, r.ExistingMemoryID, plan.Edge.Relation, string(r.Type),
		fmt.Sprintf("%s conflict via %s, confidence %.2f, similarity %.2f", r.Type, r.Strategy, r.Confidence, r.SimilarityScore)))

	plan.Supporters = contradiction.IndependentSupporters(g, r.ExistingMemoryID, r.NewMemoryID)
	if len(plan.Supporters) >= p.rules.ConsensusThreshold {
		plan.Resisted = true
		p.boost(g, plan, r.ExistingMemoryID)
		if !plan.Boosted {
			plan.Audit = append(plan.Audit, domain.NewNodeAudit(domain.AuditConsensusBoost,
				r.ExistingMemoryID, "resisted",
				fmt.Sprintf("%d independent supporters; boost already applied", len(plan.Supporters))))
		}
		return plan
	}

	base := p.rules.BaseDelta(r.Type)
	p.adjust(plan, r.ExistingMemoryID, base, 0, fmt.Sprintf("%s contradiction from %s", r.Type, r.NewMemoryID))
	p.spread(g, plan, r.ExistingMemoryID, r.NewMemoryID, base)
	return plan
}

// PlanConfirmation records confirming→confirmed as support and plans the
// confirmation delta. A repeated confirmation by the same memory is a no-op.
// Reaching the consensus threshold applies the boost once.
func (p *Propagator) PlanConfirmation(g *graph.Graph, confirmed, confirming uuid.UUID, confirmedInfo, confirmingInfo graph.NodeInfo) *Plan {
	now := time.Now().UTC()
	plan := &Plan{Adjustments: []domain.ConfidenceAdjustment{}}
	plan.Edge = domain.CausalEdge{
		Source:   confirming,
		Target:   confirmed,
		Relation: domain.RelationSupports,
		Strength: domain.DefaultConfirmationEdge,
		Evidence: []domain.Evidence{{
			Description: fmt.Sprintf("confirmed by %s", confirming),
			Source:      "confirmation",
			Timestamp:   now,
		}},
		CreatedAt: now,
	}
	p.addEdge(g, plan, confirmingInfo, confirmedInfo)
	if plan.edgeErr == nil && !plan.EdgeCreated {
		plan.Audit = append(plan.Audit, domain.NewEdgeAudit(domain.AuditConfirmation,
			confirming, confirmed, domain.RelationSupports, "ignored", "memory already confirmed this one"))
		return plan
	}

	p.adjust(plan, confirmed, p.rules.Confirmation, 0, fmt.Sprintf("confirmed by %s", confirming))
	plan.Audit = append(plan.Audit, domain.NewEdgeAudit(domain.AuditConfirmation,
		confirming, confirmed, domain.RelationSupports, "applied",
		fmt.Sprintf("confidence %+.2f", p.rules.Confirmation)))

	plan.Supporters = contradiction.IndependentSupporters(g, confirmed)
	if len(plan.Supporters) >= p.rules.ConsensusThreshold {
		p.boost(g, plan, confirmed)
	}
	return plan
}

// displaceInferred removes inferred edges running from the contradicted
// memory back to the new one when they are all that stands between the
// conflict edge and a cycle. An explicit or non-inferred path is left alone
// and the conflict edge is rejected as before.
func (p *Propagator) displaceInferred(g *graph.Graph, plan *Plan) {
	from, to := plan.Edge.Source, plan.Edge.Target
	src, ok := g.Lookup(from)
	if !ok {
		return
	}
	tgt, ok := g.Lookup(to)
	if !ok || !graph.WouldCreateCycle(g, src, tgt) {
		return
	}

	var removed []domain.CausalEdge
	for _, e := range g.EdgesBetween(to, from) {
		if !e.Inferred || domain.ConflictRelations[e.Relation] {
			continue
		}
		e.Evidence = slices.Clone(e.Evidence)
		g.RemoveEdge(e.Source, e.Target, e.Relation)
		removed = append(removed, e)
	}
	if len(removed) == 0 {
		return
	}
	if graph.WouldCreateCycle(g, src, tgt) {
		// Another path closes the cycle.
		for _, e := range removed {
			_, _ = g.AddEdge(e, graph.Unknown, graph.Unknown)
		}
		return
	}

	plan.Replaced = removed
	for _, e := range removed {
		plan.Audit = append(plan.Audit, domain.NewEdgeAudit(domain.AuditEdgeRemoved,
			e.Source, e.Target, e.Relation, "replaced",
			fmt.Sprintf("inferred edge displaced by %s from %s", plan.Edge.Relation, from)))
	}
}

func (p *Propagator) addEdge(g *graph.Graph, plan *Plan, srcInfo, tgtInfo graph.NodeInfo) {
	if prev, ok := g.SnapshotEdge(plan.Edge.Source, plan.Edge.Target, plan.Edge.Relation); ok {
		plan.prior = &prev
	}
	created, err := g.AddEdge(plan.Edge, srcInfo, tgtInfo)
	if err != nil {
		plan.edgeErr = err
		plan.EdgeError = err.Error()
		plan.Audit = append(plan.Audit, domain.NewEdgeAudit(domain.AuditEdgeRejected,
			plan.Edge.Source, plan.Edge.Target, plan.Edge.Relation, "rejected", err.Error()))
		p.logger.Warn("propagation edge rejected",
			zap.String("source_id", plan.Edge.Source.String()),
			zap.String("target_id", plan.Edge.Target.String()),
			zap.String("relation", string(plan.Edge.Relation)),
			zap.Error(err))
		plan.prior = nil
		return
	}
	plan.EdgeCreated = created
	if created {
		plan.Audit = append(plan.Audit, domain.NewEdgeAudit(domain.AuditEdgeAdded,
			plan.Edge.Source, plan.Edge.Target, plan.Edge.Relation, "added",
			fmt.Sprintf("strength %.2f", plan.Edge.Strength)))
	}
}

func (p *Propagator) boost(g *graph.Graph, plan *Plan, id uuid.UUID) {
	if g.IsBoosted(id) {
		return
	}
	g.MarkBoosted(id)
	plan.Boosted = true
	p.adjust(plan, id, p.rules.ConsensusBoost, 0, fmt.Sprintf("consensus of %d independent supporters", len(plan.Supporters)))
	plan.Audit = append(plan.Audit, domain.NewNodeAudit(domain.AuditConsensusBoost, id, "applied",
		fmt.Sprintf("%d independent supporters, confidence %+.2f", len(plan.Supporters), p.rules.ConsensusBoost)))
}

// spread walks incoming supports edges breadth first, applying
// base*factor^depth to each supporter up to MaxDepth hops.
func (p *Propagator) spread(g *graph.Graph, plan *Plan, from, exclude uuid.UUID, base float64) {
	start, ok := g.Lookup(from)
	if !ok {
		return
	}
	type item struct {
		idx   graph.NodeIndex
		depth int
	}
	visited := map[graph.NodeIndex]bool{start: true}
	if ex, ok := g.Lookup(exclude); ok {
		visited[ex] = true
	}
	queue := []item{{idx: start}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= p.rules.MaxDepth {
			continue
		}
		for _, a := range g.Incoming(cur.idx) {
			if a.Edge.Relation != domain.RelationSupports || visited[a.Neighbor] {
				continue
			}
			visited[a.Neighbor] = true
			supporter := g.NodeID(a.Neighbor)
			if g.IsDangling(a.Neighbor) {
				p.logger.Warn("skipping dangling supporter",
					zap.String("memory_id", supporter.String()),
					zap.String("supports", g.NodeID(cur.idx).String()))
				continue
			}
			depth := cur.depth + 1
			delta := base * pow(p.rules.SupportingFactor, depth)
			p.adjust(plan, supporter, delta, depth, fmt.Sprintf("supports contradicted memory %s", from))
			queue = append(queue, item{idx: a.Neighbor, depth: depth})
		}
	}
}

func (p *Propagator) adjust(plan *Plan, id uuid.UUID, delta float64, depth int, reason string) {
	plan.Adjustments = append(plan.Adjustments, domain.ConfidenceAdjustment{
		MemoryID: id,
		Delta:    delta,
		Depth:    depth,
		Reason:   reason,
	})
	plan.Audit = append(plan.Audit, domain.NewNodeAudit(domain.AuditConfidenceAdjusted, id,
		fmt.Sprintf("%+.3f", delta), reason))
}

// FlagArchival marks adjustments that would push a memory below the
// archival threshold, given current confidences. Unknown memories are left unflagged.
func FlagArchival(adjustments []domain.ConfidenceAdjustment, confidences map[uuid.UUID]float64, threshold float64) {
	running := make(map[uuid.UUID]float64, len(confidences))
	for id, c := range confidences {
		running[id] = c
	}
	for i := range adjustments {
		a := &adjustments[i]
		c, ok := running[a.MemoryID]
		if !ok {
			continue
		}
		c = domain.ClampConfidence(c + a.Delta)
		running[a.MemoryID] = c
		a.BelowArchival = c < threshold
	}
}

func pow(x float64, n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= x
	}
	return r
}
