package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/contradiction"
	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/graph"
	"github.com/Harshitk-cp/engram-causal/internal/inference"
	"github.com/Harshitk-cp/engram-causal/internal/narrative"
	"github.com/Harshitk-cp/engram-causal/internal/propagation"
	"github.com/Harshitk-cp/engram-causal/internal/store"
	"github.com/Harshitk-cp/engram-causal/internal/traversal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultCandidateLimit = 50
	boostAuditLimit       = 10000
)

type CausalConfig struct {
	Inference     inference.Config
	Traversal     traversal.Config
	Contradiction contradiction.Config
	Propagation   domain.PropagationRules
	Pruning       domain.PruningRules
	LockRetries   int
	LockBackoff   time.Duration
	// CandidateLimit caps how many memories a new memory is compared against.
	CandidateLimit int
}

func DefaultCausalConfig() CausalConfig {
	return CausalConfig{
		Inference:      inference.DefaultConfig(),
		Traversal:      traversal.DefaultConfig(),
		Contradiction:  contradiction.DefaultConfig(),
		Propagation:    domain.DefaultPropagationRules(),
		Pruning:        domain.DefaultPruningRules(),
		LockRetries:    graph.DefaultLockRetries,
		LockBackoff:    graph.DefaultLockBackoff,
		CandidateLimit: defaultCandidateLimit,
	}
}

// CausalEngine owns the live causal graph and every operation over it.
// Storage and similarity lookups run outside the graph lock; audit entries
// collected inside a critical section are flushed after it.
type CausalEngine struct {
	graphs      *graph.Manager
	causalStore domain.CausalStore
	memoryStore domain.MemoryStore
	auditStore  domain.AuditStore
	finder      domain.CandidateFinder

	inference  *inference.Engine
	detector   *contradiction.Detector
	propagator *propagation.Propagator

	cfg    CausalConfig
	logger *zap.Logger
}

func NewCausalEngine(
	causalStore domain.CausalStore,
	memoryStore domain.MemoryStore,
	auditStore domain.AuditStore,
	similarity domain.SimilarityProvider,
	signals domain.SignalProvider,
	finder domain.CandidateFinder,
	cfg CausalConfig,
	logger *zap.Logger,
) *CausalEngine {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = defaultCandidateLimit
	}
	return &CausalEngine{
		graphs:      graph.NewManager(cfg.LockRetries, cfg.LockBackoff),
		causalStore: causalStore,
		memoryStore: memoryStore,
		auditStore:  auditStore,
		finder:      finder,
		inference:   inference.NewEngine(similarity, signals, cfg.Inference, logger),
		detector:    contradiction.NewDetector(similarity, cfg.Contradiction, logger),
		propagator:  propagation.NewPropagator(cfg.Propagation, logger),
		cfg:         cfg,
		logger:      logger,
	}
}

// Hydrate rebuilds the graph from storage, fills node details from the
// memory store and restores which memories already received a consensus
// boost. Edges pointing at memories that no longer exist become dangling.
func (e *CausalEngine) Hydrate(ctx context.Context) (graph.RebuildStats, error) {
	start := time.Now()
	g, stats, err := graph.Rebuild(ctx, e.causalStore, e.logger)
	if err != nil {
		return stats, err
	}

	ids := g.NodeIDs()
	if len(ids) > 0 {
		memories, err := e.memoryStore.GetByIDs(ctx, ids)
		if err != nil {
			e.logger.Warn("hydrate: memory details unavailable, nodes stay unknown", zap.Error(err))
		} else {
			found := make(map[uuid.UUID]bool, len(memories))
			for i := range memories {
				found[memories[i].ID] = true
				g.EnsureNode(memories[i].ID, graph.InfoOf(&memories[i]))
			}
			for _, id := range ids {
				if !found[id] {
					g.MarkDangling(id)
				}
			}
		}
	}

	if e.auditStore != nil {
		boosts, err := e.auditStore.ListByAction(ctx, domain.AuditConsensusBoost, boostAuditLimit)
		if err != nil {
			e.logger.Warn("hydrate: consensus history unavailable", zap.Error(err))
		}
		for _, b := range boosts {
			if b.NodeID != nil && b.Decision == "applied" {
				g.MarkBoosted(*b.NodeID)
			}
		}
	}

	if err := e.graphs.Replace(ctx, g); err != nil {
		return stats, err
	}
	gs := g.Stats()
	e.logger.Info("causal graph hydrated",
		zap.Int("nodes", stats.Nodes),
		zap.Int("edges", stats.Edges),
		zap.Int("skipped", stats.Skipped),
		zap.Int("dangling", gs.Dangling),
		zap.Duration("took", time.Since(start)))
	e.flush(ctx, []domain.AuditEntry{{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Action:    domain.AuditGraphRebuilt,
		Decision:  "rebuilt",
		Rationale: fmt.Sprintf("%d nodes, %d edges, %d skipped", stats.Nodes, stats.Edges, stats.Skipped),
	}})
	return stats, nil
}

// Verify compares the live edge count with storage and rebuilds on mismatch.
func (e *CausalEngine) Verify(ctx context.Context) (bool, error) {
	stored, err := e.causalStore.EdgeCount(ctx)
	if err != nil {
		return false, fmt.Errorf("count stored edges: %w", err)
	}
	var live int
	if err := e.graphs.Read(ctx, func(g *graph.Graph) error {
		live = g.EdgeCount()
		return nil
	}); err != nil {
		return false, err
	}
	if stored == live {
		return false, nil
	}
	e.logger.Warn("graph out of sync with storage, rebuilding",
		zap.Int("stored_edges", stored),
		zap.Int("live_edges", live))
	if _, err := e.Hydrate(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// AddEdge validates and inserts an explicit edge, then persists it. The
// returned edge reflects any merge with an existing (source, target,
// relation) edge.
func (e *CausalEngine) AddEdge(ctx context.Context, edge domain.CausalEdge) (domain.CausalEdge, bool, error) {
	rel, err := domain.ParseRelation(string(edge.Relation))
	if err != nil {
		return domain.CausalEdge{}, false, err
	}
	edge.Relation = rel
	edge.Strength = domain.ClampStrength(edge.Strength)
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	infos := e.nodeInfos(ctx, edge.Source, edge.Target)

	var (
		stored  domain.CausalEdge
		prev    domain.CausalEdge
		merging bool
		created bool
		audit   []domain.AuditEntry
	)
	err = e.graphs.Write(ctx, func(g *graph.Graph) error {
		prev, merging = g.SnapshotEdge(edge.Source, edge.Target, edge.Relation)
		var err error
		created, err = g.AddEdge(edge, infos[edge.Source], infos[edge.Target])
		if err != nil {
			audit = append(audit, domain.NewEdgeAudit(domain.AuditEdgeRejected, edge.Source, edge.Target, edge.Relation, "rejected", err.Error()))
			return err
		}
		stored, _ = g.FindEdge(edge.Source, edge.Target, edge.Relation)
		return nil
	})
	if err != nil {
		e.flush(ctx, audit)
		return domain.CausalEdge{}, false, err
	}

	if err := e.causalStore.AddEdge(ctx, &edge); err != nil {
		if created {
			e.undoEdges(ctx, []domain.CausalEdge{stored})
		} else if merging {
			e.restoreEdge(ctx, prev)
		}
		return domain.CausalEdge{}, false, fmt.Errorf("persist edge: %w", err)
	}

	decision := "merged"
	if created {
		decision = "added"
	}
	e.flush(ctx, []domain.AuditEntry{domain.NewEdgeAudit(domain.AuditEdgeAdded, stored.Source, stored.Target, stored.Relation,
		decision, fmt.Sprintf("strength %.2f, %d evidence", stored.Strength, len(stored.Evidence)))})
	return stored, created, nil
}

func (e *CausalEngine) RemoveEdge(ctx context.Context, source, target uuid.UUID, relation domain.Relation) error {
	var removed domain.CausalEdge
	err := e.graphs.Write(ctx, func(g *graph.Graph) error {
		edge, ok := g.FindEdge(source, target, relation)
		if !ok {
			return fmt.Errorf("%w: %s -[%s]-> %s", domain.ErrEdgeNotFound, source, relation, target)
		}
		removed = edge
		g.RemoveEdge(source, target, relation)
		return nil
	})
	if err != nil {
		return err
	}

	if err := e.causalStore.RemoveEdge(ctx, source, target, relation); err != nil && !errors.Is(err, store.ErrNotFound) {
		if werr := e.graphs.Write(ctx, func(g *graph.Graph) error {
			_, err := g.AddEdge(removed, graph.Unknown, graph.Unknown)
			return err
		}); werr != nil {
			e.logger.Error("failed to restore edge after storage error", zap.Error(werr))
		}
		return fmt.Errorf("remove stored edge: %w", err)
	}
	e.flush(ctx, []domain.AuditEntry{domain.NewEdgeAudit(domain.AuditEdgeRemoved, source, target, relation, "removed", "explicit removal")})
	return nil
}

// Infer scores a single pair without touching the graph.
func (e *CausalEngine) Infer(ctx context.Context, a, b uuid.UUID) (inference.Candidate, bool, error) {
	ma, err := e.memory(ctx, a)
	if err != nil {
		return inference.Candidate{}, false, err
	}
	mb, err := e.memory(ctx, b)
	if err != nil {
		return inference.Candidate{}, false, err
	}
	return e.inference.Infer(ctx, ma, mb)
}

// InferAndConnect scores m against its candidates off-lock, inserts the
// accepted edges in one critical section and persists them. Edges that
// would close a cycle are skipped and audited.
func (e *CausalEngine) InferAndConnect(ctx context.Context, m *domain.Memory) ([]domain.CausalEdge, error) {
	return e.inferAndConnect(ctx, m, nil)
}

// inferAndConnect skips candidates in exclude, which ProcessMemory uses for
// memories the new one contradicts.
func (e *CausalEngine) inferAndConnect(ctx context.Context, m *domain.Memory, exclude map[uuid.UUID]bool) ([]domain.CausalEdge, error) {
	candidates, err := e.candidatesFor(ctx, m, nil)
	if err != nil {
		return nil, err
	}
	if len(exclude) > 0 {
		candidates = slices.DeleteFunc(candidates, func(c domain.Memory) bool { return exclude[c.ID] })
	}
	accepted, err := e.inference.InferBatch(ctx, m, candidates)
	if err != nil {
		return nil, err
	}
	if len(accepted) == 0 {
		return []domain.CausalEdge{}, nil
	}

	now := time.Now().UTC()
	var (
		added []domain.CausalEdge
		audit []domain.AuditEntry
	)
	err = e.graphs.Write(ctx, func(g *graph.Graph) error {
		for i := range accepted {
			c := &accepted[i]
			edge := c.Edge(now)
			created, err := g.AddEdge(edge, graph.InfoOf(c.Source), graph.InfoOf(c.Target))
			if err != nil {
				audit = append(audit, domain.NewEdgeAudit(domain.AuditInferenceSkipped, edge.Source, edge.Target, edge.Relation,
					"skipped", err.Error()))
				continue
			}
			if !created {
				continue
			}
			added = append(added, edge)
			audit = append(audit, domain.NewEdgeAudit(domain.AuditEdgeInferred, edge.Source, edge.Target, edge.Relation,
				"added", fmt.Sprintf("strength %.2f from %d signals", edge.Strength, len(c.Signals))))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	persisted := make([]domain.CausalEdge, 0, len(added))
	var failed []domain.CausalEdge
	for i := range added {
		if err := e.causalStore.AddEdge(ctx, &added[i]); err != nil {
			e.logger.Warn("failed to persist inferred edge",
				zap.String("source_id", added[i].Source.String()),
				zap.String("target_id", added[i].Target.String()),
				zap.Error(err))
			failed = append(failed, added[i])
			continue
		}
		persisted = append(persisted, added[i])
	}
	e.undoEdges(ctx, failed)
	e.flush(ctx, audit)

	e.logger.Info("inference complete",
		zap.String("memory_id", m.ID.String()),
		zap.Int("candidates", len(candidates)),
		zap.Int("accepted", len(accepted)),
		zap.Int("added", len(persisted)))
	return persisted, nil
}

func (e *CausalEngine) traversalConfig(cfg *traversal.Config) traversal.Config {
	if cfg == nil {
		return e.cfg.Traversal
	}
	return *cfg
}

func (e *CausalEngine) read(ctx context.Context, fn func(g *graph.Graph) error) error {
	return e.graphs.Read(ctx, fn)
}

// TraceOrigins walks incoming edges. A nil cfg uses the engine defaults.
func (e *CausalEngine) TraceOrigins(ctx context.Context, id uuid.UUID, cfg *traversal.Config) (traversal.Result, error) {
	var r traversal.Result
	err := e.read(ctx, func(g *graph.Graph) error {
		r = traversal.TraceOrigins(ctx, g, id, e.traversalConfig(cfg))
		return nil
	})
	return r, err
}

func (e *CausalEngine) TraceEffects(ctx context.Context, id uuid.UUID, cfg *traversal.Config) (traversal.Result, error) {
	var r traversal.Result
	err := e.read(ctx, func(g *graph.Graph) error {
		r = traversal.TraceEffects(ctx, g, id, e.traversalConfig(cfg))
		return nil
	})
	return r, err
}

func (e *CausalEngine) Bidirectional(ctx context.Context, id uuid.UUID, cfg *traversal.Config) (traversal.Result, error) {
	var r traversal.Result
	err := e.read(ctx, func(g *graph.Graph) error {
		r = traversal.Bidirectional(ctx, g, id, e.traversalConfig(cfg))
		return nil
	})
	return r, err
}

func (e *CausalEngine) Neighbors(ctx context.Context, id uuid.UUID, cfg *traversal.Config) (traversal.Result, error) {
	var r traversal.Result
	err := e.read(ctx, func(g *graph.Graph) error {
		r = traversal.Neighbors(ctx, g, id, e.traversalConfig(cfg))
		return nil
	})
	return r, err
}

// Counterfactual lists the effects of id that would lose all support if it
// were removed. The live graph is not modified.
func (e *CausalEngine) Counterfactual(ctx context.Context, id uuid.UUID, cfg *traversal.Config) (traversal.Result, error) {
	var r traversal.Result
	err := e.read(ctx, func(g *graph.Graph) error {
		r = traversal.Counterfactual(ctx, g, id, e.traversalConfig(cfg))
		return nil
	})
	return r, err
}

func (e *CausalEngine) Intervention(ctx context.Context, change traversal.EdgeChange, cfg *traversal.Config) (traversal.InterventionResult, error) {
	var r traversal.InterventionResult
	err := e.read(ctx, func(g *graph.Graph) error {
		var err error
		r, err = traversal.Intervention(ctx, g, change, e.traversalConfig(cfg))
		return err
	})
	return r, err
}

func (e *CausalEngine) Narrative(ctx context.Context, id uuid.UUID) (narrative.Narrative, error) {
	var n narrative.Narrative
	err := e.read(ctx, func(g *graph.Graph) error {
		origins := traversal.TraceOrigins(ctx, g, id, e.cfg.Traversal)
		effects := traversal.TraceEffects(ctx, g, id, e.cfg.Traversal)
		n = narrative.Build(origins, effects)
		return nil
	})
	return n, err
}

func (e *CausalEngine) Why(ctx context.Context, id uuid.UUID) (narrative.WhyContext, error) {
	var w narrative.WhyContext
	err := e.read(ctx, func(g *graph.Graph) error {
		origins := traversal.TraceOrigins(ctx, g, id, e.cfg.Traversal)
		effects := traversal.TraceEffects(ctx, g, id, e.cfg.Traversal)
		w = narrative.Why(origins, effects)
		return nil
	})
	return w, err
}

// DetectContradictions scans m against similar memories of checked types.
// Nothing is applied.
func (e *CausalEngine) DetectContradictions(ctx context.Context, m *domain.Memory) ([]domain.ContradictionResult, error) {
	if !e.detector.Checks(m.Type) {
		return []domain.ContradictionResult{}, nil
	}
	existing, err := e.candidatesFor(ctx, m, e.cfg.Contradiction.CheckedTypes)
	if err != nil {
		return nil, err
	}
	return e.detector.Detect(ctx, m, existing)
}

type ProcessResult struct {
	MemoryID       uuid.UUID                    `json:"memory_id"`
	Inferred       []domain.CausalEdge          `json:"inferred"`
	Contradictions []domain.ContradictionResult `json:"contradictions"`
	Propagations   []*propagation.Plan          `json:"propagations"`
	Errors         []string                     `json:"errors,omitempty"`
}

// ProcessMemory runs the contradiction pass and inference for a newly
// stored memory, then applies the strongest contradiction per existing
// memory. Contradicted memories are not offered to inference, so the
// conflict edge is never blocked by a causal edge between the same pair.
// A failed propagation is reported and does not stop the others.
func (e *CausalEngine) ProcessMemory(ctx context.Context, id uuid.UUID) (*ProcessResult, error) {
	m, err := e.memory(ctx, id)
	if err != nil {
		return nil, err
	}
	result := &ProcessResult{
		MemoryID:       id,
		Contradictions: []domain.ContradictionResult{},
		Propagations:   []*propagation.Plan{},
	}

	found, err := e.DetectContradictions(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("detect contradictions: %w", err)
	}
	result.Contradictions = contradiction.BestPerMemory(found)
	contradicted := make(map[uuid.UUID]bool, len(result.Contradictions))
	for _, r := range result.Contradictions {
		contradicted[r.ExistingMemoryID] = true
	}

	result.Inferred, err = e.inferAndConnect(ctx, m, contradicted)
	if err != nil {
		return nil, fmt.Errorf("infer edges: %w", err)
	}

	for _, r := range result.Contradictions {
		plan, err := e.ApplyContradiction(ctx, r)
		if err != nil {
			e.logger.Warn("contradiction not applied",
				zap.String("memory_id", r.NewMemoryID.String()),
				zap.String("existing_id", r.ExistingMemoryID.String()),
				zap.Error(err))
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Propagations = append(result.Propagations, plan)
	}
	return result, nil
}

// ApplyContradiction records the conflict edge and propagates the
// confidence deltas it implies in a single critical section.
func (e *CausalEngine) ApplyContradiction(ctx context.Context, r domain.ContradictionResult) (*propagation.Plan, error) {
	if r.NewMemoryID == r.ExistingMemoryID {
		return nil, fmt.Errorf("%w: memory cannot contradict itself", domain.ErrCycleDetected)
	}
	infos := e.nodeInfos(ctx, r.NewMemoryID, r.ExistingMemoryID)

	var plan *propagation.Plan
	if err := e.graphs.Write(ctx, func(g *graph.Graph) error {
		plan = e.propagator.PlanContradiction(g, r, infos[r.NewMemoryID], infos[r.ExistingMemoryID])
		return nil
	}); err != nil {
		return nil, err
	}
	if err := e.commit(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// ApplyConfirmation records that confirming supports confirmed and applies
// the confirmation delta, plus the consensus boost the first time enough
// independent supporters exist.
func (e *CausalEngine) ApplyConfirmation(ctx context.Context, confirmed, confirming uuid.UUID) (*propagation.Plan, error) {
	if confirmed == confirming {
		return nil, fmt.Errorf("%w: memory cannot confirm itself", domain.ErrCycleDetected)
	}
	infos := e.nodeInfos(ctx, confirmed, confirming)

	var plan *propagation.Plan
	if err := e.graphs.Write(ctx, func(g *graph.Graph) error {
		plan = e.propagator.PlanConfirmation(g, confirmed, confirming, infos[confirmed], infos[confirming])
		return nil
	}); err != nil {
		return nil, err
	}
	if err := e.commit(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// commit persists a plan's edge, the removal of any inferred edges it
// displaced, and its adjustments. On failure the graph changes made while
// planning are reverted and storage is put back the way it was.
func (e *CausalEngine) commit(ctx context.Context, plan *propagation.Plan) error {
	edgeStored := false
	if plan.EdgeErr() == nil {
		if err := e.causalStore.AddEdge(ctx, &plan.Edge); err != nil {
			e.rollback(ctx, plan)
			return fmt.Errorf("persist edge: %w", err)
		}
		edgeStored = true
	}

	for i, r := range plan.Replaced {
		if err := e.causalStore.RemoveEdge(ctx, r.Source, r.Target, r.Relation); err != nil && !errors.Is(err, store.ErrNotFound) {
			e.rollback(ctx, plan)
			e.unstore(ctx, plan, edgeStored, plan.Replaced[:i])
			return fmt.Errorf("remove displaced edge: %w", err)
		}
	}

	if len(plan.Adjustments) > 0 {
		current, err := e.memoryStore.GetByIDs(ctx, plan.IDs())
		if err != nil {
			e.logger.Warn("archival check skipped", zap.Error(err))
		} else {
			confidences := make(map[uuid.UUID]float64, len(current))
			for _, m := range current {
				confidences[m.ID] = m.Confidence
			}
			propagation.FlagArchival(plan.Adjustments, confidences, e.propagator.Rules().ArchivalThreshold)
		}

		if err := e.memoryStore.ApplyAdjustments(ctx, plan.Adjustments); err != nil {
			e.rollback(ctx, plan)
			e.unstore(ctx, plan, edgeStored, plan.Replaced)
			return fmt.Errorf("apply confidence adjustments: %w", err)
		}
	}

	for _, a := range plan.Adjustments {
		if a.BelowArchival {
			e.logger.Info("memory fell below archival threshold",
				zap.String("memory_id", a.MemoryID.String()),
				zap.Float64("delta", a.Delta))
		}
	}
	e.flush(ctx, plan.Audit)
	return nil
}

// unstore reverts what commit already wrote: the plan's edge is removed or
// put back to its pre-merge state, and displaced edges are written again.
func (e *CausalEngine) unstore(ctx context.Context, plan *propagation.Plan, edgeStored bool, displaced []domain.CausalEdge) {
	ctx = context.WithoutCancel(ctx)
	if edgeStored {
		if err := e.causalStore.RemoveEdge(ctx, plan.Edge.Source, plan.Edge.Target, plan.Edge.Relation); err != nil {
			e.logger.Error("failed to remove edge after rollback", zap.Error(err))
		}
		if prior, ok := plan.Prior(); ok && !plan.EdgeCreated {
			if err := e.causalStore.AddEdge(ctx, &prior); err != nil {
				e.logger.Error("failed to restore merged edge after rollback", zap.Error(err))
			}
		}
	}
	for i := range displaced {
		if err := e.causalStore.AddEdge(ctx, &displaced[i]); err != nil {
			e.logger.Error("failed to restore displaced edge",
				zap.String("source_id", displaced[i].Source.String()),
				zap.String("target_id", displaced[i].Target.String()),
				zap.Error(err))
		}
	}
}

func (e *CausalEngine) rollback(ctx context.Context, plan *propagation.Plan) {
	if err := e.graphs.Write(context.WithoutCancel(ctx), func(g *graph.Graph) error {
		plan.Undo(g)
		return nil
	}); err != nil {
		e.logger.Error("failed to roll back propagation", zap.Error(err))
	}
}

// OnMemoryDeleted marks the memory's node dangling. Its edges are kept for
// audit but it no longer appears in traversals.
func (e *CausalEngine) OnMemoryDeleted(ctx context.Context, id uuid.UUID) error {
	var marked bool
	if err := e.graphs.Write(ctx, func(g *graph.Graph) error {
		marked = g.MarkDangling(id)
		return nil
	}); err != nil {
		return err
	}
	if marked {
		e.flush(ctx, []domain.AuditEntry{domain.NewNodeAudit(domain.AuditNodeDangling, id, "dangling", "memory deleted")})
	}
	return nil
}

// Prune drops weak and stale inferred edges from the graph and storage.
func (e *CausalEngine) Prune(ctx context.Context) (domain.PruneResult, error) {
	var result domain.PruneResult
	if err := e.graphs.Write(ctx, func(g *graph.Graph) error {
		result = g.Prune(e.cfg.Pruning, time.Now().UTC())
		return nil
	}); err != nil {
		return result, err
	}

	audit := make([]domain.AuditEntry, 0, len(result.Edges))
	for _, edge := range result.Edges {
		if err := e.causalStore.RemoveEdge(ctx, edge.Source, edge.Target, edge.Relation); err != nil && !errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("failed to delete pruned edge",
				zap.String("source_id", edge.Source.String()),
				zap.String("target_id", edge.Target.String()),
				zap.Error(err))
		}
		audit = append(audit, domain.NewEdgeAudit(domain.AuditEdgePruned, edge.Source, edge.Target, edge.Relation,
			"pruned", fmt.Sprintf("strength %.2f, %d evidence", edge.Strength, len(edge.Evidence))))
	}
	e.flush(ctx, audit)
	return result, nil
}

func (e *CausalEngine) Stats(ctx context.Context) (domain.GraphStats, error) {
	var s domain.GraphStats
	err := e.read(ctx, func(g *graph.Graph) error {
		s = g.Stats()
		return nil
	})
	return s, err
}

// Consensus lists memories backed by enough independent supporters.
func (e *CausalEngine) Consensus(ctx context.Context) ([]contradiction.ConsensusGroup, error) {
	var groups []contradiction.ConsensusGroup
	err := e.read(ctx, func(g *graph.Graph) error {
		groups = contradiction.DetectConsensus(g, e.propagator.Rules().ConsensusThreshold)
		return nil
	})
	return groups, err
}

func (e *CausalEngine) Audit(ctx context.Context, action domain.AuditAction, limit int) ([]domain.AuditEntry, error) {
	if e.auditStore == nil {
		return []domain.AuditEntry{}, nil
	}
	return e.auditStore.ListByAction(ctx, action, limit)
}

func (e *CausalEngine) memory(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	m, err := e.memoryStore.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
		}
		return nil, err
	}
	return m, nil
}

// nodeInfos looks up type and summary for nodes about to be created.
// Missing memories fall back to unknown.
func (e *CausalEngine) nodeInfos(ctx context.Context, ids ...uuid.UUID) map[uuid.UUID]graph.NodeInfo {
	infos := make(map[uuid.UUID]graph.NodeInfo, len(ids))
	for _, id := range ids {
		infos[id] = graph.Unknown
	}
	memories, err := e.memoryStore.GetByIDs(ctx, ids)
	if err != nil {
		e.logger.Warn("node details unavailable", zap.Error(err))
		return infos
	}
	for i := range memories {
		infos[memories[i].ID] = graph.InfoOf(&memories[i])
	}
	return infos
}

// candidatesFor returns memories to compare m against, nearest first when
// a finder is configured.
func (e *CausalEngine) candidatesFor(ctx context.Context, m *domain.Memory, types []domain.MemoryType) ([]domain.Memory, error) {
	var (
		out []domain.Memory
		err error
	)
	if e.finder != nil {
		out, err = e.finder.FindCandidates(ctx, m, e.cfg.CandidateLimit)
	} else {
		if types == nil {
			types = domain.AllMemoryTypes
		}
		out, err = e.memoryStore.ListByTypes(ctx, types, e.cfg.CandidateLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if types == nil {
		return out, nil
	}
	allowed := make(map[domain.MemoryType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	filtered := out[:0]
	for _, c := range out {
		if allowed[c.Type] {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func (e *CausalEngine) undoEdges(ctx context.Context, edges []domain.CausalEdge) {
	if len(edges) == 0 {
		return
	}
	if err := e.graphs.Write(context.WithoutCancel(ctx), func(g *graph.Graph) error {
		for _, edge := range edges {
			g.RemoveEdge(edge.Source, edge.Target, edge.Relation)
		}
		return nil
	}); err != nil {
		e.logger.Error("failed to undo unpersisted edges", zap.Error(err))
	}
}

// restoreEdge puts a merged edge back to its captured state after the merge
// failed to persist.
func (e *CausalEngine) restoreEdge(ctx context.Context, prev domain.CausalEdge) {
	if err := e.graphs.Write(context.WithoutCancel(ctx), func(g *graph.Graph) error {
		return g.RestoreEdge(prev)
	}); err != nil {
		e.logger.Error("failed to restore merged edge",
			zap.String("source_id", prev.Source.String()),
			zap.String("target_id", prev.Target.String()),
			zap.Error(err))
	}
}

func (e *CausalEngine) flush(ctx context.Context, entries []domain.AuditEntry) {
	if e.auditStore == nil || len(entries) == 0 {
		return
	}
	if err := e.auditStore.Append(ctx, entries...); err != nil {
		e.logger.Warn("failed to write audit entries", zap.Int("count", len(entries)), zap.Error(err))
	}
}
