// Package inference decides whether two memories should be linked by a
// causal edge. Six weighted strategies are combined into a composite score
// that becomes the initial edge strength.
package inference

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultThreshold      = 0.3
	DefaultTemporalWindow = 24 * time.Hour
	// DefaultMinSignals keeps temporal proximity alone from linking memories.
	DefaultMinSignals = 2

	derivedFromMinRef = 0.8
	causedMinStrength = 0.6
)

type Config struct {
	// Threshold is the composite score an edge must exceed.
	Threshold      float64
	Workers        int
	TemporalWindow time.Duration
	MinSignals     int
}

func DefaultConfig() Config {
	return Config{
		Threshold:      DefaultThreshold,
		Workers:        runtime.NumCPU(),
		TemporalWindow: DefaultTemporalWindow,
		MinSignals:     DefaultMinSignals,
	}
}

// Signal is one strategy's contribution to a composite score.
type Signal struct {
	Strategy string  `json:"strategy"`
	Weight   float64 `json:"weight"`
	Score    float64 `json:"score"`
}

// Candidate is a proposed edge. Source is always the older memory.
type Candidate struct {
	Source   *domain.Memory  `json:"-"`
	Target   *domain.Memory  `json:"-"`
	Relation domain.Relation `json:"relation"`
	Strength float64         `json:"strength"`
	Signals  []Signal        `json:"signals"`
}

// Edge converts the candidate into an inferred edge with one evidence entry per signal.
func (c *Candidate) Edge(now time.Time) domain.CausalEdge {
	evidence := make([]domain.Evidence, 0, len(c.Signals))
	for _, s := range c.Signals {
		evidence = append(evidence, domain.Evidence{
			Description: fmt.Sprintf("%s=%.2f", s.Strategy, s.Score),
			Source:      "inference",
			Timestamp:   now,
		})
	}
	return domain.CausalEdge{
		Source:    c.Source.ID,
		Target:    c.Target.ID,
		Relation:  c.Relation,
		Strength:  c.Strength,
		Evidence:  evidence,
		Inferred:  true,
		CreatedAt: now,
	}
}

func (c *Candidate) signal(name string) (Signal, bool) {
	for _, s := range c.Signals {
		if s.Strategy == name {
			return s, true
		}
	}
	return Signal{}, false
}

type Engine struct {
	strategies []Strategy
	cfg        Config
	logger     *zap.Logger
}

func NewEngine(sim domain.SimilarityProvider, signals domain.SignalProvider, cfg Config, logger *zap.Logger) *Engine {
	if cfg.TemporalWindow <= 0 {
		cfg.TemporalWindow = DefaultTemporalWindow
	}
	return NewEngineWithStrategies(DefaultStrategies(sim, signals, cfg.TemporalWindow), cfg, logger)
}

// NewEngineWithStrategies builds an engine over a custom registry.
func NewEngineWithStrategies(strategies []Strategy, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MinSignals <= 0 {
		cfg.MinSignals = 1
	}
	return &Engine{strategies: strategies, cfg: cfg, logger: logger}
}

func (e *Engine) Threshold() float64 {
	return e.cfg.Threshold
}

// Score computes the composite for a pair without applying the threshold.
// The composite is the weighted arithmetic mean over strategies that
// produced a signal; absent signals do not count against the pair.
func (e *Engine) Score(ctx context.Context, a, b *domain.Memory) (Candidate, error) {
	src, tgt := orient(a, b)
	c := Candidate{Source: src, Target: tgt}

	var weighted, totalWeight float64
	for _, s := range e.strategies {
		score, ok, err := s.Score(ctx, src, tgt)
		if err != nil {
			return Candidate{}, fmt.Errorf("%s: %w", s.Name(), err)
		}
		if !ok {
			continue
		}
		c.Signals = append(c.Signals, Signal{Strategy: s.Name(), Weight: s.Weight(), Score: score})
		weighted += s.Weight() * score
		totalWeight += s.Weight()
	}
	if totalWeight > 0 {
		c.Strength = domain.ClampStrength(weighted / totalWeight)
	}
	c.Relation = suggestRelation(&c)
	return c, nil
}

// Infer scores a pair and reports whether it clears the creation threshold.
func (e *Engine) Infer(ctx context.Context, a, b *domain.Memory) (Candidate, bool, error) {
	if a.ID == b.ID {
		return Candidate{}, false, nil
	}
	c, err := e.Score(ctx, a, b)
	if err != nil {
		return Candidate{}, false, err
	}
	return c, e.accept(&c), nil
}

func (e *Engine) accept(c *Candidate) bool {
	return len(c.Signals) >= e.cfg.MinSignals && c.Strength > e.cfg.Threshold
}

// InferBatch scores subject against every candidate concurrently and returns
// the accepted ones, strongest first. A candidate whose signals fail to load
// is skipped; only cancellation aborts the batch.
func (e *Engine) InferBatch(ctx context.Context, subject *domain.Memory, candidates []domain.Memory) ([]Candidate, error) {
	results := make([]*Candidate, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range candidates {
		other := &candidates[i]
		if other.ID == subject.ID || other.Archived {
			continue
		}
		g.Go(func() error {
			c, ok, err := e.Infer(gctx, subject, other)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				e.logger.Warn("inference skipped candidate",
					zap.String("memory_id", subject.ID.String()),
					zap.String("candidate_id", other.ID.String()),
					zap.Error(err))
				return nil
			}
			if ok {
				results[i] = &c
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	accepted := make([]Candidate, 0, len(results))
	for _, c := range results {
		if c != nil {
			accepted = append(accepted, *c)
		}
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].Strength != accepted[j].Strength {
			return accepted[i].Strength > accepted[j].Strength
		}
		return lessID(peer(&accepted[i], subject.ID), peer(&accepted[j], subject.ID))
	})
	return accepted, nil
}

func peer(c *Candidate, subject uuid.UUID) uuid.UUID {
	if c.Source.ID == subject {
		return c.Target.ID
	}
	return c.Source.ID
}

// orient returns the pair ordered older → newer, ties broken by ID.
func orient(a, b *domain.Memory) (*domain.Memory, *domain.Memory) {
	switch {
	case a.CreatedAt.Before(b.CreatedAt):
		return a, b
	case b.CreatedAt.Before(a.CreatedAt):
		return b, a
	case lessID(b.ID, a.ID):
		return b, a
	}
	return a, b
}

func lessID(a, b uuid.UUID) bool {
	return a.String() < b.String()
}

// suggestRelation picks a relation from the dominant signal.
func suggestRelation(c *Candidate) domain.Relation {
	if s, ok := c.signal(StrategyExplicitRef); ok && s.Score >= derivedFromMinRef {
		return domain.RelationDerivedFrom
	}

	var dominant Signal
	for _, s := range c.Signals {
		if s.Weight*s.Score > dominant.Weight*dominant.Score {
			dominant = s
		}
	}
	switch dominant.Strategy {
	case StrategyPattern, StrategyEntity:
		if c.Source.Type == c.Target.Type {
			return domain.RelationSupports
		}
	case StrategyTemporal:
		return domain.RelationTriggeredBy
	}
	if c.Strength >= causedMinStrength {
		return domain.RelationCaused
	}
	return domain.RelationEnabled
}
