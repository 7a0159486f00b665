package inference

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
)

const (
	StrategyTemporal     = "temporal_proximity"
	StrategySemantic     = "semantic_similarity"
	StrategyEntity       = "entity_overlap"
	StrategyExplicitRef  = "explicit_reference"
	StrategyPattern      = "pattern_matching"
	StrategyFileCoOccurs = "file_co_occurrence"
)

const (
	WeightTemporal     = 0.2
	WeightSemantic     = 0.3
	WeightEntity       = 0.25
	WeightExplicitRef  = 0.4
	WeightPattern      = 0.15
	WeightFileCoOccurs = 0.1
)

// Strategy scores one candidate pair. ok=false means the strategy has no
// signal for the pair and is left out of the composite.
type Strategy interface {
	Name() string
	Weight() float64
	Score(ctx context.Context, a, b *domain.Memory) (score float64, ok bool, err error)
}

// DefaultStrategies returns the fixed registry in evaluation order.
func DefaultStrategies(sim domain.SimilarityProvider, signals domain.SignalProvider, window time.Duration) []Strategy {
	return []Strategy{
		temporalProximity{window: window},
		semanticSimilarity{provider: sim},
		entityOverlap{},
		explicitReference{},
		patternMatching{provider: signals},
		fileCoOccurrence{provider: signals},
	}
}

type temporalProximity struct {
	window time.Duration
}

func (temporalProximity) Name() string    { return StrategyTemporal }
func (temporalProximity) Weight() float64 { return WeightTemporal }

// Score decays exponentially with the gap between creation times.
// A gap equal to the window scores ~0.37.
func (s temporalProximity) Score(_ context.Context, a, b *domain.Memory) (float64, bool, error) {
	if a.CreatedAt.IsZero() || b.CreatedAt.IsZero() || s.window <= 0 {
		return 0, false, nil
	}
	gap := a.CreatedAt.Sub(b.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	return math.Exp(-float64(gap) / float64(s.window)), true, nil
}

type semanticSimilarity struct {
	provider domain.SimilarityProvider
}

func (semanticSimilarity) Name() string    { return StrategySemantic }
func (semanticSimilarity) Weight() float64 { return WeightSemantic }

func (s semanticSimilarity) Score(ctx context.Context, a, b *domain.Memory) (float64, bool, error) {
	if s.provider == nil {
		return 0, false, nil
	}
	score, ok, err := s.provider.Similarity(ctx, a.ID, b.ID)
	if err != nil || !ok {
		return 0, false, err
	}
	return domain.ClampStrength(score), true, nil
}

type entityOverlap struct{}

func (entityOverlap) Name() string    { return StrategyEntity }
func (entityOverlap) Weight() float64 { return WeightEntity }

// Score is the Jaccard index of linked files, patterns and functions.
func (entityOverlap) Score(_ context.Context, a, b *domain.Memory) (float64, bool, error) {
	ea, eb := a.Entities(), b.Entities()
	if len(ea) == 0 || len(eb) == 0 {
		return 0, false, nil
	}
	shared := 0
	for k := range ea {
		if _, ok := eb[k]; ok {
			shared++
		}
	}
	union := len(ea) + len(eb) - shared
	return float64(shared) / float64(union), true, nil
}

const (
	refByID         = 1.0
	refBySummary    = 0.8
	minSummaryChars = 12
)

type explicitReference struct{}

func (explicitReference) Name() string    { return StrategyExplicitRef }
func (explicitReference) Weight() float64 { return WeightExplicitRef }

// Score looks for one memory naming the other, by supersession link, ID or summary.
func (explicitReference) Score(_ context.Context, a, b *domain.Memory) (float64, bool, error) {
	best := math.Max(mentions(a, b), mentions(b, a))
	if best == 0 {
		return 0, false, nil
	}
	return best, true, nil
}

// mentions scores how directly from refers to to.
func mentions(from, to *domain.Memory) float64 {
	if from.Supersedes != nil && *from.Supersedes == to.ID {
		return refByID
	}
	content := strings.ToLower(from.Content)
	if strings.Contains(content, strings.ToLower(to.ID.String())) {
		return refByID
	}
	summary := strings.ToLower(strings.TrimSpace(to.Summary))
	if len(summary) >= minSummaryChars && strings.Contains(content, summary) {
		return refBySummary
	}
	return 0
}

type patternMatching struct {
	provider domain.SignalProvider
}

func (patternMatching) Name() string    { return StrategyPattern }
func (patternMatching) Weight() float64 { return WeightPattern }

func (s patternMatching) Score(ctx context.Context, a, b *domain.Memory) (float64, bool, error) {
	if s.provider == nil {
		return 0, false, nil
	}
	score, ok, err := s.provider.PatternMatch(ctx, a, b)
	if err != nil || !ok {
		return 0, false, err
	}
	return domain.ClampStrength(score), true, nil
}

type fileCoOccurrence struct {
	provider domain.SignalProvider
}

func (fileCoOccurrence) Name() string    { return StrategyFileCoOccurs }
func (fileCoOccurrence) Weight() float64 { return WeightFileCoOccurs }

func (s fileCoOccurrence) Score(ctx context.Context, a, b *domain.Memory) (float64, bool, error) {
	if s.provider == nil {
		return 0, false, nil
	}
	score, ok, err := s.provider.FileCoOccurrence(ctx, a, b)
	if err != nil || !ok {
		return 0, false, err
	}
	return domain.ClampStrength(score), true, nil
}
