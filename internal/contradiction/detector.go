// Package contradiction flags conflicting memory pairs with a fixed set of
// independent strategies.
package contradiction

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMinContradictionConfidence = 0.5
	DefaultMinSimilarityThreshold     = 0.6
	DefaultMaxCandidates              = 50
)

type Config struct {
	// CheckedTypes are the memory types whose new memories are scanned.
	CheckedTypes               []domain.MemoryType
	MinContradictionConfidence float64
	MinSimilarityThreshold     float64
	MaxCandidates              int
}

// DefaultCheckedTypes is every memory type except episodic.
func DefaultCheckedTypes() []domain.MemoryType {
	out := make([]domain.MemoryType, 0, len(domain.AllMemoryTypes))
	for _, t := range domain.AllMemoryTypes {
		if t != domain.MemoryTypeEpisodic {
			out = append(out, t)
		}
	}
	return out
}

func DefaultConfig() Config {
	return Config{
		CheckedTypes:               DefaultCheckedTypes(),
		MinContradictionConfidence: DefaultMinContradictionConfidence,
		MinSimilarityThreshold:     DefaultMinSimilarityThreshold,
		MaxCandidates:              DefaultMaxCandidates,
	}
}

type Detector struct {
	cfg        Config
	checked    map[domain.MemoryType]bool
	strategies []Strategy
	similarity domain.SimilarityProvider
	logger     *zap.Logger
}

func NewDetector(sim domain.SimilarityProvider, cfg Config, logger *zap.Logger) *Detector {
	return NewDetectorWithStrategies(DefaultStrategies(), sim, cfg, logger)
}

func NewDetectorWithStrategies(strategies []Strategy, sim domain.SimilarityProvider, cfg Config, logger *zap.Logger) *Detector {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.CheckedTypes == nil {
		cfg.CheckedTypes = DefaultCheckedTypes()
	}
	checked := make(map[domain.MemoryType]bool, len(cfg.CheckedTypes))
	for _, t := range cfg.CheckedTypes {
		checked[t] = true
	}
	return &Detector{
		cfg:        cfg,
		checked:    checked,
		strategies: strategies,
		similarity: sim,
		logger:     logger,
	}
}

// Checks reports whether new memories of type t are scanned.
func (d *Detector) Checks(t domain.MemoryType) bool {
	return d.checked[t]
}

// Detect compares newMem against existing memories and returns every result
// that clears the confidence and similarity floors, strongest first, capped
// at MaxCandidates. The output is deterministic for unchanged input.
func (d *Detector) Detect(ctx context.Context, newMem *domain.Memory, existing []domain.Memory) ([]domain.ContradictionResult, error) {
	results := []domain.ContradictionResult{}
	if !d.Checks(newMem.Type) {
		return results, nil
	}

	for i := range existing {
		old := &existing[i]
		if old.ID == newMem.ID || old.Archived {
			continue
		}
		sim, err := d.pairSimilarity(ctx, newMem, old)
		if err != nil {
			return nil, fmt.Errorf("similarity %s/%s: %w", newMem.ID, old.ID, err)
		}
		pair := Pair{New: newMem, Existing: old, Similarity: sim}

		for _, s := range d.strategies {
			r, ok := s.Detect(&pair)
			if !ok {
				continue
			}
			if r.Confidence < d.cfg.MinContradictionConfidence || r.SimilarityScore < d.cfg.MinSimilarityThreshold {
				continue
			}
			r.NewMemoryID = newMem.ID
			r.ExistingMemoryID = old.ID
			r.Strategy = s.Name()
			r.SuggestedAction = suggestAction(r.Type, old)
			results = append(results, r)
		}
	}

	rank(results)
	if len(results) > d.cfg.MaxCandidates {
		results = results[:d.cfg.MaxCandidates]
	}
	d.logger.Debug("contradiction scan complete",
		zap.String("memory_id", newMem.ID.String()),
		zap.Int("compared", len(existing)),
		zap.Int("results", len(results)))
	return results, nil
}

// pairSimilarity is the max of embedding similarity, tag Jaccard and topic
// token overlap.
func (d *Detector) pairSimilarity(ctx context.Context, a, b *domain.Memory) (float64, error) {
	best := math.Max(jaccard(a.Tags, b.Tags), overlapCoefficient(topicTokens(a.Content), topicTokens(b.Content)))
	if d.similarity != nil {
		s, ok, err := d.similarity.Similarity(ctx, a.ID, b.ID)
		if err != nil {
			return 0, err
		}
		if ok {
			best = math.Max(best, s)
		}
	}
	return round(domain.ClampStrength(best)), nil
}

func suggestAction(t domain.ContradictionType, existing *domain.Memory) domain.SuggestedAction {
	switch t {
	case domain.ContradictionSupersedes:
		return domain.ActionArchive
	case domain.ContradictionTemporal:
		return domain.ActionMerge
	case domain.ContradictionDirect:
		if existing.Confidence+domain.DeltaDirect < domain.ArchivalThreshold {
			return domain.ActionArchive
		}
		return domain.ActionLowerConfidence
	}
	return domain.ActionFlagForReview
}

// rank orders by confidence, then similarity, then IDs and strategy name.
func rank(results []domain.ContradictionResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.SimilarityScore != b.SimilarityScore {
			return a.SimilarityScore > b.SimilarityScore
		}
		if a.ExistingMemoryID != b.ExistingMemoryID {
			return a.ExistingMemoryID.String() < b.ExistingMemoryID.String()
		}
		return a.Strategy < b.Strategy
	})
}

// BestPerMemory keeps the strongest result for each existing memory,
// preserving rank order.
func BestPerMemory(results []domain.ContradictionResult) []domain.ContradictionResult {
	seen := make(map[uuid.UUID]bool, len(results))
	out := make([]domain.ContradictionResult, 0, len(results))
	for _, r := range results {
		if seen[r.ExistingMemoryID] {
			continue
		}
		seen[r.ExistingMemoryID] = true
		out = append(out, r)
	}
	return out
}
