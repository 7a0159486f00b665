package contradiction

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
)

const (
	StrategyNegation     = "semantic_negation"
	StrategyAbsolute     = "absolute_statement"
	StrategySupersession = "temporal_supersession"
	StrategyFeedback     = "feedback_contradiction"
	StrategyCrossPattern = "cross_pattern"
)

const (
	// directSimilarityFloor separates direct from partial negation conflicts.
	directSimilarityFloor = 0.8
	// supersessionFloor is the similarity at which a newer memory replaces an older one.
	supersessionFloor = 0.85
)

// Pair is one new/existing comparison with its precomputed similarity.
type Pair struct {
	New        *domain.Memory
	Existing   *domain.Memory
	Similarity float64
}

// Strategy flags a contradiction for a pair. Implementations fill Type,
// Confidence, Evidence and SimilarityScore; the detector fills the rest.
type Strategy interface {
	Name() string
	Detect(p *Pair) (domain.ContradictionResult, bool)
}

// DefaultStrategies is the fixed registry, in evaluation order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		negationStrategy{},
		absoluteStrategy{},
		supersessionStrategy{},
		feedbackStrategy{},
		crossPatternStrategy{},
	}
}

type negationStrategy struct{}

func (negationStrategy) Name() string { return StrategyNegation }

// Detect fires when two similar memories disagree on negation.
func (negationStrategy) Detect(p *Pair) (domain.ContradictionResult, bool) {
	newNeg, oldNeg := hasNegation(p.New.Content), hasNegation(p.Existing.Content)
	if newNeg == oldNeg {
		return domain.ContradictionResult{}, false
	}
	negated := p.New
	side := "new"
	if oldNeg {
		negated, side = p.Existing, "existing"
	}
	typ := domain.ContradictionPartial
	if p.Similarity >= directSimilarityFloor {
		typ = domain.ContradictionDirect
	}
	return domain.ContradictionResult{
		Type:       typ,
		Confidence: round(p.Similarity * 0.9),
		Evidence: []string{
			fmt.Sprintf("negation %q only in %s memory", firstIn(negated.Content, negations), side),
			fmt.Sprintf("topic similarity %.2f", p.Similarity),
		},
		SimilarityScore: p.Similarity,
	}, true
}

type absoluteStrategy struct{}

func (absoluteStrategy) Name() string { return StrategyAbsolute }

// Detect fires on "always" against "never" about the same topic.
func (absoluteStrategy) Detect(p *Pair) (domain.ContradictionResult, bool) {
	newPos, newNeg := firstIn(p.New.Content, absolutePositive), firstIn(p.New.Content, absoluteNegative)
	oldPos, oldNeg := firstIn(p.Existing.Content, absolutePositive), firstIn(p.Existing.Content, absoluteNegative)

	var a, b string
	switch {
	case newPos != "" && newNeg == "" && oldNeg != "":
		a, b = newPos, oldNeg
	case newNeg != "" && oldPos != "" && oldNeg == "":
		a, b = newNeg, oldPos
	default:
		return domain.ContradictionResult{}, false
	}
	return domain.ContradictionResult{
		Type:       domain.ContradictionDirect,
		Confidence: round(math.Min(0.95, 0.6+0.35*p.Similarity)),
		Evidence: []string{
			fmt.Sprintf("absolute statements conflict: %q vs %q", a, b),
			fmt.Sprintf("topic similarity %.2f", p.Similarity),
		},
		SimilarityScore: p.Similarity,
	}, true
}

type supersessionStrategy struct{}

func (supersessionStrategy) Name() string { return StrategySupersession }

// Detect fires when the new memory explicitly replaces the existing one, or
// is a newer memory of the same type on the same topic.
func (supersessionStrategy) Detect(p *Pair) (domain.ContradictionResult, bool) {
	if p.New.Supersedes != nil && *p.New.Supersedes == p.Existing.ID {
		return domain.ContradictionResult{
			Type:            domain.ContradictionSupersedes,
			Confidence:      0.95,
			Evidence:        []string{"new memory explicitly supersedes existing memory"},
			SimilarityScore: 1,
		}, true
	}
	if p.New.Type != p.Existing.Type || !p.New.CreatedAt.After(p.Existing.CreatedAt) ||
		sameText(p.New.Content, p.Existing.Content) {
		return domain.ContradictionResult{}, false
	}
	gap := p.New.CreatedAt.Sub(p.Existing.CreatedAt).Round(time.Second)
	if p.Similarity >= supersessionFloor {
		return domain.ContradictionResult{
			Type:       domain.ContradictionSupersedes,
			Confidence: round(p.Similarity * 0.8),
			Evidence: []string{
				fmt.Sprintf("newer %s memory on the same topic (%s later)", p.New.Type, gap),
				fmt.Sprintf("topic similarity %.2f", p.Similarity),
			},
			SimilarityScore: p.Similarity,
		}, true
	}
	return domain.ContradictionResult{
		Type:       domain.ContradictionTemporal,
		Confidence: round(p.Similarity * 0.7),
		Evidence: []string{
			fmt.Sprintf("newer %s memory overlaps an older one (%s later)", p.New.Type, gap),
			fmt.Sprintf("topic similarity %.2f", p.Similarity),
		},
		SimilarityScore: p.Similarity,
	}, true
}

type feedbackStrategy struct{}

func (feedbackStrategy) Name() string { return StrategyFeedback }

// Detect fires for negative feedback about an existing memory's topic, or
// for two feedback memories with opposing sentiment.
func (feedbackStrategy) Detect(p *Pair) (domain.ContradictionResult, bool) {
	if p.New.Type != domain.MemoryTypeFeedback {
		return domain.ContradictionResult{}, false
	}
	newSent := sentiment(p.New.Content)
	if p.Existing.Type == domain.MemoryTypeFeedback {
		oldSent := sentiment(p.Existing.Content)
		if newSent == 0 || oldSent == 0 || newSent == oldSent {
			return domain.ContradictionResult{}, false
		}
		return domain.ContradictionResult{
			Type:       domain.ContradictionPartial,
			Confidence: round(0.55 + 0.3*p.Similarity),
			Evidence: []string{
				"feedback memories disagree",
				fmt.Sprintf("topic similarity %.2f", p.Similarity),
			},
			SimilarityScore: p.Similarity,
		}, true
	}
	if newSent >= 0 {
		return domain.ContradictionResult{}, false
	}
	return domain.ContradictionResult{
		Type:       domain.ContradictionPartial,
		Confidence: round(0.5 + 0.3*p.Similarity),
		Evidence: []string{
			fmt.Sprintf("negative feedback on %s memory", p.Existing.Type),
			fmt.Sprintf("topic similarity %.2f", p.Similarity),
		},
		SimilarityScore: p.Similarity,
	}, true
}

type crossPatternStrategy struct{}

func (crossPatternStrategy) Name() string { return StrategyCrossPattern }

// Detect fires when memories linked to the same pattern take opposing positions.
func (crossPatternStrategy) Detect(p *Pair) (domain.ContradictionResult, bool) {
	shared := sharedStrings(p.New.LinkedPatterns, p.Existing.LinkedPatterns)
	if len(shared) == 0 {
		return domain.ContradictionResult{}, false
	}
	newSent, oldSent := sentiment(p.New.Content), sentiment(p.Existing.Content)
	opposed := newSent != 0 && oldSent != 0 && newSent != oldSent
	if !opposed && hasNegation(p.New.Content) == hasNegation(p.Existing.Content) {
		return domain.ContradictionResult{}, false
	}
	sim := math.Max(p.Similarity, jaccard(p.New.LinkedPatterns, p.Existing.LinkedPatterns))
	return domain.ContradictionResult{
		Type:       domain.ContradictionPartial,
		Confidence: round(math.Min(0.9, 0.55+0.1*float64(len(shared)))),
		Evidence: []string{
			fmt.Sprintf("opposing content on shared pattern(s): %s", strings.Join(shared, ", ")),
		},
		SimilarityScore: sim,
	}, true
}

// round keeps scores stable across runs and platforms for ranking.
func round(x float64) float64 {
	return math.Round(x*1e6) / 1e6
}
