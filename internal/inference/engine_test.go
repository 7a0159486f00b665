package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStrategy struct {
	name   string
	weight float64
	score  float64
	ok     bool
	err    error
}

func (f fakeStrategy) Name() string    { return f.name }
func (f fakeStrategy) Weight() float64 { return f.weight }
func (f fakeStrategy) Score(context.Context, *domain.Memory, *domain.Memory) (float64, bool, error) {
	return f.score, f.ok, f.err
}

type mapSimilarity map[[2]uuid.UUID]float64

func (m mapSimilarity) Similarity(_ context.Context, a, b uuid.UUID) (float64, bool, error) {
	if s, ok := m[[2]uuid.UUID{a, b}]; ok {
		return s, true, nil
	}
	if s, ok := m[[2]uuid.UUID{b, a}]; ok {
		return s, true, nil
	}
	return 0, false, nil
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mem(typ domain.MemoryType, content string, age time.Duration) *domain.Memory {
	return &domain.Memory{
		ID:         uuid.New(),
		Type:       typ,
		Content:    content,
		Confidence: 0.8,
		CreatedAt:  base.Add(-age),
	}
}

func engineWith(cfg Config, strategies ...Strategy) *Engine {
	return NewEngineWithStrategies(strategies, cfg, zap.NewNop())
}

func TestScore_RenormalizesOverAvailableSignals(t *testing.T) {
	e := engineWith(Config{Threshold: DefaultThreshold, MinSignals: 1},
		fakeStrategy{name: StrategySemantic, weight: WeightSemantic, score: 0.8, ok: true},
		fakeStrategy{name: StrategyEntity, weight: WeightEntity, score: 0.4, ok: true},
		fakeStrategy{name: StrategyPattern, weight: WeightPattern, ok: false},
		fakeStrategy{name: StrategyFileCoOccurs, weight: WeightFileCoOccurs, ok: false},
	)
	c, err := e.Score(context.Background(), mem(domain.MemoryTypeFact, "a", time.Hour), mem(domain.MemoryTypeFact, "b", 0))
	require.NoError(t, err)

	want := (0.3*0.8 + 0.25*0.4) / (0.3 + 0.25)
	assert.InDelta(t, want, c.Strength, 1e-9)
	assert.Len(t, c.Signals, 2)
}

func TestInfer_ThresholdIsExclusive(t *testing.T) {
	e := engineWith(Config{Threshold: 0.3, MinSignals: 1},
		fakeStrategy{name: StrategySemantic, weight: WeightSemantic, score: 0.3, ok: true},
	)
	_, ok, err := e.Infer(context.Background(), mem(domain.MemoryTypeFact, "a", time.Hour), mem(domain.MemoryTypeFact, "b", 0))
	require.NoError(t, err)
	assert.False(t, ok, "score equal to threshold must not create an edge")
}

func TestInfer_RequiresMinSignals(t *testing.T) {
	e := engineWith(Config{Threshold: 0.3, MinSignals: 2},
		fakeStrategy{name: StrategyTemporal, weight: WeightTemporal, score: 0.99, ok: true},
	)
	_, ok, err := e.Infer(context.Background(), mem(domain.MemoryTypeFact, "a", time.Minute), mem(domain.MemoryTypeFact, "b", 0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInfer_DirectionOlderToNewer(t *testing.T) {
	e := engineWith(Config{Threshold: 0.3, MinSignals: 1},
		fakeStrategy{name: StrategySemantic, weight: WeightSemantic, score: 0.9, ok: true},
	)
	older := mem(domain.MemoryTypeDecision, "older", 48*time.Hour)
	newer := mem(domain.MemoryTypeDecision, "newer", 0)

	c, ok, err := e.Infer(context.Background(), newer, older)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, older.ID, c.Source.ID)
	assert.Equal(t, newer.ID, c.Target.ID)

	edge := c.Edge(base)
	assert.True(t, edge.Inferred)
	assert.Equal(t, c.Strength, edge.Strength)
	assert.Equal(t, []string{"semantic_similarity=0.90"}, edge.EvidenceDescriptions())
}

func TestSuggestRelation(t *testing.T) {
	fact := domain.MemoryTypeFact
	tests := []struct {
		name     string
		srcType  domain.MemoryType
		signals  []Signal
		strength float64
		want     domain.Relation
	}{
		{"explicit reference", fact, []Signal{{StrategyExplicitRef, WeightExplicitRef, 1.0}}, 0.9, domain.RelationDerivedFrom},
		{"entity same type", fact, []Signal{{StrategyEntity, WeightEntity, 0.9}, {StrategySemantic, WeightSemantic, 0.2}}, 0.5, domain.RelationSupports},
		{"entity different type", domain.MemoryTypeDecision, []Signal{{StrategyEntity, WeightEntity, 0.9}}, 0.9, domain.RelationCaused},
		{"temporal dominant", fact, []Signal{{StrategyTemporal, WeightTemporal, 1.0}, {StrategySemantic, WeightSemantic, 0.3}}, 0.58, domain.RelationTriggeredBy},
		{"strong semantic", fact, []Signal{{StrategySemantic, WeightSemantic, 0.7}}, 0.7, domain.RelationCaused},
		{"weak semantic", fact, []Signal{{StrategySemantic, WeightSemantic, 0.4}}, 0.4, domain.RelationEnabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Candidate{
				Source:   &domain.Memory{Type: tt.srcType},
				Target:   &domain.Memory{Type: fact},
				Signals:  tt.signals,
				Strength: tt.strength,
			}
			assert.Equal(t, tt.want, suggestRelation(&c))
		})
	}
}

func TestInferBatch_SortsAndSkipsFailures(t *testing.T) {
	subject := mem(domain.MemoryTypeDecision, "subject", 0)
	strong := *mem(domain.MemoryTypeDecision, "strong", time.Hour)
	weak := *mem(domain.MemoryTypeDecision, "weak", 2*time.Hour)
	none := *mem(domain.MemoryTypeDecision, "none", 3*time.Hour)
	archived := *mem(domain.MemoryTypeDecision, "archived", time.Hour)
	archived.Archived = true

	sim := mapSimilarity{
		{subject.ID, strong.ID}:   0.9,
		{subject.ID, weak.ID}:     0.5,
		{subject.ID, archived.ID}: 0.95,
	}
	e := engineWith(Config{Threshold: 0.3, MinSignals: 1, Workers: 2}, semanticSimilarity{provider: sim})

	got, err := e.InferBatch(context.Background(), subject, []domain.Memory{weak, *subject, none, strong, archived})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, strong.ID, got[0].Source.ID)
	assert.Equal(t, weak.ID, got[1].Source.ID)
	assert.GreaterOrEqual(t, got[0].Strength, got[1].Strength)
}

func TestInferBatch_StrategyErrorSkipsCandidate(t *testing.T) {
	e := engineWith(Config{Threshold: 0.3, MinSignals: 1},
		fakeStrategy{name: StrategyPattern, weight: WeightPattern, err: errors.New("detector offline")},
	)
	got, err := e.InferBatch(context.Background(), mem(domain.MemoryTypeFact, "s", 0),
		[]domain.Memory{*mem(domain.MemoryTypeFact, "o", time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInferBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := engineWith(Config{Threshold: 0.3, MinSignals: 1},
		fakeStrategy{name: StrategySemantic, weight: WeightSemantic, err: context.Canceled},
	)
	_, err := e.InferBatch(ctx, mem(domain.MemoryTypeFact, "s", 0),
		[]domain.Memory{*mem(domain.MemoryTypeFact, "o", time.Hour)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEntityOverlap(t *testing.T) {
	a := mem(domain.MemoryTypeFact, "a", 0)
	b := mem(domain.MemoryTypeFact, "b", 0)
	a.LinkedFiles = []string{"db/pool.go", "db/tx.go"}
	b.LinkedFiles = []string{"db/pool.go"}
	b.LinkedPatterns = []string{"retry"}

	score, ok, err := entityOverlap{}.Score(context.Background(), a, b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1.0/3.0, score, 1e-9)

	b.LinkedFiles, b.LinkedPatterns = nil, nil
	_, ok, _ = entityOverlap{}.Score(context.Background(), a, b)
	assert.False(t, ok)
}

func TestExplicitReference(t *testing.T) {
	older := mem(domain.MemoryTypeDecision, "Adopt pgx for postgres access", time.Hour)
	older.Summary = "Adopt pgx for postgres access"
	byID := mem(domain.MemoryTypeInsight, "Follow-up to "+older.ID.String(), 0)
	bySummary := mem(domain.MemoryTypeInsight, "Because we decided to adopt pgx for postgres access, pooling changed", 0)
	unrelated := mem(domain.MemoryTypeInsight, "Tabs over spaces", 0)

	s := explicitReference{}
	score, ok, _ := s.Score(context.Background(), older, byID)
	assert.True(t, ok)
	assert.Equal(t, refByID, score)

	score, ok, _ = s.Score(context.Background(), bySummary, older)
	assert.True(t, ok)
	assert.Equal(t, refBySummary, score)

	_, ok, _ = s.Score(context.Background(), older, unrelated)
	assert.False(t, ok)
}

func TestTemporalProximity(t *testing.T) {
	s := temporalProximity{window: time.Hour}
	a := mem(domain.MemoryTypeFact, "a", 0)
	b := mem(domain.MemoryTypeFact, "b", 0)

	score, ok, _ := s.Score(context.Background(), a, b)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, score, 1e-9)

	b.CreatedAt = a.CreatedAt.Add(-10 * time.Hour)
	score, _, _ = s.Score(context.Background(), a, b)
	assert.Less(t, score, 0.001)

	b.CreatedAt = time.Time{}
	_, ok, _ = s.Score(context.Background(), a, b)
	assert.False(t, ok)
}

func TestNewEngine_DefaultRegistry(t *testing.T) {
	e := NewEngine(nil, nil, DefaultConfig(), zap.NewNop())
	names := make([]string, 0, len(e.strategies))
	var total float64
	for _, s := range e.strategies {
		names = append(names, s.Name())
		total += s.Weight()
	}
	assert.Equal(t, []string{
		StrategyTemporal, StrategySemantic, StrategyEntity,
		StrategyExplicitRef, StrategyPattern, StrategyFileCoOccurs,
	}, names)
	assert.InDelta(t, 1.4, total, 1e-9)
}
