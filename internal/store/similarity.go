package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// SimilarityStore answers embedding questions with pgvector cosine distance.
type SimilarityStore struct {
	db *pgxpool.Pool
}

func NewSimilarityStore(db *pgxpool.Pool) *SimilarityStore {
	return &SimilarityStore{db: db}
}

// Similarity returns the cosine similarity of two stored embeddings. ok is
// false when either memory is missing or has no embedding.
func (s *SimilarityStore) Similarity(ctx context.Context, a, b uuid.UUID) (float64, bool, error) {
	var score float64
	err := s.db.QueryRow(ctx,
		`SELECT 1 - (x.embedding <=> y.embedding)
		 FROM memories x, memories y
		 WHERE x.id = $1 AND y.id = $2
		   AND x.embedding IS NOT NULL AND y.embedding IS NOT NULL`,
		a, b,
	).Scan(&score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return domain.ClampStrength(score), true, nil
}

// FindCandidates returns the nearest non-archived memories to m. The
// embedding on m is used when present, otherwise the stored one. Memories
// without embeddings fall back to the most recent ones.
func (s *SimilarityStore) FindCandidates(ctx context.Context, m *domain.Memory, limit int) ([]domain.Memory, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(m.Embedding) > 0 {
		rows, err = s.db.Query(ctx,
			`SELECT `+memoryColumns+` FROM memories
			 WHERE id <> $1 AND NOT archived AND embedding IS NOT NULL
			 ORDER BY embedding <=> $2
			 LIMIT $3`,
			m.ID, pgvector.NewVector(m.Embedding), limit,
		)
	} else {
		rows, err = s.db.Query(ctx,
			`SELECT `+memoryColumns+` FROM memories
			 WHERE id <> $1 AND NOT archived
			 ORDER BY embedding <=> (SELECT embedding FROM memories WHERE id = $1) NULLS LAST, created_at DESC
			 LIMIT $2`,
			m.ID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	return collectMemories(rows)
}

// SignalStore derives pattern and file co-occurrence signals from the
// links recorded on memories.
type SignalStore struct {
	db *pgxpool.Pool
}

func NewSignalStore(db *pgxpool.Pool) *SignalStore {
	return &SignalStore{db: db}
}

// PatternMatch is the Jaccard index of the two memories' linked patterns.
func (s *SignalStore) PatternMatch(ctx context.Context, a, b *domain.Memory) (float64, bool, error) {
	if len(a.LinkedPatterns) == 0 || len(b.LinkedPatterns) == 0 {
		return 0, false, nil
	}
	set := make(map[string]bool, len(a.LinkedPatterns))
	for _, p := range a.LinkedPatterns {
		set[p] = true
	}
	shared, union := 0, len(set)
	seen := make(map[string]bool, len(b.LinkedPatterns))
	for _, p := range b.LinkedPatterns {
		if seen[p] {
			continue
		}
		seen[p] = true
		if set[p] {
			shared++
		} else {
			union++
		}
	}
	if shared == 0 {
		return 0, false, nil
	}
	return float64(shared) / float64(union), true, nil
}

// FileCoOccurrence measures how often the files of a and b are touched by
// the same memory: memories linking files from both sides over memories
// linking files from either side.
func (s *SignalStore) FileCoOccurrence(ctx context.Context, a, b *domain.Memory) (float64, bool, error) {
	if len(a.LinkedFiles) == 0 || len(b.LinkedFiles) == 0 {
		return 0, false, nil
	}
	var both, either int
	err := s.db.QueryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE linked_files && $1 AND linked_files && $2),
		   COUNT(*) FILTER (WHERE linked_files && $1 OR linked_files && $2)
		 FROM memories
		 WHERE NOT archived`,
		a.LinkedFiles, b.LinkedFiles,
	).Scan(&both, &either)
	if err != nil {
		return 0, false, err
	}
	if both == 0 || either == 0 {
		return 0, false, nil
	}
	return float64(both) / float64(either), true, nil
}
