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

const memoryColumns = `id, type, content, summary, confidence, tags, linked_patterns, linked_files, linked_functions, supersedes, archived, created_at, updated_at`

type MemoryStore struct {
	db *pgxpool.Pool
}

func NewMemoryStore(db *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) Create(ctx context.Context, m *domain.Memory) error {
	var embedding *pgvector.Vector
	if len(m.Embedding) > 0 {
		v := pgvector.NewVector(m.Embedding)
		embedding = &v
	}
	m.Confidence = domain.ClampConfidence(m.Confidence)

	return s.db.QueryRow(ctx,
		`INSERT INTO memories (type, content, summary, confidence, tags, linked_patterns, linked_files, linked_functions, supersedes, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		string(m.Type), m.Content, m.Summary, m.Confidence,
		nonNil(m.Tags), nonNil(m.LinkedPatterns), nonNil(m.LinkedFiles), nonNil(m.LinkedFunctions),
		m.Supersedes, embedding,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	m, err := scanMemory(s.db.QueryRow(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// GetByIDs returns the memories that exist among ids. Missing ids are skipped.
func (s *MemoryStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Memory, error) {
	if len(ids) == 0 {
		return []domain.Memory{}, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get memories by ids: %w", err)
	}
	return collectMemories(rows)
}

// ListByTypes returns the most recent non-archived memories of the given types.
func (s *MemoryStore) ListByTypes(ctx context.Context, types []domain.MemoryType, limit int) ([]domain.Memory, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE type = ANY($1) AND NOT archived
		 ORDER BY created_at DESC
		 LIMIT $2`,
		names, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list memories by type: %w", err)
	}
	return collectMemories(rows)
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateConfidence applies delta clamped to [0,1], records the event and
// returns the new confidence.
func (s *MemoryStore) UpdateConfidence(ctx context.Context, id uuid.UUID, delta float64, reason string) (float64, error) {
	var confidence float64
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		confidence, err = adjust(ctx, tx, domain.ConfidenceAdjustment{MemoryID: id, Delta: delta, Reason: reason})
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return confidence, nil
}

// ApplyAdjustments applies a whole propagation event in one transaction.
// Memories that no longer exist are skipped.
func (s *MemoryStore) ApplyAdjustments(ctx context.Context, adjustments []domain.ConfidenceAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, a := range adjustments {
			if _, err := adjust(ctx, tx, a); err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("adjust %s: %w", a.MemoryID, err)
			}
		}
		return nil
	})
}

func adjust(ctx context.Context, tx pgx.Tx, a domain.ConfidenceAdjustment) (float64, error) {
	var confidence float64
	err := tx.QueryRow(ctx,
		`UPDATE memories
		 SET confidence = LEAST(1, GREATEST(0, confidence + $2)), updated_at = NOW()
		 WHERE id = $1
		 RETURNING confidence`,
		a.MemoryID, a.Delta,
	).Scan(&confidence)
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO confidence_events (memory_id, delta, new_confidence, depth, reason, below_archival)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.MemoryID, a.Delta, confidence, a.Depth, a.Reason, a.BelowArchival,
	)
	return confidence, err
}

func scanMemory(row pgx.Row) (*domain.Memory, error) {
	var (
		m   domain.Memory
		typ string
	)
	err := row.Scan(&m.ID, &typ, &m.Content, &m.Summary, &m.Confidence,
		&m.Tags, &m.LinkedPatterns, &m.LinkedFiles, &m.LinkedFunctions,
		&m.Supersedes, &m.Archived, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Type = domain.MemoryType(typ)
	return &m, nil
}

func collectMemories(rows pgx.Rows) ([]domain.Memory, error) {
	defer rows.Close()
	memories := []domain.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
