package store

import (
	"context"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CausalStore persists causal edges, one row per (source, target, relation).
// Relations are stored as text and validated when the graph is rebuilt.
type CausalStore struct {
	db *pgxpool.Pool
}

func NewCausalStore(db *pgxpool.Pool) *CausalStore {
	return &CausalStore{db: db}
}

// AddEdge inserts an edge or merges it into the existing row: the stronger
// strength wins and evidence is appended.
func (s *CausalStore) AddEdge(ctx context.Context, e *domain.CausalEdge) error {
	evidence := e.Evidence
	if evidence == nil {
		evidence = []domain.Evidence{}
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO causal_edges (source_id, target_id, relation, strength, evidence, inferred, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source_id, target_id, relation) DO UPDATE
		 SET strength = GREATEST(causal_edges.strength, EXCLUDED.strength),
		     evidence = causal_edges.evidence || EXCLUDED.evidence`,
		e.Source, e.Target, string(e.Relation), e.Strength, evidence, e.Inferred, createdAt,
	)
	return err
}

// GetEdges returns every edge touching nodeID in either direction.
func (s *CausalStore) GetEdges(ctx context.Context, nodeID uuid.UUID) ([]domain.CausalEdge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT source_id, target_id, relation, strength, evidence, inferred, created_at
		 FROM causal_edges
		 WHERE source_id = $1 OR target_id = $1
		 ORDER BY created_at, source_id, target_id, relation`,
		nodeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.CausalEdge
	for rows.Next() {
		var (
			e        domain.CausalEdge
			relation string
		)
		if err := rows.Scan(&e.Source, &e.Target, &relation, &e.Strength, &e.Evidence, &e.Inferred, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Relation = domain.Relation(relation)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *CausalStore) RemoveEdge(ctx context.Context, source, target uuid.UUID, relation domain.Relation) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM causal_edges WHERE source_id = $1 AND target_id = $2 AND relation = $3`,
		source, target, string(relation),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *CausalStore) UpdateStrength(ctx context.Context, source, target uuid.UUID, relation domain.Relation, strength float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE causal_edges SET strength = $4
		 WHERE source_id = $1 AND target_id = $2 AND relation = $3`,
		source, target, string(relation), domain.ClampStrength(strength),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *CausalStore) AddEvidence(ctx context.Context, source, target uuid.UUID, relation domain.Relation, ev domain.Evidence) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE causal_edges SET evidence = evidence || $4::jsonb
		 WHERE source_id = $1 AND target_id = $2 AND relation = $3`,
		source, target, string(relation), []domain.Evidence{ev},
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNodeIDs returns every memory that appears on either end of an edge.
func (s *CausalStore) ListNodeIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT source_id FROM causal_edges
		 UNION
		 SELECT target_id FROM causal_edges`,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (s *CausalStore) EdgeCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM causal_edges`).Scan(&n)
	return n, err
}
