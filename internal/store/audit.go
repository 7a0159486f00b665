package store

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditStore is the append-only log of graph decisions.
type AuditStore struct {
	db *pgxpool.Pool
}

func NewAuditStore(db *pgxpool.Pool) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Append(ctx context.Context, entries ...domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		var relation *string
		if e.Relation != "" {
			r := string(e.Relation)
			relation = &r
		}
		batch.Queue(
			`INSERT INTO causal_audit (id, ts, action, node_id, source_id, target_id, relation, decision, rationale)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ID, e.Timestamp, string(e.Action), e.NodeID, e.Source, e.Target, relation, e.Decision, e.Rationale,
		)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append audit entries: %w", err)
	}
	return nil
}

// ListByAction returns entries for one action, newest first. A limit of
// zero or less returns every entry.
func (s *AuditStore) ListByAction(ctx context.Context, action domain.AuditAction, limit int) ([]domain.AuditEntry, error) {
	query := `SELECT id, ts, action, node_id, source_id, target_id, COALESCE(relation, ''), decision, rationale
		 FROM causal_audit
		 WHERE action = $1
		 ORDER BY ts DESC`
	args := []any{string(action)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var (
			e        domain.AuditEntry
			act, rel string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &act, &e.NodeID, &e.Source, &e.Target, &rel, &e.Decision, &e.Rationale); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Action = domain.AuditAction(act)
		e.Relation = domain.Relation(rel)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
