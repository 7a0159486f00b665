package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditEdgeAdded             AuditAction = "edge_added"
	AuditEdgeRejected          AuditAction = "edge_rejected"
	AuditEdgeRemoved           AuditAction = "edge_removed"
	AuditEdgePruned            AuditAction = "edge_pruned"
	AuditEdgeInferred          AuditAction = "edge_inferred"
	AuditInferenceSkipped      AuditAction = "inference_skipped"
	AuditContradictionDetected AuditAction = "contradiction_detected"
	AuditConfidenceAdjusted    AuditAction = "confidence_adjusted"
	AuditConsensusBoost        AuditAction = "consensus_boost"
	AuditConfirmation          AuditAction = "confirmation"
	AuditNodeDangling          AuditAction = "node_dangling"
	AuditGraphRebuilt          AuditAction = "graph_rebuilt"
)

// AuditEntry is an append-only record of a graph decision.
type AuditEntry struct {
	ID        uuid.UUID   `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Action    AuditAction `json:"action"`
	NodeID    *uuid.UUID  `json:"node_id,omitempty"`
	Source    *uuid.UUID  `json:"source_id,omitempty"`
	Target    *uuid.UUID  `json:"target_id,omitempty"`
	Relation  Relation    `json:"relation,omitempty"`
	Decision  string      `json:"decision"`
	Rationale string      `json:"rationale"`
}

// NewNodeAudit builds an entry about a single node.
func NewNodeAudit(action AuditAction, node uuid.UUID, decision, rationale string) AuditEntry {
	return AuditEntry{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		NodeID:    &node,
		Decision:  decision,
		Rationale: rationale,
	}
}

// NewEdgeAudit builds an entry about an edge decision.
func NewEdgeAudit(action AuditAction, source, target uuid.UUID, relation Relation, decision, rationale string) AuditEntry {
	return AuditEntry{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Source:    &source,
		Target:    &target,
		Relation:  relation,
		Decision:  decision,
		Rationale: rationale,
	}
}
