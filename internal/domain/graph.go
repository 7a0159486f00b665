package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type Relation string

const (
	RelationCaused      Relation = "caused"
	RelationEnabled     Relation = "enabled"
	RelationPrevented   Relation = "prevented"
	RelationContradicts Relation = "contradicts"
	RelationSupersedes  Relation = "supersedes"
	RelationSupports    Relation = "supports"
	RelationDerivedFrom Relation = "derived_from"
	RelationTriggeredBy Relation = "triggered_by"
)

var AllRelations = []Relation{
	RelationCaused, RelationEnabled, RelationPrevented, RelationContradicts,
	RelationSupersedes, RelationSupports, RelationDerivedFrom, RelationTriggeredBy,
}

func ValidRelation(r string) bool {
	switch Relation(r) {
	case RelationCaused, RelationEnabled, RelationPrevented, RelationContradicts,
		RelationSupersedes, RelationSupports, RelationDerivedFrom, RelationTriggeredBy:
		return true
	}
	return false
}

// ParseRelation maps a stored or user supplied name onto the closed relation set.
func ParseRelation(s string) (Relation, error) {
	if !ValidRelation(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRelation, s)
	}
	return Relation(s), nil
}

// ConflictRelations are rendered under the Conflicts section and never count as causal support.
var ConflictRelations = map[Relation]bool{
	RelationContradicts: true,
	RelationSupersedes:  true,
}

// Evidence is one piece of traceable justification attached to an edge.
type Evidence struct {
	Description string    `json:"description"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

type CausalNode struct {
	MemoryID   uuid.UUID  `json:"memory_id"`
	MemoryType MemoryType `json:"memory_type"`
	Summary    string     `json:"summary"`
	// Dangling is set once the referenced memory is gone from storage.
	Dangling bool `json:"dangling"`
}

type CausalEdge struct {
	Source    uuid.UUID  `json:"source_id"`
	Target    uuid.UUID  `json:"target_id"`
	Relation  Relation   `json:"relation"`
	Strength  float64    `json:"strength"`
	Evidence  []Evidence `json:"evidence,omitempty"`
	Inferred  bool       `json:"inferred"`
	CreatedAt time.Time  `json:"created_at"`
}

// EvidenceDescriptions returns the raw evidence strings of the edge.
func (e *CausalEdge) EvidenceDescriptions() []string {
	out := make([]string, 0, len(e.Evidence))
	for _, ev := range e.Evidence {
		out = append(out, ev.Description)
	}
	return out
}

// ClampStrength bounds an edge strength to [0,1]. NaN collapses to 0.
func ClampStrength(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

const (
	ChainMinWeight      = 0.6
	ChainMeanWeight     = 0.4
	ChainDepthPenalty   = 0.05
	ChainPenaltyFreeHop = 2
)

// ChainConfidence scores a path of edge strengths:
// 0.6*min + 0.4*mean, minus 0.05 per hop beyond depth 2, floored at 0.
func ChainConfidence(strengths []float64, depth int) float64 {
	if len(strengths) == 0 {
		return 0
	}
	minStrength := math.Inf(1)
	var sum float64
	for _, s := range strengths {
		s = ClampStrength(s)
		if s < minStrength {
			minStrength = s
		}
		sum += s
	}
	mean := sum / float64(len(strengths))
	conf := ChainMinWeight*minStrength + ChainMeanWeight*mean
	if depth > ChainPenaltyFreeHop {
		conf -= ChainDepthPenalty * float64(depth-ChainPenaltyFreeHop)
	}
	return ClampConfidence(conf)
}

// PruningRules controls the periodic edge pruning job.
type PruningRules struct {
	MinStrength       float64       // Remove edges below this strength
	MaxUnvalidatedAge time.Duration // Remove inferred, evidence-free edges older than this
}

func DefaultPruningRules() PruningRules {
	return PruningRules{
		MinStrength:       0.2,
		MaxUnvalidatedAge: 30 * 24 * time.Hour,
	}
}

type PruneResult struct {
	Removed     int          `json:"removed"`
	Weak        int          `json:"weak"`
	Unvalidated int          `json:"unvalidated"`
	Edges       []CausalEdge `json:"-"`
}

// GraphStats summarizes the in-memory graph.
type GraphStats struct {
	Nodes    int `json:"nodes"`
	Edges    int `json:"edges"`
	Dangling int `json:"dangling"`
}
