package domain

import "github.com/google/uuid"

type ContradictionType string

const (
	ContradictionDirect     ContradictionType = "direct"
	ContradictionPartial    ContradictionType = "partial"
	ContradictionSupersedes ContradictionType = "supersedes"
	ContradictionTemporal   ContradictionType = "temporal"
)

type SuggestedAction string

const (
	ActionLowerConfidence SuggestedAction = "lower_confidence"
	ActionArchive         SuggestedAction = "archive"
	ActionMerge           SuggestedAction = "merge"
	ActionFlagForReview   SuggestedAction = "flag_for_review"
)

// ContradictionResult describes a conflict between a new memory and an existing one.
type ContradictionResult struct {
	NewMemoryID      uuid.UUID         `json:"new_memory_id"`
	ExistingMemoryID uuid.UUID         `json:"existing_memory_id"`
	Type             ContradictionType `json:"contradiction_type"`
	Confidence       float64           `json:"confidence"`
	Evidence         []string          `json:"evidence"`
	SuggestedAction  SuggestedAction   `json:"suggested_action"`
	SimilarityScore  float64           `json:"similarity_score"`
	Strategy         string            `json:"strategy"`
}

// EdgeRelation returns the relation recorded in the graph for this contradiction.
func (r *ContradictionResult) EdgeRelation() Relation {
	if r.Type == ContradictionSupersedes {
		return RelationSupersedes
	}
	return RelationContradicts
}
