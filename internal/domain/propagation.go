package domain

import "github.com/google/uuid"

const (
	DeltaDirect             = -0.3
	DeltaPartial            = -0.15
	DeltaSupersession       = -0.5
	DeltaConfirmation       = 0.1
	SupportingFactor        = 0.5
	ArchivalThreshold       = 0.15
	ConsensusThreshold      = 3
	ConsensusBoost          = 0.2
	DefaultPropagationDepth = 1
	DefaultConfirmationEdge = 0.8
)

// PropagationRules holds the confidence deltas applied by the propagator.
type PropagationRules struct {
	Direct             float64
	Partial            float64
	Supersession       float64
	Confirmation       float64
	SupportingFactor   float64
	ArchivalThreshold  float64
	ConsensusThreshold int
	ConsensusBoost     float64
	// MaxDepth bounds how many hops of supporters a delta travels.
	MaxDepth int
}

func DefaultPropagationRules() PropagationRules {
	return PropagationRules{
		Direct:             DeltaDirect,
		Partial:            DeltaPartial,
		Supersession:       DeltaSupersession,
		Confirmation:       DeltaConfirmation,
		SupportingFactor:   SupportingFactor,
		ArchivalThreshold:  ArchivalThreshold,
		ConsensusThreshold: ConsensusThreshold,
		ConsensusBoost:     ConsensusBoost,
		MaxDepth:           DefaultPropagationDepth,
	}
}

// BaseDelta returns the confidence delta for a contradiction type.
// Temporal inconsistencies are treated like partial contradictions.
func (r PropagationRules) BaseDelta(t ContradictionType) float64 {
	switch t {
	case ContradictionDirect:
		return r.Direct
	case ContradictionSupersedes:
		return r.Supersession
	default:
		return r.Partial
	}
}

// ConfidenceAdjustment is one delta requested from the storage layer.
type ConfidenceAdjustment struct {
	MemoryID      uuid.UUID `json:"memory_id"`
	Delta         float64   `json:"delta"`
	Depth         int       `json:"depth"`
	Reason        string    `json:"reason"`
	BelowArchival bool      `json:"below_archival"`
}
