package domain

import (
	"time"

	"github.com/google/uuid"
)

type MemoryType string

const (
	MemoryTypeCore             MemoryType = "core"
	MemoryTypeTribal           MemoryType = "tribal"
	MemoryTypeSemantic         MemoryType = "semantic"
	MemoryTypeEpisodic         MemoryType = "episodic"
	MemoryTypeDecision         MemoryType = "decision"
	MemoryTypeInsight          MemoryType = "insight"
	MemoryTypeProcedural       MemoryType = "procedural"
	MemoryTypePatternRationale MemoryType = "pattern_rationale"
	MemoryTypeConstraint       MemoryType = "constraint"
	MemoryTypeFeedback         MemoryType = "feedback"
	MemoryTypePreference       MemoryType = "preference"
	MemoryTypeFact             MemoryType = "fact"

	// MemoryTypeUnknown marks nodes hydrated from edge rows only.
	MemoryTypeUnknown MemoryType = "unknown"
)

// AllMemoryTypes lists every concrete memory type.
var AllMemoryTypes = []MemoryType{
	MemoryTypeCore, MemoryTypeTribal, MemoryTypeSemantic, MemoryTypeEpisodic,
	MemoryTypeDecision, MemoryTypeInsight, MemoryTypeProcedural, MemoryTypePatternRationale,
	MemoryTypeConstraint, MemoryTypeFeedback, MemoryTypePreference, MemoryTypeFact,
}

func ValidMemoryType(t string) bool {
	for _, mt := range AllMemoryTypes {
		if MemoryType(t) == mt {
			return true
		}
	}
	return false
}

// Memory is a read-only view of a memory record owned by the storage layer.
type Memory struct {
	ID              uuid.UUID  `json:"id"`
	Type            MemoryType `json:"type"`
	Content         string     `json:"content"`
	Summary         string     `json:"summary"`
	Confidence      float64    `json:"confidence"`
	Tags            []string   `json:"tags,omitempty"`
	LinkedPatterns  []string   `json:"linked_patterns,omitempty"`
	LinkedFiles     []string   `json:"linked_files,omitempty"`
	LinkedFunctions []string   `json:"linked_functions,omitempty"`
	Supersedes      *uuid.UUID `json:"supersedes,omitempty"`
	Archived        bool       `json:"archived"`
	Embedding       []float32  `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Label returns the summary, falling back to the content.
func (m *Memory) Label() string {
	if m.Summary != "" {
		return m.Summary
	}
	return m.Content
}

// Entities returns the linked files, patterns and functions as one prefixed set.
func (m *Memory) Entities() map[string]struct{} {
	set := make(map[string]struct{}, len(m.LinkedFiles)+len(m.LinkedPatterns)+len(m.LinkedFunctions))
	for _, f := range m.LinkedFiles {
		set["file:"+f] = struct{}{}
	}
	for _, p := range m.LinkedPatterns {
		set["pattern:"+p] = struct{}{}
	}
	for _, fn := range m.LinkedFunctions {
		set["func:"+fn] = struct{}{}
	}
	return set
}

// DefaultConfidence is assigned to memories created without one.
const DefaultConfidence = 0.5

// ClampConfidence bounds a confidence value to [0,1]. NaN collapses to 0.
func ClampConfidence(c float64) float64 {
	if c < 0 || c != c {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
