// Package narrative turns traversal results into structured causal explanations.
package narrative

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/traversal"
	"github.com/google/uuid"
)

type ConfidenceLevel string

const (
	LevelHigh    ConfidenceLevel = "high"
	LevelMedium  ConfidenceLevel = "medium"
	LevelLow     ConfidenceLevel = "low"
	LevelVeryLow ConfidenceLevel = "very_low"
)

func LevelOf(score float64) ConfidenceLevel {
	switch {
	case score >= 0.8:
		return LevelHigh
	case score >= 0.5:
		return LevelMedium
	case score >= 0.3:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

const (
	SummaryNoContext       = "No causal context found."
	SummaryNoRelationships = "No causal relationships found."
)

type Entry struct {
	MemoryID        uuid.UUID       `json:"memory_id"`
	Text            string          `json:"text"`
	Relation        domain.Relation `json:"relation"`
	Depth           int             `json:"depth"`
	ChainConfidence float64         `json:"chain_confidence"`
	Evidence        []string        `json:"evidence,omitempty"`
}

type Section struct {
	Title   string  `json:"title"`
	Entries []Entry `json:"entries"`
}

type Narrative struct {
	MemoryID        uuid.UUID       `json:"memory_id"`
	Summary         string          `json:"summary"`
	KeyPoints       []string        `json:"key_points"`
	Confidence      float64         `json:"confidence"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	Sections        []Section       `json:"sections"`
	EvidenceRefs    []string        `json:"evidence_refs"`
	Incomplete      bool            `json:"incomplete"`
}

// Section returns the named section, or nil.
func (n *Narrative) Section(title string) *Section {
	for i := range n.Sections {
		if n.Sections[i].Title == title {
			return &n.Sections[i]
		}
	}
	return nil
}

// Build renders the origins and effects of one memory. Both results must
// share the same origin. Dangling nodes never appear in traversal results,
// so they are excluded here as well.
func Build(origins, effects traversal.Result) Narrative {
	n := Narrative{
		MemoryID:        origins.Origin,
		KeyPoints:       []string{},
		Sections:        []Section{},
		EvidenceRefs:    []string{},
		ConfidenceLevel: LevelVeryLow,
		Incomplete:      origins.Incomplete || effects.Incomplete,
	}
	if !origins.Found && !effects.Found {
		n.Summary = SummaryNoContext
		return n
	}

	summaries := map[uuid.UUID]string{origins.Origin: label(origins.OriginNode.MemoryID, origins.OriginNode.Summary)}
	for _, r := range []traversal.Result{origins, effects} {
		for _, t := range r.Nodes {
			summaries[t.MemoryID] = label(t.MemoryID, t.Summary)
		}
	}

	grouped := make(map[string][]Entry)
	seenEvidence := make(map[string]bool)
	var direct []float64

	add := func(t traversal.TraversedNode, origin bool) {
		e := t.Edge
		entry := Entry{
			MemoryID:        t.MemoryID,
			Text:            Render(e.Relation, summaries[e.Source], summaries[e.Target]),
			Relation:        e.Relation,
			Depth:           t.Depth,
			ChainConfidence: t.ChainConfidence,
			Evidence:        e.EvidenceDescriptions(),
		}
		section := sectionFor(e.Relation, origin)
		grouped[section] = append(grouped[section], entry)

		for _, ev := range entry.Evidence {
			if !seenEvidence[ev] {
				seenEvidence[ev] = true
				n.EvidenceRefs = append(n.EvidenceRefs, ev)
			}
		}
		n.KeyPoints = append(n.KeyPoints, fmt.Sprintf("%s (%s: %.0f%%)",
			summaries[t.MemoryID], e.Relation, t.ChainConfidence*100))
		if t.Depth == 1 {
			direct = append(direct, e.Strength)
		}
	}
	for _, t := range origins.Nodes {
		add(t, true)
	}
	for _, t := range effects.Nodes {
		add(t, false)
	}

	for _, title := range sectionOrder {
		if entries := grouped[title]; len(entries) > 0 {
			n.Sections = append(n.Sections, Section{Title: title, Entries: entries})
		}
	}

	n.Confidence = domain.ChainConfidence(direct, 1)
	n.ConfidenceLevel = LevelOf(n.Confidence)
	if len(n.Sections) == 0 {
		n.Summary = SummaryNoRelationships
	} else {
		n.Summary = fmt.Sprintf("Causal narrative with %s confidence (%d connections).",
			n.ConfidenceLevel, len(n.KeyPoints))
	}
	return n
}

func label(id uuid.UUID, summary string) string {
	if s := strings.TrimSpace(summary); s != "" {
		return s
	}
	return "memory " + id.String()[:8]
}
