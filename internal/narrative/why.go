package narrative

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/engram-causal/internal/traversal"
	"github.com/google/uuid"
)

// MaxWhyRefs caps the origin and effect lists handed to the generation layer.
const MaxWhyRefs = 20

type NodeRef struct {
	MemoryID        uuid.UUID `json:"memory_id"`
	Summary         string    `json:"summary"`
	Depth           int       `json:"depth"`
	ChainConfidence float64   `json:"chain_confidence"`
}

// WhyContext is the explanation consumed by retrieval and generation.
type WhyContext struct {
	MemoryID        uuid.UUID `json:"memory_id"`
	Narrative       Narrative `json:"narrative"`
	ChainConfidence float64   `json:"chain_confidence"`
	Origins         []NodeRef `json:"origins"`
	Effects         []NodeRef `json:"effects"`
	TotalReachable  int       `json:"total_reachable"`
	Incomplete      bool      `json:"incomplete"`
}

func Why(origins, effects traversal.Result) WhyContext {
	n := Build(origins, effects)
	return WhyContext{
		MemoryID:        origins.Origin,
		Narrative:       n,
		ChainConfidence: n.Confidence,
		Origins:         refs(origins.Nodes),
		Effects:         refs(effects.Nodes),
		TotalReachable:  len(origins.Nodes) + len(effects.Nodes),
		Incomplete:      n.Incomplete,
	}
}

func refs(nodes []traversal.TraversedNode) []NodeRef {
	out := make([]NodeRef, 0, min(len(nodes), MaxWhyRefs))
	for _, t := range nodes {
		if len(out) == MaxWhyRefs {
			break
		}
		out = append(out, NodeRef{
			MemoryID:        t.MemoryID,
			Summary:         t.Summary,
			Depth:           t.Depth,
			ChainConfidence: t.ChainConfidence,
		})
	}
	return out
}

// RenderMarkdown formats a WhyContext for prompt injection.
func RenderMarkdown(w WhyContext) string {
	var b strings.Builder

	if len(w.Narrative.Sections) > 0 {
		b.WriteString("## Causal Explanation\n\n")
		for _, s := range w.Narrative.Sections {
			fmt.Fprintf(&b, "### %s\n", s.Title)
			for _, e := range s.Entries {
				fmt.Fprintf(&b, "- %s (%.0f%%)\n", e.Text, e.ChainConfidence*100)
			}
		}
		fmt.Fprintf(&b, "\n**Chain confidence:** %.2f (%s)\n", w.ChainConfidence, w.Narrative.ConfidenceLevel)
		if len(w.Narrative.EvidenceRefs) > 0 {
			b.WriteString("\n**Evidence:**\n")
			for _, ev := range w.Narrative.EvidenceRefs {
				fmt.Fprintf(&b, "- %s\n", ev)
			}
		}
	}

	writeRefs := func(title, direction string, nodes []NodeRef) {
		if len(nodes) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s (%d %s nodes)\n", title, len(nodes), direction)
		for _, n := range nodes {
			fmt.Fprintf(&b, "- %s (depth: %d)\n", label(n.MemoryID, n.Summary), n.Depth)
		}
	}
	writeRefs("Origins", "upstream", w.Origins)
	writeRefs("Effects", "downstream", w.Effects)

	if w.Incomplete && b.Len() > 0 {
		b.WriteString("\n_Partial result: traversal budget exhausted._\n")
	}
	if b.Len() == 0 {
		return "No causal information available for this memory."
	}
	return b.String()
}
