package narrative

import (
	"strings"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
)

const (
	SectionOrigins   = "Origins"
	SectionEffects   = "Effects"
	SectionSupport   = "Support"
	SectionConflicts = "Conflicts"
)

// sectionOrder is the render order of sections.
var sectionOrder = []string{SectionOrigins, SectionEffects, SectionSupport, SectionConflicts}

// templates render an edge as a sentence fragment. {src} and {tgt} are the
// summaries of the edge's source and target.
var templates = map[domain.Relation]string{
	domain.RelationCaused:      "{src} caused {tgt}",
	domain.RelationEnabled:     "{src} enabled {tgt}",
	domain.RelationPrevented:   "{src} prevented {tgt}",
	domain.RelationContradicts: "{src} contradicts {tgt}",
	domain.RelationSupersedes:  "{src} supersedes {tgt}",
	domain.RelationSupports:    "{src} supports {tgt}",
	domain.RelationDerivedFrom: "{tgt} was derived from {src}",
	domain.RelationTriggeredBy: "{tgt} was triggered by {src}",
}

// Render fills the template for relation.
func Render(relation domain.Relation, src, tgt string) string {
	tmpl, ok := templates[relation]
	if !ok {
		tmpl = "{src} is related to {tgt}"
	}
	return strings.NewReplacer("{src}", src, "{tgt}", tgt).Replace(tmpl)
}

// sectionFor places an edge reached while walking backward (origin=true) or forward.
func sectionFor(relation domain.Relation, origin bool) string {
	switch {
	case domain.ConflictRelations[relation]:
		return SectionConflicts
	case relation == domain.RelationSupports:
		return SectionSupport
	case origin:
		return SectionOrigins
	default:
		return SectionEffects
	}
}
