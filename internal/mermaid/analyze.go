// Package mermaid analyzes and patches flowchart diagram source. The
// evaluators use the query functions as their secondary, source-text signal;
// the remediation layer uses the patch functions for deterministic content
// fixes.
package mermaid

import (
	"regexp"
	"strings"
)

var (
	arrowRe       = regexp.MustCompile(`-->`)
	labeledPipeRe = regexp.MustCompile(`--\|`)
	invisibleRe   = regexp.MustCompile(`~~~`)
	labeledEdgeRe = regexp.MustCompile(`-->\|[^|]+\|`)
	styleRe       = regexp.MustCompile(`style \w+ fill:`)
	laneRe        = regexp.MustCompile(`subgraph lane_1[a-d]`)
)

// CountConnections counts every edge marker: directed arrows, labeled-pipe
// arrows and invisible positioning links.
func CountConnections(src string) int {
	return len(arrowRe.FindAllString(src, -1)) +
		len(labeledPipeRe.FindAllString(src, -1)) +
		len(invisibleRe.FindAllString(src, -1))
}

// CountLabeledEdges counts arrows carrying an inline |label|.
func CountLabeledEdges(src string) int {
	return len(labeledEdgeRe.FindAllString(src, -1))
}

// ContainsFold reports whether src contains sub, case-insensitively.
func ContainsFold(src, sub string) bool {
	return strings.Contains(strings.ToLower(src), strings.ToLower(sub))
}

// HasGroup reports whether the source declares the named subgraph.
func HasGroup(src, id string) bool {
	return ContainsFold(src, "subgraph "+id) ||
		strings.Contains(src, "subgraph "+id+"[")
}

// CountLanes counts declared lane subgraphs (lane_1a through lane_1d).
func CountLanes(src string) int {
	return len(laneRe.FindAllString(src, -1))
}

// Direction returns the declared flowchart direction ("LR", "TB") or "" when
// no flowchart declaration is present.
func Direction(src string) string {
	switch {
	case strings.Contains(src, "flowchart LR"):
		return "LR"
	case strings.Contains(src, "flowchart TB"):
		return "TB"
	default:
		return ""
	}
}

// HasClassDef reports whether the source defines the named style class.
func HasClassDef(src, name string) bool {
	return strings.Contains(src, "classDef "+name)
}

// CountStyleAssignments counts explicit per-group style overrides.
func CountStyleAssignments(src string) int {
	return len(styleRe.FindAllString(src, -1))
}

// HasBadge reports whether the source declares the badge with the given
// label, under any of the conventional spellings.
func HasBadge(src, label string) bool {
	patterns := []string{
		"badge_" + label,
		`(["` + label + `"])`,
		`(['` + label + `'])`,
	}
	for _, p := range patterns {
		if strings.Contains(src, p) {
			return true
		}
	}
	return false
}

// Validate runs cheap syntax sanity checks: a flowchart or graph header,
// at least one edge or node, and balanced brackets.
func Validate(src string) bool {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return false
	}
	if !strings.HasPrefix(trimmed, "flowchart") && !strings.HasPrefix(trimmed, "graph") {
		return false
	}
	if !strings.Contains(src, "-->") && !strings.Contains(src, "[") {
		return false
	}
	return strings.Count(src, "[") == strings.Count(src, "]") &&
		strings.Count(src, "(") == strings.Count(src, ")") &&
		strings.Count(src, "{") == strings.Count(src, "}")
}
