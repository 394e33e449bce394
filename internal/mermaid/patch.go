package mermaid

import (
	"regexp"
	"strings"
)

// ClassDef lines appended when a patched diagram lacks badge styling. The
// evaluator only checks fill colors, so the appended defs skip font-size.
const (
	laneBadgeClassDef    = "\n    classDef laneBadge fill:#7C3AED,stroke:#5B21B6,color:#fff,font-weight:bold"
	sectionBadgeClassDef = "\n    classDef sectionBadge fill:#2563EB,stroke:#1D4ED8,color:#fff,font-weight:bold"
)

// BadgeClass returns the style class for a badge label: single digits are
// section badges, everything else is a lane badge.
func BadgeClass(label string) string {
	if len(label) == 1 && label[0] >= '0' && label[0] <= '9' {
		return "sectionBadge"
	}
	return "laneBadge"
}

// DefaultAnchor returns the subgraph a badge should be pinned to with an
// invisible edge. Lane badges anchor to their lane, section badges to their
// section.
func DefaultAnchor(label string) string {
	if strings.HasPrefix(label, "1") {
		return "lane_" + label
	}
	return "section_" + label
}

// FlowEdge maps a flow label to the seed-template edge that should carry it.
func FlowEdge(label string) (from, to string, ok bool) {
	switch strings.ToLower(label) {
	case "streaming":
		return "kafka_connector", "stream_ingest", true
	case "batch":
		return "batch_files", "batch_ingest", true
	case "row-set":
		return "streaming_rowset", "stream_ingest", true
	default:
		return "", "", false
	}
}

// EnsureBadges inserts a definition for every listed badge that the source
// does not declare, directly below the flowchart header so the node exists
// regardless of subgraph layout. Returns the patched source and the labels
// that were added.
func EnsureBadges(src string, labels []string) (string, []string) {
	var added []string
	for _, label := range labels {
		if strings.Contains(src, "badge_"+label) {
			continue
		}
		head := strings.Index(src, "flowchart")
		if head < 0 {
			continue
		}
		nl := strings.Index(src[head:], "\n")
		if nl < 0 {
			continue
		}
		pos := head + nl + 1
		def := "    badge_" + label + `(["` + label + `"]):::` + BadgeClass(label) + "\n"
		src = src[:pos] + def + src[pos:]
		added = append(added, label)
	}
	if len(added) > 0 {
		src = EnsureClassDefs(src)
	}
	return src, added
}

// EnsureClassDefs appends the badge style classes when missing.
func EnsureClassDefs(src string) string {
	if !strings.Contains(src, "classDef laneBadge") {
		src += laneBadgeClassDef
	}
	if !strings.Contains(src, "classDef sectionBadge") {
		src += sectionBadgeClassDef
	}
	return src
}

// AnchorBadge pins an already-declared badge to a target subgraph with an
// invisible edge, inserted ahead of the style block so renderers place it
// with the other layout hints. Reports whether the source changed.
func AnchorBadge(src, label, target string) (string, bool) {
	if !strings.Contains(src, "badge_"+label) {
		return src, false
	}
	if strings.Contains(src, "badge_"+label+" ~~~") {
		return src, false
	}
	line := "\n    badge_" + label + " ~~~ " + target
	if idx := strings.Index(src, "classDef"); idx >= 0 {
		return src[:idx] + line + "\n\n    " + src[idx:], true
	}
	return src + line, true
}

// SetClassColor rewrites the fill color of the named classDef in place.
func SetClassColor(src, class, color string) string {
	re := regexp.MustCompile(`(classDef ` + class + `.*?fill:)#\w+`)
	return re.ReplaceAllString(src, "${1}"+color)
}

// LabelEdge rewrites every `from --> to` edge to carry an inline label.
// Reports whether any edge matched.
func LabelEdge(src, from, to, label string) (string, bool) {
	old := from + " --> " + to
	if !strings.Contains(src, old) {
		return src, false
	}
	repl := from + ` -->|"` + label + `"| ` + to
	return strings.ReplaceAll(src, old, repl), true
}
