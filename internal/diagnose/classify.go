package diagnose

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dpopsuev/visor/internal/config"
	"github.com/dpopsuev/visor/internal/evaluate"
	"github.com/dpopsuev/visor/internal/logging"
	"github.com/dpopsuev/visor/internal/mermaid"
)

// failingFallback is the threshold for passes without a configured one.
const failingFallback = 80.0

// Classifier derives typed defects from evaluation results using the
// per-pass rule tables. Classification is rule-based and deterministic;
// every failing pass yields at least one defect.
type Classifier struct {
	cfg config.Config
	log *slog.Logger
}

func New(cfg config.Config) *Classifier {
	return &Classifier{cfg: cfg, log: logging.New("diagnose")}
}

// Classify analyzes an evaluation and partitions its defects by source.
// The diagram source, when given, is syntax-checked as well: a template the
// renderer cannot parse is a content defect regardless of pass scores.
func (c *Classifier) Classify(res evaluate.Result, source string) Diagnosis {
	var defects []Defect

	if source != "" && !mermaid.Validate(source) {
		defects = append(defects, Defect{
			Source:      SourceContent,
			Type:        DefectBadSyntax,
			Pass:        evaluate.PassStructure,
			Description: "Diagram source fails syntax validation",
			Severity:    0.5,
			FixTarget:   contentTarget,
			FixHint:     "Fix the flowchart header or unbalanced brackets",
		})
	}

	for _, p := range res.FailingPasses(c.cfg.PassThresholds, failingFallback) {
		pr := res.Passes[p]
		severity := (100 - pr.Score) / 100 * p.Weight()
		defects = append(defects, classifyPass(p, pr, severity)...)
	}

	d := Diagnosis{Defects: defects}
	for _, df := range defects {
		switch df.Source {
		case SourceContent:
			d.ContentDefects = append(d.ContentDefects, df)
		case SourceRendering:
			d.RenderingDefects = append(d.RenderingDefects, df)
		}
	}

	// Ties default to content.
	if d.ContentSeverity() >= d.RenderingSeverity() {
		d.PrimarySource = SourceContent
	} else {
		d.PrimarySource = SourceRendering
	}
	d.Recommendations = recommend(defects)

	c.log.Debug("diagnosis complete",
		"defects", len(defects),
		"primary_source", string(d.PrimarySource),
		"content_severity", d.ContentSeverity(),
		"rendering_severity", d.RenderingSeverity())
	return d
}

// classifyPass applies the rule table for one failing pass. Rules match
// against the joined defect and finding text; when nothing matches, the
// pass still yields its generic defect.
func classifyPass(p evaluate.Pass, pr evaluate.PassResult, severity float64) []Defect {
	joined := strings.TrimSpace(strings.Join(append(append([]string{}, pr.Defects...), pr.Findings...), " "))
	lower := strings.ToLower(joined)
	describe := func(fallback string) string {
		if joined == "" {
			return fallback
		}
		return joined
	}

	switch p {
	case evaluate.PassStructure:
		hint := "Review the subgraph organization in the template"
		if strings.Contains(lower, "subgraph") || strings.Contains(lower, "missing") {
			hint = "Add the missing subgraph definitions to the diagram source"
		}
		return []Defect{content(p, DefectMissingGroup, describe("Structure mismatch"), severity, hint)}

	case evaluate.PassComponents:
		hint := "Review the node definitions in the template"
		if strings.Contains(lower, "missing") || strings.Contains(lower, "node") {
			hint = "Add the missing node definitions to the diagram source"
		}
		return []Defect{content(p, DefectMissingElement, describe("Component mismatch"), severity, hint)}

	case evaluate.PassConnections:
		if strings.Contains(lower, "handle") || strings.Contains(lower, "direction") {
			return []Defect{render(p, DefectWrongRouting, describe("Connection mismatch"), severity,
				"Adjust edge handle assignment in the renderer")}
		}
		if strings.Contains(lower, "label") {
			return []Defect{content(p, DefectWrongLabel, describe("Connection mismatch"), severity,
				"Add the expected flow labels to the main edges")}
		}
		// Edge-count mismatches split between the two sides; carry half.
		return []Defect{content(p, DefectWrongConnection, describe("Connection mismatch"), severity*0.5,
			"Check the edge definitions in the diagram source")}

	case evaluate.PassStyling:
		if strings.Contains(lower, "classdef") || strings.Contains(lower, "color") || strings.Contains(lower, "styling") {
			return []Defect{content(p, DefectWrongColor, describe("Styling mismatch"), severity,
				"Add or correct the classDef color definitions in the diagram source")}
		}
		return []Defect{render(p, DefectWrongColor, describe("Styling mismatch"), severity,
			"Adjust the palette mapping in the renderer")}

	case evaluate.PassLayout:
		if strings.Contains(lower, "column") || strings.Contains(lower, "position") {
			return []Defect{render(p, DefectWrongPosition, describe("Layout mismatch"), severity,
				"Adjust the stage ordering rules in the layout engine")}
		}
		if strings.Contains(lower, "spacing") {
			return []Defect{render(p, DefectBadSpacing, describe("Layout mismatch"), severity,
				"Adjust the spacing constants in the layout engine")}
		}
		return []Defect{render(p, DefectWrongPosition, describe("Layout mismatch"), severity,
			"Review the layout engine configuration")}

	case evaluate.PassBadges:
		if strings.Contains(lower, "scattered") {
			return []Defect{render(p, DefectWrongPosition, describe("Badges scattered"), severity,
				"Anchor badges with invisible edges so they hold their rail")}
		}
		return []Defect{content(p, DefectMissingBadge, describe("Missing badges"), severity,
			"Add missing badge nodes (e.g. badge_1a, badge_2) with :::laneBadge or :::sectionBadge class")}

	default:
		return []Defect{{
			Source:      SourceUnknown,
			Type:        DefectMissingElement,
			Pass:        p,
			Description: describe("Unrecognized pass failure"),
			Severity:    severity,
			FixTarget:   contentTarget,
			FixHint:     "Inspect the evaluation findings manually",
		}}
	}
}

func content(p evaluate.Pass, t DefectType, desc string, severity float64, hint string) Defect {
	return Defect{
		Source:      SourceContent,
		Type:        t,
		Pass:        p,
		Description: desc,
		Severity:    severity,
		FixTarget:   contentTarget,
		FixHint:     hint,
	}
}

func render(p evaluate.Pass, t DefectType, desc string, severity float64, hint string) Defect {
	return Defect{
		Source:      SourceRendering,
		Type:        t,
		Pass:        p,
		Description: desc,
		Severity:    severity,
		FixTarget:   renderTargets[t],
		FixHint:     hint,
	}
}

// recommend renders the top five defects by severity as one-line fixes.
func recommend(defects []Defect) []string {
	sorted := make([]Defect, len(defects))
	copy(sorted, defects)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Severity > sorted[j].Severity })
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}

	var out []string
	for _, d := range sorted {
		if d.Source == SourceRendering {
			out = append(out, fmt.Sprintf("[RENDERING] Fix %s: %s", d.FixTarget, d.FixHint))
		} else {
			out = append(out, fmt.Sprintf("[CONTENT] %s: %s", d.Type, d.FixHint))
		}
	}
	return out
}
