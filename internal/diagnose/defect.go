// Package diagnose classifies evaluation failures by remediation source.
// Content defects are fixed in the diagram source text, rendering defects in
// the render layer; the split decides which fixer the convergence loop
// dispatches.
package diagnose

import (
	"github.com/dpopsuev/visor/internal/evaluate"
)

// Source is where a defect needs to be fixed.
type Source string

const (
	SourceContent   Source = "content"
	SourceRendering Source = "rendering"
	SourceUnknown   Source = "unknown"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceContent, SourceRendering, SourceUnknown:
		return true
	default:
		return false
	}
}

// DefectType is the specific defect category.
type DefectType string

const (
	// Content defects live in the diagram source text.
	DefectMissingElement  DefectType = "missing-element"
	DefectWrongLabel      DefectType = "wrong-label"
	DefectMissingGroup    DefectType = "missing-group"
	DefectMissingBadge    DefectType = "missing-badge"
	DefectWrongConnection DefectType = "wrong-connection"
	DefectBadSyntax       DefectType = "bad-syntax"

	// Rendering defects live in the render layer.
	DefectWrongPosition  DefectType = "wrong-position"
	DefectBadSpacing     DefectType = "bad-spacing"
	DefectWrongRouting   DefectType = "wrong-routing"
	DefectWrongColor     DefectType = "wrong-color"
	DefectMissingIcon    DefectType = "missing-icon"
	DefectLayoutOverflow DefectType = "layout-overflow"
)

// contentTarget is the fix locator for every content defect: the diagram
// template the loop is converging.
const contentTarget = "diagram-template"

// renderTargets names the render-layer component each rendering defect is
// fixed in.
var renderTargets = map[DefectType]string{
	DefectWrongPosition:  "render/layout-order",
	DefectBadSpacing:     "render/spacing",
	DefectWrongRouting:   "render/edge-routing",
	DefectWrongColor:     "render/theme",
	DefectMissingIcon:    "render/icon-map",
	DefectLayoutOverflow: "render/viewport",
}

// Defect is a single classified deviation derived from one failing pass.
// Severity is 0-1, the failing margin scaled by the pass weight, so defects
// from heavier passes outrank equally-bad defects from lighter ones.
type Defect struct {
	Source      Source        `json:"source" yaml:"source"`
	Type        DefectType    `json:"type" yaml:"type"`
	Pass        evaluate.Pass `json:"pass" yaml:"pass"`
	Description string        `json:"description" yaml:"description"`
	Severity    float64       `json:"severity" yaml:"severity"`
	FixTarget   string        `json:"fix_target" yaml:"fix_target"`
	FixHint     string        `json:"fix_hint" yaml:"fix_hint"`
}

// Diagnosis is the complete classification of one evaluation.
type Diagnosis struct {
	Defects          []Defect `json:"defects,omitempty" yaml:"defects,omitempty"`
	PrimarySource    Source   `json:"primary_source" yaml:"primary_source"`
	ContentDefects   []Defect `json:"content_defects,omitempty" yaml:"content_defects,omitempty"`
	RenderingDefects []Defect `json:"rendering_defects,omitempty" yaml:"rendering_defects,omitempty"`
	Recommendations  []string `json:"recommended_fixes,omitempty" yaml:"recommended_fixes,omitempty"`
}

// TotalSeverity sums the severity of every defect.
func (d Diagnosis) TotalSeverity() float64 {
	var sum float64
	for _, df := range d.Defects {
		sum += df.Severity
	}
	return sum
}

// ContentSeverity sums the severity of the content defects.
func (d Diagnosis) ContentSeverity() float64 {
	var sum float64
	for _, df := range d.ContentDefects {
		sum += df.Severity
	}
	return sum
}

// RenderingSeverity sums the severity of the rendering defects.
func (d Diagnosis) RenderingSeverity() float64 {
	var sum float64
	for _, df := range d.RenderingDefects {
		sum += df.Severity
	}
	return sum
}
