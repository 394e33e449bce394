// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output, markdown reports, logs, and docs.
// Keep raw codes for JSON fields, map keys, and equality comparisons.
package display

import "strings"

// --- Evaluation Passes ---

var passes = map[string]string{
	"structure":   "Structure",
	"components":  "Components",
	"connections": "Connections",
	"styling":     "Styling",
	"layout":      "Layout",
	"badges":      "Badges",
}

// Pass returns the human-readable name for an evaluation pass.
// Unknown codes are returned as-is.
func Pass(code string) string {
	if name, ok := passes[code]; ok {
		return name
	}
	return code
}

// PassPath converts a slice of pass codes to a human-readable path.
// ["structure", "layout"] -> "Structure -> Layout"
func PassPath(codes []string) string {
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = Pass(c)
	}
	return strings.Join(names, " → ")
}

// --- Defect Types ---

var defectTypes = map[string]string{
	"missing-element":  "Missing Element",
	"wrong-label":      "Wrong Label",
	"missing-group":    "Missing Group",
	"missing-badge":    "Missing Badge",
	"wrong-connection": "Wrong Connection",
	"bad-syntax":       "Bad Syntax",
	"wrong-position":   "Wrong Position",
	"bad-spacing":      "Bad Spacing",
	"wrong-routing":    "Wrong Routing",
	"wrong-color":      "Wrong Color",
	"missing-icon":     "Missing Icon",
	"layout-overflow":  "Layout Overflow",
}

// DefectType returns the human-readable name for a defect code.
// Unknown codes are returned as-is.
func DefectType(code string) string {
	if name, ok := defectTypes[code]; ok {
		return name
	}
	return code
}

// DefectTypeWithCode returns "Missing Badge (missing-badge)" format.
func DefectTypeWithCode(code string) string {
	if name, ok := defectTypes[code]; ok {
		return name + " (" + code + ")"
	}
	return code
}

// --- Defect Sources ---

var sources = map[string]string{
	"content":   "Content",
	"rendering": "Rendering",
	"unknown":   "Unknown",
}

// Source returns the human-readable name for a defect source.
// "content" -> "Content".
func Source(code string) string {
	if name, ok := sources[code]; ok {
		return name
	}
	return code
}

// --- Loop Phases and Outcomes ---

var phases = map[string]string{
	"RENDER":   "Render",
	"CAPTURE":  "Capture",
	"EVALUATE": "Evaluate",
	"DIAGNOSE": "Diagnose",
}

// Phase returns the human-readable name for a loop phase.
// "RENDER" -> "Render".
func Phase(code string) string {
	if name, ok := phases[code]; ok {
		return name
	}
	return code
}

var outcomes = map[string]string{
	"CONTINUE": "Continue",
	"CONVERGE": "Converged",
	"ESCALATE": "Escalated",
}

// Outcome returns the human-readable name for an iteration outcome.
// "CONVERGE" -> "Converged".
func Outcome(code string) string {
	if name, ok := outcomes[code]; ok {
		return name
	}
	return code
}

var statuses = map[string]string{
	"running":   "Running",
	"converged": "Converged",
	"escalated": "Escalated",
}

// Status returns the human-readable name for a run status.
// "running" -> "Running".
func Status(code string) string {
	if name, ok := statuses[code]; ok {
		return name
	}
	return code
}

// --- Remediation ---

var routes = map[string]string{
	"direct":   "Direct Fix",
	"delegate": "Delegate",
	"none":     "No Action",
}

// Route returns the human-readable name for a remediation route.
// "direct" -> "Direct Fix".
func Route(code string) string {
	if name, ok := routes[code]; ok {
		return name
	}
	return code
}

var skills = map[string]string{
	"generator-debugger": "Generator Debugger",
	"content-modeler":    "Content Modeler",
	"layout-debugger":    "Layout Debugger",
	"diagram-debugger":   "Diagram Debugger",
	"direct":             "Direct Fix",
}

// Skill returns the human-readable name for a remediation skill.
// Unknown codes are returned as-is.
func Skill(code string) string {
	if name, ok := skills[code]; ok {
		return name
	}
	return code
}

// SkillWithCode returns "Layout Debugger (layout-debugger)" format.
func SkillWithCode(code string) string {
	if name, ok := skills[code]; ok {
		return name + " (" + code + ")"
	}
	return code
}

var causes = map[string]string{
	"generator_spec":   "Generator Spec",
	"content_model":    "Content Model",
	"render_layer":     "Render Layer",
	"diagram_template": "Diagram Template",
	"unknown":          "Unknown",
}

// RootCause returns the human-readable name for a diagnosed root cause.
// "render_layer" -> "Render Layer".
func RootCause(code string) string {
	if name, ok := causes[code]; ok {
		return name
	}
	return code
}

// --- Defect Keys ---

// DefectKey humanizes a colon-delimited gutter signature.
// "badges:code missing badges" -> "Badges / code missing badges"
func DefectKey(key string) string {
	parts := strings.SplitN(key, ":", 2)
	if name, ok := passes[parts[0]]; ok {
		parts[0] = name
	}
	return strings.Join(parts, " / ")
}
