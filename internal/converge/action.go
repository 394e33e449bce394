package converge

import (
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dpopsuev/visor/internal/config"
	"github.com/dpopsuev/visor/internal/diagnose"
	"github.com/dpopsuev/visor/internal/evaluate"
	"github.com/dpopsuev/visor/internal/remedy"
	"github.com/dpopsuev/visor/internal/skills"
	"github.com/dpopsuev/visor/internal/workspace"
)

// defaultThreshold applies to passes without a configured threshold.
const defaultThreshold = 80.0

// RootCause names the layer a defect originates in.
type RootCause string

const (
	CauseGeneratorSpec   RootCause = "generator_spec"
	CauseContentModel    RootCause = "content_model"
	CauseRenderLayer     RootCause = "render_layer"
	CauseDiagramTemplate RootCause = "diagram_template"
	CauseUnknown         RootCause = "unknown"
)

// rootCauses maps each failing pass to the layer that usually owns it.
var rootCauses = map[evaluate.Pass]RootCause{
	evaluate.PassStructure:   CauseGeneratorSpec,
	evaluate.PassComponents:  CauseContentModel,
	evaluate.PassConnections: CauseGeneratorSpec,
	evaluate.PassStyling:     CauseDiagramTemplate,
	evaluate.PassLayout:      CauseRenderLayer,
	evaluate.PassBadges:      CauseDiagramTemplate,
}

// skillFor maps a root cause to the skill that debugs that layer.
func skillFor(cause RootCause) string {
	switch cause {
	case CauseGeneratorSpec:
		return skills.GeneratorDebugger
	case CauseContentModel:
		return skills.ContentModeler
	case CauseRenderLayer:
		return skills.LayoutDebugger
	case CauseDiagramTemplate:
		return skills.Direct
	default:
		return skills.DiagramDebugger
	}
}

// triggerRow is one row of the remediation priority matrix.
type triggerRow struct {
	Pass  evaluate.Pass
	Route remedy.Route
	Skill string
}

// triggerMatrix orders failing passes by remediation priority: broken
// layout and structure dominate everything downstream of them, so they
// are handled before the template-level patches.
var triggerMatrix = []triggerRow{
	{evaluate.PassLayout, remedy.RouteDelegate, skills.LayoutDebugger},
	{evaluate.PassStructure, remedy.RouteDelegate, skills.GeneratorDebugger},
	{evaluate.PassConnections, remedy.RouteDirect, skills.Direct},
	{evaluate.PassStyling, remedy.RouteDirect, skills.Direct},
	{evaluate.PassBadges, remedy.RouteDirect, skills.Direct},
	{evaluate.PassComponents, remedy.RouteDelegate, skills.ContentModeler},
}

// Action is the remediation the controller should take next.
type Action struct {
	Pass         evaluate.Pass
	RootCause    RootCause
	Route        remedy.Route
	Skill        string
	Priority     int
	Defect       string
	Gutter       bool
	Instructions string
}

// SelectAction picks the highest-priority failing pass and builds the
// remediation for it.
func SelectAction(cfg config.Config, res evaluate.Result) Action {
	failing := res.FailingPasses(cfg.PassThresholds, defaultThreshold)
	if len(failing) == 0 {
		return Action{
			Route:     remedy.RouteNone,
			RootCause: CauseUnknown,
			Defect:    "No failures detected",
		}
	}
	failSet := make(map[evaluate.Pass]bool, len(failing))
	for _, p := range failing {
		failSet[p] = true
	}

	for i, row := range triggerMatrix {
		if !failSet[row.Pass] {
			continue
		}
		defect := describeDefect(cfg, res, row.Pass)
		return Action{
			Pass:         row.Pass,
			RootCause:    rootCauses[row.Pass],
			Route:        row.Route,
			Skill:        row.Skill,
			Priority:     i + 1,
			Defect:       defect,
			Instructions: skills.Instructions(row.Skill, defect),
		}
	}

	// Failing pass outside the matrix; hand it to the generalist.
	defect := describeDefect(cfg, res, failing[0])
	return Action{
		Pass:         failing[0],
		RootCause:    CauseUnknown,
		Route:        remedy.RouteDelegate,
		Skill:        skills.DiagramDebugger,
		Priority:     len(triggerMatrix) + 1,
		Defect:       defect,
		Instructions: skills.Instructions(skills.DiagramDebugger, defect),
	}
}

// Label renders the action for history rows.
func (a Action) Label() string {
	if a.Route == remedy.RouteNone {
		return "None"
	}
	return fmt.Sprintf("Diagnosed %s -> %s", a.RootCause, a.Skill)
}

// UpgradeForGutter escalates an action after the same defect keeps
// failing: template-level causes move up to the rendering layer, and
// direct patches hand off to the skill owning the (upgraded) cause.
func UpgradeForGutter(act Action) Action {
	act.Gutter = true
	if act.RootCause == CauseDiagramTemplate {
		act.RootCause = CauseRenderLayer
	}
	if skill := skillFor(act.RootCause); skill != skills.Direct {
		act.Route = remedy.RouteDelegate
		act.Skill = skill
	}
	act.Instructions = skills.Instructions(act.Skill, act.Defect)
	return act
}

// describeDefect renders one failing pass as a defect line: the score
// against its threshold, plus the pass's top finding when present.
func describeDefect(cfg config.Config, res evaluate.Result, p evaluate.Pass) string {
	pr := res.Passes[p]
	desc := fmt.Sprintf("%s at %.1f%% (threshold %g%%)", p, pr.Score, thresholdFor(cfg, p))
	if len(pr.Defects) > 0 {
		desc += ": " + pr.Defects[0]
	}
	return desc
}

// thresholdFor returns the configured threshold for a pass.
func thresholdFor(cfg config.Config, p evaluate.Pass) float64 {
	if t, ok := cfg.PassThresholds[string(p)]; ok {
		return t
	}
	return defaultThreshold
}

// Report is the per-iteration YAML artifact consumed by operators and
// responder agents.
type Report struct {
	Loop             ReportLoop             `yaml:"loop" json:"loop"`
	Diagnosis        ReportDiagnosis        `yaml:"diagnosis" json:"diagnosis"`
	Action           ReportAction           `yaml:"action_required" json:"action_required"`
	PassScores       map[string]ReportScore `yaml:"pass_scores" json:"pass_scores"`
	GuardrailsActive int                    `yaml:"guardrails_active" json:"guardrails_active"`
}

// ReportLoop summarizes where the loop stands.
type ReportLoop struct {
	Iteration    int     `yaml:"iteration" json:"iteration"`
	Status       string  `yaml:"status" json:"status"`
	OverallScore float64 `yaml:"overall_score" json:"overall_score"`
	TargetScore  float64 `yaml:"target_score" json:"target_score"`
}

// ReportDiagnosis summarizes what went wrong and where.
type ReportDiagnosis struct {
	RootCause      RootCause `yaml:"root_cause" json:"root_cause"`
	Defect         string    `yaml:"defect" json:"defect"`
	PrimarySource  string    `yaml:"primary_source" json:"primary_source"`
	GutterDetected bool      `yaml:"gutter_detected" json:"gutter_detected"`
}

// ReportAction says what should happen next.
type ReportAction struct {
	Route        remedy.Route `yaml:"route" json:"route"`
	Skill        string       `yaml:"skill,omitempty" json:"skill,omitempty"`
	Instructions string       `yaml:"instructions,omitempty" json:"instructions,omitempty"`
}

// ReportScore is one pass's standing against its threshold.
type ReportScore struct {
	Score     float64 `yaml:"score" json:"score"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Passed    bool    `yaml:"passed" json:"passed"`
}

// BuildReport assembles the iteration report.
func BuildReport(cfg config.Config, state *State, res evaluate.Result, diag diagnose.Diagnosis, act Action, outcome Outcome) Report {
	scores := make(map[string]ReportScore, len(res.Passes))
	for p, pr := range res.Passes {
		threshold := thresholdFor(cfg, p)
		scores[string(p)] = ReportScore{
			Score:     round1(pr.Score),
			Threshold: threshold,
			Passed:    pr.Score >= threshold,
		}
	}
	return Report{
		Loop: ReportLoop{
			Iteration:    state.Iteration,
			Status:       strings.ToLower(string(outcome)),
			OverallScore: round1(res.OverallScore),
			TargetScore:  cfg.Target,
		},
		Diagnosis: ReportDiagnosis{
			RootCause:      act.RootCause,
			Defect:         act.Defect,
			PrimarySource:  string(diag.PrimarySource),
			GutterDetected: gutterDetected(state, cfg.GutterThreshold),
		},
		Action: ReportAction{
			Route:        act.Route,
			Skill:        act.Skill,
			Instructions: act.Instructions,
		},
		PassScores:       scores,
		GuardrailsActive: len(state.Guardrails),
	}
}

// WriteReport marshals the report into the case's reports directory and
// returns the written path.
func WriteReport(caseDir string, iteration int, rep Report) (string, error) {
	data, err := yaml.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return workspace.WriteText(caseDir, workspace.ReportFilename(iteration), string(data))
}

// gutterDetected reports whether any defect has hit the gutter
// threshold.
func gutterDetected(state *State, threshold int) bool {
	for _, rec := range state.FailureCounts {
		if rec.Count >= threshold {
			return true
		}
	}
	return false
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
