package converge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dpopsuev/visor/internal/config"
	"github.com/dpopsuev/visor/internal/evaluate"
	"github.com/dpopsuev/visor/internal/workspace"
)

// Guardrail is a standing instruction accumulated from a repeated
// failure. Guardrails survive in guardrails.md so later iterations (and
// operators) see what already went wrong.
type Guardrail struct {
	Trigger     string
	Instruction string
	Iteration   int
}

func (g Guardrail) String() string {
	return g.Trigger + ": " + g.Instruction
}

const guardrailsHeader = `# Guardrails

Standing instructions accumulated from repeated failures.

## Signs

<!-- Signs are added automatically when a defect repeats -->
`

// WriteProgress rewrites progress.md with the current scores, the
// success-criteria checkboxes and the full iteration log.
func WriteProgress(caseDir string, cfg config.Config, state *State) error {
	overall := state.Scores["overall"]

	lines := []string{
		"# Convergence Progress",
		"",
		fmt.Sprintf("> **Target**: %g%% overall visual quality score", cfg.Target),
		fmt.Sprintf("> **Prompt**: %q", state.Prompt),
		fmt.Sprintf("> **Iteration**: %d", state.Iteration),
		"",
		"## Success Criteria (Machine-Verifiable)",
		"",
	}

	for _, p := range evaluate.AllPasses() {
		threshold := thresholdFor(cfg, p)
		score := state.Scores[string(p)]
		checked := " "
		if score >= threshold {
			checked = "x"
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s >= %g%% (current: %.1f%%)",
			checked, passTitle(string(p)), threshold, score))
	}
	overallChecked := " "
	if overall >= cfg.Target {
		overallChecked = "x"
	}
	lines = append(lines, fmt.Sprintf("- [%s] **Overall >= %g%%** (current: %.1f%%)",
		overallChecked, cfg.Target, overall))

	lines = append(lines,
		"",
		"## Current Scores",
		"",
		"| Pass | Score | Threshold | Status |",
		"|------|-------|-----------|--------|",
	)
	for _, p := range evaluate.AllPasses() {
		threshold := thresholdFor(cfg, p)
		score := state.Scores[string(p)]
		status := "✗"
		if score >= threshold {
			status = "✓"
		}
		lines = append(lines, fmt.Sprintf("| %s | %.1f%% | %g%% | %s |",
			passTitle(string(p)), score, threshold, status))
	}
	overallStatus := "✗"
	if overall >= cfg.Target {
		overallStatus = "✓"
	}
	lines = append(lines, fmt.Sprintf("| **Overall** | **%.1f%%** | **%g%%** | %s |",
		overall, cfg.Target, overallStatus))

	lines = append(lines,
		"",
		"## Iteration Log",
		"",
		"| Iter | Overall | Action Taken | Result |",
		"|------|---------|--------------|--------|",
	)
	for _, rec := range state.History {
		action := rec.Action
		if action == "" {
			action = "Initial"
		}
		lines = append(lines, fmt.Sprintf("| %d | %.1f%% | %s | %s |",
			rec.Iteration, rec.Overall, action, resultWord(rec.Outcome)))
	}

	_, err := workspace.WriteText(caseDir, workspace.ProgressFilename, strings.Join(lines, "\n")+"\n")
	return err
}

var progressLine = regexp.MustCompile(`- \[([ x])\] \*{0,2}(\w+) >= ([0-9.]+)%\*{0,2} \(current: ([0-9.]+)%\)`)

// ParseProgress reads the current scores back out of progress.md,
// keyed by lowercase pass name plus "overall". Missing file reads as
// empty.
func ParseProgress(caseDir string) (map[string]float64, error) {
	content, err := workspace.ReadText(caseDir, workspace.ProgressFilename)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64)
	for _, m := range progressLine.FindAllStringSubmatch(content, -1) {
		score, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			continue
		}
		scores[strings.ToLower(m[2])] = score
	}
	return scores, nil
}

// AppendGuardrail adds a new Sign to guardrails.md and mirrors it into
// the state's guardrail list.
func AppendGuardrail(caseDir string, state *State, trigger, instruction string) error {
	content, err := workspace.ReadText(caseDir, workspace.GuardrailsFilename)
	if err != nil {
		return err
	}
	if content == "" {
		content = guardrailsHeader
	}

	sign := fmt.Sprintf("\n### Sign: %s\n- **Instruction**: %s\n- **Added after**: Iteration %d\n",
		trigger, instruction, state.Iteration)

	// Insert right below the marker so newest signs come first; fall
	// back to appending when the marker was hand-edited away.
	marker := "<!-- Signs are added automatically"
	if idx := strings.Index(content, marker); idx >= 0 {
		if nl := strings.Index(content[idx:], "\n"); nl >= 0 {
			pos := idx + nl + 1
			content = content[:pos] + sign + content[pos:]
		} else {
			content += sign
		}
	} else {
		content += sign
	}

	if _, err := workspace.WriteText(caseDir, workspace.GuardrailsFilename, content); err != nil {
		return err
	}
	state.Guardrails = append(state.Guardrails, trigger+": "+instruction)
	return nil
}

// ParseGuardrails reads the Signs back out of guardrails.md. Missing
// file reads as no guardrails.
func ParseGuardrails(caseDir string) ([]Guardrail, error) {
	content, err := workspace.ReadText(caseDir, workspace.GuardrailsFilename)
	if err != nil {
		return nil, err
	}
	var (
		out []Guardrail
		cur *Guardrail
	)
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "### Sign: "):
			flush()
			cur = &Guardrail{Trigger: strings.TrimPrefix(line, "### Sign: ")}
		case cur != nil && strings.HasPrefix(line, "- **Instruction**: "):
			cur.Instruction = strings.TrimPrefix(line, "- **Instruction**: ")
		case cur != nil && strings.HasPrefix(line, "- **Added after**: Iteration "):
			n, err := strconv.Atoi(strings.TrimPrefix(line, "- **Added after**: Iteration "))
			if err == nil {
				cur.Iteration = n
			}
		}
	}
	flush()
	return out, nil
}

// LogActivity appends a timestamped line to activity.log.
func LogActivity(caseDir string, iteration int, message string) error {
	line := fmt.Sprintf("[%s] Iter %d: %s",
		time.Now().UTC().Format(time.RFC3339), iteration, message)
	return workspace.AppendLine(caseDir, workspace.ActivityFilename, line)
}

// passTitle capitalizes a pass name for display.
func passTitle(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// resultWord renders an outcome for the iteration log.
func resultWord(o Outcome) string {
	switch o {
	case OutcomeConverge:
		return "Converged"
	case OutcomeEscalate:
		return "Escalated"
	default:
		return "Continue"
	}
}
