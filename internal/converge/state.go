// Package converge runs the render, capture, evaluate, diagnose loop
// that drives a generated diagram toward its quality target. It tracks
// per-case state across iterations, detects gutters (the same defect
// failing repeatedly), and escalates when direct fixes stop helping.
package converge

import (
	"strings"
	"time"

	"github.com/dpopsuev/visor/internal/workspace"
)

// Phase is a stage of one loop iteration.
type Phase string

const (
	PhaseRender   Phase = "RENDER"
	PhaseCapture  Phase = "CAPTURE"
	PhaseEvaluate Phase = "EVALUATE"
	PhaseDiagnose Phase = "DIAGNOSE"
)

// Outcome is the controller's verdict after one iteration.
type Outcome string

const (
	OutcomeContinue Outcome = "CONTINUE"
	OutcomeConverge Outcome = "CONVERGE"
	OutcomeEscalate Outcome = "ESCALATE"
)

// Terminal reports whether the loop stops at this outcome.
func (o Outcome) Terminal() bool {
	return o == OutcomeConverge || o == OutcomeEscalate
}

// FailureRecord counts occurrences of one defect signature across
// iterations.
type FailureRecord struct {
	DefectKey  string `json:"defect_key"`
	Count      int    `json:"count"`
	Iterations []int  `json:"iterations"`
	LastAction string `json:"last_action,omitempty"`
}

// State tracks per-case convergence progress.
// Persisted to disk (JSON) so the controller can resume across CLI
// invocations.
type State struct {
	Case          string                    `json:"case"`
	Prompt        string                    `json:"prompt,omitempty"`
	Iteration     int                       `json:"iteration"`
	Scores        map[string]float64        `json:"scores"` // per pass, plus "overall"
	FailureCounts map[string]*FailureRecord `json:"failure_counts"`
	Guardrails    []string                  `json:"guardrails"`
	Converged     bool                      `json:"converged"`
	LastAction    string                    `json:"last_action,omitempty"`
	Status        string                    `json:"status"` // running, converged, escalated
	Source        string                    `json:"source,omitempty"`
	History       []IterationRecord         `json:"history"`
}

// IterationRecord logs a completed iteration with its outcome.
type IterationRecord struct {
	Iteration int     `json:"iteration"`
	Overall   float64 `json:"overall"`
	Outcome   Outcome `json:"outcome"`
	Action    string  `json:"action"`
	Timestamp string  `json:"timestamp"` // ISO 8601
}

// InitState creates fresh state for a case.
func InitState(caseName, prompt string) *State {
	return &State{
		Case:          caseName,
		Prompt:        prompt,
		Scores:        make(map[string]float64),
		FailureCounts: make(map[string]*FailureRecord),
		Status:        "running",
	}
}

// LoadState reads persisted state from the case directory. Returns nil
// when no state exists yet.
func LoadState(caseDir string) (*State, error) {
	return workspace.ReadArtifact[State](caseDir, workspace.StateFilename)
}

// SaveState persists state to the case directory.
func SaveState(caseDir string, state *State) error {
	return workspace.WriteArtifact(caseDir, workspace.StateFilename, state)
}

// RecordFailure bumps the failure count for a defect key and returns
// the new count.
func RecordFailure(state *State, key string) int {
	rec, ok := state.FailureCounts[key]
	if !ok {
		rec = &FailureRecord{DefectKey: key}
		state.FailureCounts[key] = rec
	}
	rec.Count++
	rec.Iterations = append(rec.Iterations, state.Iteration)
	rec.LastAction = state.LastAction
	return rec.Count
}

// RecordIteration appends an iteration record to the history.
func RecordIteration(state *State, overall float64, outcome Outcome, action string) {
	state.History = append(state.History, IterationRecord{
		Iteration: state.Iteration,
		Overall:   overall,
		Outcome:   outcome,
		Action:    action,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// DefectKey builds the gutter-tracking signature for a failing pass and
// its top defect. Numbers are stripped so the same defect with a
// drifting score accumulates under one key.
func DefectKey(pass, defect string) string {
	return pass + ":" + normalizeSignature(defect)
}

// normalizeSignature lowercases a defect description and collapses it
// to its words, dropping digits and punctuation.
func normalizeSignature(desc string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(desc) {
		if r >= 'a' && r <= 'z' {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}
