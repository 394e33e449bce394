package store

import (
	"fmt"

	"github.com/dpopsuev/visor/internal/converge"
)

// Recorder mirrors one case's loop iterations into a Store. The loop
// itself persists to the case directory; the recorder is the bridge to
// the queryable history behind status and reporting.
type Recorder struct {
	store Store
	runID int64
}

// NewRecorder finds or creates the run row for a case.
func NewRecorder(s Store, caseName, prompt string, target float64) (*Recorder, error) {
	run, err := s.GetRunByCase(caseName)
	if err != nil {
		return nil, err
	}
	if run != nil {
		return &Recorder{store: s, runID: run.ID}, nil
	}
	id, err := s.CreateRun(&Run{Case: caseName, Prompt: prompt, Target: target})
	if err != nil {
		return nil, fmt.Errorf("create run for %s: %w", caseName, err)
	}
	return &Recorder{store: s, runID: id}, nil
}

// RunID returns the run row this recorder writes to.
func (r *Recorder) RunID() int64 {
	return r.runID
}

// RecordStep persists one loop iteration with its classified defects,
// and closes the run on a terminal outcome.
func (r *Recorder) RecordStep(rep converge.StepReport) error {
	scores := make(map[string]float64, len(rep.Result.Passes)+1)
	for p, pr := range rep.Result.Passes {
		scores[string(p)] = pr.Score
	}
	scores["overall"] = rep.Overall

	itID, err := r.store.AddIteration(&Iteration{
		RunID:   r.runID,
		N:       rep.Iteration,
		Overall: rep.Overall,
		Scores:  scores,
		Outcome: string(rep.Outcome),
		Action:  rep.Action.Label(),
	})
	if err != nil {
		return err
	}

	if len(rep.Diagnosis.Defects) > 0 {
		defects := make([]*Defect, 0, len(rep.Diagnosis.Defects))
		for _, d := range rep.Diagnosis.Defects {
			defects = append(defects, &Defect{
				IterationID: itID,
				Pass:        string(d.Pass),
				Source:      string(d.Source),
				Type:        string(d.Type),
				Severity:    d.Severity,
				Description: d.Description,
				FixTarget:   d.FixTarget,
				FixHint:     d.FixHint,
			})
		}
		if err := r.store.AddDefects(itID, defects); err != nil {
			return err
		}
	}

	if rep.Outcome.Terminal() {
		status := "escalated"
		if rep.Outcome == converge.OutcomeConverge {
			status = "converged"
		}
		return r.store.FinishRun(r.runID, status)
	}
	return nil
}

// RecordGuardrails syncs the case's guardrail signs into the store,
// adding only the ones the run doesn't have yet.
func (r *Recorder) RecordGuardrails(rails []converge.Guardrail) error {
	existing, err := r.store.ListGuardrails(r.runID)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, g := range existing {
		seen[g.Trigger+"\x00"+g.Instruction] = true
	}
	for _, g := range rails {
		if seen[g.Trigger+"\x00"+g.Instruction] {
			continue
		}
		if _, err := r.store.AddGuardrail(&Guardrail{
			RunID:       r.runID,
			Trigger:     g.Trigger,
			Instruction: g.Instruction,
			Iteration:   g.Iteration,
		}); err != nil {
			return err
		}
	}
	return nil
}
