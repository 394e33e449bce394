package store

import (
	"path/filepath"
	"testing"
)

// backends builds each Store implementation fresh so every subtest runs
// the same assertions against both.
var backends = map[string]func(t *testing.T) Store{
	"mem": func(t *testing.T) Store { return NewMemStore() },
	"sqlite": func(t *testing.T) Store {
		s, err := Open(filepath.Join(t.TempDir(), "visor.db"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	},
}

func TestStore_RunLifecycle(t *testing.T) {
	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			s := mk(t)

			runID, err := s.CreateRun(&Run{Case: "pipeline-arch", Prompt: "data pipeline overview", Target: 95})
			if err != nil {
				t.Fatalf("CreateRun: %v", err)
			}
			run, err := s.GetRun(runID)
			if err != nil || run == nil {
				t.Fatalf("GetRun: got %+v err %v", run, err)
			}
			if run.Status != "running" || run.CreatedAt == "" {
				t.Errorf("defaults not applied: %+v", run)
			}

			byCase, err := s.GetRunByCase("pipeline-arch")
			if err != nil || byCase == nil || byCase.ID != runID {
				t.Fatalf("GetRunByCase: got %+v err %v", byCase, err)
			}
			missing, err := s.GetRunByCase("absent")
			if err != nil || missing != nil {
				t.Fatalf("expected nil for absent case, got %+v err %v", missing, err)
			}

			if _, err := s.CreateRun(&Run{Case: "pipeline-arch", Target: 95}); err == nil {
				t.Error("expected duplicate case error")
			}

			if _, err := s.CreateRun(&Run{Case: "second", Target: 90}); err != nil {
				t.Fatalf("CreateRun second: %v", err)
			}
			runs, err := s.ListRuns()
			if err != nil || len(runs) != 2 {
				t.Fatalf("ListRuns: got %d err %v", len(runs), err)
			}
			if runs[0].Case != "second" {
				t.Errorf("expected newest first, got %q", runs[0].Case)
			}

			if err := s.FinishRun(runID, "converged"); err != nil {
				t.Fatalf("FinishRun: %v", err)
			}
			run, err = s.GetRun(runID)
			if err != nil || run == nil {
				t.Fatalf("GetRun after finish: %v", err)
			}
			if run.Status != "converged" || run.FinishedAt == "" {
				t.Errorf("finish not recorded: %+v", run)
			}
		})
	}
}

func TestStore_Iterations(t *testing.T) {
	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			runID, err := s.CreateRun(&Run{Case: "pipeline-arch", Target: 95})
			if err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			id1, err := s.AddIteration(&Iteration{
				RunID: runID, N: 1, Overall: 70.5,
				Scores:  map[string]float64{"badges": 40, "overall": 70.5},
				Outcome: "CONTINUE", Action: "Diagnosed diagram_template -> direct",
			})
			if err != nil {
				t.Fatalf("AddIteration: %v", err)
			}
			if _, err := s.AddIteration(&Iteration{
				RunID: runID, N: 2, Overall: 84.3,
				Scores:  map[string]float64{"badges": 90, "overall": 84.3},
				Outcome: "CONTINUE",
			}); err != nil {
				t.Fatalf("AddIteration 2: %v", err)
			}
			if _, err := s.AddIteration(&Iteration{RunID: runID, N: 2, Overall: 84.3, Outcome: "CONTINUE"}); err == nil {
				t.Error("expected duplicate iteration error")
			}

			list, err := s.ListIterations(runID)
			if err != nil || len(list) != 2 {
				t.Fatalf("ListIterations: got %d err %v", len(list), err)
			}
			if list[0].N != 1 || list[1].N != 2 {
				t.Errorf("iteration order: %d, %d", list[0].N, list[1].N)
			}
			if list[0].ID != id1 || list[0].Action != "Diagnosed diagram_template -> direct" {
				t.Errorf("iteration fields: %+v", list[0])
			}
			if list[0].Scores["badges"] != 40 || list[0].Scores["overall"] != 70.5 {
				t.Errorf("scores round trip: %v", list[0].Scores)
			}
			if list[0].CreatedAt == "" {
				t.Error("created_at not defaulted")
			}

			latest, err := s.LatestIteration(runID)
			if err != nil || latest == nil || latest.N != 2 {
				t.Fatalf("LatestIteration: got %+v err %v", latest, err)
			}
			none, err := s.LatestIteration(runID + 100)
			if err != nil || none != nil {
				t.Fatalf("expected nil latest for empty run, got %+v err %v", none, err)
			}
		})
	}
}

func TestStore_Defects(t *testing.T) {
	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			runID, err := s.CreateRun(&Run{Case: "pipeline-arch", Target: 95})
			if err != nil {
				t.Fatalf("CreateRun: %v", err)
			}
			itID, err := s.AddIteration(&Iteration{RunID: runID, N: 1, Overall: 70.5, Outcome: "CONTINUE"})
			if err != nil {
				t.Fatalf("AddIteration: %v", err)
			}

			defects := []*Defect{
				{Pass: "badges", Source: "content", Type: "missing-badge", Severity: 0.42,
					Description: "Missing 4 of 8 expected badges",
					FixTarget:   "diagram-template", FixHint: "add badge nodes"},
				{Pass: "layout", Source: "rendering", Type: "wrong-position", Severity: 0.3,
					Description: "Badges scattered across the canvas"},
			}
			if err := s.AddDefects(itID, defects); err != nil {
				t.Fatalf("AddDefects: %v", err)
			}
			if err := s.AddDefects(itID, nil); err != nil {
				t.Errorf("empty defect batch: %v", err)
			}

			got, err := s.ListDefects(itID)
			if err != nil || len(got) != 2 {
				t.Fatalf("ListDefects: got %d err %v", len(got), err)
			}
			if got[0].Type != "missing-badge" || got[0].Severity != 0.42 || got[0].FixTarget != "diagram-template" {
				t.Errorf("first defect: %+v", got[0])
			}
			if got[1].Pass != "layout" || got[1].FixHint != "" {
				t.Errorf("second defect: %+v", got[1])
			}
		})
	}
}

func TestStore_Guardrails(t *testing.T) {
	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			runID, err := s.CreateRun(&Run{Case: "pipeline-arch", Target: 95})
			if err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			id, err := s.AddGuardrail(&Guardrail{
				RunID: runID, Trigger: "Repeated badges failure",
				Instruction: "Escalate to the layout-debugger skill.", Iteration: 3,
			})
			if err != nil || id == 0 {
				t.Fatalf("AddGuardrail: id %d err %v", id, err)
			}

			rails, err := s.ListGuardrails(runID)
			if err != nil || len(rails) != 1 {
				t.Fatalf("ListGuardrails: got %d err %v", len(rails), err)
			}
			g := rails[0]
			if g.Trigger != "Repeated badges failure" || g.Iteration != 3 || g.CreatedAt == "" {
				t.Errorf("guardrail fields: %+v", g)
			}
		})
	}
}

// TestSqlStore_Reopen checks the schema survives a close/open cycle and
// the data is still there.
func TestSqlStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visor.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	runID, err := s.CreateRun(&Run{Case: "persist", Target: 95})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	run, err := s2.GetRunByCase("persist")
	if err != nil || run == nil || run.ID != runID {
		t.Fatalf("GetRunByCase after reopen: got %+v err %v", run, err)
	}
}
