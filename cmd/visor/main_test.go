package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dpopsuev/visor/internal/converge"
	"github.com/dpopsuev/visor/internal/render"
	"github.com/dpopsuev/visor/internal/store"
	"github.com/dpopsuev/visor/internal/workspace"
)

// execute runs the root command in-process and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTemplateSource(t *testing.T) string {
	t.Helper()
	source, err := render.TemplateGenerator{}.Generate(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "source.mmd")
	if err := os.WriteFile(path, []byte(source), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEvaluate_SourceOnly(t *testing.T) {
	sourcePath := writeTemplateSource(t)
	reportPath := filepath.Join(t.TempDir(), "report.yaml")

	out, err := execute(t, "evaluate", "--source", sourcePath, "--report", reportPath)
	if err != nil {
		t.Fatalf("evaluate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Overall") {
		t.Errorf("expected overall row in output:\n%s", out)
	}
	// Without a capture the layout pass bottoms out.
	if !strings.Contains(out, "Worst pass: Layout") {
		t.Errorf("expected layout as worst pass:\n%s", out)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.Contains(string(data), "overall_score") {
		t.Errorf("report missing overall_score:\n%s", data)
	}
}

func TestEvaluate_NoInputs(t *testing.T) {
	_, err := execute(t, "evaluate", "--source", "", "--image", "", "--report", "")
	if err == nil {
		t.Fatal("expected error without --image or --source")
	}
}

func TestStatus_NoState(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "status",
		"--case", "ghost",
		"--base-path", dir,
		"--db", filepath.Join(dir, "visor.db"))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "No convergence state for case ghost") {
		t.Errorf("expected no-state message:\n%s", out)
	}
}

func TestBatch_SourceOnlySuite(t *testing.T) {
	dir := t.TempDir()
	source, err := render.TemplateGenerator{}.Generate(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "source.mmd"), []byte(source), 0644); err != nil {
		t.Fatal(err)
	}
	manifest := "entries:\n  - capture: missing.png\n    source: source.mmd\n"
	suitePath := filepath.Join(dir, "suite.yaml")
	if err := os.WriteFile(suitePath, []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "batch", "--suite", suitePath)
	if err != nil {
		t.Fatalf("batch: %v\n%s", err, out)
	}
	// Name defaults to the capture basename; the missing capture is
	// scored in degraded mode, not failed.
	if !strings.Contains(out, "missing") {
		t.Errorf("expected case name in summary:\n%s", out)
	}
	if !strings.Contains(out, "0/1 converged") {
		t.Errorf("expected convergence tally:\n%s", out)
	}
}

func TestRun_SourceOnlyEscalates(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "visor.db")

	out, err := execute(t, "run",
		"--case", "cli-case",
		"--no-capture",
		"--base-path", dir,
		"--db", dbPath)
	if err == nil {
		t.Fatalf("expected escalation error, got none:\n%s", out)
	}
	if !strings.Contains(err.Error(), "escalated") {
		t.Errorf("expected escalation in error, got: %v", err)
	}
	if !strings.Contains(out, "[1/10]") || !strings.Contains(out, "[3/10]") {
		t.Errorf("expected three iteration lines:\n%s", out)
	}
	if !strings.Contains(out, "Escalated") {
		t.Errorf("expected escalated outcome in output:\n%s", out)
	}

	state, err := converge.LoadState(workspace.CaseDir(dir, "cli-case"))
	if err != nil || state == nil {
		t.Fatalf("state not persisted: %v", err)
	}
	if state.Status != "escalated" || state.Iteration != 3 {
		t.Errorf("state = %s at iteration %d, want escalated at 3", state.Status, state.Iteration)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open recorded DB: %v", err)
	}
	defer st.Close()
	run, err := st.GetRunByCase("cli-case")
	if err != nil || run == nil {
		t.Fatalf("run not recorded: %v", err)
	}
	if run.Status != "escalated" {
		t.Errorf("recorded run status = %s, want escalated", run.Status)
	}
	iters, err := st.ListIterations(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(iters) != 3 {
		t.Errorf("recorded %d iterations, want 3", len(iters))
	}
	rails, err := st.ListGuardrails(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rails) != 1 {
		t.Errorf("recorded %d guardrails, want 1", len(rails))
	}
}

func TestStatus_AfterRun(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "visor.db")

	_, _ = execute(t, "run",
		"--case", "status-case",
		"--no-capture",
		"--base-path", dir,
		"--db", dbPath)

	out, err := execute(t, "status",
		"--case", "status-case",
		"--base-path", dir,
		"--db", dbPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"status-case", "Escalated", "History", "Recorded run #"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in status output:\n%s", want, out)
		}
	}
}

func TestLoadConfig_FileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visor.yaml")
	if err := os.WriteFile(path, []byte("target: 85.0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target != 85.0 {
		t.Errorf("Target = %v, want 85.0 from file", cfg.Target)
	}
	if cfg.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want default 10", cfg.MaxIterations)
	}

	cfg, err = loadConfig(path, 90, 5)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target != 90 || cfg.MaxIterations != 5 {
		t.Errorf("overrides not applied: target=%v iterations=%d", cfg.Target, cfg.MaxIterations)
	}
}
