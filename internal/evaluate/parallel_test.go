package evaluate_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/dpopsuev/visor/internal/config"
	"github.com/dpopsuev/visor/internal/evaluate"
	"github.com/dpopsuev/visor/internal/mermaid"
	"github.com/dpopsuev/visor/internal/workspace"
)

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()

	goodPath := filepath.Join(dir, "good.png")
	if err := workspace.WritePNG(goodPath, goodRender(t)); err != nil {
		t.Fatalf("write good: %v", err)
	}
	blankPath := filepath.Join(dir, "blank.png")
	if err := workspace.WritePNG(blankPath, blankRender(t)); err != nil {
		t.Fatalf("write blank: %v", err)
	}
	sourcePath := filepath.Join(dir, "diagram.mmd")
	if err := os.WriteFile(sourcePath, []byte(mermaid.InitialTemplate()), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	garbagePath := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbagePath, []byte("not a png"), 0644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	cases := []evaluate.Case{
		{Name: "good", GeneratedPath: goodPath, ReferencePath: goodPath, SourcePath: sourcePath, Iteration: 1},
		{Name: "blank", GeneratedPath: blankPath},
		{Name: "missing", GeneratedPath: filepath.Join(dir, "absent.png")},
		{Name: "garbage", GeneratedPath: garbagePath},
	}

	ev := evaluate.New(config.Default())
	results := evaluate.RunBatch(context.Background(), ev, cases, evaluate.BatchOptions{Workers: 2, TokenBudget: 1})

	if len(results) != len(cases) {
		t.Fatalf("got %d results, want %d", len(results), len(cases))
	}
	for i, cr := range results {
		if cr.Index != i {
			t.Errorf("result %d has index %d", i, cr.Index)
		}
		if cr.Name != cases[i].Name {
			t.Errorf("result %d has name %q, want %q", i, cr.Name, cases[i].Name)
		}
	}

	good := results[0]
	if good.Err != nil {
		t.Fatalf("good case failed: %v", good.Err)
	}
	if good.Result == nil || !good.Result.Converged {
		t.Errorf("good case did not converge: %+v", good.Result)
	}
	if good.Result.Iteration != 1 {
		t.Errorf("good case iteration = %d, want 1", good.Result.Iteration)
	}

	blank := results[1]
	if blank.Err != nil {
		t.Fatalf("blank case failed: %v", blank.Err)
	}
	if blank.Result.Converged {
		t.Error("blank case converged")
	}

	// A missing capture is scored with the no-image penalties, not failed.
	missing := results[2]
	if missing.Err != nil {
		t.Fatalf("missing case failed: %v", missing.Err)
	}
	if math.Abs(missing.Result.OverallScore-68.25) > 1e-6 {
		t.Errorf("missing case score = %f, want 68.25", missing.Result.OverallScore)
	}

	// A corrupt capture is a real error and must not sink its siblings.
	garbage := results[3]
	if garbage.Err == nil {
		t.Error("garbage case did not error")
	}
	if garbage.Result != nil {
		t.Errorf("garbage case has result %+v, want nil", garbage.Result)
	}
}

func TestRunBatch_DefaultOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blank.png")
	if err := workspace.WritePNG(path, blankRender(t)); err != nil {
		t.Fatalf("write blank: %v", err)
	}

	ev := evaluate.New(config.Default())
	results := evaluate.RunBatch(context.Background(), ev,
		[]evaluate.Case{{Name: "only", GeneratedPath: path}}, evaluate.BatchOptions{})

	if len(results) != 1 || results[0].Err != nil || results[0].Result == nil {
		t.Fatalf("unexpected results: %+v", results)
	}
}
