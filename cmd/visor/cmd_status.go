package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dpopsuev/visor/internal/converge"
	"github.com/dpopsuev/visor/internal/display"
	"github.com/dpopsuev/visor/internal/evaluate"
	"github.com/dpopsuev/visor/internal/format"
	"github.com/dpopsuev/visor/internal/store"
	"github.com/dpopsuev/visor/internal/workspace"
)

var statusFlags struct {
	caseName string
	basePath string
	dbPath   string
	markdown bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show convergence state and history for a case",
	RunE:  runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusFlags.caseName, "case", "", "Case name (required)")
	f.StringVar(&statusFlags.basePath, "base-path", workspace.DefaultBasePath, "Case storage root")
	f.StringVar(&statusFlags.dbPath, "db", store.DefaultDBPath, "Run history DB path")
	f.BoolVar(&statusFlags.markdown, "markdown", false, "Render tables as Markdown")

	_ = statusCmd.MarkFlagRequired("case")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	caseDir := workspace.CaseDir(statusFlags.basePath, statusFlags.caseName)
	state, err := converge.LoadState(caseDir)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	out := cmd.OutOrStdout()
	if state == nil {
		fmt.Fprintf(out, "No convergence state for case %s\n", statusFlags.caseName)
		fmt.Fprintf(out, "Run 'visor run --case=%s' to start the loop.\n", statusFlags.caseName)
		return nil
	}
	mode := tableMode(statusFlags.markdown)

	fmt.Fprintf(out, "Case:      %s\n", state.Case)
	fmt.Fprintf(out, "Status:    %s\n", display.Status(state.Status))
	fmt.Fprintf(out, "Iteration: %d\n", state.Iteration)
	fmt.Fprintf(out, "Converged: %s\n", format.BoolMark(state.Converged))
	if state.LastAction != "" {
		fmt.Fprintf(out, "Action:    %s\n", state.LastAction)
	}
	fmt.Fprintln(out)

	if len(state.Scores) > 0 {
		tb := format.NewTable(mode)
		tb.Header("Pass", "Score")
		for _, p := range evaluate.AllPasses() {
			if score, ok := state.Scores[string(p)]; ok {
				tb.Row(display.Pass(string(p)), format.FmtScore(score))
			}
		}
		if overall, ok := state.Scores["overall"]; ok {
			tb.Footer("Overall", format.FmtScore(overall))
		}
		tb.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})
		fmt.Fprintln(out, tb.String())
	}

	rails, err := converge.ParseGuardrails(caseDir)
	if err == nil && len(rails) > 0 {
		fmt.Fprintf(out, "Guardrails: (%d)\n", len(rails))
		for _, g := range rails {
			fmt.Fprintf(out, "  [iteration %d] %s: %s\n", g.Iteration, g.Trigger, g.Instruction)
		}
		fmt.Fprintln(out)
	}

	if len(state.History) > 0 {
		tb := format.NewTable(mode)
		tb.Title("History")
		tb.Header("Iter", "Overall", "Outcome", "Action", "When")
		for _, h := range state.History {
			tb.Row(h.Iteration, format.FmtScore(h.Overall),
				display.Outcome(string(h.Outcome)), h.Action, h.Timestamp)
		}
		tb.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})
		fmt.Fprintln(out, tb.String())
	}

	printRecordedRun(out, mode)
	return nil
}

// printRecordedRun appends the history DB view when a DB exists. The
// store is the queryable record; its absence is not an error.
func printRecordedRun(out io.Writer, mode format.Mode) {
	if _, err := os.Stat(statusFlags.dbPath); err != nil {
		return
	}
	st, err := store.Open(statusFlags.dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open history DB: %v\n", err)
		return
	}
	defer st.Close()

	run, err := st.GetRunByCase(statusFlags.caseName)
	if err != nil || run == nil {
		return
	}
	fmt.Fprintf(out, "Recorded run #%d: %s (started %s", run.ID, display.Status(run.Status), run.CreatedAt)
	if run.FinishedAt != "" {
		fmt.Fprintf(out, ", finished %s", run.FinishedAt)
	}
	fmt.Fprintln(out, ")")

	latest, err := st.LatestIteration(run.ID)
	if err != nil || latest == nil {
		return
	}
	defects, err := st.ListDefects(latest.ID)
	if err != nil || len(defects) == 0 {
		return
	}
	tb := format.NewTable(mode)
	tb.Title(fmt.Sprintf("Defects at iteration %d", latest.N))
	tb.Header("Pass", "Source", "Type", "Severity", "Fix Hint")
	for _, d := range defects {
		tb.Row(display.Pass(d.Pass), display.Source(d.Source), display.DefectType(d.Type),
			fmt.Sprintf("%.2f", d.Severity), format.Truncate(d.FixHint, 48))
	}
	fmt.Fprintln(out, tb.String())
}
