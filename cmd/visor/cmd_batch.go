package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dpopsuev/visor/internal/display"
	"github.com/dpopsuev/visor/internal/evaluate"
	"github.com/dpopsuev/visor/internal/format"
	"github.com/dpopsuev/visor/internal/workspace"
)

var batchFlags struct {
	suitePath   string
	workers     int
	tokenBudget int
	target      float64
	configPath  string
	markdown    bool
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate a suite of captures concurrently",
	Long: `Batch scores every capture listed in a suite manifest (YAML or JSON)
with a bounded worker pool and prints a summary table. One failing case
does not stop its siblings.`,
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.StringVar(&batchFlags.suitePath, "suite", "", "Suite manifest path (required)")
	f.IntVar(&batchFlags.workers, "workers", 4, "Concurrent evaluations")
	f.IntVar(&batchFlags.tokenBudget, "token-budget", 0, "Concurrent image decodes (0 = same as --workers)")
	f.Float64Var(&batchFlags.target, "target", 0, "Overall score target (default from config)")
	f.StringVar(&batchFlags.configPath, "config", "", "Engine config file (YAML or JSON)")
	f.BoolVar(&batchFlags.markdown, "markdown", false, "Render the summary as a Markdown table")

	_ = batchCmd.MarkFlagRequired("suite")
}

func runBatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(batchFlags.configPath, batchFlags.target, 0)
	if err != nil {
		return err
	}
	suite, err := workspace.LoadSuite(batchFlags.suitePath)
	if err != nil {
		return err
	}

	cases := make([]evaluate.Case, len(suite.Entries))
	for i, e := range suite.Entries {
		cases[i] = evaluate.Case{
			Name:          e.Name,
			GeneratedPath: e.Capture,
			ReferencePath: e.Reference,
			SourcePath:    e.Source,
		}
	}

	results := evaluate.RunBatch(cmd.Context(), evaluate.New(cfg), cases, evaluate.BatchOptions{
		Workers:     batchFlags.workers,
		TokenBudget: batchFlags.tokenBudget,
	})

	tb := format.NewTable(tableMode(batchFlags.markdown))
	tb.Title(fmt.Sprintf("Batch %s (target %s)", batchFlags.suitePath, format.FmtScore(cfg.Target)))
	tb.Header("Case", "Overall", "Worst Pass", "OK")
	var converged, failed int
	for _, cr := range results {
		if cr.Err != nil {
			failed++
			tb.Row(cr.Name, "-", format.Truncate(cr.Err.Error(), 60), format.BoolMark(false))
			continue
		}
		res := *cr.Result
		if res.Converged {
			converged++
		}
		worst, worstRes := res.WorstPass()
		tb.Row(cr.Name,
			format.FmtScore(res.OverallScore),
			fmt.Sprintf("%s (%s)", display.Pass(string(worst)), format.FmtScore(worstRes.Score)),
			format.BoolMark(res.Converged))
	}
	tb.Footer(fmt.Sprintf("%d/%d converged", converged, len(results)), "", "", "")
	tb.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})

	fmt.Fprintln(cmd.OutOrStdout(), tb.String())

	if failed > 0 {
		return fmt.Errorf("batch: %d of %d case(s) failed to evaluate", failed, len(results))
	}
	return nil
}
