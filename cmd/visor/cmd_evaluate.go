package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dpopsuev/visor/internal/display"
	"github.com/dpopsuev/visor/internal/evaluate"
	"github.com/dpopsuev/visor/internal/format"
	"github.com/dpopsuev/visor/internal/workspace"
)

var evaluateFlags struct {
	imagePath     string
	referencePath string
	sourcePath    string
	target        float64
	configPath    string
	reportPath    string
	markdown      bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a rendered capture once and print the pass breakdown",
	Long: `Evaluate scores one capture (plus optional reference image and diagram
source) across the six passes and prints the weighted breakdown. At least
one of --image and --source is required.`,
	RunE: runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evaluateFlags.imagePath, "image", "", "Rendered capture to score")
	f.StringVar(&evaluateFlags.referencePath, "reference", "", "Reference image to compare against")
	f.StringVar(&evaluateFlags.sourcePath, "source", "", "Diagram source the capture was rendered from")
	f.Float64Var(&evaluateFlags.target, "target", 0, "Overall score target (default from config)")
	f.StringVar(&evaluateFlags.configPath, "config", "", "Engine config file (YAML or JSON)")
	f.StringVar(&evaluateFlags.reportPath, "report", "", "Write the full result as YAML to this path")
	f.BoolVar(&evaluateFlags.markdown, "markdown", false, "Render the breakdown as a Markdown table")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	if evaluateFlags.imagePath == "" && evaluateFlags.sourcePath == "" {
		return fmt.Errorf("at least one of --image and --source is required")
	}
	cfg, err := loadConfig(evaluateFlags.configPath, evaluateFlags.target, 0)
	if err != nil {
		return err
	}

	var in evaluate.Input
	if evaluateFlags.imagePath != "" {
		img, err := workspace.ReadImage(evaluateFlags.imagePath)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		if img == nil {
			return fmt.Errorf("--image: %s does not exist", evaluateFlags.imagePath)
		}
		in.Generated = img
	}
	if evaluateFlags.referencePath != "" {
		ref, err := workspace.ReadImage(evaluateFlags.referencePath)
		if err != nil {
			return fmt.Errorf("read reference: %w", err)
		}
		if ref == nil {
			return fmt.Errorf("--reference: %s does not exist", evaluateFlags.referencePath)
		}
		in.Reference = ref
	}
	if evaluateFlags.sourcePath != "" {
		src, err := os.ReadFile(evaluateFlags.sourcePath)
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		in.Source = string(src)
	}

	res := evaluate.New(cfg).Evaluate(in, 0)
	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderBreakdown(cfg.PassThresholds, res, tableMode(evaluateFlags.markdown)))

	for _, p := range evaluate.AllPasses() {
		pr := res.Passes[p]
		for _, d := range pr.Defects {
			fmt.Fprintf(out, "defect [%s] %s\n", display.Pass(string(p)), d)
		}
	}
	if !res.Converged {
		worst, worstRes := res.WorstPass()
		fmt.Fprintf(out, "\nWorst pass: %s at %s\n", display.Pass(string(worst)), format.FmtScore(worstRes.Score))
	}

	if evaluateFlags.reportPath != "" {
		data, err := yaml.Marshal(res)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		if err := os.WriteFile(evaluateFlags.reportPath, data, 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(out, "Report: %s\n", evaluateFlags.reportPath)
	}
	return nil
}

// renderBreakdown builds the per-pass score table shared by evaluate
// and status.
func renderBreakdown(thresholds map[string]float64, res evaluate.Result, mode format.Mode) string {
	tb := format.NewTable(mode)
	tb.Header("Pass", "Score", "Threshold", "OK")
	for _, p := range evaluate.AllPasses() {
		pr, ok := res.Passes[p]
		if !ok {
			continue
		}
		threshold, hasThreshold := thresholds[string(p)]
		thresholdCell := "-"
		okCell := ""
		if hasThreshold {
			thresholdCell = format.FmtScore(threshold)
			okCell = format.BoolMark(!pr.Failing(threshold))
		}
		tb.Row(display.Pass(string(p)), format.FmtScore(pr.Score), thresholdCell, okCell)
	}
	tb.Footer("Overall", format.FmtScore(res.OverallScore), "", format.BoolMark(res.Converged))
	tb.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})
	return tb.String() + "\n"
}

func tableMode(markdown bool) format.Mode {
	if markdown {
		return format.Markdown
	}
	return format.ASCII
}
