// visor scores rendered architecture diagrams and drives them toward a
// quality target through a render, capture, evaluate, diagnose loop.
//
// Usage:
//
//	visor run      --case=<name> [--prompt=<text>] [--capture-url=<url>]
//	visor evaluate --image=<png> [--reference=<png>] [--source=<mmd>]
//	visor capture  --source=<mmd> -o <png>
//	visor batch    --suite=<manifest>
//	visor status   --case=<name>
//	visor serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dpopsuev/visor/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "visor",
	Short: "Visual-quality convergence for rendered architecture diagrams",
	Long: "Visor evaluates rendered diagram captures across six weighted passes,\n" +
		"classifies defects into content and rendering sources, and iterates\n" +
		"render, capture, evaluate, diagnose until the quality target is met.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logging.Init(logging.ParseLevel(rootFlags.logLevel), rootFlags.logFormat)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
