package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dpopsuev/visor/internal/format"
	"github.com/dpopsuev/visor/internal/render"
	"github.com/dpopsuev/visor/internal/workspace"
)

var captureFlags struct {
	sourcePath string
	url        string
	outputPath string
	configPath string
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Render a diagram and screenshot it to a PNG",
	Long: `Capture serves the diagram source on a local harness, renders it in a
headless browser and writes the screenshot. With --url the harness is
skipped and the given page is captured directly.`,
	RunE: runCapture,
}

func init() {
	f := captureCmd.Flags()
	f.StringVar(&captureFlags.sourcePath, "source", "", "Diagram source file to render")
	f.StringVar(&captureFlags.url, "url", "", "Capture this URL instead of rendering --source")
	f.StringVarP(&captureFlags.outputPath, "output", "o", "", "Output PNG path (required)")
	f.StringVar(&captureFlags.configPath, "config", "", "Engine config file (YAML or JSON)")

	_ = captureCmd.MarkFlagRequired("output")
}

func runCapture(cmd *cobra.Command, _ []string) error {
	if captureFlags.sourcePath == "" && captureFlags.url == "" {
		return fmt.Errorf("one of --source and --url is required")
	}
	cfg, err := loadConfig(captureFlags.configPath, 0, 0)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	url := captureFlags.url
	var source string
	if url == "" {
		data, err := os.ReadFile(captureFlags.sourcePath)
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		source = string(data)

		harness := render.NewHarness(source)
		url, err = harness.Start()
		if err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			_ = harness.Stop(stopCtx)
		}()
	}

	img, err := render.NewBrowserCapturer(cfg.Capture).Capture(ctx, render.Target{URL: url, Source: source})
	if err != nil {
		return err
	}
	if err := workspace.WritePNG(captureFlags.outputPath, img); err != nil {
		return fmt.Errorf("write capture: %w", err)
	}

	info, err := os.Stat(captureFlags.outputPath)
	size := "unknown size"
	if err == nil {
		size = format.FmtBytes(info.Size())
	}
	bounds := img.Bounds()
	fmt.Fprintf(cmd.OutOrStdout(), "Capture: %s (%dx%d, %s)\n",
		captureFlags.outputPath, bounds.Dx(), bounds.Dy(), size)
	return nil
}
