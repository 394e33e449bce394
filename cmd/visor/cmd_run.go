package main

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dpopsuev/visor/internal/config"
	"github.com/dpopsuev/visor/internal/converge"
	"github.com/dpopsuev/visor/internal/display"
	"github.com/dpopsuev/visor/internal/format"
	"github.com/dpopsuev/visor/internal/logging"
	"github.com/dpopsuev/visor/internal/remedy"
	"github.com/dpopsuev/visor/internal/render"
	"github.com/dpopsuev/visor/internal/store"
	"github.com/dpopsuev/visor/internal/workspace"
)

var runFlags struct {
	caseName      string
	prompt        string
	target        float64
	maxIterations int
	captureURL    string
	captureFile   string
	noCapture     bool
	referencePath string
	basePath      string
	configPath    string
	dbPath        string
	noRecord      bool
	dispatchDir   string
	stepTimeout   time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the convergence loop for a case until target or escalation",
	Long: `Run iterates render, capture, evaluate, diagnose for one case until the
overall score reaches the target, the loop escalates on a repeated defect,
or the iteration budget runs out.

By default a local render harness is started and captured with a headless
browser. Use --capture-file to replay a pre-rendered capture,
--capture-url to point the browser at an external renderer, or
--no-capture to score diagram source alone.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.caseName, "case", "", "Case name (required)")
	f.StringVar(&runFlags.prompt, "prompt", "", "Generation prompt for the diagram")
	f.Float64Var(&runFlags.target, "target", 0, "Overall score target (default from config)")
	f.IntVar(&runFlags.maxIterations, "max-iterations", 0, "Iteration budget (default from config)")
	f.StringVar(&runFlags.captureURL, "capture-url", "", "Capture this URL instead of the local harness")
	f.StringVar(&runFlags.captureFile, "capture-file", "", "Replay a pre-rendered capture image instead of a browser")
	f.BoolVar(&runFlags.noCapture, "no-capture", false, "Skip capture; evaluate diagram source only")
	f.StringVar(&runFlags.referencePath, "reference", "", "Reference image to compare captures against")
	f.StringVar(&runFlags.basePath, "base-path", workspace.DefaultBasePath, "Case storage root")
	f.StringVar(&runFlags.configPath, "config", "", "Engine config file (YAML or JSON)")
	f.StringVar(&runFlags.dbPath, "db", store.DefaultDBPath, "Run history DB path")
	f.BoolVar(&runFlags.noRecord, "no-record", false, "Do not record the run in the history DB")
	f.StringVar(&runFlags.dispatchDir, "dispatch-dir", "", "Hand delegated fixes to an external responder via this directory")
	f.DurationVar(&runFlags.stepTimeout, "step-timeout", 0, "Per-collaborator deadline within an iteration (0 = none)")

	_ = runCmd.MarkFlagRequired("case")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(runFlags.configPath, runFlags.target, runFlags.maxIterations)
	if err != nil {
		return err
	}
	if err := requireFile("capture-file", runFlags.captureFile); err != nil {
		return err
	}
	log := logging.New("run")
	out := cmd.OutOrStdout()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	capturer, captureURL, cleanup, err := buildCapturer(cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	var reference image.Image
	if runFlags.referencePath != "" {
		reference, err = workspace.ReadImage(runFlags.referencePath)
		if err != nil {
			return fmt.Errorf("read reference: %w", err)
		}
		if reference == nil {
			return fmt.Errorf("--reference: %s does not exist", runFlags.referencePath)
		}
	}

	var dispatcher remedy.Dispatcher
	var fileDisp *remedy.FileDispatcher
	if runFlags.dispatchDir != "" {
		fileDisp = remedy.NewFileDispatcher(remedy.FileDispatcherConfig{
			WorkDir: runFlags.dispatchDir,
			Logger:  logging.New("dispatch"),
		})
		dispatcher = remedy.NewMux(remedy.NewDirectFixer(cfg), fileDisp)
	}

	ctrl, err := converge.New(converge.Options{
		Config:              cfg,
		BasePath:            runFlags.basePath,
		Case:                runFlags.caseName,
		Prompt:              runFlags.prompt,
		Capturer:            capturer,
		CaptureURL:          captureURL,
		Dispatcher:          dispatcher,
		Reference:           reference,
		CollaboratorTimeout: runFlags.stepTimeout,
	})
	if err != nil {
		return err
	}

	recorder, closeStore, err := openRecorder(cfg.Target)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	fmt.Fprintf(out, "Case: %s (target %s, budget %d iterations)\n",
		runFlags.caseName, format.FmtScore(cfg.Target), cfg.MaxIterations)

	var final converge.StepReport
	for {
		rep, err := ctrl.Step(ctx)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", rep.Iteration, err)
		}
		record(recorder, ctrl, rep, log)

		fmt.Fprintf(out, "[%d/%d] %s  %s  %s\n",
			rep.Iteration, cfg.MaxIterations,
			format.FmtScore(rep.Overall),
			display.Outcome(string(rep.Outcome)),
			rep.Action.Label())

		if rep.Outcome.Terminal() {
			final = rep
			break
		}
	}
	if fileDisp != nil {
		fileDisp.MarkDone()
	}

	fmt.Fprintf(out, "\n%s at %s after %d iteration(s)\n",
		display.Outcome(string(final.Outcome)), format.FmtScore(final.Overall), final.Iteration)
	if final.Message != "" {
		fmt.Fprintf(out, "%s\n", final.Message)
	}
	if final.ReportPath != "" {
		fmt.Fprintf(out, "Report: %s\n", final.ReportPath)
	}
	fmt.Fprintf(out, "Artifacts: %s\n", ctrl.CaseDir())

	if final.Outcome == converge.OutcomeEscalate {
		return fmt.Errorf("case %s escalated at %s", runFlags.caseName, format.FmtScore(final.Overall))
	}
	return nil
}

// buildCapturer picks the capture strategy from the flags. The cleanup
// function, when non-nil, stops the local harness.
func buildCapturer(cfg config.Config) (render.Capturer, string, func(), error) {
	switch {
	case runFlags.noCapture:
		return nil, "", nil, nil
	case runFlags.captureFile != "":
		return render.FileCapturer{}, runFlags.captureFile, nil, nil
	case runFlags.captureURL != "":
		return render.NewBrowserCapturer(cfg.Capture), runFlags.captureURL, nil, nil
	}

	// Local harness: swap in each iteration's source before the browser
	// navigates, so the page always renders the latest generation.
	harness := render.NewHarness("")
	baseURL, err := harness.Start()
	if err != nil {
		return nil, "", nil, err
	}
	browser := render.NewBrowserCapturer(cfg.Capture)
	capturer := render.CapturerFunc(func(ctx context.Context, target render.Target) (image.Image, error) {
		harness.SetSource(target.Source)
		return browser.Capture(ctx, target)
	})
	cleanup := func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = harness.Stop(stopCtx)
	}
	return capturer, baseURL, cleanup, nil
}

// openRecorder opens the history DB unless recording is disabled.
func openRecorder(target float64) (*store.Recorder, func(), error) {
	if runFlags.noRecord {
		return nil, nil, nil
	}
	st, err := store.Open(runFlags.dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open history DB: %w", err)
	}
	rec, err := store.NewRecorder(st, runFlags.caseName, runFlags.prompt, target)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("start run record: %w", err)
	}
	return rec, func() { st.Close() }, nil
}

// record persists one iteration. A recording failure is reported but
// never blocks the loop.
func record(rec *store.Recorder, ctrl *converge.Controller, rep converge.StepReport, log *slog.Logger) {
	if rec == nil {
		return
	}
	if err := rec.RecordStep(rep); err != nil {
		log.Warn("record iteration", "iteration", rep.Iteration, "error", err)
	}
	rails, err := converge.ParseGuardrails(ctrl.CaseDir())
	if err != nil {
		log.Warn("parse guardrails", "error", err)
		return
	}
	if err := rec.RecordGuardrails(rails); err != nil {
		log.Warn("record guardrails", "error", err)
	}
}
