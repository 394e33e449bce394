package converge

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dpopsuev/visor/internal/config"
	"github.com/dpopsuev/visor/internal/diagnose"
	"github.com/dpopsuev/visor/internal/evaluate"
	"github.com/dpopsuev/visor/internal/logging"
	"github.com/dpopsuev/visor/internal/remedy"
	"github.com/dpopsuev/visor/internal/render"
	"github.com/dpopsuev/visor/internal/workspace"
)

// Evaluator scores one capture. Satisfied by *evaluate.Evaluator;
// injectable so tests can script score trajectories.
type Evaluator interface {
	Evaluate(in evaluate.Input, iteration int) evaluate.Result
}

// Options configures a Controller. Zero-value collaborators get
// defaults: a template generator, an in-process direct fixer, the
// standard evaluator. A nil Capturer runs the loop in source-only mode.
type Options struct {
	Config    config.Config
	BasePath  string // case storage root; default workspace.DefaultBasePath
	Case      string // case name, required
	Prompt    string // generation prompt
	Generator render.Generator
	Capturer  render.Capturer
	// CaptureURL is the render target handed to the capturer each
	// iteration (harness base URL, or a file path for FileCapturer).
	CaptureURL string
	Dispatcher remedy.Dispatcher
	Evaluator  Evaluator
	Reference  image.Image
	// CollaboratorTimeout bounds each generate, capture and dispatch
	// call. Zero means no per-call deadline beyond the step context.
	CollaboratorTimeout time.Duration
}

// Controller drives one case around the render, capture, evaluate,
// diagnose loop. Single-threaded: callers run Step or Run from one
// goroutine and cancel through the context.
type Controller struct {
	cfg           config.Config
	caseDir       string
	caseName      string
	prompt        string
	generator     render.Generator
	capturer      render.Capturer
	captureURL    string
	dispatcher    remedy.Dispatcher
	evaluator     Evaluator
	classifier    *diagnose.Classifier
	reference     image.Image
	collabTimeout time.Duration
	log           *slog.Logger
}

// StepReport is what one call to Step produced.
type StepReport struct {
	Iteration  int
	Outcome    Outcome
	Overall    float64
	Result     evaluate.Result
	Diagnosis  diagnose.Diagnosis
	Action     Action
	ReportPath string
	Message    string
}

// New builds a Controller and ensures the case directory exists.
func New(opts Options) (*Controller, error) {
	if opts.Case == "" {
		return nil, fmt.Errorf("converge: case name required")
	}
	basePath := opts.BasePath
	if basePath == "" {
		basePath = workspace.DefaultBasePath
	}
	caseDir, err := workspace.EnsureCaseDir(basePath, opts.Case)
	if err != nil {
		return nil, err
	}

	gen := opts.Generator
	if gen == nil {
		gen = render.TemplateGenerator{}
	}
	disp := opts.Dispatcher
	if disp == nil {
		disp = remedy.NewMux(remedy.NewDirectFixer(opts.Config), nil)
	}
	ev := opts.Evaluator
	if ev == nil {
		ev = evaluate.New(opts.Config)
	}

	return &Controller{
		cfg:           opts.Config,
		caseDir:       caseDir,
		caseName:      opts.Case,
		prompt:        opts.Prompt,
		generator:     gen,
		capturer:      opts.Capturer,
		captureURL:    opts.CaptureURL,
		dispatcher:    disp,
		evaluator:     ev,
		classifier:    diagnose.New(opts.Config),
		reference:     opts.Reference,
		collabTimeout: opts.CollaboratorTimeout,
		log:           logging.New("converge"),
	}, nil
}

// CaseDir returns the on-disk directory for this case.
func (c *Controller) CaseDir() string {
	return c.caseDir
}

// Step runs one iteration: render, capture, evaluate, diagnose, then
// either remediate and continue, converge, or escalate. Collaborator
// failures zero-score the iteration instead of aborting the loop, so
// a flaky renderer is diagnosed like any other repeated defect.
func (c *Controller) Step(ctx context.Context) (StepReport, error) {
	state, err := LoadState(c.caseDir)
	if err != nil {
		return StepReport{}, err
	}
	if state == nil {
		state = InitState(c.caseName, c.prompt)
	}
	if state.Status != "running" {
		return StepReport{
			Iteration: state.Iteration,
			Outcome:   statusOutcome(state.Status),
			Overall:   state.Scores["overall"],
			Message:   "loop already terminal",
		}, nil
	}

	state.Iteration++
	iter := state.Iteration
	_ = LogActivity(c.caseDir, iter, fmt.Sprintf("=== ITERATION %d START ===", iter))

	// RENDER: generate source unless a previous fix left one behind.
	var renderErr error
	if state.Source == "" {
		cctx, cancel := c.collabCtx(ctx)
		src, err := c.generator.Generate(cctx, c.prompt)
		cancel()
		if err != nil {
			renderErr = err
			c.log.Error("render failed", "case", c.caseName, "iteration", iter, "error", err)
			_ = LogActivity(c.caseDir, iter, fmt.Sprintf("render failed: %v", err))
		} else {
			state.Source = src
			c.log.Info("source generated", "case", c.caseName, "iteration", iter, "bytes", len(src))
		}
	}
	if state.Source != "" {
		if _, err := workspace.WriteText(c.caseDir, workspace.SourceFilename(iter), state.Source); err != nil {
			return StepReport{}, err
		}
	}

	// CAPTURE: screenshot the render. Nil capturer = source-only mode.
	var (
		img    image.Image
		capErr error
	)
	if renderErr == nil && c.capturer != nil {
		cctx, cancel := c.collabCtx(ctx)
		img, capErr = c.capturer.Capture(cctx, render.Target{URL: c.captureURL, Source: state.Source})
		cancel()
		if capErr != nil {
			c.log.Error("capture failed", "case", c.caseName, "iteration", iter, "error", capErr)
			_ = LogActivity(c.caseDir, iter, fmt.Sprintf("capture failed: %v", capErr))
		} else if img != nil {
			path := filepath.Join(c.caseDir, workspace.CaptureFilename(iter))
			if err := workspace.WritePNG(path, img); err != nil {
				c.log.Error("capture artifact write failed", "path", path, "error", err)
			}
		}
	}

	// EVALUATE: collaborator failures score zero on every pass so the
	// failure shows up as a trackable defect instead of aborting.
	var res evaluate.Result
	switch {
	case renderErr != nil:
		res = zeroResult(iter, PhaseRender, renderErr)
	case capErr != nil:
		res = zeroResult(iter, PhaseCapture, capErr)
	default:
		res = c.evaluator.Evaluate(evaluate.Input{
			Generated: img,
			Reference: c.reference,
			Source:    state.Source,
		}, iter)
	}

	state.Scores = make(map[string]float64, len(res.Passes)+1)
	for p, pr := range res.Passes {
		state.Scores[string(p)] = pr.Score
	}
	state.Scores["overall"] = res.OverallScore

	// DIAGNOSE
	diag := c.classifier.Classify(res, state.Source)
	act := SelectAction(c.cfg, res)

	var (
		outcome Outcome
		message string
	)
	switch {
	case res.Converged:
		outcome = OutcomeConverge
		state.Converged = true
		state.Status = "converged"
		message = fmt.Sprintf("target reached at %.1f%%", res.OverallScore)
		_ = LogActivity(c.caseDir, iter, fmt.Sprintf("CONVERGED at %.1f%%", res.OverallScore))

	case act.Route != remedy.RouteNone:
		worst, _ := worstFailing(c.cfg, res)
		key := DefectKey(string(worst), topDefect(res.Passes[worst]))
		count := RecordFailure(state, key)

		switch {
		case count >= c.cfg.GutterThreshold:
			outcome = OutcomeEscalate
			state.Status = "escalated"
			message = fmt.Sprintf("gutter detected: %s failed %dx", key, count)
			_ = LogActivity(c.caseDir, iter, fmt.Sprintf("GUTTER DETECTED: %s failed %dx - escalating", key, count))
			act = UpgradeForGutter(act)
			if count == c.cfg.GutterThreshold {
				trigger := fmt.Sprintf("Repeated %s failure", worst)
				instruction := fmt.Sprintf("Direct fixes failed %dx. Escalate to the %s skill.", count, act.Skill)
				if err := AppendGuardrail(c.caseDir, state, trigger, instruction); err != nil {
					return StepReport{}, err
				}
			}

		case iter >= c.cfg.MaxIterations:
			outcome = OutcomeEscalate
			state.Status = "escalated"
			message = "max iterations reached"
			_ = LogActivity(c.caseDir, iter, fmt.Sprintf("max iterations (%d) reached at %.1f%%", c.cfg.MaxIterations, res.OverallScore))

		default:
			outcome = OutcomeContinue
			message = act.Defect
			c.remediate(ctx, state, act, diag)
		}

	default:
		// Nothing actionable but overall still under target.
		if iter >= c.cfg.MaxIterations {
			outcome = OutcomeEscalate
			state.Status = "escalated"
			message = "max iterations reached"
			_ = LogActivity(c.caseDir, iter, fmt.Sprintf("max iterations (%d) reached at %.1f%%", c.cfg.MaxIterations, res.OverallScore))
		} else {
			outcome = OutcomeContinue
			message = fmt.Sprintf("no actionable defect; overall %.1f%% under target %g%%", res.OverallScore, c.cfg.Target)
		}
	}

	state.LastAction = act.Label()
	RecordIteration(state, res.OverallScore, outcome, state.LastAction)

	if err := WriteProgress(c.caseDir, c.cfg, state); err != nil {
		return StepReport{}, err
	}
	rep := BuildReport(c.cfg, state, res, diag, act, outcome)
	reportPath, err := WriteReport(c.caseDir, iter, rep)
	if err != nil {
		return StepReport{}, err
	}
	if err := SaveState(c.caseDir, state); err != nil {
		return StepReport{}, err
	}
	_ = LogActivity(c.caseDir, iter, fmt.Sprintf("=== ITERATION %d END (score: %.1f%%) ===", iter, res.OverallScore))

	c.log.Info("iteration complete",
		"case", c.caseName,
		"iteration", iter,
		"overall", round1(res.OverallScore),
		"outcome", string(outcome),
		"route", string(act.Route),
		"skill", act.Skill)

	return StepReport{
		Iteration:  iter,
		Outcome:    outcome,
		Overall:    res.OverallScore,
		Result:     res,
		Diagnosis:  diag,
		Action:     act,
		ReportPath: reportPath,
		Message:    message,
	}, nil
}

// Run iterates Step until the loop converges or escalates. A canceled
// context returns the last completed report with the context error.
func (c *Controller) Run(ctx context.Context) (StepReport, error) {
	var last StepReport
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		rep, err := c.Step(ctx)
		if err != nil {
			return rep, err
		}
		last = rep
		if rep.Outcome.Terminal() {
			return last, nil
		}
	}
}

// remediate dispatches the selected action. Dispatch errors are
// logged, not fatal: the next iteration re-evaluates and the failure
// count keeps climbing toward escalation.
func (c *Controller) remediate(ctx context.Context, state *State, act Action, diag diagnose.Diagnosis) {
	order := remedy.Order{
		Case:         c.caseName,
		Iteration:    state.Iteration,
		Route:        act.Route,
		Skill:        act.Skill,
		Pass:         string(act.Pass),
		Defect:       act.Defect,
		FixHints:     diag.Recommendations,
		Instructions: act.Instructions,
		Source:       state.Source,
	}

	cctx, cancel := c.collabCtx(ctx)
	out, err := c.dispatcher.Dispatch(cctx, order)
	cancel()
	if err != nil {
		c.log.Error("remediation failed", "case", c.caseName, "iteration", state.Iteration, "route", string(act.Route), "error", err)
		_ = LogActivity(c.caseDir, state.Iteration, fmt.Sprintf("remediation failed: %v", err))
		return
	}

	if !out.Applied {
		c.log.Info("remediation skipped", "case", c.caseName, "iteration", state.Iteration, "note", out.Note)
		return
	}
	if out.Source != "" {
		state.Source = out.Source
		_ = LogActivity(c.caseDir, state.Iteration, fmt.Sprintf("applied %s fix: %s", act.Pass, out.Note))
		return
	}
	// A delegated fix changed something upstream; regenerate next
	// iteration so the fix shows up in fresh source.
	state.Source = ""
	_ = LogActivity(c.caseDir, state.Iteration, fmt.Sprintf("delegated fix applied, source reset: %s", out.Note))
}

// collabCtx bounds one collaborator call.
func (c *Controller) collabCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.collabTimeout > 0 {
		return context.WithTimeout(ctx, c.collabTimeout)
	}
	return context.WithCancel(ctx)
}

// zeroResult scores every pass at zero with the phase failure as the
// defect, so diagnosis and gutter tracking work on collaborator
// failures the same way they do on visual defects.
func zeroResult(iteration int, phase Phase, err error) evaluate.Result {
	defect := fmt.Sprintf("%s failed: %v", phase, err)
	passes := make(map[evaluate.Pass]evaluate.PassResult)
	for _, p := range evaluate.AllPasses() {
		passes[p] = evaluate.PassResult{
			Pass:    p,
			Score:   0,
			Defects: []string{defect},
		}
	}
	return evaluate.Result{Passes: passes, OverallScore: 0, Iteration: iteration}
}

// worstFailing returns the lowest-scoring failing pass. Ties resolve
// to canonical pass order.
func worstFailing(cfg config.Config, res evaluate.Result) (evaluate.Pass, bool) {
	failing := res.FailingPasses(cfg.PassThresholds, defaultThreshold)
	if len(failing) == 0 {
		return "", false
	}
	worst := failing[0]
	for _, p := range failing[1:] {
		if res.Passes[p].Score < res.Passes[worst].Score {
			worst = p
		}
	}
	return worst, true
}

func topDefect(pr evaluate.PassResult) string {
	if len(pr.Defects) > 0 {
		return pr.Defects[0]
	}
	return "unknown"
}

func statusOutcome(status string) Outcome {
	switch status {
	case "converged":
		return OutcomeConverge
	case "escalated":
		return OutcomeEscalate
	}
	return OutcomeContinue
}
