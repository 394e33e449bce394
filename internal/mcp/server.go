// Package mcp exposes the scoring and convergence tools over the Model
// Context Protocol, so an agent can drive cases through the loop from
// its own session instead of shelling out to the CLI.
package mcp

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/dpopsuev/visor/internal/config"
	"github.com/dpopsuev/visor/internal/converge"
	"github.com/dpopsuev/visor/internal/diagnose"
	"github.com/dpopsuev/visor/internal/evaluate"
	"github.com/dpopsuev/visor/internal/remedy"
	"github.com/dpopsuev/visor/internal/render"
	"github.com/dpopsuev/visor/internal/workspace"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP SDK server and keeps one session per case so
// repeated converge_step calls reuse the same collaborators.
type Server struct {
	MCPServer *sdkmcp.Server

	// BasePath is the case storage root for the converge tools.
	BasePath string
	// Capturer and CaptureURL configure browser capture for
	// converge_step. A nil Capturer steps cases in source-only mode.
	Capturer   render.Capturer
	CaptureURL string
	// Dispatcher receives delegate-routed fix orders.
	Dispatcher remedy.Dispatcher

	cfg config.Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewServer creates an MCP server with the evaluation and convergence
// tools registered. Capture and dispatch wiring can be set on the
// returned server before it starts serving.
func NewServer(cfg config.Config) *Server {
	s := &Server{
		cfg:      cfg,
		BasePath: workspace.DefaultBasePath,
		sessions: make(map[string]*Session),
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "visor", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "evaluate_capture",
		Description: "Score a rendered diagram capture across the six visual passes. Returns per-pass scores and the weighted overall.",
	}, s.handleEvaluateCapture)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "diagnose_capture",
		Description: "Score a capture and classify each defect as a content or rendering problem, with the remediation the loop would pick next.",
	}, s.handleDiagnoseCapture)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "converge_step",
		Description: "Run one iteration of the convergence loop for a case: render, capture, evaluate, diagnose, remediate. Returns the iteration outcome.",
	}, s.handleConvergeStep)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "converge_status",
		Description: "Report a case's convergence state: iteration, scores, outcome history and active guardrails.",
	}, s.handleConvergeStatus)
}

// --- Tool input/output types ---

type evaluateCaptureInput struct {
	ImagePath     string  `json:"image_path,omitempty" jsonschema:"path to the rendered capture (PNG or JPEG)"`
	ReferencePath string  `json:"reference_path,omitempty" jsonschema:"path to the reference render for pixel comparison"`
	SourcePath    string  `json:"source_path,omitempty" jsonschema:"path to the Mermaid source the capture was rendered from"`
	Target        float64 `json:"target,omitempty" jsonschema:"override for the overall quality target percentage"`
}

type passReport struct {
	Score       float64  `json:"score"`
	Findings    []string `json:"findings,omitempty"`
	Defects     []string `json:"defects,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type evaluateCaptureOutput struct {
	OverallScore float64               `json:"overall_score"`
	Target       float64               `json:"target"`
	Converged    bool                  `json:"converged"`
	WorstPass    string                `json:"worst_pass"`
	Passes       map[string]passReport `json:"passes"`
}

type defectReport struct {
	Pass        string  `json:"pass"`
	Source      string  `json:"source"`
	Type        string  `json:"type"`
	Severity    float64 `json:"severity,omitempty"`
	Description string  `json:"description"`
	FixTarget   string  `json:"fix_target,omitempty"`
	FixHint     string  `json:"fix_hint,omitempty"`
}

type actionReport struct {
	Pass         string `json:"pass,omitempty"`
	Route        string `json:"route"`
	Skill        string `json:"skill,omitempty"`
	RootCause    string `json:"root_cause,omitempty"`
	Defect       string `json:"defect,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type diagnoseCaptureOutput struct {
	OverallScore    float64        `json:"overall_score"`
	PrimarySource   string         `json:"primary_source"`
	Defects         []defectReport `json:"defects,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Action          actionReport   `json:"action"`
}

type convergeStepInput struct {
	Case       string `json:"case" jsonschema:"case name under the storage root"`
	Prompt     string `json:"prompt,omitempty" jsonschema:"generation prompt for the first iteration"`
	CaptureURL string `json:"capture_url,omitempty" jsonschema:"render target URL or file path for capture"`
}

type convergeStepOutput struct {
	Case       string  `json:"case"`
	Iteration  int     `json:"iteration"`
	Outcome    string  `json:"outcome"`
	Overall    float64 `json:"overall"`
	Message    string  `json:"message,omitempty"`
	ReportPath string  `json:"report_path,omitempty"`
}

type convergeStatusInput struct {
	Case string `json:"case" jsonschema:"case name under the storage root"`
}

type guardrailReport struct {
	Trigger     string `json:"trigger"`
	Instruction string `json:"instruction"`
	Iteration   int    `json:"iteration"`
}

type historyReport struct {
	Iteration int     `json:"iteration"`
	Overall   float64 `json:"overall"`
	Outcome   string  `json:"outcome"`
	Action    string  `json:"action,omitempty"`
}

type convergeStatusOutput struct {
	Case       string             `json:"case"`
	Status     string             `json:"status"`
	Iteration  int                `json:"iteration"`
	Converged  bool               `json:"converged"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	Guardrails []guardrailReport  `json:"guardrails,omitempty"`
	History    []historyReport    `json:"history,omitempty"`
}

// --- Tool handlers ---

func (s *Server) handleEvaluateCapture(ctx context.Context, _ *sdkmcp.CallToolRequest, input evaluateCaptureInput) (*sdkmcp.CallToolResult, evaluateCaptureOutput, error) {
	res, cfg, err := s.score(input)
	if err != nil {
		return nil, evaluateCaptureOutput{}, err
	}

	worst, _ := res.WorstPass()
	out := evaluateCaptureOutput{
		OverallScore: res.OverallScore,
		Target:       cfg.Target,
		Converged:    res.Converged,
		WorstPass:    string(worst),
		Passes:       make(map[string]passReport, len(res.Passes)),
	}
	for p, pr := range res.Passes {
		out.Passes[string(p)] = passReport{
			Score:       pr.Score,
			Findings:    pr.Findings,
			Defects:     pr.Defects,
			Suggestions: pr.Suggestions,
		}
	}
	return nil, out, nil
}

func (s *Server) handleDiagnoseCapture(ctx context.Context, _ *sdkmcp.CallToolRequest, input evaluateCaptureInput) (*sdkmcp.CallToolResult, diagnoseCaptureOutput, error) {
	res, cfg, err := s.score(input)
	if err != nil {
		return nil, diagnoseCaptureOutput{}, err
	}

	source := ""
	if input.SourcePath != "" {
		data, err := os.ReadFile(input.SourcePath)
		if err != nil {
			return nil, diagnoseCaptureOutput{}, fmt.Errorf("read source: %w", err)
		}
		source = string(data)
	}
	diag := diagnose.New(cfg).Classify(res, source)
	act := converge.SelectAction(cfg, res)

	out := diagnoseCaptureOutput{
		OverallScore:    res.OverallScore,
		PrimarySource:   string(diag.PrimarySource),
		Recommendations: diag.Recommendations,
		Action: actionReport{
			Pass:         string(act.Pass),
			Route:        string(act.Route),
			Skill:        act.Skill,
			RootCause:    string(act.RootCause),
			Defect:       act.Defect,
			Instructions: act.Instructions,
		},
	}
	for _, d := range diag.Defects {
		out.Defects = append(out.Defects, defectReport{
			Pass:        string(d.Pass),
			Source:      string(d.Source),
			Type:        string(d.Type),
			Severity:    d.Severity,
			Description: d.Description,
			FixTarget:   d.FixTarget,
			FixHint:     d.FixHint,
		})
	}
	return nil, out, nil
}

func (s *Server) handleConvergeStep(ctx context.Context, _ *sdkmcp.CallToolRequest, input convergeStepInput) (*sdkmcp.CallToolResult, convergeStepOutput, error) {
	if input.Case == "" {
		return nil, convergeStepOutput{}, fmt.Errorf("case is required")
	}
	sess, err := s.session(input)
	if err != nil {
		return nil, convergeStepOutput{}, err
	}

	rep, err := sess.Step(ctx)
	if err != nil {
		return nil, convergeStepOutput{}, fmt.Errorf("converge_step %s: %w", input.Case, err)
	}
	return nil, convergeStepOutput{
		Case:       input.Case,
		Iteration:  rep.Iteration,
		Outcome:    string(rep.Outcome),
		Overall:    rep.Overall,
		Message:    rep.Message,
		ReportPath: rep.ReportPath,
	}, nil
}

func (s *Server) handleConvergeStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, input convergeStatusInput) (*sdkmcp.CallToolResult, convergeStatusOutput, error) {
	if input.Case == "" {
		return nil, convergeStatusOutput{}, fmt.Errorf("case is required")
	}
	caseDir := workspace.CaseDir(s.BasePath, input.Case)
	state, err := converge.LoadState(caseDir)
	if err != nil {
		return nil, convergeStatusOutput{}, fmt.Errorf("load state for %s: %w", input.Case, err)
	}
	if state == nil {
		return nil, convergeStatusOutput{}, fmt.Errorf("case %q has no recorded state (run converge_step first)", input.Case)
	}

	out := convergeStatusOutput{
		Case:      state.Case,
		Status:    state.Status,
		Iteration: state.Iteration,
		Converged: state.Converged,
		Scores:    state.Scores,
	}
	rails, err := converge.ParseGuardrails(caseDir)
	if err != nil {
		return nil, convergeStatusOutput{}, fmt.Errorf("parse guardrails for %s: %w", input.Case, err)
	}
	for _, g := range rails {
		out.Guardrails = append(out.Guardrails, guardrailReport{
			Trigger:     g.Trigger,
			Instruction: g.Instruction,
			Iteration:   g.Iteration,
		})
	}
	for _, rec := range state.History {
		out.History = append(out.History, historyReport{
			Iteration: rec.Iteration,
			Overall:   rec.Overall,
			Outcome:   string(rec.Outcome),
			Action:    rec.Action,
		})
	}
	return nil, out, nil
}

// score loads whatever inputs the caller named and runs the evaluator.
// Paths are explicit here, so a missing file is an error rather than
// the degraded-input treatment the loop applies.
func (s *Server) score(input evaluateCaptureInput) (evaluate.Result, config.Config, error) {
	if input.ImagePath == "" && input.SourcePath == "" {
		return evaluate.Result{}, config.Config{}, fmt.Errorf("image_path or source_path is required")
	}
	cfg := s.cfg
	if input.Target > 0 {
		cfg.Target = input.Target
	}

	var in evaluate.Input
	if input.ImagePath != "" {
		img, err := workspace.ReadImage(input.ImagePath)
		if err != nil {
			return evaluate.Result{}, cfg, fmt.Errorf("read capture: %w", err)
		}
		if img == nil {
			return evaluate.Result{}, cfg, fmt.Errorf("no capture at %s", input.ImagePath)
		}
		in.Generated = img
	}
	if input.ReferencePath != "" {
		ref, err := workspace.ReadImage(input.ReferencePath)
		if err != nil {
			return evaluate.Result{}, cfg, fmt.Errorf("read reference: %w", err)
		}
		if ref == nil {
			return evaluate.Result{}, cfg, fmt.Errorf("no reference at %s", input.ReferencePath)
		}
		in.Reference = ref
	}
	if input.SourcePath != "" {
		data, err := os.ReadFile(input.SourcePath)
		if err != nil {
			return evaluate.Result{}, cfg, fmt.Errorf("read source: %w", err)
		}
		in.Source = string(data)
	}
	return evaluate.New(cfg).Evaluate(in, 0), cfg, nil
}

// ActiveCases lists the cases with live sessions, sorted.
func (s *Server) ActiveCases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cases := make([]string, 0, len(s.sessions))
	for name := range s.sessions {
		cases = append(cases, name)
	}
	sort.Strings(cases)
	return cases
}

// Shutdown drops all case sessions.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Session)
}
