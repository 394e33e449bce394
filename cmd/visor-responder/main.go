// visor-responder is an auto-responder for file-dispatched remediation.
// It watches a dispatch directory for signal.json files, applies the
// deterministic patch for each order and writes the outcome. Useful for
// validating the dispatch pipeline end-to-end and for unattended runs
// where no agent is watching the work directory.
//
// Usage: visor-responder [--debug] [watch-dir]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dpopsuev/visor/internal/config"
	"github.com/dpopsuev/visor/internal/mermaid"
	"github.com/dpopsuev/visor/internal/remedy"
)

// signalFile mirrors the dispatcher's signal schema. Only the fields
// the responder acts on are listed; unknown fields round-trip through
// the error writeback untouched because the whole file is rewritten
// from this struct.
type signalFile struct {
	Status      string `json:"status"`
	DispatchID  int64  `json:"dispatch_id"`
	Case        string `json:"case"`
	Iteration   int    `json:"iteration"`
	Route       string `json:"route"`
	Skill       string `json:"skill,omitempty"`
	OrderPath   string `json:"order_path"`
	OutcomePath string `json:"outcome_path"`
	Timestamp   string `json:"timestamp"`
	Error       string `json:"error,omitempty"`
}

// outcomeWrapper echoes the dispatch_id so the dispatcher can reject
// stale outcomes.
type outcomeWrapper struct {
	DispatchID int64           `json:"dispatch_id"`
	Outcome    *remedy.Outcome `json:"outcome"`
}

var debug bool

func dbg(format string, args ...any) {
	if debug {
		log.Printf("[debug] "+format, args...)
	}
}

func main() {
	watchDir := ".visor/dispatch"
	for _, arg := range os.Args[1:] {
		if arg == "--debug" {
			debug = true
		} else {
			watchDir = arg
		}
	}

	cfg := config.Default()
	fixer := remedy.NewDirectFixer(cfg)

	fmt.Printf("[responder] watching %s for dispatch signals...\n", watchDir)
	if debug {
		fmt.Println("[responder] debug mode ON, filesystem operations traced")
	}

	// Track seen by path+dispatch_id to handle signal reuse at the
	// same path.
	seen := make(map[string]bool)
	for {
		for _, sp := range findSignals(watchDir) {
			handleSignal(cfg, fixer, sp, seen)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func handleSignal(cfg config.Config, fixer *remedy.DirectFixer, signalPath string, seen map[string]bool) {
	data, err := os.ReadFile(signalPath)
	if err != nil {
		dbg("cannot read signal %s: %v", signalPath, err)
		return
	}
	var sig signalFile
	if err := json.Unmarshal(data, &sig); err != nil {
		dbg("cannot parse signal %s: %v", signalPath, err)
		return
	}
	if sig.Status != "waiting" {
		dbg("signal %s status=%s (skip)", signalPath, sig.Status)
		return
	}

	key := fmt.Sprintf("%s:%d", signalPath, sig.DispatchID)
	if seen[key] {
		return
	}
	seen[key] = true

	fmt.Printf("[responder] signal: case=%s iteration=%d route=%s skill=%s dispatch_id=%d\n",
		sig.Case, sig.Iteration, sig.Route, sig.Skill, sig.DispatchID)
	dbg("order_path=%s", sig.OrderPath)
	dbg("outcome_path=%s", sig.OutcomePath)

	raw, err := os.ReadFile(sig.OrderPath)
	if err != nil {
		fmt.Printf("[responder] ERROR reading order: %v\n", err)
		writeErrorSignal(signalPath, &sig, fmt.Sprintf("cannot read order: %v", err))
		return
	}
	var order remedy.Order
	if err := yaml.Unmarshal(raw, &order); err != nil {
		fmt.Printf("[responder] ERROR parsing order: %v\n", err)
		writeErrorSignal(signalPath, &sig, fmt.Sprintf("cannot parse order: %v", err))
		return
	}
	dbg("order read OK (%d bytes, pass=%s)", len(raw), order.Pass)

	outcome := respond(cfg, fixer, order)

	wrapper := outcomeWrapper{DispatchID: sig.DispatchID, Outcome: &outcome}
	outData, _ := json.MarshalIndent(wrapper, "", "  ")

	outDir := filepath.Dir(sig.OutcomePath)
	if _, err := os.Stat(outDir); err != nil {
		dbg("outcome dir missing: %s, creating", outDir)
		_ = os.MkdirAll(outDir, 0755)
	}
	if err := os.WriteFile(sig.OutcomePath, outData, 0644); err != nil {
		fmt.Printf("[responder] ERROR writing outcome: %v\n", err)
		return
	}
	fmt.Printf("[responder] wrote %s (applied=%v: %s)\n", sig.OutcomePath, outcome.Applied, outcome.Note)
}

// respond picks the remediation for the order's failing pass. Passes
// with an in-process patcher go through the direct fixer; layout and
// structure orders get the responder's own template-convention patches;
// anything else is left for an operator.
func respond(cfg config.Config, fixer *remedy.DirectFixer, order remedy.Order) remedy.Outcome {
	switch order.Pass {
	case "badges", "styling", "connections":
		out, err := fixer.Dispatch(context.Background(), order)
		if err != nil {
			return remedy.Outcome{Note: err.Error()}
		}
		return out
	case "layout":
		return patchLayout(cfg, order)
	case "structure":
		return patchStructure(cfg, order)
	}
	return remedy.Outcome{Note: fmt.Sprintf("skill %s needs an operator; inspect %s", order.Skill, remedy.OrderFilename)}
}

var directionLine = regexp.MustCompile(`(?m)^\s*(flowchart|graph)\s+[A-Za-z]{2}`)

// patchLayout rewrites the flow direction to the template convention.
func patchLayout(cfg config.Config, order remedy.Order) remedy.Outcome {
	if order.Source == "" {
		return remedy.Outcome{Note: "layout fix: no diagram source in order"}
	}
	want := cfg.Template.Direction
	if mermaid.Direction(order.Source) == want {
		return remedy.Outcome{Source: order.Source, Note: "direction already " + want}
	}
	patched := directionLine.ReplaceAllString(order.Source, "flowchart "+want)
	if !mermaid.Validate(patched) {
		return remedy.Outcome{Note: "layout fix produced invalid diagram source"}
	}
	return remedy.Outcome{Applied: true, Source: patched, Note: "set direction " + want}
}

// patchStructure appends empty subgraph stubs for any template group
// the source does not declare.
func patchStructure(cfg config.Config, order remedy.Order) remedy.Outcome {
	if order.Source == "" {
		return remedy.Outcome{Note: "structure fix: no diagram source in order"}
	}
	src := order.Source
	var added []string
	for _, g := range cfg.Template.Groups {
		if mermaid.HasGroup(src, g) {
			continue
		}
		src = strings.TrimRight(src, "\n") + fmt.Sprintf("\n\nsubgraph %s\nend\n", g)
		added = append(added, g)
	}
	if len(added) == 0 {
		return remedy.Outcome{Source: order.Source, Note: "all template groups present"}
	}
	if !mermaid.Validate(src) {
		return remedy.Outcome{Note: "structure fix produced invalid diagram source"}
	}
	return remedy.Outcome{Applied: true, Source: src, Note: fmt.Sprintf("added %d missing groups", len(added))}
}

// writeErrorSignal updates the signal file with an error status so the
// dispatcher can fail fast instead of waiting for timeout.
func writeErrorSignal(signalPath string, sig *signalFile, errMsg string) {
	sig.Status = "error"
	sig.Error = errMsg
	out, _ := json.MarshalIndent(sig, "", "  ")
	if err := os.WriteFile(signalPath, out, 0644); err != nil {
		dbg("failed to write error signal: %v", err)
	}
	fmt.Printf("[responder] wrote error signal: %s\n", errMsg)
}

func findSignals(dir string) []string {
	var results []string
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Name() == remedy.SignalFilename {
			results = append(results, path)
		}
		return nil
	})
	return results
}
