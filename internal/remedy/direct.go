package remedy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dpopsuev/visor/internal/config"
	"github.com/dpopsuev/visor/internal/logging"
	"github.com/dpopsuev/visor/internal/mermaid"
)

// DirectFixer patches the diagram source in-process. It handles the
// defect families a template edit can fix: missing badges, missing
// styling, unlabeled flow edges. Everything else returns a no-op
// outcome so diagnosis can delegate instead.
type DirectFixer struct {
	cfg config.Config
	log *slog.Logger
}

// NewDirectFixer returns a fixer that patches toward the configured
// template expectations.
func NewDirectFixer(cfg config.Config) *DirectFixer {
	return &DirectFixer{cfg: cfg, log: logging.New("remedy")}
}

// Dispatch applies the patch for the order's failing pass and returns
// the patched source. Patching is idempotent; an order whose source
// already satisfies the template reports "nothing to patch".
func (d *DirectFixer) Dispatch(ctx context.Context, order Order) (Outcome, error) {
	if order.Source == "" {
		return Outcome{}, fmt.Errorf("direct fix for %s: no diagram source to patch", order.Pass)
	}

	src := order.Source
	var notes []string

	switch order.Pass {
	case "badges":
		tpl := d.cfg.Template
		labels := append(append([]string{}, tpl.LaneBadges...), tpl.SectionBadges...)
		var added []string
		src, added = mermaid.EnsureBadges(src, labels)
		if len(added) > 0 {
			notes = append(notes, fmt.Sprintf("added %d badge nodes", len(added)))
		}
		anchored := 0
		for _, label := range labels {
			var ok bool
			src, ok = mermaid.AnchorBadge(src, label, mermaid.DefaultAnchor(label))
			if ok {
				anchored++
			}
		}
		if anchored > 0 {
			notes = append(notes, fmt.Sprintf("anchored %d badges", anchored))
		}

	case "styling":
		tpl := d.cfg.Template
		if patched := mermaid.EnsureClassDefs(src); patched != src {
			notes = append(notes, "added badge class defs")
			src = patched
		}
		patched := mermaid.SetClassColor(src, tpl.LaneBadgeClass, tpl.LaneBadgeColor)
		patched = mermaid.SetClassColor(patched, tpl.SectionBadgeClass, tpl.SectionBadgeColor)
		if patched != src {
			notes = append(notes, "set badge class colors")
			src = patched
		}

	case "connections":
		labeled := 0
		for _, label := range d.cfg.Template.FlowLabels {
			from, to, ok := mermaid.FlowEdge(label)
			if !ok {
				continue
			}
			var changed bool
			src, changed = mermaid.LabelEdge(src, from, to, label)
			if changed {
				labeled++
			}
		}
		if labeled > 0 {
			notes = append(notes, fmt.Sprintf("labeled %d flow edges", labeled))
		}

	default:
		return Outcome{Note: fmt.Sprintf("no direct patch for pass %s", order.Pass)}, nil
	}

	if len(notes) == 0 {
		return Outcome{Source: order.Source, Note: "nothing to patch"}, nil
	}
	if !mermaid.Validate(src) {
		return Outcome{}, fmt.Errorf("direct fix for %s produced invalid diagram source", order.Pass)
	}

	note := strings.Join(notes, "; ")
	d.log.Info("direct fix applied", "case", order.Case, "iteration", order.Iteration, "pass", order.Pass, "note", note)
	return Outcome{Applied: true, Source: src, Note: note}, nil
}
