package remedy

import (
	"context"
	"strings"
	"testing"

	"github.com/dpopsuev/visor/internal/config"
	"github.com/dpopsuev/visor/internal/mermaid"
)

const bareSource = `flowchart LR
    subgraph lane_1a["Lane 1a"]
        kafka_connector["Kafka Connector"]
    end
    subgraph section_2["Section 2"]
        stream_ingest["Stream Ingest"]
        batch_ingest["Batch Ingest"]
    end
    batch_files["Batch Files"]
    kafka_connector --> stream_ingest
    batch_files --> batch_ingest
`

func TestDirectFixer_Badges(t *testing.T) {
	d := NewDirectFixer(config.Default())

	out, err := d.Dispatch(context.Background(), Order{
		Case: "demo", Iteration: 1, Route: RouteDirect, Pass: "badges", Source: bareSource,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !out.Applied {
		t.Fatalf("fix not applied: %+v", out)
	}
	if !strings.Contains(out.Source, `badge_1a(["1a"]):::laneBadge`) {
		t.Error("lane badge node missing from patched source")
	}
	if !strings.Contains(out.Source, `badge_2(["2"]):::sectionBadge`) {
		t.Error("section badge node missing from patched source")
	}
	if !strings.Contains(out.Source, "badge_1a ~~~ lane_1a") {
		t.Error("lane badge not anchored")
	}
	if !mermaid.Validate(out.Source) {
		t.Error("patched source failed validation")
	}
	if !strings.Contains(out.Note, "added 8 badge nodes") {
		t.Errorf("note: got %q", out.Note)
	}
}

func TestDirectFixer_Styling(t *testing.T) {
	d := NewDirectFixer(config.Default())

	src := bareSource + `    classDef laneBadge fill:#FF0000,stroke:#5B21B6,color:#fff
    classDef sectionBadge fill:#00FF00,stroke:#1D4ED8,color:#fff
`
	out, err := d.Dispatch(context.Background(), Order{
		Case: "demo", Iteration: 2, Route: RouteDirect, Pass: "styling", Source: src,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !out.Applied {
		t.Fatalf("fix not applied: %+v", out)
	}
	if !strings.Contains(out.Source, "classDef laneBadge fill:#7C3AED") {
		t.Error("lane badge color not rewritten")
	}
	if !strings.Contains(out.Source, "classDef sectionBadge fill:#2563EB") {
		t.Error("section badge color not rewritten")
	}
}

func TestDirectFixer_Connections(t *testing.T) {
	d := NewDirectFixer(config.Default())

	out, err := d.Dispatch(context.Background(), Order{
		Case: "demo", Iteration: 3, Route: RouteDirect, Pass: "connections", Source: bareSource,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !out.Applied {
		t.Fatalf("fix not applied: %+v", out)
	}
	if !strings.Contains(out.Source, `kafka_connector -->|"Streaming"| stream_ingest`) {
		t.Error("streaming edge not labeled")
	}
	if !strings.Contains(out.Source, `batch_files -->|"Batch"| batch_ingest`) {
		t.Error("batch edge not labeled")
	}
	if !strings.Contains(out.Note, "labeled 2 flow edges") {
		t.Errorf("note: got %q", out.Note)
	}
}

func TestDirectFixer_Idempotent(t *testing.T) {
	d := NewDirectFixer(config.Default())

	for _, pass := range []string{"badges", "styling", "connections"} {
		first, err := d.Dispatch(context.Background(), Order{
			Case: "demo", Route: RouteDirect, Pass: pass, Source: bareSource,
		})
		if err != nil {
			t.Fatalf("first Dispatch(%s): %v", pass, err)
		}
		if !first.Applied {
			t.Fatalf("%s: first application did nothing: %+v", pass, first)
		}

		second, err := d.Dispatch(context.Background(), Order{
			Case: "demo", Route: RouteDirect, Pass: pass, Source: first.Source,
		})
		if err != nil {
			t.Fatalf("second Dispatch(%s): %v", pass, err)
		}
		if second.Applied {
			t.Errorf("%s: second application patched again (note %q)", pass, second.Note)
		}
		if second.Note != "nothing to patch" {
			t.Errorf("%s: note: got %q", pass, second.Note)
		}
		if second.Source != first.Source {
			t.Errorf("%s: source mutated on no-op", pass)
		}
	}
}

func TestDirectFixer_UnhandledPass(t *testing.T) {
	d := NewDirectFixer(config.Default())

	out, err := d.Dispatch(context.Background(), Order{
		Case: "demo", Route: RouteDirect, Pass: "layout", Source: bareSource,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out.Applied {
		t.Error("layout has no direct patch; must not report applied")
	}
	if !strings.Contains(out.Note, "no direct patch for pass layout") {
		t.Errorf("note: got %q", out.Note)
	}
}

func TestDirectFixer_NoSource(t *testing.T) {
	d := NewDirectFixer(config.Default())

	_, err := d.Dispatch(context.Background(), Order{Case: "demo", Route: RouteDirect, Pass: "badges"})
	if err == nil {
		t.Fatal("want error when order carries no source")
	}
	if !strings.Contains(err.Error(), "no diagram source") {
		t.Errorf("error: %v", err)
	}
}
