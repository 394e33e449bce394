//go:build e2e

package render

import (
	"context"
	"testing"
	"time"

	"github.com/dpopsuev/visor/internal/config"
)

// Needs a Chrome/Chromium binary on PATH and network access to the
// renderer CDN. Run with: go test -tags e2e ./internal/render/
func TestBrowserCapturer_CapturesHarness(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	h := NewHarness("flowchart LR\n  a[Ingest] --> b[Store]\n  b --> c[Serve]\n")
	base, err := h.Start()
	if err != nil {
		t.Fatalf("start harness: %v", err)
	}
	defer h.Stop(ctx)

	cfg := config.Default().Capture
	cap := NewBrowserCapturer(cfg)

	img, err := cap.Capture(ctx, Target{URL: base})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if img.Bounds().Dx() < 100 || img.Bounds().Dy() < 50 {
		t.Errorf("capture suspiciously small: %v", img.Bounds())
	}
}
