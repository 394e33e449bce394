package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png" // capture screenshots decode as PNG
	"log/slog"

	"github.com/chromedp/chromedp"

	"github.com/dpopsuev/visor/internal/config"
	"github.com/dpopsuev/visor/internal/logging"
)

// BrowserCapturer screenshots the rendered diagram in a headless
// browser. Each capture runs its own browser context so a wedged page
// cannot poison later iterations.
type BrowserCapturer struct {
	cfg config.Capture
	log *slog.Logger
}

// NewBrowserCapturer returns a capturer configured for the given
// viewport, selector and settle delay.
func NewBrowserCapturer(cfg config.Capture) *BrowserCapturer {
	return &BrowserCapturer{cfg: cfg, log: logging.New("capture")}
}

// Capture navigates to target.URL, waits for the diagram element to
// render and settle, and screenshots it.
func (b *BrowserCapturer) Capture(ctx context.Context, target Target) (image.Image, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	b.log.Info("capturing render", "url", target.URL, "selector", b.cfg.Selector)

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(b.cfg.ViewportWidth), int64(b.cfg.ViewportHeight)),
		chromedp.Navigate(target.URL),
		chromedp.WaitReady(b.cfg.Selector, chromedp.ByQuery),
		chromedp.Sleep(b.cfg.Settle()),
		chromedp.Screenshot(b.cfg.Selector, &buf, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", target.URL, err)
	}

	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	return img, nil
}
