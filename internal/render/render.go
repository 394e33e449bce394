// Package render drives diagram generation and screen capture for the
// convergence loop. Generators produce diagram source from a prompt;
// capturers turn a render target into an image the evaluator can score.
package render

import (
	"context"
	"fmt"
	"image"

	"github.com/dpopsuev/visor/internal/mermaid"
	"github.com/dpopsuev/visor/internal/workspace"
)

// Generator produces diagram source for a prompt. Implementations may
// call out to an agent, expand a template, or replay a fixture.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// TemplateGenerator ignores the prompt and returns the built-in diagram
// template. It is the default generator when no agent is wired in.
type TemplateGenerator struct{}

// Generate returns the initial diagram template.
func (TemplateGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return mermaid.InitialTemplate(), nil
}

// Target identifies what to capture: a URL serving the rendered diagram
// and the diagram source it was rendered from.
type Target struct {
	URL    string
	Source string
}

// Capturer turns a render target into an image.
type Capturer interface {
	Capture(ctx context.Context, target Target) (image.Image, error)
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(ctx context.Context, target Target) (image.Image, error)

// Capture calls f.
func (f CapturerFunc) Capture(ctx context.Context, target Target) (image.Image, error) {
	return f(ctx, target)
}

// FileCapturer reads a pre-rendered capture from disk. Target.URL is
// the file path. Useful for replaying fixtures and for environments
// without a browser.
type FileCapturer struct{}

// Capture decodes the image at target.URL. A missing file is a capture
// failure, not an empty capture.
func (FileCapturer) Capture(ctx context.Context, target Target) (image.Image, error) {
	img, err := workspace.ReadImage(target.URL)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("capture file %s does not exist", target.URL)
	}
	return img, nil
}
