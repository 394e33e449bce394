package render

import (
	"context"
	_ "embed"
	"fmt"
	"net"
	"net/http"
	"sync"
)

//go:embed harness.html
var harnessPage []byte

// Harness serves the rendering page and the current diagram source on a
// local listener so a browser capturer has something to navigate to.
// The source can be swapped between iterations without restarting.
type Harness struct {
	mu     sync.RWMutex
	source string
	srv    *http.Server
	ln     net.Listener
}

// NewHarness returns a harness seeded with the given diagram source.
func NewHarness(source string) *Harness {
	return &Harness{source: source}
}

// SetSource replaces the diagram source served at /source.
func (h *Harness) SetSource(source string) {
	h.mu.Lock()
	h.source = source
	h.mu.Unlock()
}

// Start binds an ephemeral localhost port and serves the harness.
// Returns the base URL to navigate to.
func (h *Harness) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("bind harness: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(harnessPage)
	})
	mux.HandleFunc("/source", func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		src := h.source
		h.mu.RUnlock()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, src)
	})

	h.ln = ln
	h.srv = &http.Server{Handler: mux}
	go h.srv.Serve(ln)

	return fmt.Sprintf("http://%s", ln.Addr().String()), nil
}

// Stop shuts the harness down, waiting for in-flight requests up to the
// context deadline.
func (h *Harness) Stop(ctx context.Context) error {
	if h.srv == nil {
		return nil
	}
	return h.srv.Shutdown(ctx)
}
