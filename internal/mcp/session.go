package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dpopsuev/visor/internal/converge"
)

// DefaultSessionTTL is how long an idle case session survives before a
// later tool call prunes it. Var so tests can shrink it.
var DefaultSessionTTL = 30 * time.Minute

// Session pins one case's controller so consecutive converge_step
// calls share collaborators. The first call's prompt and capture URL
// stick for the session's lifetime. Sessions own no goroutines; a
// stale one is just dropped.
type Session struct {
	Case    string
	Created time.Time

	ctrl *converge.Controller

	// stepMu serializes Step per case; mu only guards lastUsed so a
	// long-running step never blocks session lookups for other cases.
	stepMu sync.Mutex

	mu       sync.Mutex
	lastUsed time.Time
}

// Step runs one loop iteration. Serialized per session, so concurrent
// tool calls for the same case queue instead of racing on case state.
func (s *Session) Step(ctx context.Context) (converge.StepReport, error) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	s.touch()
	return s.ctrl.Step(ctx)
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
}

func (s *Session) idle(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastUsed)
}

// session returns the case's session, creating it on first use and
// pruning sessions idle past the TTL.
func (s *Server) session(input convergeStepInput) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for name, sess := range s.sessions {
		if name != input.Case && sess.idle(now) > DefaultSessionTTL {
			delete(s.sessions, name)
		}
	}

	if sess, ok := s.sessions[input.Case]; ok {
		sess.touch()
		return sess, nil
	}

	ctrl, err := converge.New(converge.Options{
		Config:     s.cfg,
		BasePath:   s.BasePath,
		Case:       input.Case,
		Prompt:     input.Prompt,
		Capturer:   s.Capturer,
		CaptureURL: firstNonEmpty(input.CaptureURL, s.CaptureURL),
		Dispatcher: s.Dispatcher,
	})
	if err != nil {
		return nil, fmt.Errorf("session for %s: %w", input.Case, err)
	}
	sess := &Session{
		Case:     input.Case,
		Created:  now,
		ctrl:     ctrl,
		lastUsed: now,
	}
	s.sessions[input.Case] = sess
	return sess, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
