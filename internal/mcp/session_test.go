package mcp

import (
	"testing"
	"time"

	"github.com/dpopsuev/visor/internal/config"
)

func TestSession_PinsController(t *testing.T) {
	srv := NewServer(config.Default())
	srv.BasePath = t.TempDir()

	a, err := srv.session(convergeStepInput{Case: "case-a", Prompt: "first"})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	b, err := srv.session(convergeStepInput{Case: "case-a", Prompt: "ignored on reuse"})
	if err != nil {
		t.Fatalf("session again: %v", err)
	}
	if a != b {
		t.Error("expected the case session to be reused")
	}

	other, err := srv.session(convergeStepInput{Case: "case-b"})
	if err != nil {
		t.Fatalf("session case-b: %v", err)
	}
	if other == a {
		t.Error("distinct cases must not share a session")
	}
	if cases := srv.ActiveCases(); len(cases) != 2 {
		t.Errorf("ActiveCases = %v", cases)
	}

	srv.Shutdown()
	if cases := srv.ActiveCases(); len(cases) != 0 {
		t.Errorf("ActiveCases after Shutdown = %v", cases)
	}
}

func TestSession_PrunesIdle(t *testing.T) {
	srv := NewServer(config.Default())
	srv.BasePath = t.TempDir()

	stale, err := srv.session(convergeStepInput{Case: "stale"})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	stale.mu.Lock()
	stale.lastUsed = time.Now().Add(-DefaultSessionTTL - time.Minute)
	stale.mu.Unlock()

	if _, err := srv.session(convergeStepInput{Case: "fresh"}); err != nil {
		t.Fatalf("session fresh: %v", err)
	}
	cases := srv.ActiveCases()
	if len(cases) != 1 || cases[0] != "fresh" {
		t.Errorf("ActiveCases = %v, want only fresh", cases)
	}
}

func TestSession_RequiresCase(t *testing.T) {
	srv := NewServer(config.Default())
	srv.BasePath = t.TempDir()

	if _, err := srv.session(convergeStepInput{}); err == nil {
		t.Error("expected an error for an empty case name")
	}
}
