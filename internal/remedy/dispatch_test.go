package remedy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// awaitSignal polls until signal.json reports the wanted status and
// returns its dispatch_id, or 0 if it never appears. Safe to call from
// responder goroutines; a miss surfaces as a dispatch timeout.
func awaitSignal(signalPath, status string) int64 {
	for i := 0; i < 200; i++ {
		time.Sleep(10 * time.Millisecond)
		data, err := os.ReadFile(signalPath)
		if err != nil {
			continue
		}
		var sig signalFile
		if json.Unmarshal(data, &sig) == nil && sig.Status == status {
			return sig.DispatchID
		}
	}
	return 0
}

func writeOutcome(path string, dispatchID int64, out Outcome) {
	data, _ := json.MarshalIndent(outcomeWrapper{DispatchID: dispatchID, Outcome: &out}, "", "  ")
	_ = os.WriteFile(path, data, 0644)
}

func TestFileDispatcher_HappyPath(t *testing.T) {
	dir := t.TempDir()
	signalPath := filepath.Join(dir, SignalFilename)
	outcomePath := filepath.Join(dir, OutcomeFilename)

	d := NewFileDispatcher(FileDispatcherConfig{
		WorkDir:      dir,
		PollInterval: 20 * time.Millisecond,
		Timeout:      5 * time.Second,
	})

	order := Order{
		Case: "demo", Iteration: 2, Route: RouteDelegate, Skill: "layout-debugger",
		Pass: "layout", Defect: "layout at 42.0% (threshold 70%)",
	}

	// Responder: wait for the signal, then write a matching outcome.
	go func() {
		did := awaitSignal(signalPath, "waiting")
		writeOutcome(outcomePath, did, Outcome{Applied: true, Note: "layout engine patched"})
	}()

	out, err := d.Dispatch(context.Background(), order)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !out.Applied || out.Note != "layout engine patched" {
		t.Errorf("outcome: %+v", out)
	}

	// The order must be on disk for the responder to read.
	raw, err := os.ReadFile(filepath.Join(dir, OrderFilename))
	if err != nil {
		t.Fatalf("read order: %v", err)
	}
	var persisted Order
	if err := yaml.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("unmarshal order: %v", err)
	}
	if persisted.Skill != "layout-debugger" || persisted.Iteration != 2 {
		t.Errorf("persisted order: %+v", persisted)
	}

	// Signal moves waiting -> processing -> done.
	sigData, _ := os.ReadFile(signalPath)
	var sig signalFile
	_ = json.Unmarshal(sigData, &sig)
	if sig.Status != "processing" {
		t.Errorf("signal status after dispatch: got %q", sig.Status)
	}
	d.MarkDone()
	sigData, _ = os.ReadFile(signalPath)
	_ = json.Unmarshal(sigData, &sig)
	if sig.Status != "done" {
		t.Errorf("signal status after MarkDone: got %q", sig.Status)
	}
}

func TestFileDispatcher_Timeout(t *testing.T) {
	d := NewFileDispatcher(FileDispatcherConfig{
		WorkDir:      t.TempDir(),
		PollInterval: 10 * time.Millisecond,
		Timeout:      150 * time.Millisecond,
	})

	_, err := d.Dispatch(context.Background(), Order{Case: "demo", Route: RouteDelegate})
	if err == nil {
		t.Fatal("want timeout error")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("error: %v", err)
	}
}

func TestFileDispatcher_RejectsStaleOutcome(t *testing.T) {
	dir := t.TempDir()
	signalPath := filepath.Join(dir, SignalFilename)
	outcomePath := filepath.Join(dir, OutcomeFilename)

	d := NewFileDispatcher(FileDispatcherConfig{
		WorkDir:      dir,
		PollInterval: 20 * time.Millisecond,
		Timeout:      5 * time.Second,
	})

	// Responder: first write a stale outcome, then the real one.
	go func() {
		did := awaitSignal(signalPath, "waiting")
		writeOutcome(outcomePath, did+100, Outcome{Applied: true, Note: "stale"})
		time.Sleep(100 * time.Millisecond)
		writeOutcome(outcomePath, did, Outcome{Applied: true, Note: "fresh"})
	}()

	out, err := d.Dispatch(context.Background(), Order{Case: "demo", Route: RouteDelegate})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out.Note != "fresh" {
		t.Errorf("accepted stale outcome: %+v", out)
	}
}

func TestFileDispatcher_StaleToleranceExceeded(t *testing.T) {
	dir := t.TempDir()
	outcomePath := filepath.Join(dir, OutcomeFilename)

	d := NewFileDispatcher(FileDispatcherConfig{
		WorkDir:         dir,
		PollInterval:    10 * time.Millisecond,
		Timeout:         5 * time.Second,
		MaxStaleRejects: 3,
	})

	// Pre-plant an outcome with a wrong dispatch_id; nothing replaces it.
	// The dispatcher removes pre-existing outcomes, so plant after the
	// signal appears.
	go func() {
		awaitSignal(filepath.Join(dir, SignalFilename), "waiting")
		writeOutcome(outcomePath, 999, Outcome{Applied: true, Note: "stale"})
	}()

	_, err := d.Dispatch(context.Background(), Order{Case: "demo", Route: RouteDelegate})
	if err == nil {
		t.Fatal("want stale tolerance error")
	}
	if !strings.Contains(err.Error(), "stale outcome tolerance exceeded") {
		t.Errorf("error: %v", err)
	}
}

func TestFileDispatcher_ResponderErrorFailsFast(t *testing.T) {
	dir := t.TempDir()
	signalPath := filepath.Join(dir, SignalFilename)

	d := NewFileDispatcher(FileDispatcherConfig{
		WorkDir:      dir,
		PollInterval: 20 * time.Millisecond,
		Timeout:      5 * time.Second,
	})

	// Responder: report failure through the signal instead of an outcome.
	go func() {
		did := awaitSignal(signalPath, "waiting")
		sig := signalFile{Status: "error", DispatchID: did, Error: "skill crashed"}
		data, _ := json.MarshalIndent(&sig, "", "  ")
		_ = os.WriteFile(signalPath, data, 0644)
	}()

	_, err := d.Dispatch(context.Background(), Order{Case: "demo", Route: RouteDelegate})
	if err == nil {
		t.Fatal("want responder error")
	}
	if !strings.Contains(err.Error(), "skill crashed") {
		t.Errorf("error: %v", err)
	}
}

func TestFileDispatcher_ContextCancel(t *testing.T) {
	d := NewFileDispatcher(FileDispatcherConfig{
		WorkDir:      t.TempDir(),
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(80 * time.Millisecond)
		cancel()
	}()

	_, err := d.Dispatch(ctx, Order{Case: "demo", Route: RouteDelegate})
	if err == nil {
		t.Fatal("want cancellation error")
	}
	if !strings.Contains(err.Error(), "canceled") {
		t.Errorf("error: %v", err)
	}
}

func TestFileDispatcher_MonotonicDispatchID(t *testing.T) {
	dir := t.TempDir()
	signalPath := filepath.Join(dir, SignalFilename)
	outcomePath := filepath.Join(dir, OutcomeFilename)

	d := NewFileDispatcher(FileDispatcherConfig{
		WorkDir:      dir,
		PollInterval: 10 * time.Millisecond,
		Timeout:      5 * time.Second,
	})

	for want := int64(1); want <= 3; want++ {
		go func() {
			did := awaitSignal(signalPath, "waiting")
			writeOutcome(outcomePath, did, Outcome{Applied: true})
		}()
		if _, err := d.Dispatch(context.Background(), Order{Case: "demo", Route: RouteDelegate}); err != nil {
			t.Fatalf("dispatch %d: %v", want, err)
		}
		if got := d.CurrentDispatchID(); got != want {
			t.Errorf("dispatch_id: got %d, want %d", got, want)
		}
	}
}
