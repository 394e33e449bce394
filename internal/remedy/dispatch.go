package remedy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Well-known filenames in the dispatch work directory. An external
// responder watches signal.json, reads order.yaml, and writes
// outcome.json when done.
const (
	OrderFilename   = "order.yaml"
	SignalFilename  = "signal.json"
	OutcomeFilename = "outcome.json"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FileDispatcherConfig configures the FileDispatcher behavior.
type FileDispatcherConfig struct {
	WorkDir         string        // directory for order/signal/outcome files
	PollInterval    time.Duration // how often to check for the outcome; default 500ms
	Timeout         time.Duration // max time to wait for the outcome; default 10min
	MaxStaleRejects int           // consecutive stale dispatch_id reads before aborting; default 10
	Logger          *slog.Logger  // structured logger; nil = discard
}

// signalFile is the JSON written next to the order to inform the
// external responder that work is waiting.
type signalFile struct {
	Status      string `json:"status"` // waiting, processing, done, error
	DispatchID  int64  `json:"dispatch_id"`
	Case        string `json:"case"`
	Iteration   int    `json:"iteration"`
	Route       Route  `json:"route"`
	Skill       string `json:"skill,omitempty"`
	OrderPath   string `json:"order_path"`
	OutcomePath string `json:"outcome_path"`
	Timestamp   string `json:"timestamp"`
	Error       string `json:"error,omitempty"`
}

// outcomeWrapper is the envelope the responder writes. The dispatcher
// accepts it only when dispatch_id matches the current signal.
type outcomeWrapper struct {
	DispatchID int64    `json:"dispatch_id"`
	Outcome    *Outcome `json:"outcome"`
}

// FileDispatcher hands orders to an external responder through the
// filesystem: it writes order.yaml plus a signal.json marker, then
// polls for outcome.json. Designed for semi-automated remediation where
// an agent or operator watches the work directory.
type FileDispatcher struct {
	cfg        FileDispatcherConfig
	log        *slog.Logger
	dispatchID int64 // monotonic counter
}

// NewFileDispatcher creates a file-based dispatcher with the given
// config.
func NewFileDispatcher(cfg FileDispatcherConfig) *FileDispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.MaxStaleRejects <= 0 {
		cfg.MaxStaleRejects = 10
	}
	l := cfg.Logger
	if l == nil {
		l = discardLogger()
	}
	return &FileDispatcher{cfg: cfg, log: l}
}

// Dispatch writes the order and a signal with a monotonic dispatch_id,
// then polls for an outcome whose wrapper echoes the same dispatch_id.
// Stale outcomes from previous dispatches are deterministically
// rejected by ID mismatch.
func (d *FileDispatcher) Dispatch(ctx context.Context, order Order) (Outcome, error) {
	if d.cfg.WorkDir == "" {
		return Outcome{}, fmt.Errorf("file dispatcher: work dir not configured")
	}
	if err := os.MkdirAll(d.cfg.WorkDir, 0755); err != nil {
		return Outcome{}, fmt.Errorf("create dispatch dir: %w", err)
	}
	orderPath := filepath.Join(d.cfg.WorkDir, OrderFilename)
	signalPath := filepath.Join(d.cfg.WorkDir, SignalFilename)
	outcomePath := filepath.Join(d.cfg.WorkDir, OutcomeFilename)

	d.dispatchID++
	did := d.dispatchID

	dl := d.log.With("case", order.Case, "iteration", order.Iteration, "dispatch_id", did)
	dl.Debug("dispatch begin", "order_path", orderPath, "signal_path", signalPath)

	// Remove any existing outcome before writing the signal. Without
	// this, the polling loop may immediately find a stale outcome from a
	// previous dispatch, hitting the MaxStaleRejects limit before the
	// responder can write the new one.
	if _, err := os.Stat(outcomePath); err == nil {
		dl.Debug("removing stale outcome before dispatch", "path", outcomePath)
		_ = os.Remove(outcomePath)
	}

	raw, err := yaml.Marshal(order)
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal order: %w", err)
	}
	if err := os.WriteFile(orderPath, raw, 0644); err != nil {
		return Outcome{}, fmt.Errorf("write order: %w", err)
	}

	sig := signalFile{
		Status:      "waiting",
		DispatchID:  did,
		Case:        order.Case,
		Iteration:   order.Iteration,
		Route:       order.Route,
		Skill:       order.Skill,
		OrderPath:   orderPath,
		OutcomePath: outcomePath,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := writeSignal(signalPath, &sig); err != nil {
		return Outcome{}, fmt.Errorf("write signal: %w", err)
	}
	dl.Debug("signal written", "status", "waiting")

	fmt.Printf("[remedy-dispatch] signal.json written: case=%s iteration=%d skill=%s dispatch_id=%d\n",
		order.Case, order.Iteration, order.Skill, did)
	fmt.Printf("[remedy-dispatch] waiting for outcome at %s (timeout %s)\n", outcomePath, d.cfg.Timeout)

	// Poll for an outcome with matching dispatch_id
	deadline := time.Now().Add(d.cfg.Timeout)
	pollCount := 0
	staleCount := 0 // consecutive stale dispatch_id mismatches
	for {
		if err := ctx.Err(); err != nil {
			sig.Status = "error"
			sig.Error = "dispatch canceled"
			_ = writeSignal(signalPath, &sig)
			return Outcome{}, fmt.Errorf("dispatch canceled: %w", err)
		}
		if time.Now().After(deadline) {
			dl.Debug("timeout reached", "polls", pollCount)
			sig.Status = "error"
			sig.Error = "timeout waiting for outcome"
			_ = writeSignal(signalPath, &sig)
			return Outcome{}, fmt.Errorf("timeout after %s waiting for outcome at %s", d.cfg.Timeout, outcomePath)
		}

		// Check if the responder reported an error via signal.json
		if sigData, readErr := os.ReadFile(signalPath); readErr == nil {
			var liveSig signalFile
			if json.Unmarshal(sigData, &liveSig) == nil && liveSig.DispatchID == did && liveSig.Status == "error" {
				dl.Debug("responder reported error via signal", "error", liveSig.Error)
				return Outcome{}, fmt.Errorf("responder error: %s", liveSig.Error)
			}
		}

		pollCount++
		data, err := os.ReadFile(outcomePath)
		if err != nil {
			if pollCount <= 3 || pollCount%20 == 0 {
				dl.Debug("poll: outcome not found", "poll", pollCount, "err", err)
			}
			staleCount = 0 // file absent = responder hasn't written yet; reset stale streak
			if err := sleep(ctx, d.cfg.PollInterval); err != nil {
				continue // loop top handles cancellation
			}
			continue
		}

		dl.Debug("poll: outcome file found", "poll", pollCount, "bytes", len(data))

		var wrapper outcomeWrapper
		if err := json.Unmarshal(data, &wrapper); err != nil {
			// Partial write; retry once before failing.
			dl.Debug("poll: invalid JSON on first read, retrying", "poll", pollCount, "err", err)
			_ = sleep(ctx, d.cfg.PollInterval)
			data, err = os.ReadFile(outcomePath)
			if err != nil {
				dl.Debug("poll: outcome disappeared on retry", "poll", pollCount, "err", err)
				continue
			}
			if err := json.Unmarshal(data, &wrapper); err != nil {
				dl.Debug("poll: invalid JSON on retry, failing", "poll", pollCount, "err", err)
				sig.Status = "error"
				sig.Error = fmt.Sprintf("invalid JSON in outcome: %v", err)
				_ = writeSignal(signalPath, &sig)
				return Outcome{}, fmt.Errorf("invalid JSON in %s: %w", outcomePath, err)
			}
		}

		// Reject stale outcomes deterministically by dispatch_id
		if wrapper.DispatchID != did {
			staleCount++
			dl.Debug("poll: stale outcome (dispatch_id mismatch)",
				"poll", pollCount, "want", did, "got", wrapper.DispatchID,
				"stale_streak", staleCount, "max", d.cfg.MaxStaleRejects)
			if staleCount >= d.cfg.MaxStaleRejects {
				sig.Status = "error"
				sig.Error = fmt.Sprintf("exceeded stale tolerance: %d consecutive outcomes with wrong dispatch_id (want %d, last got %d)",
					staleCount, did, wrapper.DispatchID)
				_ = writeSignal(signalPath, &sig)
				return Outcome{}, fmt.Errorf("stale outcome tolerance exceeded: %d consecutive dispatch_id mismatches (want %d, got %d) at %s",
					staleCount, did, wrapper.DispatchID, outcomePath)
			}
			_ = sleep(ctx, d.cfg.PollInterval)
			continue
		}
		staleCount = 0

		if wrapper.Outcome == nil {
			sig.Status = "error"
			sig.Error = "outcome wrapper has empty 'outcome' field"
			_ = writeSignal(signalPath, &sig)
			return Outcome{}, fmt.Errorf("outcome at %s has matching dispatch_id but no payload", outcomePath)
		}

		dl.Debug("outcome validated", "poll", pollCount, "applied", wrapper.Outcome.Applied)

		sig.Status = "processing"
		sig.Error = ""
		_ = writeSignal(signalPath, &sig)

		fmt.Printf("[remedy-dispatch] outcome found (applied=%v, dispatch_id=%d)\n", wrapper.Outcome.Applied, did)
		return *wrapper.Outcome, nil
	}
}

// MarkDone updates the signal file to "done" after the caller has
// processed the outcome.
func (d *FileDispatcher) MarkDone() {
	signalPath := filepath.Join(d.cfg.WorkDir, SignalFilename)

	data, err := os.ReadFile(signalPath)
	if err != nil {
		d.log.Debug("mark-done: cannot read signal", "path", signalPath, "err", err)
		return
	}
	var sig signalFile
	if err := json.Unmarshal(data, &sig); err != nil {
		d.log.Debug("mark-done: cannot parse signal", "path", signalPath, "err", err)
		return
	}
	d.log.Debug("mark-done", "prev_status", sig.Status, "case", sig.Case, "iteration", sig.Iteration, "dispatch_id", sig.DispatchID)
	sig.Status = "done"
	_ = writeSignal(signalPath, &sig)
}

// CurrentDispatchID returns the latest dispatch_id. Useful for tests.
func (d *FileDispatcher) CurrentDispatchID() int64 {
	return d.dispatchID
}

// writeSignal atomically writes a signal file.
func writeSignal(path string, sig *signalFile) error {
	data, err := json.MarshalIndent(sig, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	// Write to temp file then rename for atomicity
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write signal tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		// Fallback: direct write (rename may fail on some FS).
		// Clean up the orphaned .tmp file since rename didn't consume it.
		defer os.Remove(tmp)
		return os.WriteFile(path, data, 0644)
	}
	return nil
}

// sleep waits for d or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
