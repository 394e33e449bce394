package mcp

import (
	"context"
	"os"
	"time"

	"github.com/dpopsuev/visor/internal/logging"
)

// WatchParent cancels the server when the parent process goes away, so
// editor restarts don't strand stdio servers. It polls the parent PID
// rather than reading stdin: the SDK's StdioTransport owns stdin, and
// stealing bytes from it would corrupt the JSON-RPC stream.
//
// The goroutine exits when ctx is canceled or the parent changes.
func WatchParent(ctx context.Context, cancel context.CancelFunc) {
	ppid := os.Getppid()
	log := logging.New("mcp")
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
				if os.Getppid() != ppid {
					log.Warn("parent process exited, shutting down", "was_pid", ppid)
					cancel()
					return
				}
			}
		}
	}()
}
