package main

import (
	"context"

	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dpopsuev/visor/internal/logging"
	mcpserver "github.com/dpopsuev/visor/internal/mcp"
	"github.com/dpopsuev/visor/internal/render"
)

var serveFlags struct {
	basePath   string
	captureURL string
	configPath string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio for agent integration",
	Long: `Starts an MCP server over stdin/stdout. Agents connect via their MCP
configuration and call the evaluation and convergence tools directly.

The server monitors for parent process death. When the client disconnects
or restarts, the server self-terminates to prevent zombie processes.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.basePath, "base-path", "", "Case storage root (default .visor/cases)")
	f.StringVar(&serveFlags.captureURL, "capture-url", "", "Render target URL; enables browser capture in converge_step")
	f.StringVar(&serveFlags.configPath, "config", "", "Engine config file (YAML or JSON)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(serveFlags.configPath, 0, 0)
	if err != nil {
		return err
	}

	srv := mcpserver.NewServer(cfg)
	defer srv.Shutdown()
	if serveFlags.basePath != "" {
		srv.BasePath = serveFlags.basePath
	}
	if serveFlags.captureURL != "" {
		srv.Capturer = render.NewBrowserCapturer(cfg.Capture)
		srv.CaptureURL = serveFlags.captureURL
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpserver.WatchParent(ctx, cancel)

	logging.New("mcp").Info("starting visor MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
