package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aretw0/moments/internal/cli"
	"github.com/aretw0/moments/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes stored drafts, device profile resolution and live sessions as MCP tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")
		logger := cli.NewLogger(cfg.Log, debug)

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		backend, err := cli.OpenStorage(sigCtx, cfg.Storage, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		hooks := cli.DebugHooks(logger)
		editor, err := cli.NewEditor(cfg, backend, nil, logger, hooks)
		if err != nil {
			return err
		}
		defer editor.Shutdown(sigCtx)
		srv := mcp.NewServer(editor, mcp.WithLogger(logger))

		transport, _ := cmd.Flags().GetString("transport")
		switch transport {
		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			logger.Info("Starting Moments MCP Server (Stdio)...")
			return srv.ServeStdio()
		case "sse":
			addr, _ := cmd.Flags().GetString("addr")
			if err := srv.ServeSSE(sigCtx, addr); err != nil {
				return fmt.Errorf("MCP Server execution failed: %w", err)
			}
			logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":8081", "Address to listen on (only for SSE)")
}
