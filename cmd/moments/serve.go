package main

import (
	"context"
	"os"

	"github.com/aretw0/moments"
	"github.com/aretw0/moments/internal/cli"
	"github.com/aretw0/moments/internal/presentation/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP session bridge",
	Long: `Starts the moments HTTP server. Hosts create sessions, run actions, answer
the draft recovery prompt and follow session events over HTTP. Prometheus
metrics are served on the configured metrics path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		debug, _ := cmd.Flags().GetBool("debug")
		logger := cli.NewLogger(cfg.Log, debug)

		if term.IsTerminal(int(os.Stdout.Fd())) && cfg.Log.Format != "json" {
			tui.PrintBanner(os.Stdout, moments.Version)
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		err = cli.Serve(sigCtx, cli.ServeOptions{Config: cfg, Logger: logger, Debug: debug})
		if sig := sigCtx.Signal(); sig != nil {
			logger.Info("Server stopped", "signal", sig.String())
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides server.addr)")
}
