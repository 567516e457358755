package main

import (
	"fmt"
	"os"

	"github.com/aretw0/moments/internal/cli"
	"github.com/aretw0/moments/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "moments",
	Short: "Moments is the session layer of a media editing engine",
	Long: `Moments mounts editing sessions on a capability engine, keeps their drafts
saved in the background and lets operators inspect stored drafts.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a moments.yaml configuration file")
	rootCmd.PersistentFlags().String("storage", "", "Override storage.backend (memory, file, redis, sqlite)")
	rootCmd.PersistentFlags().String("path", "", "Override storage.path")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging and lifecycle tracing")
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if v, _ := cmd.Flags().GetString("storage"); v != "" {
		cfg.Storage.Backend = v
	}
	if v, _ := cmd.Flags().GetString("path"); v != "" {
		cfg.Storage.Path = v
	}
	return cfg, cfg.Validate()
}

// openRepository opens the configured storage for draft commands.
func openRepository(cmd *cobra.Command) (*cli.Backend, config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	backend, err := cli.OpenStorage(cmd.Context(), cfg.Storage, cli.NewLogger(cfg.Log, debug))
	return backend, cfg, err
}
