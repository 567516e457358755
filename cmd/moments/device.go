package main

import (
	"encoding/json"

	"github.com/aretw0/moments/pkg/device"
	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Resolve the device profile for a browser environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		var env device.Environment
		env.UserAgent, _ = cmd.Flags().GetString("user-agent")
		env.MobileHint, _ = cmd.Flags().GetString("mobile-hint")
		env.Platform, _ = cmd.Flags().GetString("platform")
		env.MaxTouchPoints, _ = cmd.Flags().GetInt("touch-points")

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(device.Resolve(env))
	},
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.Flags().String("user-agent", "", "User-Agent header")
	deviceCmd.Flags().String("mobile-hint", "", `Sec-CH-UA-Mobile client hint ("?1" or "?0")`)
	deviceCmd.Flags().String("platform", "", "Sec-CH-UA-Platform client hint")
	deviceCmd.Flags().Int("touch-points", 0, "navigator.maxTouchPoints")
}
