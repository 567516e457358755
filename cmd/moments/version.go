package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/moments"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of moments",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "moments version %s\n", strings.TrimSpace(moments.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
