package main

import (
	"fmt"

	"github.com/aretw0/moments/internal/presentation/graph"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/spf13/cobra"
)

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Print the session lifecycle as a Mermaid diagram",
	RunE: func(cmd *cobra.Command, args []string) error {
		var overlay *graph.GraphOverlay
		if current, _ := cmd.Flags().GetString("current"); current != "" {
			st := domain.SessionState(current)
			if !validState(st) {
				return fmt.Errorf("unknown session state %q", current)
			}
			overlay = &graph.GraphOverlay{CurrentState: st}
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(overlay))
		return nil
	},
}

func validState(st domain.SessionState) bool {
	for _, s := range domain.States {
		if s == st {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(statesCmd)
	statesCmd.Flags().String("current", "", "Highlight a state")
}
