package main

import (
	"fmt"
	"os"
	"time"

	"github.com/aretw0/moments/internal/cli"
	"github.com/aretw0/moments/internal/presentation/tui"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/draft"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Manage stored drafts",
	Long:  `List, inspect, and remove the drafts kept in the configured storage.`,
}

var draftLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all stored drafts",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, cfg, err := openRepository(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		entries, err := cli.ListDrafts(cmd.Context(), draft.NewRepository(backend.Storage))
		if err != nil {
			return err
		}
		return cli.PrintDrafts(cmd.OutOrStdout(), entries, time.Now(), cfg.Recovery.StalenessThreshold)
	},
}

var draftInspectCmd = &cobra.Command{
	Use:   "inspect <user-id> [image|video]",
	Short: "Inspect the draft of a user",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args)
		if err != nil {
			return err
		}
		backend, _, err := openRepository(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		preview, _ := cmd.Flags().GetInt("preview")
		var render func(string) (string, error)
		if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
			width, _, _ := term.GetSize(fd)
			render = tui.NewRenderer(width)
		}
		return cli.InspectDraft(cmd.Context(), cmd.OutOrStdout(), draft.NewRepository(backend.Storage), key, time.Now(), preview, render)
	},
}

var draftRmCmd = &cobra.Command{
	Use:   "rm <user-id> [image|video]",
	Short: "Delete the draft of a user",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args)
		if err != nil {
			return err
		}
		backend, _, err := openRepository(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		if err := draft.NewRepository(backend.Storage).Delete(cmd.Context(), key); err != nil {
			return fmt.Errorf("error deleting draft %s: %w", key, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Draft '%s' deleted.\n", key)
		return nil
	},
}

func parseKey(args []string) (domain.DraftKey, error) {
	key := domain.DraftKey{UserID: args[0], MediaType: domain.MediaImage}
	if len(args) > 1 {
		media, err := domain.ParseMediaType(args[1])
		if err != nil {
			return key, err
		}
		key.MediaType = media
	}
	return key, nil
}

func init() {
	rootCmd.AddCommand(draftCmd)
	draftCmd.AddCommand(draftLsCmd)
	draftCmd.AddCommand(draftInspectCmd)
	draftCmd.AddCommand(draftRmCmd)

	draftInspectCmd.Flags().Int("preview", 400, "Characters of the serialized scene to show (0 hides it)")
}
