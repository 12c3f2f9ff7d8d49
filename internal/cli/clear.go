package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/model"
)

func init() {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every memory in a tier, or in all tiers",
		RunE:  runClear,
	}
	clearCmd.Flags().String("tier", "", "Tier to clear (default: all)")

	sessionCmd := &cobra.Command{
		Use:   "end-session",
		Short: "Clear the session-scoped short tier",
		RunE:  runEndSession,
	}

	RootCmd.AddCommand(clearCmd, sessionCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	tier, _ := cmd.Flags().GetString("tier")

	s, bus, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(s, bus)

	if err := s.Clear(cmd.Context(), model.Tier(tier)); err != nil {
		return err
	}
	if tier == "" {
		tier = "all"
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"tier":%q}`+"\n", tier)
	return nil
}

func runEndSession(cmd *cobra.Command, args []string) error {
	s, bus, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(s, bus)

	if err := s.ClearSession(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"tier":%q}`+"\n", model.TierShort)
	return nil
}
