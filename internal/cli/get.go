package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a memory by id",
		Long:  "Retrieve a memory by id. Counts as an access and may promote the memory to a longer tier.",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	cmd.Flags().String("tier", "", "Only look in this tier: short, medium, long")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	tier, _ := cmd.Flags().GetString("tier")

	s, bus, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(s, bus)

	rec, err := s.Retrieve(cmd.Context(), args[0], model.Tier(tier))
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("memory not found: %s", args[0])
	}
	return printJSON(cmd.OutOrStdout(), rec)
}
