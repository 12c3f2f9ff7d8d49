package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "category <category>",
		Short: "List memories in a category",
		Long:  "List memories in a category, most important first. Every listed memory counts as accessed.",
		Args:  cobra.ExactArgs(1),
		RunE:  runCategory,
	}

	cmd.Flags().IntP("limit", "l", 10, "Max results")
	cmd.Flags().String("tier", "", "Only look in this tier: short, medium, long")

	RootCmd.AddCommand(cmd)
}

func runCategory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	tier, _ := cmd.Flags().GetString("tier")

	s, bus, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(s, bus)

	recs, err := s.RetrieveByCategory(cmd.Context(), store.CategoryParams{
		Category: model.Category(args[0]),
		Limit:    limit,
		Tier:     model.Tier(tier),
	})
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []model.Record{}
	}
	return printJSON(cmd.OutOrStdout(), recs)
}
