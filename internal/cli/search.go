package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Fuzzy search memories",
		Long:  "Score memories against the query and print those at or above the threshold, best first.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().StringSliceP("category", "c", nil, "Only these categories")
	cmd.Flags().StringSlice("tier", nil, "Only these tiers")
	cmd.Flags().IntP("limit", "l", 10, "Max results")
	cmd.Flags().Float64P("threshold", "t", store.DefaultSearchThreshold, "Minimum similarity in [0,1]")
	cmd.Flags().Bool("score", false, "Include similarity scores")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	categories, _ := cmd.Flags().GetStringSlice("category")
	tiers, _ := cmd.Flags().GetStringSlice("tier")
	limit, _ := cmd.Flags().GetInt("limit")
	withScore, _ := cmd.Flags().GetBool("score")

	p := store.SearchParams{
		Query:        strings.Join(args, " "),
		Limit:        limit,
		IncludeScore: withScore,
	}
	if cmd.Flags().Changed("threshold") {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		p.Threshold = store.Threshold(threshold)
	}
	for _, c := range categories {
		p.Categories = append(p.Categories, model.Category(strings.TrimSpace(c)))
	}
	for _, t := range tiers {
		p.Tiers = append(p.Tiers, model.Tier(strings.TrimSpace(t)))
	}

	s, bus, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(s, bus)

	results, err := s.Search(cmd.Context(), p)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), results)
}
