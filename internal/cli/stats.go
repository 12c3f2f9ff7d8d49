package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-tier statistics",
		RunE:  runStats,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired medium and long tier memories now",
		RunE:  runSweep,
	}

	RootCmd.AddCommand(statsCmd, sweepCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	s, bus, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(s, bus)

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), stats)
}

func runSweep(cmd *cobra.Command, args []string) error {
	s, bus, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(s, bus)

	res, err := s.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
