package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace all memories with a snapshot",
		Long: "Replace all memories with a snapshot read from stdin (the format produced by export). " +
			"Existing memories are deleted first; an invalid snapshot is rejected before anything is touched.",
		RunE: runImport,
	}

	cmd.Flags().StringP("format", "f", "json", "Input format: json or yaml")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	snap, err := decodeSnapshot(data, format)
	if err != nil {
		return err
	}

	s, bus, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(s, bus)

	if err := s.Import(cmd.Context(), snap); err != nil {
		return err
	}

	imported := 0
	for _, recs := range snap.Memories {
		imported += len(recs)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"imported":%d}`+"\n", imported)
	return nil
}
