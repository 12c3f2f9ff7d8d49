package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "store [payload]",
		Short: "Store a memory",
		Long:  "Store a memory. The payload can be a positional arg or piped via stdin. With --json it must be a JSON document.",
		RunE:  runStore,
	}

	cmd.Flags().StringP("category", "c", "", "Category: conversation, fact, preference, behavior, emotion (required)")
	cmd.Flags().Float64P("importance", "i", model.DefaultImportance, "Importance in [0,1]")
	cmd.Flags().Bool("json", false, "Treat the payload as JSON instead of text")

	cmd.MarkFlagRequired("category")

	RootCmd.AddCommand(cmd)
}

func runStore(cmd *cobra.Command, args []string) error {
	category, _ := cmd.Flags().GetString("category")
	importance, _ := cmd.Flags().GetFloat64("importance")
	asJSON, _ := cmd.Flags().GetBool("json")

	// Payload: positional arg first, then stdin
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else if stat, err := os.Stdin.Stat(); err == nil && stat.Mode()&os.ModeCharDevice == 0 {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		content = string(b)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("payload is required (positional arg or stdin)")
	}

	var payload any = content
	if asJSON {
		payload = json.RawMessage(content)
	}

	s, bus, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(s, bus)

	id, err := s.Store(cmd.Context(), store.StoreParams{
		Payload:    payload,
		Category:   model.Category(category),
		Importance: store.Importance(importance),
	})
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), map[string]string{"id": id, "tier": string(model.TierFor(importance))})
}
