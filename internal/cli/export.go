package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/tiered-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every tier as a versioned snapshot",
		Long:  "Export every tier as a versioned snapshot on stdout. Exporting does not count as access.",
		RunE:  runExport,
	}

	cmd.Flags().StringP("format", "f", "json", "Output format: json or yaml")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	s, bus, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(s, bus)

	snap, err := s.Export(cmd.Context())
	if err != nil {
		return err
	}
	return encodeSnapshot(cmd.OutOrStdout(), snap, format)
}

// encodeSnapshot writes snap as JSON or YAML. YAML goes through a generic
// JSON tree so payloads come out as nested documents.
func encodeSnapshot(w io.Writer, snap *model.Snapshot, format string) error {
	switch format {
	case "json":
		return printJSON(w, snap)
	case "yaml":
		b, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		var tree any
		if err := json.Unmarshal(b, &tree); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q (use json or yaml)", format)
}

func decodeSnapshot(data []byte, format string) (*model.Snapshot, error) {
	switch format {
	case "json":
	case "yaml":
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(tree); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		data = buf.Bytes()
	default:
		return nil, fmt.Errorf("unknown format %q (use json or yaml)", format)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &snap, nil
}
