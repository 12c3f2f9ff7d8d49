// Package cli implements the tiered-memory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/backend"
	"github.com/rcliao/tiered-memory/internal/config"
	"github.com/rcliao/tiered-memory/internal/events"
	"github.com/rcliao/tiered-memory/internal/store"
)

var (
	configFile string
	v          = config.New()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "tiered-memory",
	Short: "Tiered memory store for a companion chat",
	Long: "Store, retrieve and search categorized memories. Records are placed in short, medium or long " +
		"retention tiers by importance and promoted as they are accessed. SQLite-backed, with a JSON blob fallback.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML config file")
	pf.StringP("db", "d", "", "Database path (default: $TIERED_MEMORY_DB or ~/.tiered-memory/memory.db)")
	pf.String("blob-dir", "", "Fallback blob directory (default: ~/.tiered-memory/blob)")
	pf.Bool("force-degraded", false, "Skip SQLite and use the blob backend")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")

	if err := config.BindFlags(v, pf); err != nil {
		panic(err)
	}
}

// openStore builds the store from configuration. The caller closes it.
func openStore(cmd *cobra.Command) (*store.TieredStore, *events.Bus, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel}))

	var primary store.Opener
	if !cfg.ForceDegraded {
		primary = func() (backend.Backend, error) { return backend.NewSQLiteBackend(cfg.DBPath) }
	}
	fallback := func() (backend.Backend, error) { return backend.NewBlobBackend(cfg.BlobDir, logger) }

	bus := events.NewBus()
	for _, name := range []string{events.MemorySystemInitialized, events.MemoryCleared, events.MemoryImported, events.MemorySwept} {
		bus.Subscribe(name, func(ev events.Event) {
			logger.Debug("event", "name", ev.Name, "id", ev.ID, "payload", ev.Payload)
		})
	}

	s := store.Open(primary, fallback,
		store.WithLogger(logger),
		store.WithPublisher(bus),
		store.WithMaintenanceInterval(cfg.MaintenanceInterval),
		store.WithRetention(cfg.MediumRetention, cfg.LongRetention),
	)
	return s, bus, nil
}

// closeStore closes s and lets pending event handlers finish.
func closeStore(s *store.TieredStore, bus *events.Bus) {
	s.Close()
	bus.Wait()
}

// printJSON writes v indented. Payload text is left unescaped so an exported
// snapshot imports back byte for byte.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
