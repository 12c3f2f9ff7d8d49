// Package config loads tiered-memory settings from flags, environment
// variables (TIERED_MEMORY_ prefix) and an optional YAML config file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/store"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "TIERED_MEMORY"

// Config holds all settings.
type Config struct {
	DBPath              string
	BlobDir             string
	ForceDegraded       bool
	MaintenanceInterval time.Duration
	MediumRetention     time.Duration
	LongRetention       time.Duration
	LogLevel            slog.Level
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()

	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".tiered-memory")
	v.SetDefault("db", filepath.Join(base, "memory.db"))
	v.SetDefault("blob-dir", filepath.Join(base, "blob"))
	v.SetDefault("force-degraded", false)
	v.SetDefault("maintenance-interval", store.DefaultMaintenanceInterval)
	v.SetDefault("medium-retention", model.MediumRetention)
	v.SetDefault("long-retention", model.LongRetention)
	v.SetDefault("log-level", "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every flag in fs to the viper key of the same name.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(f.Name, f)
	})
	return err
}

// Load reads the optional config file and returns the resolved settings.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		DBPath:              v.GetString("db"),
		BlobDir:             v.GetString("blob-dir"),
		ForceDegraded:       v.GetBool("force-degraded"),
		MaintenanceInterval: v.GetDuration("maintenance-interval"),
		MediumRetention:     v.GetDuration("medium-retention"),
		LongRetention:       v.GetDuration("long-retention"),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("log-level: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for values the store cannot use.
func (c *Config) Validate() error {
	if c.DBPath == "" && !c.ForceDegraded {
		return fmt.Errorf("db path is required unless force-degraded is set")
	}
	if c.MaintenanceInterval < 0 {
		return fmt.Errorf("maintenance-interval must not be negative")
	}
	if c.MediumRetention <= 0 || c.LongRetention <= 0 {
		return fmt.Errorf("retention periods must be positive")
	}
	return nil
}
