/*
Package config handles loading and validating gateway configuration from
environment variables via viper. All values have sensible defaults so the
gateway can start with zero environment setup during local development.
*/
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every configuration value the gateway needs. values are read
// once at startup and passed through the app via dependency injection -- no
// global config variable is used, the same discipline the teacher's
// AppConfig follows.
type Config struct {
	// Port is the TCP port the gateway's HTTP server listens on.
	Port string

	// WorkspaceRoot is the base directory on disk for registered project
	// directories. it is reported in the startup log only; the build
	// pipeline writes rendered Dockerfiles/nginx configs into each
	// request's own project_path and does not consult this value.
	WorkspaceRoot string

	// LogFormat controls the slog output format: "text" for local
	// development, anything else (including "json", the default) for
	// structured production logging.
	LogFormat string

	// PortBase is the first host port the Port Allocator hands out.
	PortBase int

	// IdleTimeout is how long a container may sit unused before the reaper
	// stops it.
	IdleTimeout time.Duration

	// ReapInterval is how often the idle reaper scans the handle table.
	ReapInterval time.Duration

	// EventsDBPath is the SQLite file backing the ephemeral event journal.
	EventsDBPath string
}

// Load reads configuration from environment variables, falling back to safe
// local-development defaults for anything unset. env var names match the
// teacher's naming convention (upper-snake-case, no prefix) plus the
// gateway-specific additions from SPEC_FULL.md section 6.
func Load() *Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "5500")
	v.SetDefault("workspace_root", "./data/workspace")
	v.SetDefault("log_format", "json")
	v.SetDefault("port_base", 3500)
	v.SetDefault("idle_timeout_seconds", 15)
	v.SetDefault("reap_interval_seconds", 5)
	v.SetDefault("events_db_path", "./data/events.db")

	return &Config{
		Port:          v.GetString("port"),
		WorkspaceRoot: v.GetString("workspace_root"),
		LogFormat:     v.GetString("log_format"),
		PortBase:      v.GetInt("port_base"),
		IdleTimeout:   time.Duration(v.GetInt("idle_timeout_seconds")) * time.Second,
		ReapInterval:  time.Duration(v.GetInt("reap_interval_seconds")) * time.Second,
		EventsDBPath:  v.GetString("events_db_path"),
	}
}

// NewLogger constructs a *slog.Logger based on LogFormat. "text" produces
// human-readable output for local development; any other value produces
// structured JSON for production and container log shipping. Identical in
// shape to the teacher's config.AppConfig.NewLogger, generalized off *Config.
func (cfg *Config) NewLogger() *slog.Logger {
	var handler slog.Handler

	options := &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelInfo,
		ReplaceAttr: func(groups []string, attribute slog.Attr) slog.Attr {
			if attribute.Key == slog.SourceKey {
				source := attribute.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attribute
		},
	}

	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, options)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, options)
	}

	return slog.New(handler)
}
