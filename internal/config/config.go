// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package config loads server configuration from a YAML file, command
// line flags and the environment.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/driftline/driftline/internal/xdg"
)

// Config is the full server configuration.
type Config struct {
	Gateway       GatewayConfig     `koanf:"gateway"`
	Observability ObsConfig         `koanf:"observability"`
	Database      DatabaseConfig    `koanf:"database"`
	NATS          NATSConfig        `koanf:"nats"`
	Auth          AuthConfig        `koanf:"auth"`
	Dispatch      DispatchConfig    `koanf:"dispatch"`
	Log           LogConfig         `koanf:"log"`
	Maintenance   MaintenanceConfig `koanf:"maintenance"`
}

// GatewayConfig configures the websocket gateway.
type GatewayConfig struct {
	Addr string `koanf:"addr"`
}

// ObsConfig configures the metrics and health endpoint.
type ObsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// NATSConfig configures the optional cross-node relay. With Enabled
// false the bus stays process-local.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// AuthConfig configures token verification.
type AuthConfig struct {
	TokenSecret string        `koanf:"token_secret"`
	TokenTTL    time.Duration `koanf:"token_ttl"`
}

// DispatchConfig configures the background worker pool.
type DispatchConfig struct {
	Workers   int `koanf:"workers"`
	QueueSize int `koanf:"queue_size"`
	Attempts  int `koanf:"attempts"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// MaintenanceConfig configures the periodic cleanup loop.
type MaintenanceConfig struct {
	Interval  time.Duration `koanf:"interval"`
	Retention time.Duration `koanf:"retention"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Gateway:       GatewayConfig{Addr: ":8080"},
		Observability: ObsConfig{Addr: ":9100"},
		NATS:          NATSConfig{URL: "nats://127.0.0.1:4222", SubjectPrefix: "driftline"},
		Auth:          AuthConfig{TokenTTL: 24 * time.Hour},
		Dispatch:      DispatchConfig{Workers: 4, QueueSize: 256, Attempts: 5},
		Log:           LogConfig{Format: "json", Level: "info"},
		Maintenance:   MaintenanceConfig{Interval: time.Hour, Retention: 24 * time.Hour},
	}
}

// Load builds a Config from defaults, an optional YAML file and the
// given flag set, in that precedence order. With an empty path the XDG
// default location is probed. DATABASE_URL and DRIFTLINE_TOKEN_SECRET
// in the environment override the file but not the flags.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Defaults()
	k := koanf.New(".")

	if path == "" {
		path = xdg.ConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		_ = k.Set("database.url", dsn)
	}
	if secret := os.Getenv("DRIFTLINE_TOKEN_SECRET"); secret != "" {
		_ = k.Set("auth.token_secret", secret)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}
	return cfg, nil
}
