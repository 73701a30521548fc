// Package xdg provides XDG Base Directory paths for Driftline.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "driftline"

// ConfigDir returns the XDG config directory for driftline.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default config file path if it exists, or ""
// when no file is present. Used when --config is not given.
func ConfigFile() string {
	path := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
