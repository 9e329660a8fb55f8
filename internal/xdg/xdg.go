// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package xdg provides XDG Base Directory paths for Eva.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "eva"

// base returns $env, or $HOME/fallback when env is unset.
func base(env string, fallback ...string) (string, error) {
	if dir := os.Getenv(env); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", oops.In("xdg").With("env", env).Wrapf(err, "resolve home directory")
	}
	return filepath.Join(append([]string{home}, fallback...)...), nil
}

// ConfigDir returns the XDG config directory for eva.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	dir, err := base("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// DataDir returns the XDG data directory for eva.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() (string, error) {
	dir, err := base("XDG_DATA_HOME", ".local", "share")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// CacheDir returns the XDG cache directory for eva.
// Checks XDG_CACHE_HOME first, falls back to ~/.cache.
func CacheDir() (string, error) {
	dir, err := base("XDG_CACHE_HOME", ".cache")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// PluginDir returns the default directory plugins are installed in.
func PluginDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "plugins"), nil
}

// PluginConfigDir returns the default directory of per-plugin configuration.
func PluginConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "plugins"), nil
}

// CatalogDir returns the default checkout location of the plugin catalog.
func CatalogDir() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "catalog"), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.In("xdg").With("path", path).Wrapf(err, "create directory")
	}
	return nil
}
