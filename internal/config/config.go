// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package config loads the Eva runtime configuration.
//
// Sources are layered, later ones winning: built-in defaults, the YAML
// config file, a .env file, EVA_ environment variables, then command-line
// flags that were explicitly set.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/evahq/eva/internal/xdg"
)

// CodeConfigInvalid marks configuration errors.
const CodeConfigInvalid = "CONFIG_INVALID"

// EnvPrefix prefixes environment variables. A double underscore separates
// nested keys: EVA_LOG__LEVEL sets log.level.
const EnvPrefix = "EVA_"

// Default values.
const (
	DefaultHTTPAddr    = "127.0.0.1:8800"
	DefaultMetricsAddr = "127.0.0.1:9100"
	DefaultLogFormat   = "json"
	DefaultLogLevel    = "info"
	DefaultWorkers     = 8
)

// listKeys hold comma separated lists when read from the environment.
var listKeys = []string{"enabled_plugins", "allowed_origins"}

// Config is the runtime configuration.
type Config struct {
	PluginDirectory string   `koanf:"plugin_directory"`
	ConfigDirectory string   `koanf:"config_directory"`
	EnabledPlugins  []string `koanf:"enabled_plugins"`
	Catalog         Catalog  `koanf:"catalog"`
	Log             Log      `koanf:"log"`
	HTTPAddr        string   `koanf:"http_addr"`
	MetricsAddr     string   `koanf:"metrics_addr"`
	AllowedOrigins  []string `koanf:"allowed_origins"`
	Workers         int      `koanf:"workers"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// Catalog locates the plugin catalog repository.
type Catalog struct {
	URL  string `koanf:"url"`
	Path string `koanf:"path"`
}

// Log configures logging.
type Log struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Options controls Load.
type Options struct {
	// File is an explicit config file. It must exist.
	File string
	// SearchPaths are tried in order when File is empty. Defaults to
	// SearchPaths().
	SearchPaths []string
	// EnvFile is a dotenv file. A missing file is ignored.
	EnvFile string
	// Flags are applied last; only flags set on the command line override.
	Flags *pflag.FlagSet
}

// SearchPaths returns the config file locations tried when none is given.
func SearchPaths() []string {
	var paths []string
	if dir, err := xdg.ConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "eva.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, "eva.yaml"),
			filepath.Join(home, ".eva.yaml"),
			filepath.Join(home, "eva", "eva.yaml"),
		)
	}
	return append(paths, "/etc/eva.yaml", "/etc/eva/eva.yaml")
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	d := map[string]any{
		"enabled_plugins": []string{},
		"catalog.url":     "",
		"log.format":      DefaultLogFormat,
		"log.level":       DefaultLogLevel,
		"http_addr":       DefaultHTTPAddr,
		"metrics_addr":    DefaultMetricsAddr,
		"allowed_origins": []string{"*"},
		"workers":         DefaultWorkers,
	}
	if dir, err := xdg.PluginDir(); err == nil {
		d["plugin_directory"] = dir
	}
	if dir, err := xdg.PluginConfigDir(); err == nil {
		d["config_directory"] = dir
	}
	if dir, err := xdg.CatalogDir(); err == nil {
		d["catalog.path"] = dir
	}
	return d
}

// Load builds the configuration from every source and validates it.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.In("config").Wrapf(err, "load defaults")
	}

	path, err := findFile(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return nil, oops.In("config").Code(CodeConfigInvalid).With("path", path).Wrapf(err, "load config file")
		}
	}

	if opts.EnvFile != "" {
		vars, err := godotenv.Read(opts.EnvFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, oops.In("config").With("path", opts.EnvFile).Wrapf(err, "read env file")
		default:
			if err := k.Load(confmap.Provider(fromEnvFile(vars), "."), nil); err != nil {
				return nil, oops.In("config").With("path", opts.EnvFile).Wrapf(err, "load env file")
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, oops.In("config").Wrapf(err, "load environment")
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagValue(opts.Flags)), nil); err != nil {
			return nil, oops.In("config").Wrapf(err, "load flags")
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.In("config").Code(CodeConfigInvalid).Wrapf(err, "decode configuration")
	}
	cfg.File = path
	cfg.expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findFile(opts Options) (string, error) {
	if opts.File != "" {
		if _, err := os.Stat(opts.File); err != nil {
			return "", oops.In("config").Code(CodeConfigInvalid).With("path", opts.File).Wrapf(err, "config file")
		}
		return opts.File, nil
	}
	paths := opts.SearchPaths
	if paths == nil {
		paths = SearchPaths()
	}
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", nil
}

// envKey maps EVA_LOG__LEVEL to log.level.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func envValue(name, value string) (string, any) {
	key := envKey(name)
	if slices.Contains(listKeys, key) {
		return key, splitList(value)
	}
	return key, value
}

func fromEnvFile(vars map[string]string) map[string]any {
	out := make(map[string]any)
	for name, value := range vars {
		if !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key, v := envValue(name, value)
		out[key] = v
	}
	return out
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// flagKey maps a flag name to its config key: log-format becomes
// log.format, plugin-directory becomes plugin_directory.
func flagKey(name string) string {
	switch {
	case strings.HasPrefix(name, "log-"):
		return "log." + strings.TrimPrefix(name, "log-")
	case strings.HasPrefix(name, "catalog-"):
		return "catalog." + strings.TrimPrefix(name, "catalog-")
	default:
		return strings.ReplaceAll(name, "-", "_")
	}
}

func flagValue(fs *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		if f.Name == "config" || f.Name == "env-file" {
			return "", nil
		}
		return flagKey(f.Name), posflag.FlagVal(fs, f)
	}
}

// expand resolves a leading ~ in directory settings.
func (c *Config) expand() {
	c.PluginDirectory = expandHome(c.PluginDirectory)
	c.ConfigDirectory = expandHome(c.ConfigDirectory)
	c.Catalog.Path = expandHome(c.Catalog.Path)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

var (
	logFormats = []string{"json", "text"}
	logLevels  = []string{"debug", "info", "warn", "error"}
)

// Validate checks that the configuration is usable. The error lists every
// invalid key under the "keys" context entry.
func (c *Config) Validate() error {
	var keys []string
	if c.PluginDirectory == "" {
		keys = append(keys, "plugin_directory")
	}
	if c.ConfigDirectory == "" {
		keys = append(keys, "config_directory")
	}
	if c.Catalog.URL != "" && c.Catalog.Path == "" {
		keys = append(keys, "catalog.path")
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		keys = append(keys, "log.format")
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		keys = append(keys, "log.level")
	}
	if c.Workers < 1 {
		keys = append(keys, "workers")
	}
	if len(keys) == 0 {
		return nil
	}
	return oops.In("config").
		Code(CodeConfigInvalid).
		With("keys", keys).
		Hint("log.format must be json or text; log.level one of debug, info, warn, error; workers at least 1").
		Errorf("invalid configuration values: %s", strings.Join(keys, ", "))
}
