// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

// ConfigSchema is a compiled plugin configuration schema together with the
// defaults it declares.
type ConfigSchema struct {
	compiled *jschema.Schema
	defaults map[string]any
}

// CompileConfigSchema compiles a JSON Schema document for plugin id.
func CompileConfigSchema(id string, raw []byte) (*ConfigSchema, error) {
	url := "eva://config/" + id + ".schema.json"
	compiled, err := compileSchema(url, raw)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, oops.In("plugin").With("plugin", id).Wrapf(err, "parse config schema")
	}
	defaults := make(map[string]any)
	collectDefaults(doc, nil, defaults)

	return &ConfigSchema{compiled: compiled, defaults: defaults}, nil
}

// LoadConfigSchema reads <dir>/<id>.schema.json. A missing file yields a nil
// schema and no error.
func LoadConfigSchema(id, dir string) (*ConfigSchema, error) {
	path := filepath.Join(dir, id+".schema.json")
	raw, err := os.ReadFile(path) //nolint:gosec // path is built from the plugin directory
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.In("plugin").With("plugin", id).With("path", path).Wrapf(err, "read config schema")
	}
	return CompileConfigSchema(id, raw)
}

// Defaults returns the flattened default values, keyed by dotted path.
func (s *ConfigSchema) Defaults() map[string]any {
	out := make(map[string]any, len(s.defaults))
	for k, v := range s.defaults {
		out[k] = v
	}
	return out
}

// Validate validates doc and returns the sorted dotted keys that failed.
func (s *ConfigSchema) Validate(doc map[string]any) ([]string, error) {
	err := s.compiled.Validate(toJSONTypes(doc))
	if err == nil {
		return nil, nil
	}
	var verr *jschema.ValidationError
	if !errors.As(err, &verr) {
		return nil, oops.In("plugin").Wrapf(err, "validate config")
	}
	seen := make(map[string]bool)
	collectInvalidKeys(verr, seen)
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func collectDefaults(node map[string]any, prefix []string, out map[string]any) {
	props, _ := node["properties"].(map[string]any)
	for name, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		path := append(slices.Clone(prefix), name)
		if def, ok := prop["default"]; ok {
			out[strings.Join(path, ".")] = def
			continue
		}
		collectDefaults(prop, path, out)
	}
}

func collectInvalidKeys(e *jschema.ValidationError, keys map[string]bool) {
	if len(e.Causes) > 0 {
		for _, c := range e.Causes {
			collectInvalidKeys(c, keys)
		}
		return
	}
	add := func(loc []string) {
		if len(loc) == 0 {
			keys["(root)"] = true
			return
		}
		keys[strings.Join(loc, ".")] = true
	}
	switch k := e.ErrorKind.(type) {
	case *kind.Required:
		for _, name := range k.Missing {
			add(append(slices.Clone(e.InstanceLocation), name))
		}
	case *kind.AdditionalProperties:
		for _, name := range k.Properties {
			add(append(slices.Clone(e.InstanceLocation), name))
		}
	default:
		add(e.InstanceLocation)
	}
}

// Config is the validated key-value configuration of one plugin, backed by
// <configDir>/<id>.yaml.
type Config struct {
	plugin string
	path   string
	schema *ConfigSchema

	mu sync.RWMutex
	k  *koanf.Koanf
}

// LoadConfig loads the configuration of plugin id from path, applying the
// defaults of schema and validating the result. schema may be nil. A missing
// file is not an error; the defaults are used.
func LoadConfig(id, path string, schema *ConfigSchema) (*Config, error) {
	c := &Config{plugin: id, path: path, schema: schema, k: koanf.New(".")}

	if schema != nil {
		for key, val := range schema.defaults {
			if err := c.k.Set(key, val); err != nil {
				return nil, oops.In("plugin").With("plugin", id).With("key", key).Wrapf(err, "apply config default")
			}
		}
	}

	if _, err := os.Stat(path); err == nil {
		if err := c.k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return nil, oops.In("plugin").With("plugin", id).With("path", path).Wrapf(err, "load config")
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, oops.In("plugin").With("plugin", id).With("path", path).Wrapf(err, "stat config")
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.schema == nil {
		return nil
	}
	keys, err := c.schema.Validate(c.k.Raw())
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return ErrConfigInvalid(c.plugin, c.path, keys)
	}
	return nil
}

// Path returns the backing file path.
func (c *Config) Path() string {
	return c.path
}

// Exists reports whether key is set.
func (c *Config) Exists(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.Exists(key)
}

// Get returns the raw value of key, or nil.
func (c *Config) Get(key string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.Get(key)
}

// String returns key as a string.
func (c *Config) String(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.String(key)
}

// Int returns key as an int.
func (c *Config) Int(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.Int(key)
}

// Float64 returns key as a float64.
func (c *Config) Float64(key string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.Float64(key)
}

// Bool returns key as a bool.
func (c *Config) Bool(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.Bool(key)
}

// Strings returns key as a string slice.
func (c *Config) Strings(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.Strings(key)
}

// All returns a copy of the whole document as nested maps.
func (c *Config) All() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.Raw()
}

// Set changes key in memory. Call Save to persist it.
func (c *Config) Set(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.k.Set(key, value); err != nil {
		return oops.In("plugin").With("plugin", c.plugin).With("key", key).Wrapf(err, "set config value")
	}
	return nil
}

// Save validates the document and writes it to Path, creating the file and
// its directory when they do not exist yet.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.validate(); err != nil {
		return err
	}
	data, err := c.k.Marshal(kyaml.Parser())
	if err != nil {
		return oops.In("plugin").With("plugin", c.plugin).Wrapf(err, "marshal config")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return oops.In("plugin").With("path", c.path).Wrapf(err, "create config directory")
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return oops.In("plugin").With("path", c.path).Wrapf(err, "write config")
	}
	return nil
}
