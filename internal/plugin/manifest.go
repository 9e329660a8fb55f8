// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package plugin discovers, acquires, configures and activates Eva plugins.
package plugin

import (
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Kind identifies the runtime that executes a plugin.
type Kind string

// Plugin kinds supported by the system.
const (
	KindLua    Kind = "lua"
	KindBinary Kind = "binary"
	// KindBuiltin plugins are compiled into the binary and never described
	// by a file on disk.
	KindBuiltin Kind = "builtin"
)

// Manifest is the parsed <id>/<id>.yaml descriptor file.
type Manifest struct {
	Name         string   `yaml:"name" json:"name" jsonschema:"minLength=1,description=Human readable plugin name"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Version      string   `yaml:"version" json:"version" jsonschema:"minLength=1,description=Semantic version of the plugin"`
	Runtime      Kind     `yaml:"runtime" json:"runtime" jsonschema:"enum=lua,enum=binary"`
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty" jsonschema:"description=IDs of plugins that must be activated first"`
	Eva          string   `yaml:"eva,omitempty" json:"eva,omitempty" jsonschema:"description=Semantic version constraint on the Eva runtime"`
	Hooks        []string `yaml:"hooks,omitempty" json:"hooks,omitempty" jsonschema:"description=Hook name patterns a binary plugin subscribes to"`
	Install      []string `yaml:"install,omitempty" json:"install,omitempty" jsonschema:"description=Command run in the plugin directory before activation"`
}

// maxIDLength is the maximum allowed length for plugin IDs.
const maxIDLength = 64

// idPattern validates plugin IDs: lowercase letters, digits, hyphens and
// underscores, never starting or ending with a separator.
var idPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]*[a-z0-9])?$`)

// ValidateID checks that id can name a plugin directory.
func ValidateID(id string) error {
	if len(id) > maxIDLength {
		return oops.In("plugin").With("id", id).
			Errorf("plugin ID must be %d characters or less, got %d", maxIDLength, len(id))
	}
	if !idPattern.MatchString(id) {
		return oops.In("plugin").With("id", id).
			Errorf("plugin ID %q must contain only a-z, 0-9, '-' and '_' and start and end with a letter or digit", id)
	}
	return nil
}

// ParseManifest parses and validates a descriptor file.
func ParseManifest(data []byte) (*Manifest, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, oops.In("plugin").Wrapf(err, "invalid YAML")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the constraints the JSON schema cannot express.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return oops.In("plugin").Errorf("name is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return oops.In("plugin").With("version", m.Version).Wrapf(err, "version must be a semantic version")
	}
	if m.Eva != "" {
		if _, err := semver.NewConstraint(m.Eva); err != nil {
			return oops.In("plugin").With("eva", m.Eva).Wrapf(err, "eva must be a version constraint")
		}
	}
	switch m.Runtime {
	case KindLua, KindBinary:
	default:
		return oops.In("plugin").With("runtime", m.Runtime).
			Errorf("runtime must be 'lua' or 'binary', got %q", m.Runtime)
	}
	for _, dep := range m.Dependencies {
		if err := ValidateID(dep); err != nil {
			return oops.In("plugin").With("dependency", dep).Wrapf(err, "invalid dependency")
		}
	}
	return nil
}

// DependencySet returns the dependencies with duplicates removed, in
// declaration order.
func (m *Manifest) DependencySet() []string {
	seen := make(map[string]bool, len(m.Dependencies))
	out := make([]string, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// EntryPoint returns the file name, relative to the plugin directory, that
// the runtime loads for plugin id.
func (m *Manifest) EntryPoint(id string) string {
	if m.Runtime == KindLua {
		return id + ".lua"
	}
	return id
}
