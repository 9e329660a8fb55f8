// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin

import (
	"strings"

	"github.com/samber/oops"
)

// Error codes returned by the plugin lifecycle.
const (
	CodeConfigInvalid       = "CONFIG_INVALID"
	CodePluginNotFound      = "PLUGIN_NOT_FOUND"
	CodeUnmetDependencies   = "UNMET_DEPENDENCIES"
	CodeDependencyCycle     = "DEPENDENCY_CYCLE"
	CodeFetchFailed         = "FETCH_FAILED"
	CodeInstallFailed       = "INSTALL_FAILED"
	CodeActivationFailed    = "ACTIVATION_FAILED"
	CodeIncompatibleRuntime = "INCOMPATIBLE_RUNTIME"
)

// ErrPluginNotFound reports an ID that is neither installed nor in the catalog.
func ErrPluginNotFound(id string) error {
	return oops.In("plugin").Code(CodePluginNotFound).
		With("plugin", id).
		Hint("check the plugin ID or refresh the catalog").
		Errorf("plugin %s not found locally or in the catalog", id)
}

// ErrUnmetDependencies reports dependencies that cannot be resolved.
func ErrUnmetDependencies(id string, missing []string) error {
	return oops.In("plugin").Code(CodeUnmetDependencies).
		With("plugin", id).
		With("missing", missing).
		Errorf("plugin %s has unmet dependencies: %s", id, strings.Join(missing, ", "))
}

// ErrDependencyCycle reports a dependency chain that leads back to itself.
func ErrDependencyCycle(chain []string) error {
	return oops.In("plugin").Code(CodeDependencyCycle).
		With("chain", chain).
		Errorf("dependency cycle: %s", strings.Join(chain, " -> "))
}

// ErrFetchFailed wraps a failure to acquire a plugin from its remote.
func ErrFetchFailed(id, url string, cause error) error {
	return oops.In("plugin").Code(CodeFetchFailed).
		With("plugin", id).
		With("url", url).
		Wrapf(cause, "fetch plugin %s", id)
}

// ErrInstallFailed wraps a failed install step.
func ErrInstallFailed(id string, cause error) error {
	return oops.In("plugin").Code(CodeInstallFailed).
		With("plugin", id).
		Wrapf(cause, "install dependencies of plugin %s", id)
}

// ErrActivationFailed wraps a failure to bind or enable a plugin.
func ErrActivationFailed(id string, cause error) error {
	return oops.In("plugin").Code(CodeActivationFailed).
		With("plugin", id).
		Wrapf(cause, "activate plugin %s", id)
}

// ErrIncompatibleRuntime reports a plugin whose eva constraint excludes the
// running version.
func ErrIncompatibleRuntime(id, constraint, version string) error {
	return oops.In("plugin").Code(CodeIncompatibleRuntime).
		With("plugin", id).
		With("constraint", constraint).
		With("version", version).
		Errorf("plugin %s requires eva %s, running %s", id, constraint, version)
}

// ErrConfigInvalid reports the config keys that failed validation.
func ErrConfigInvalid(id, path string, keys []string) error {
	return oops.In("plugin").Code(CodeConfigInvalid).
		With("plugin", id).
		With("path", path).
		With("keys", keys).
		Errorf("invalid config values in %s for: %s", path, strings.Join(keys, ", "))
}
