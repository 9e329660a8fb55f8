// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evahq/eva/internal/plugin"
	"github.com/evahq/eva/pkg/errutil"
)

func TestCommandInstaller_NoCommand(t *testing.T) {
	d := &plugin.Descriptor{ID: "x", Dir: t.TempDir(), Manifest: &plugin.Manifest{}}
	assert.NoError(t, plugin.CommandInstaller{}.Install(context.Background(), d))
}

func TestCommandInstaller_RunsInPluginDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	d := &plugin.Descriptor{
		ID:       "x",
		Dir:      dir,
		Manifest: &plugin.Manifest{Install: []string{"sh", "-c", "echo ok > installed"}},
	}

	require.NoError(t, plugin.CommandInstaller{Timeout: 10 * time.Second}.Install(context.Background(), d))

	_, err := os.Stat(filepath.Join(dir, "installed"))
	assert.NoError(t, err)
}

func TestCommandInstaller_Failure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	d := &plugin.Descriptor{
		ID:       "x",
		Dir:      t.TempDir(),
		Manifest: &plugin.Manifest{Install: []string{"sh", "-c", "echo broken >&2; exit 3"}},
	}

	err := plugin.CommandInstaller{}.Install(context.Background(), d)

	errutil.AssertErrorCode(t, err, plugin.CodeInstallFailed)
	errutil.AssertErrorContext(t, err, "output", "broken")
}
