// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Installer prepares a plugin's third-party dependencies before activation.
type Installer interface {
	Install(ctx context.Context, d *Descriptor) error
}

// CommandInstaller runs the descriptor's install command in the plugin
// directory.
type CommandInstaller struct {
	Timeout time.Duration
}

// Install implements Installer. Plugins without an install command succeed
// immediately.
func (i CommandInstaller) Install(ctx context.Context, d *Descriptor) error {
	if d.Manifest == nil || len(d.Manifest.Install) == 0 || d.Dir == "" {
		return nil
	}

	timeout := i.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := d.Manifest.Install
	//nolint:gosec // the command is taken from the plugin descriptor
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = d.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return ErrInstallFailed(d.ID, oops.
			With("command", strings.Join(argv, " ")).
			With("output", strings.TrimSpace(string(out))).
			Wrap(err))
	}
	slog.Info("installed plugin dependencies", "plugin", d.ID, "command", strings.Join(argv, " "))
	return nil
}
