// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/evahq/eva/internal/interaction"
	"github.com/evahq/eva/internal/logging"
	"github.com/evahq/eva/pkg/errutil"
)

// interactConfig holds flags for the interact command.
type interactConfig struct {
	text        string
	audioFile   string
	contentType string
}

// NewInteractCmd creates the interact subcommand.
func NewInteractCmd() *cobra.Command {
	icfg := &interactConfig{}

	cmd := &cobra.Command{
		Use:   "interact",
		Short: "Boot the plugins and run a single interaction",
		Long: `Boot every enabled plugin, run one interaction and print the response
as JSON. At least one of --text or --audio-file is required.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteract(cmd, icfg)
		},
	}

	cmd.Flags().StringVar(&icfg.text, "text", "", "input text")
	cmd.Flags().StringVar(&icfg.audioFile, "audio-file", "", "file holding input audio")
	cmd.Flags().StringVar(&icfg.contentType, "content-type", "", "audio content type (default: from the file extension)")

	return cmd
}

// buildRequest turns the flags into a request.
func buildRequest(cmd *cobra.Command, icfg *interactConfig) (*interaction.Request, error) {
	req := &interaction.Request{}
	if cmd.Flags().Changed("text") {
		req.SetInputText(icfg.text)
	}
	if icfg.audioFile != "" {
		data, err := os.ReadFile(icfg.audioFile)
		if err != nil {
			return nil, oops.In("interact").With("path", icfg.audioFile).Wrapf(err, "read audio file")
		}
		contentType := icfg.contentType
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(icfg.audioFile))
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		req.InputAudio = &interaction.Audio{Data: data, ContentType: contentType}
	}
	if !req.HasText() && !req.HasAudio() {
		return nil, oops.In("interact").Errorf("one of --text or --audio-file is required")
	}
	return req, nil
}

func runInteract(cmd *cobra.Command, icfg *interactConfig) error {
	req, err := buildRequest(cmd, icfg)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.SetDefault("eva", version, cfg.Log.Format, cfg.Log.Level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a := newApp(cfg, logger, nil)
	logger = a.logger
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.plugins.Close(closeCtx); err != nil {
			errutil.LogError(logger, "error closing plugin runtimes", err)
		}
	}()

	if _, err := a.director.Boot(ctx); err != nil {
		return err
	}
	resp := a.director.Interact(ctx, req)

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return oops.In("interact").Wrapf(err, "encode response")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
