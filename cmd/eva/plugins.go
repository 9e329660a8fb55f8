// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/evahq/eva/internal/logging"
	"github.com/evahq/eva/internal/plugin"
)

// NewPluginsCmd creates the plugins command group.
func NewPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect installed plugins and the plugin catalog",
	}

	var jsonOutput bool
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed and compiled-in plugins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.plugins.Discover(ctx); err != nil {
					return err
				}
				if err := a.plugins.LoadConfigurations(ctx); err != nil {
					a.logger.Warn("some plugin configurations are invalid", "error", err)
				}
				infos := a.plugins.Descriptors()
				if jsonOutput {
					return printJSON(cmd, infos)
				}
				_, err := fmt.Fprint(cmd.OutOrStdout(), formatPluginTable(infos))
				return err
			})
		},
	})

	cmd.AddCommand(catalogCmd("catalog", "List plugins available from the catalog", &jsonOutput,
		func(ctx context.Context, a *app) plugin.Catalog { return a.plugins.RefreshCatalog(ctx, false) }))
	cmd.AddCommand(catalogCmd("refresh", "Pull the latest catalog and list it", &jsonOutput,
		func(ctx context.Context, a *app) plugin.Catalog { return a.plugins.RefreshCatalog(ctx, true) }))
	cmd.AddCommand(catalogCmd("reset", "Discard the local catalog copy and fetch it again", &jsonOutput,
		func(ctx context.Context, a *app) plugin.Catalog { return a.plugins.ResetCatalog(ctx) }))

	cmd.AddCommand(&cobra.Command{
		Use:   "update <id>",
		Short: "Pull the latest source of a git-managed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.plugins.Discover(ctx); err != nil {
					return err
				}
				if err := a.plugins.Update(ctx, args[0]); err != nil {
					return err
				}
				info, _ := a.plugins.Get(args[0])
				cmd.Printf("Updated %s to %s\n", info.ID, info.Version)
				return nil
			})
		},
	})

	return cmd
}

func catalogCmd(use, short string, jsonOutput *bool, load func(context.Context, *app) plugin.Catalog) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.cfg.Catalog.URL == "" {
					return oops.In("plugins").
						Hint("set catalog.url in the config file or pass --catalog-url").
						Errorf("no plugin catalog configured")
				}
				entries := load(ctx, a).Entries()
				if *jsonOutput {
					return printJSON(cmd, entries)
				}
				_, err := fmt.Fprint(cmd.OutOrStdout(), formatCatalogTable(entries))
				return err
			})
		},
	}
}

// withApp loads the configuration and runs fn with an app that is closed
// afterwards.
func withApp(cmd *cobra.Command, fn func(context.Context, *app) error) error {
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
	defer func() { _ = a.plugins.Close(ctx) }()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return oops.In("plugins").Wrapf(err, "encode output")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// formatPluginTable formats plugins as a human-readable table.
func formatPluginTable(infos []plugin.Info) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ID\tVERSION\tRUNTIME\tSTATUS\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t------\t-----------")
	for _, in := range infos {
		desc := in.Description
		if in.Error != "" {
			desc = "error: " + in.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			in.ID, dash(in.Version), dash(string(in.Runtime)), in.Status, desc)
	}

	_ = w.Flush()
	return buf.String()
}

// formatCatalogTable formats catalog entries as a human-readable table.
func formatCatalogTable(entries []plugin.CatalogEntry) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ID\tNAME\tURL\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "--\t----\t---\t-----------")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Name, e.URL, e.Description)
	}

	_ = w.Flush()
	return buf.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
