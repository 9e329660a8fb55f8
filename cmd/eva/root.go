// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/evahq/eva/internal/config"
)

// NewRootCmd creates the root command for the Eva CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eva",
		Short: "Eva - a plugin-extensible assistant runtime",
		Long: `Eva is a conversational assistant runtime. Every behavior lives in
plugins (Lua scripts, binary plugins or compiled-in ones) that react to
hooks fired around each interaction.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "config file path (default: first of the standard search paths)")
	pf.String("env-file", ".env", "dotenv file with EVA_ variables")
	pf.String("plugin-directory", "", "directory holding installed plugins")
	pf.String("config-directory", "", "directory holding plugin configuration files")
	pf.StringSlice("enabled-plugins", nil, "plugins to activate (default: every discovered plugin; builtins only when listed)")
	pf.String("catalog-url", "", "git URL of the plugin catalog")
	pf.String("catalog-path", "", "local checkout of the plugin catalog")
	pf.String("log-format", config.DefaultLogFormat, "log format (json or text)")
	pf.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewInteractCmd())
	cmd.AddCommand(NewPluginsCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadConfig reads the configuration using the command's flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	file, _ := flags.GetString("config")     //nolint:errcheck // flag is always defined on root
	envFile, _ := flags.GetString("env-file") //nolint:errcheck // flag is always defined on root
	return config.Load(config.Options{
		File:    file,
		EnvFile: envFile,
		Flags:   flags,
	})
}
