// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package main

import (
	"fmt"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/evahq/eva/internal/plugin"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of plugin descriptor files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := plugin.GenerateSchema()
			if err != nil {
				return err
			}
			if output == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(output, append(data, '\n'), 0o600); err != nil {
				return oops.In("schema").With("path", output).Wrapf(err, "write schema")
			}
			cmd.Printf("Generated %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the schema to a file instead of stdout")
	return cmd
}
