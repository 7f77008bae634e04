// Fieldsense - Farm Telemetry Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsense

package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tomtom215/fieldsense/internal/config"
)

// Output formats.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

type rootOptions struct {
	output    string
	storePath string

	loadConfig func() (*config.Config, error)
}

func newRootCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	opts := &rootOptions{loadConfig: loadConfig}

	root := &cobra.Command{
		Use:          "fieldctl",
		Short:        "Fieldsense administration CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.output {
			case outputTable, outputJSON, outputYAML:
				return nil
			default:
				return fmt.Errorf("unknown output format %q (table, json, yaml)", opts.output)
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "Output format (table, json, yaml)")
	root.PersistentFlags().StringVar(&opts.storePath, "store", "", "Model store path (default: model_store.path from config)")

	root.AddCommand(newModelsCmd(opts), newConfigCmd(opts))
	return root
}

// render writes v as JSON or YAML. Table output is handled by callers.
func render(w io.Writer, format string, v interface{}) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
}
