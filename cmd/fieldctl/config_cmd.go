// Fieldsense - Farm Telemetry Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsense

package main

import (
	"fmt"

	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"

	"github.com/tomtom215/fieldsense/internal/config"
)

const redacted = "********"

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	var showSecrets bool
	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration after defaults, file and environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if !showSecrets {
				cfg = redact(cfg)
			}
			tree, err := configTree(cfg)
			if err != nil {
				return err
			}
			format := opts.output
			if format == outputTable {
				format = outputYAML
			}
			return render(cmd.OutOrStdout(), format, tree)
		},
	}
	printCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print passwords in clear text")
	cmd.AddCommand(printCmd)
	return cmd
}

// redact returns a copy of cfg with credentials masked.
func redact(cfg *config.Config) *config.Config {
	out := *cfg
	if out.MQTT.Password != "" {
		out.MQTT.Password = redacted
	}
	if out.Archive.Password != "" {
		out.Archive.Password = redacted
	}
	return &out
}

// configTree flattens cfg into nested maps keyed by the koanf names used in
// config.yaml, so the output can be pasted back as a config file.
func configTree(cfg *config.Config) (map[string]interface{}, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("flatten config: %w", err)
	}
	return k.Raw(), nil
}
