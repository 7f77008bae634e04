// Fieldsense - Farm Telemetry Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsense

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/fieldsense/internal/decision"
	"github.com/tomtom215/fieldsense/internal/modelstore"
)

// bundleSummary is one row of "models list".
type bundleSummary struct {
	Version   uint64             `json:"version" yaml:"version"`
	TrainedAt time.Time          `json:"trained_at" yaml:"trained_at"`
	Accuracy  map[string]float64 `json:"accuracy" yaml:"accuracy"`
}

func summarize(snap *decision.Snapshot) bundleSummary {
	s := bundleSummary{Version: snap.Version, TrainedAt: snap.TrainedAt, Accuracy: map[string]float64{}}
	for task, m := range snap.Models {
		s.Accuracy[string(task)] = m.Accuracy
	}
	return s
}

func newModelsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect, export and import trained model bundles",
	}

	var version uint64
	var file string

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored bundle versions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(opts, func(store *modelstore.Store) error {
				return listModels(cmd, opts.output, store)
			})
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Write a bundle to a file (latest by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(opts, func(store *modelstore.Store) error {
				return exportModel(cmd, store, version, file)
			})
		},
	}
	export.Flags().Uint64Var(&version, "version", 0, "Bundle version (0 = latest)")
	export.Flags().StringVarP(&file, "file", "f", "", "Destination file")
	_ = export.MarkFlagRequired("file")

	imp := &cobra.Command{
		Use:   "import",
		Short: "Store a bundle file as the newest version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(opts, func(store *modelstore.Store) error {
				return importModel(cmd, store, file)
			})
		},
	}
	imp.Flags().StringVarP(&file, "file", "f", "", "Bundle file")
	_ = imp.MarkFlagRequired("file")

	cmd.AddCommand(list, export, imp)
	return cmd
}

func withStore(opts *rootOptions, fn func(*modelstore.Store) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	storeCfg := cfg.ModelStore
	if opts.storePath != "" {
		storeCfg.Path = opts.storePath
	}
	store, err := modelstore.Open(storeCfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func listModels(cmd *cobra.Command, format string, store *modelstore.Store) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	versions, err := store.Versions(ctx)
	if err != nil {
		return err
	}
	rows := make([]bundleSummary, 0, len(versions))
	for _, v := range versions {
		snap, err := store.Load(ctx, v)
		if err != nil {
			return err
		}
		rows = append(rows, summarize(snap))
	}

	if format != outputTable {
		return render(cmd.OutOrStdout(), format, rows)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tTRAINED\tACCURACY")
	for _, r := range rows {
		tasks := make([]string, 0, len(r.Accuracy))
		for t := range r.Accuracy {
			tasks = append(tasks, t)
		}
		sort.Strings(tasks)
		acc := ""
		for i, t := range tasks {
			if i > 0 {
				acc += " "
			}
			acc += fmt.Sprintf("%s=%.2f", t, r.Accuracy[t])
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Version, r.TrainedAt.UTC().Format(time.RFC3339), acc)
	}
	return tw.Flush()
}

func exportModel(cmd *cobra.Command, store *modelstore.Store, version uint64, file string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		snap *decision.Snapshot
		err  error
	)
	if version == 0 {
		snap, err = store.Latest(ctx)
		if err == nil && snap == nil {
			return fmt.Errorf("model store is empty")
		}
	} else {
		snap, err = store.Load(ctx, version)
	}
	if err != nil {
		return err
	}

	data, err := decision.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := os.WriteFile(file, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported v%d to %s\n", snap.Version, file)
	return nil
}

// importModel saves the bundle in file. It is renumbered above the current
// latest version so that a restarted server restores it.
func importModel(cmd *cobra.Command, store *modelstore.Store, file string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	snap, err := decision.DecodeSnapshot(data)
	if err != nil {
		return err
	}

	versions, err := store.Versions(ctx)
	if err != nil {
		return err
	}
	original := snap.Version
	if len(versions) > 0 && versions[0] >= snap.Version {
		snap.Version = versions[0] + 1
	}
	if err := store.Save(ctx, snap); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %s (v%d) as v%d\n", file, original, snap.Version)
	return nil
}
