// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quiverdb/quiver"
	qerr "github.com/quiverdb/quiver/pkg/errors"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <index-dir>",
		Short: "Query a saved index",
		Long: "Query a saved index with a probe vector. With --threshold, returns every item " +
			"under the distance threshold instead of the top k.",
		Args: cobra.ExactArgs(1),
		RunE: runQuery,
	}

	cmd.Flags().String("vector", "", "comma-separated probe vector (required)")
	cmd.Flags().IntP("k", "k", 0, "number of neighbors (default from config)")
	cmd.Flags().Float32("threshold", 0, "return all items with distance below this instead of top k")
	cmd.Flags().String("vectors", "", "path to JSON file with a batch of probe vectors")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	queries, err := probeVectors(cmd)
	if err != nil {
		return err
	}

	q, err := quiver.Load(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	out := cmd.OutOrStdout()

	if cmd.Flags().Changed("threshold") {
		max, _ := cmd.Flags().GetFloat32("threshold")
		results, err := q.QueryThreshold(queries, max)
		if err != nil {
			return err
		}
		for i, row := range results {
			fmt.Fprintf(out, "%s\n", headerStyle.Render(fmt.Sprintf("query %d: %d under %g", i, len(row), max)))
			for _, item := range row {
				fmt.Fprintf(out, "  %s\n", item)
			}
		}
		return nil
	}

	k, _ := cmd.Flags().GetInt("k")
	if k == 0 {
		k = cfg.Query.K
	}

	results, err := q.Query(queries, k)
	if err != nil {
		return err
	}
	for i, row := range results {
		fmt.Fprintf(out, "%s\n", headerStyle.Render(fmt.Sprintf("query %d", i)))
		for _, m := range row {
			fmt.Fprintf(out, "  %-30s %s\n", m.Item, dimStyle.Render(fmt.Sprintf("%.6f", m.Distance)))
		}
	}
	return nil
}

// probeVectors resolves the query batch from --vector or --vectors.
func probeVectors(cmd *cobra.Command) ([][]float32, error) {
	if path, _ := cmd.Flags().GetString("vectors"); path != "" {
		return readVectors(path)
	}

	raw, _ := cmd.Flags().GetString("vector")
	if raw == "" {
		return nil, qerr.New(qerr.CodeCLIInputInvalid, "either --vector or --vectors is required")
	}

	parts := strings.Split(raw, ",")
	vec := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, qerr.Wrapf(err, qerr.CodeCLIInputInvalid, "parsing vector component %q", part)
		}
		vec[i] = float32(f)
	}
	return [][]float32{vec}, nil
}
