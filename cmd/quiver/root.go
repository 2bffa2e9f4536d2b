// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	_ "github.com/quiverdb/quiver/backend/all"
	"github.com/quiverdb/quiver/internal/config"
)

// NewRootCmd creates the root quiver command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quiver",
		Short:         "Quiver — vector search over named items",
		Long:          "Quiver builds, queries and inspects approximate nearest neighbor indexes through a uniform backend abstraction.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newBuildCmd(),
		newQueryCmd(),
		newInfoCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig resolves the effective configuration for a command: config file
// (or defaults and QUIVER_* env), then the global --verbose flag on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}
