// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/quiverdb/quiver"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <index-dir>",
		Short: "Show a saved index's identity, backend, dimensionality and size",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	q, err := quiver.Load(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render("Index "+args[0]))
	fmt.Fprintf(out, "  %-10s %s\n", "id", q.ID())
	fmt.Fprintf(out, "  %-10s %s\n", "backend", q.Backend().Type())
	fmt.Fprintf(out, "  %-10s %d\n", "dim", q.Dim())
	fmt.Fprintf(out, "  %-10s %d\n", "items", q.Len())
	fmt.Fprintf(out, "  %-10s %s\n", "deletes", q.Backend().DeletePolicy())
	return nil
}
