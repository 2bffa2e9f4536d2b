// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quiverdb/quiver"
	"github.com/quiverdb/quiver/backend"
	qerr "github.com/quiverdb/quiver/pkg/errors"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <index-dir>",
		Short: "Build an index from vectors and items",
		Long: "Build an index from a JSON vector file (array of float arrays) and an items file " +
			"(one item per line, line i naming vector i), then save it to <index-dir>.",
		Args: cobra.ExactArgs(1),
		RunE: runBuild,
	}

	cmd.Flags().String("vectors", "", "path to JSON vector file (required)")
	cmd.Flags().String("items", "", "path to items file (required)")
	cmd.Flags().StringP("backend", "b", "", "backend identifier (default from config)")
	cmd.Flags().StringArrayP("param", "p", nil, "backend parameter as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("vectors")
	_ = cmd.MarkFlagRequired("items")

	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	backendType := cfg.Backend.Type
	if flag, _ := cmd.Flags().GetString("backend"); flag != "" {
		backendType = flag
	}

	params := backend.Params{}
	for k, v := range cfg.Backend.Params {
		params[k] = v
	}
	raw, _ := cmd.Flags().GetStringArray("param")
	if err := parseParams(params, raw); err != nil {
		return err
	}

	vectorsPath, _ := cmd.Flags().GetString("vectors")
	vectors, err := readVectors(vectorsPath)
	if err != nil {
		return err
	}

	itemsPath, _ := cmd.Flags().GetString("items")
	items, err := readItems(itemsPath)
	if err != nil {
		return err
	}

	slog.Debug("building index",
		"backend", backendType, "vectors", len(vectors), "items", len(items))

	q, err := quiver.FromVectorsAndItems(vectors, items, backend.Type(backendType), params)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	dir := args[0]
	if err := q.Save(dir); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n",
		successStyle.Render("Built"),
		fmt.Sprintf("%d vectors (dim %d, backend %s) into %s", q.Len(), q.Dim(), backendType, dir))
	return nil
}

// parseParams merges key=value pairs into params, guessing the narrowest
// value type the backends accept (int, float, bool, string).
func parseParams(params backend.Params, raw []string) error {
	for _, pair := range raw {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return qerr.New(qerr.CodeCLIInputInvalid,
				fmt.Sprintf("parameter %q is not key=value", pair))
		}
		if n, err := strconv.Atoi(value); err == nil {
			params[key] = n
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			params[key] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			params[key] = b
		} else {
			params[key] = value
		}
	}
	return nil
}

func readVectors(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, qerr.Wrap(err, qerr.CodeCLIInputInvalid, "reading vector file", qerr.FieldPath(path))
	}
	var vectors [][]float32
	if err := json.Unmarshal(data, &vectors); err != nil {
		return nil, qerr.Wrap(err, qerr.CodeCLIInputInvalid, "decoding vector file", qerr.FieldPath(path))
	}
	return vectors, nil
}

func readItems(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, qerr.Wrap(err, qerr.CodeCLIInputInvalid, "reading items file", qerr.FieldPath(path))
	}
	defer func() { _ = f.Close() }()

	var items []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		items = append(items, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, qerr.Wrap(err, qerr.CodeCLIInputInvalid, "scanning items file", qerr.FieldPath(path))
	}
	return items, nil
}
