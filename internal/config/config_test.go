// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/quiverdb/quiver/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "basic", cfg.Backend.Type)
	assert.Equal(t, 10, cfg.Query.K)
	assert.Equal(t, 0.0, cfg.Query.Threshold)
	assert.False(t, cfg.Verbose)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiver.yaml")
	payload := `
backend:
  type: faiss
  params:
    index_type: ivf
    nlist: 4
query:
  k: 3
verbose: true
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "faiss", cfg.Backend.Type)
	assert.Equal(t, "ivf", cfg.Backend.Params["index_type"])
	assert.Equal(t, 3, cfg.Query.K)
	assert.True(t, cfg.Verbose)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, qerr.HasCode(err, qerr.CodeConfigLoadReadFailure))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("QUIVER_BACKEND_TYPE", "usearch")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "usearch", cfg.Backend.Type)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Backend: BackendConfig{Type: ""},
		Query:   QueryConfig{K: 0, Threshold: -1},
	}

	errs := cfg.Validate()
	assert.Len(t, errs, 3)
}
