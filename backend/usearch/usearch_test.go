// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

package usearch

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverdb/quiver/backend"
	qerr "github.com/quiverdb/quiver/pkg/errors"
)

func randomVectors(t *testing.T, seed int64, rows, dim int) [][]float32 {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, rows)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()
		}
		out[i] = v
	}
	return out
}

func buildUsearch(t *testing.T, vectors [][]float32, params backend.Params) backend.Backend {
	t.Helper()
	b, err := backend.FromVectors(backend.TypeUsearch, vectors, params)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSelfQuery(t *testing.T) {
	vectors := randomVectors(t, 1, 500, 8)
	b := buildUsearch(t, vectors, backend.Params{"metric": "l2sq"})

	assert.Equal(t, 8, b.Dim())
	assert.Equal(t, 500, b.Len())

	results, err := b.Query([][]float32{vectors[77]}, 5)
	require.NoError(t, err)
	row := results[0]
	require.NotEmpty(t, row)
	assert.Equal(t, int64(77), row[0].Index)
	assert.InDelta(t, 0, row[0].Distance, 1e-4)
	for j := 1; j < len(row); j++ {
		assert.GreaterOrEqual(t, row[j].Distance, row[j-1].Distance)
	}
}

func TestMetricSet(t *testing.T) {
	vectors := randomVectors(t, 1, 50, 8)
	for _, metric := range []string{"cos", "ip", "l2sq"} {
		t.Run(metric, func(t *testing.T) {
			b := buildUsearch(t, vectors, backend.Params{"metric": metric})
			results, err := b.Query([][]float32{vectors[0]}, 3)
			require.NoError(t, err)
			assert.NotEmpty(t, results[0])
		})
	}
}

func TestUnknownMetric(t *testing.T) {
	_, err := backend.FromVectors(backend.TypeUsearch, [][]float32{{1, 2}}, backend.Params{"metric": "manhattan"})
	require.Error(t, err)
	assert.True(t, qerr.IsConfig(err))
}

func TestUnknownQuantization(t *testing.T) {
	_, err := backend.FromVectors(backend.TypeUsearch, [][]float32{{1, 2}}, backend.Params{"quantization": "f8"})
	require.Error(t, err)
	assert.True(t, qerr.IsConfig(err))
}

func TestGraphTunables(t *testing.T) {
	vectors := randomVectors(t, 1, 100, 8)
	b := buildUsearch(t, vectors, backend.Params{
		"connectivity":     32,
		"expansion_add":    256,
		"expansion_search": 128,
	})
	assert.Equal(t, 100, b.Len())
}

func TestDeleteUnsupported(t *testing.T) {
	vectors := randomVectors(t, 1, 10, 4)
	b := buildUsearch(t, vectors, nil)

	assert.Equal(t, backend.DeleteUnsupported, b.DeletePolicy())
	err := b.Delete([]int64{0})
	require.Error(t, err)
	assert.True(t, qerr.IsUnsupported(err))
	assert.Equal(t, 10, b.Len())
}

func TestInsertExtendsIndexSpace(t *testing.T) {
	vectors := randomVectors(t, 1, 10, 4)
	b := buildUsearch(t, vectors, backend.Params{"metric": "l2sq"})

	extra := randomVectors(t, 2, 3, 4)
	require.NoError(t, b.Insert(extra))
	assert.Equal(t, 13, b.Len())

	results, err := b.Query([][]float32{extra[2]}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), results[0][0].Index)
}

func TestThresholdSubsetOfQuery(t *testing.T) {
	vectors := randomVectors(t, 1, 200, 8)
	b := buildUsearch(t, vectors, backend.Params{"metric": "l2sq"})

	query := [][]float32{vectors[7]}
	const max = 0.3

	thresholded, err := b.Threshold(query, max)
	require.NoError(t, err)

	matches, err := b.Query(query, b.Len())
	require.NoError(t, err)
	under := map[int64]bool{}
	for _, m := range matches[0] {
		if m.Distance < max {
			under[m.Index] = true
		}
	}

	assert.NotEmpty(t, thresholded[0])
	for _, idx := range thresholded[0] {
		assert.True(t, under[idx], "index %d not under threshold in graph scan", idx)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	vectors := randomVectors(t, 1, 60, 4)
	b := buildUsearch(t, vectors, backend.Params{"metric": "l2sq", "connectivity": 24})

	dir := t.TempDir()
	require.NoError(t, b.Save(dir))

	loaded, err := backend.Load(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = loaded.Close() })

	assert.Equal(t, backend.TypeUsearch, loaded.Type())
	assert.Equal(t, b.Dim(), loaded.Dim())
	assert.Equal(t, b.Len(), loaded.Len())

	query := [][]float32{vectors[5]}
	want, err := b.Query(query, 3)
	require.NoError(t, err)
	got, err := loaded.Query(query, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	var args Args
	require.NoError(t, backend.LoadArgs(dir, backend.TypeUsearch, &args))
	assert.Equal(t, 24, args.Connectivity)
	assert.Equal(t, 128, args.ExpansionAdd) // default
	assert.Equal(t, "f32", args.Quantization)
}
