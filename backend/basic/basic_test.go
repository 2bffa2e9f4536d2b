// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

package basic

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

func buildBasic(t *testing.T, vectors [][]float32, params backend.Params) backend.Backend {
	t.Helper()
	b, err := backend.FromVectors(backend.TypeBasic, vectors, params)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSelfQueryLargeBatch(t *testing.T) {
	vectors := randomVectors(t, 1, 10_000, 8)
	b := buildBasic(t, vectors, nil)

	assert.Equal(t, 8, b.Dim())
	assert.Equal(t, 10_000, b.Len())

	probes := []int{0, 137, 9_999}
	queries := make([][]float32, len(probes))
	for i, p := range probes {
		queries[i] = vectors[p]
	}

	results, err := b.Query(queries, 10)
	require.NoError(t, err)
	require.Len(t, results, len(probes))

	for i, row := range results {
		require.Len(t, row, 10)
		assert.Equal(t, int64(probes[i]), row[0].Index)
		assert.InDelta(t, 0, row[0].Distance, 1e-5)
		for j := 1; j < len(row); j++ {
			assert.GreaterOrEqual(t, row[j].Distance, row[j-1].Distance)
		}
	}
}

func TestCosineMetric(t *testing.T) {
	vectors := [][]float32{{1, 0}, {0, 1}, {0.9, 0.1}}
	b := buildBasic(t, vectors, backend.Params{"metric": "cosine"})

	results, err := b.Query([][]float32{{1, 0}}, 2)
	require.NoError(t, err)
	require.Len(t, results[0], 2)
	assert.Equal(t, int64(0), results[0][0].Index)
	assert.InDelta(t, 0, results[0][0].Distance, 1e-5)
	assert.Equal(t, int64(2), results[0][1].Index)
}

func TestUnknownMetric(t *testing.T) {
	_, err := backend.FromVectors(backend.TypeBasic, [][]float32{{1, 2}}, backend.Params{"metric": "dot"})
	require.Error(t, err)
	assert.True(t, qerr.IsConfig(err))
}

func TestUnknownParam(t *testing.T) {
	_, err := backend.FromVectors(backend.TypeBasic, [][]float32{{1, 2}}, backend.Params{"nlist": 4})
	require.Error(t, err)
	assert.True(t, qerr.HasCode(err, qerr.CodeParamUnknown))
	assert.Contains(t, err.Error(), "nlist")
}

func TestKLargerThanLen(t *testing.T) {
	b := buildBasic(t, randomVectors(t, 1, 3, 4), nil)

	results, err := b.Query(randomVectors(t, 2, 1, 4), 10)
	require.NoError(t, err)
	assert.Len(t, results[0], 3)
}

func TestInvalidK(t *testing.T) {
	b := buildBasic(t, randomVectors(t, 1, 3, 4), nil)

	_, err := b.Query(randomVectors(t, 2, 1, 4), 0)
	require.Error(t, err)
	assert.True(t, qerr.IsUsage(err))
}

func TestQueryDimensionMismatch(t *testing.T) {
	b := buildBasic(t, randomVectors(t, 1, 3, 4), nil)

	_, err := b.Query([][]float32{{1, 2}}, 1)
	require.Error(t, err)
	assert.True(t, qerr.HasCode(err, qerr.CodeDimensionMismatch))
}

func TestInsertExtendsIndexSpace(t *testing.T) {
	vectors := randomVectors(t, 1, 3, 4)
	b := buildBasic(t, vectors, nil)

	extra := randomVectors(t, 2, 2, 4)
	require.NoError(t, b.Insert(extra))
	assert.Equal(t, 5, b.Len())

	results, err := b.Query([][]float32{extra[1]}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), results[0][0].Index)
}

func TestDeleteTombstonesAndNeverReusesIndices(t *testing.T) {
	vectors := randomVectors(t, 1, 3, 4)
	b := buildBasic(t, vectors, nil)

	assert.Equal(t, backend.DeleteTombstone, b.DeletePolicy())
	require.NoError(t, b.Delete([]int64{1}))
	assert.Equal(t, 2, b.Len())

	results, err := b.Query([][]float32{vectors[1]}, 3)
	require.NoError(t, err)
	for _, m := range results[0] {
		assert.NotEqual(t, int64(1), m.Index)
	}

	// the freed slot is not recycled
	require.NoError(t, b.Insert(randomVectors(t, 3, 1, 4)))
	results, err = b.Query([][]float32{vectors[0]}, 3)
	require.NoError(t, err)
	indices := make([]int64, 0, 3)
	for _, m := range results[0] {
		indices = append(indices, m.Index)
	}
	assert.ElementsMatch(t, []int64{0, 2, 3}, indices)
}

func TestThresholdSubsetOfQuery(t *testing.T) {
	vectors := randomVectors(t, 1, 200, 8)
	b := buildBasic(t, vectors, nil)

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

	assert.NotEmpty(t, thresholded[0]) // the probe itself is at distance 0
	for _, idx := range thresholded[0] {
		assert.True(t, under[idx], "index %d not under threshold in full scan", idx)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	vectors := randomVectors(t, 1, 50, 4)
	b := buildBasic(t, vectors, backend.Params{"metric": "l2"})
	require.NoError(t, b.Delete([]int64{3}))

	dir := t.TempDir()
	require.NoError(t, b.Save(dir))

	loaded, err := backend.Load(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = loaded.Close() })

	assert.Equal(t, backend.TypeBasic, loaded.Type())
	assert.Equal(t, b.Dim(), loaded.Dim())
	assert.Equal(t, b.Len(), loaded.Len())

	query := [][]float32{vectors[10]}
	want, err := b.Query(query, 5)
	require.NoError(t, err)
	got, err := loaded.Query(query, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// inserts after a reload continue past the persisted index space
	require.NoError(t, loaded.Insert(randomVectors(t, 4, 1, 4)))
	results, err := loaded.Query(randomVectors(t, 5, 1, 4), loaded.Len())
	require.NoError(t, err)
	var maxIdx int64
	for _, m := range results[0] {
		if m.Index > maxIdx {
			maxIdx = m.Index
		}
	}
	assert.Equal(t, int64(50), maxIdx)
}

func TestEmptyBatch(t *testing.T) {
	_, err := backend.FromVectors(backend.TypeBasic, nil, nil)
	require.Error(t, err)
	assert.True(t, qerr.IsUsage(err))
}
