// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

package quiver

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverdb/quiver/backend"
	_ "github.com/quiverdb/quiver/backend/all"
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

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%03d", i)
	}
	return out
}

func buildQuiver(t *testing.T, vectors [][]float32, items []string, bt backend.Type, params backend.Params) *Quiver {
	t.Helper()
	q, err := FromVectorsAndItems(vectors, items, bt, params)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueryReturnsItems(t *testing.T) {
	vectors := randomVectors(t, 1, 100, 8)
	q := buildQuiver(t, vectors, names(100), backend.TypeBasic, nil)

	assert.Equal(t, 8, q.Dim())
	assert.Equal(t, 100, q.Len())

	results, err := q.Query([][]float32{vectors[42]}, 3)
	require.NoError(t, err)
	row := results[0]
	require.Len(t, row, 3)
	assert.Equal(t, "item-042", row[0].Item)
	assert.InDelta(t, 0, row[0].Distance, 1e-5)
}

func TestItemVectorCountMismatch(t *testing.T) {
	_, err := FromVectorsAndItems(randomVectors(t, 1, 3, 4), names(2), backend.TypeBasic, nil)
	require.Error(t, err)
	assert.True(t, qerr.IsUsage(err))
}

func TestDuplicateItems(t *testing.T) {
	_, err := FromVectorsAndItems(randomVectors(t, 1, 2, 4), []string{"a", "a"}, backend.TypeBasic, nil)
	require.Error(t, err)
	assert.True(t, qerr.IsUsage(err))
}

func TestQueryThreshold(t *testing.T) {
	vectors := randomVectors(t, 1, 100, 8)
	q := buildQuiver(t, vectors, names(100), backend.TypeBasic, nil)

	results, err := q.QueryThreshold([][]float32{vectors[7]}, 0.1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "item-007")
}

func TestInsertAndDeleteTombstone(t *testing.T) {
	vectors := randomVectors(t, 1, 10, 4)
	q := buildQuiver(t, vectors, names(10), backend.TypeBasic, nil)

	extra := randomVectors(t, 2, 2, 4)
	require.NoError(t, q.Insert(extra, []string{"x", "y"}))
	assert.Equal(t, 12, q.Len())

	results, err := q.Query([][]float32{extra[1]}, 1)
	require.NoError(t, err)
	assert.Equal(t, "y", results[0][0].Item)

	require.NoError(t, q.Delete([]string{"item-003", "x"}))
	assert.Equal(t, 10, q.Len())

	results, err = q.Query([][]float32{vectors[3]}, 10)
	require.NoError(t, err)
	for _, m := range results[0] {
		assert.NotEqual(t, "item-003", m.Item)
		assert.NotEqual(t, "x", m.Item)
	}

	// new items land after the tombstoned slots
	require.NoError(t, q.Insert(randomVectors(t, 3, 1, 4), []string{"z"}))
	results, err = q.Query([][]float32{vectors[0]}, q.Len())
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, m := range results[0] {
		seen[m.Item] = true
	}
	assert.True(t, seen["z"])
}

func TestDeleteUnknownItem(t *testing.T) {
	q := buildQuiver(t, randomVectors(t, 1, 3, 4), names(3), backend.TypeBasic, nil)

	err := q.Delete([]string{"nope"})
	require.Error(t, err)
	assert.True(t, qerr.IsNotFound(err))
	assert.Equal(t, 3, q.Len())
}

func TestInsertDuplicateItem(t *testing.T) {
	q := buildQuiver(t, randomVectors(t, 1, 3, 4), names(3), backend.TypeBasic, nil)

	err := q.Insert(randomVectors(t, 2, 1, 4), []string{"item-001"})
	require.Error(t, err)
	assert.True(t, qerr.IsUsage(err))
	assert.Equal(t, 3, q.Len())
}

func TestDeleteCompactRenumbers(t *testing.T) {
	vectors := [][]float32{{0, 0}, {1, 1}, {2, 2}}
	q := buildQuiver(t, vectors, []string{"a", "b", "c"}, backend.TypeFaiss, nil)

	require.NoError(t, q.Delete([]string{"a"}))
	assert.Equal(t, 2, q.Len())

	results, err := q.Query([][]float32{{1, 1}}, 2)
	require.NoError(t, err)
	assert.Equal(t, "b", results[0][0].Item)
	assert.Equal(t, "c", results[0][1].Item)
}

func TestDeleteUnsupportedBackend(t *testing.T) {
	vectors := randomVectors(t, 1, 10, 4)
	q := buildQuiver(t, vectors, names(10), backend.TypeUsearch, backend.Params{"metric": "l2sq"})

	err := q.Delete([]string{"item-000"})
	require.Error(t, err)
	assert.True(t, qerr.IsUnsupported(err))
	assert.Equal(t, 10, q.Len())

	// the item table is untouched by the refused delete
	results, err := q.Query([][]float32{vectors[0]}, 1)
	require.NoError(t, err)
	assert.Equal(t, "item-000", results[0][0].Item)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	vectors := randomVectors(t, 1, 30, 4)
	q := buildQuiver(t, vectors, names(30), backend.TypeBasic, backend.Params{"metric": "l2"})
	require.NoError(t, q.Delete([]string{"item-005"}))

	dir := t.TempDir()
	require.NoError(t, q.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = loaded.Close() })

	assert.Equal(t, q.ID(), loaded.ID())
	assert.Equal(t, q.Dim(), loaded.Dim())
	assert.Equal(t, q.Len(), loaded.Len())

	query := [][]float32{vectors[20]}
	want, err := q.Query(query, 4)
	require.NoError(t, err)
	got, err := loaded.Query(query, 4)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMissingDirectory(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.True(t, qerr.HasCode(err, qerr.CodePersistLoadFailure))
}

func TestUnknownBackend(t *testing.T) {
	_, err := FromVectorsAndItems(randomVectors(t, 1, 2, 4), names(2), "voyager", nil)
	require.Error(t, err)
	assert.True(t, qerr.IsConfig(err))
}
