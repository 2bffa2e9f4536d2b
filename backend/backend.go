// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

// Package backend defines the common contract every vector search backend
// satisfies, the registry that resolves symbolic backend identifiers to
// concrete adapters, and the argument records persisted alongside each index.
//
// A backend wraps exactly one underlying engine instance. All operations are
// synchronous and run on the caller's goroutine; a single backend instance is
// not safe for concurrent use unless the wrapped engine documents otherwise.
package backend

import (
	qerr "github.com/quiverdb/quiver/pkg/errors"
)

// Type identifies a backend family. The set is closed; adapters register
// themselves under their Type from init().
type Type string

const (
	// TypeBasic is an exact flat-scan engine backed by SQLite's vec0
	// virtual table. Supports insert and tombstoned delete.
	TypeBasic Type = "basic"

	// TypeVecgo is a segmented vector engine with native threshold search.
	// Supports insert and tombstoned delete.
	TypeVecgo Type = "vecgo"

	// TypeFaiss is the multi-variant engine family selected via an index
	// sub-type (flat, ivf, hnsw, lsh, scalar, pq, ivf_scalar, ivfpq,
	// ivfpqr). Supports insert; delete only for flat and ivf, with
	// compaction (surviving indices are renumbered).
	TypeFaiss Type = "faiss"

	// TypeUsearch is an HNSW graph engine with configurable scalar/binary
	// quantization. Supports insert; delete is not supported.
	TypeUsearch Type = "usearch"
)

// DeletePolicy describes what Delete does to surviving indices.
type DeletePolicy int

const (
	// DeleteUnsupported: Delete always fails with an unsupported-operation
	// error and indices are stable forever.
	DeleteUnsupported DeletePolicy = iota

	// DeleteTombstone: deleted slots become permanent gaps; surviving
	// indices keep their numbers.
	DeleteTombstone

	// DeleteCompact: surviving indices are renumbered to stay contiguous.
	// Previously cached indices are invalidated by a delete.
	DeleteCompact
)

func (p DeletePolicy) String() string {
	switch p {
	case DeleteTombstone:
		return "tombstone"
	case DeleteCompact:
		return "compact"
	default:
		return "unsupported"
	}
}

// Match is one query hit: the vector's index and its distance from the
// query, in the backend's metric.
type Match struct {
	Index    int64
	Distance float32
}

// Backend is the uniform contract over heterogeneous ANN engines.
//
// Query results are ordered by ascending distance. k larger than Len yields
// short results, never an error. Operations an engine has no primitive for
// return an error satisfying errors.IsUnsupported and leave the index
// unchanged.
type Backend interface {
	// Type returns the backend identifier this adapter registered under.
	Type() Type

	// Dim returns the configured vector dimensionality.
	Dim() int

	// Len returns the number of live vectors (inserts included, deletions
	// subtracted where supported).
	Len() int

	// Query returns up to k (index, distance) matches per query vector,
	// ascending by distance.
	Query(queries [][]float32, k int) ([][]Match, error)

	// Insert appends vectors, assigning each the next index.
	Insert(vectors [][]float32) error

	// Delete removes the vectors at the given indices, subject to the
	// backend's DeletePolicy.
	Delete(indices []int64) error

	// DeletePolicy reports whether and how this backend deletes.
	DeletePolicy() DeletePolicy

	// Threshold returns, per query vector, all indices with distance
	// strictly below max. Backends without a native range primitive probe
	// the top min(100, Len) neighbors, so results may be incomplete when
	// more than that many vectors fall under the threshold.
	Threshold(queries [][]float32, max float32) ([][]int64, error)

	// Save persists the engine state and argument record into dir.
	Save(dir string) error

	// Close releases engine resources. The backend must not be used after.
	Close() error
}

// thresholdProbeK bounds the top-k probe used to emulate range queries on
// engines without a native primitive.
const thresholdProbeK = 100

// ProbeThreshold emulates a range query with a bounded top-k probe against b.
// Adapters without a native range primitive delegate their Threshold to it.
func ProbeThreshold(b Backend, queries [][]float32, max float32) ([][]int64, error) {
	k := thresholdProbeK
	if n := b.Len(); n < k {
		k = n
	}
	if k == 0 {
		out := make([][]int64, len(queries))
		for i := range out {
			out[i] = []int64{}
		}
		return out, nil
	}

	matches, err := b.Query(queries, k)
	if err != nil {
		return nil, err
	}

	out := make([][]int64, len(matches))
	for i, row := range matches {
		kept := make([]int64, 0, len(row))
		for _, m := range row {
			if m.Distance < max {
				kept = append(kept, m.Index)
			}
		}
		out[i] = kept
	}
	return out, nil
}

// CheckK validates a top-k request.
func CheckK(k int) error {
	if k <= 0 {
		return qerr.Errorf(qerr.CodeQueryInvalid, "k must be positive, got %d", k)
	}
	return nil
}

// BatchDim validates a vector batch and returns its dimensionality. The
// batch must have at least one row and all rows must share one width.
func BatchDim(vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, qerr.New(qerr.CodeEmptyBatch, "vector batch must contain at least one row")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, qerr.New(qerr.CodeEmptyBatch, "vectors must have at least one dimension")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, qerr.Errorf(qerr.CodeQueryInvalid, "row %d has width %d, batch width is %d", i, len(v), dim)
		}
	}
	return dim, nil
}

// CheckBatch validates that every row of a batch matches the configured dim.
func CheckBatch(vectors [][]float32, dim int) error {
	got, err := BatchDim(vectors)
	if err != nil {
		return err
	}
	if got != dim {
		return qerr.Errorf(qerr.CodeDimensionMismatch, "expected dim %d, got %d", dim, got)
	}
	return nil
}

// Flatten lays a batch out row-major as a single slice, the layout most
// engine C APIs expect.
func Flatten(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	flat := make([]float32, 0, len(vectors)*len(vectors[0]))
	for _, v := range vectors {
		flat = append(flat, v...)
	}
	return flat
}
