// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

// Package quiver binds arbitrary string items to vectors in an ANN search
// backend. The facade owns the item <-> index mapping; the backend package
// owns the engines. Construct with FromVectorsAndItems or Load, query by
// vector, get items back.
package quiver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/quiverdb/quiver/backend"
	qerr "github.com/quiverdb/quiver/pkg/errors"
)

const (
	// FormatVersion is the on-disk layout version written to metadata.json.
	FormatVersion = 1

	metadataFile = "metadata.json"
	itemsFile    = "items.json"
	indexDir     = "index"
)

// ItemMatch is one query hit translated back to its item.
type ItemMatch struct {
	Item     string
	Distance float32
}

// Quiver is a vector index over named items.
//
// Item slots follow the backend's delete policy: tombstoning backends leave
// permanent gaps, compacting backends renumber survivors, and the facade
// keeps its table consistent either way. Not safe for concurrent use.
type Quiver struct {
	be backend.Backend
	id uuid.UUID

	// items is indexed by backend index. Tombstoned slots stay in place
	// with deleted[i] set; compacting backends shrink the slice instead.
	items   []string
	deleted map[int64]struct{}
	byItem  map[string]int64
}

type metadata struct {
	FormatVersion int          `json:"format_version"`
	ID            uuid.UUID    `json:"id"`
	Backend       backend.Type `json:"backend"`
	Dim           int          `json:"dim"`
	Items         int          `json:"items"`
}

type itemTable struct {
	Items   []string `json:"items"`
	Deleted []int64  `json:"deleted,omitempty"`
}

// FromVectorsAndItems builds a new index binding items[i] to vectors[i].
// Item and vector counts must match and items must be unique.
func FromVectorsAndItems(vectors [][]float32, items []string, t backend.Type, params backend.Params) (*Quiver, error) {
	if len(vectors) != len(items) {
		return nil, qerr.Errorf(qerr.CodeItemsMismatch,
			"got %d vectors for %d items", len(vectors), len(items))
	}
	byItem, err := extendItemSet(nil, 0, items)
	if err != nil {
		return nil, err
	}

	be, err := backend.FromVectors(t, vectors, params)
	if err != nil {
		return nil, err
	}

	return &Quiver{
		be:      be,
		id:      uuid.New(),
		items:   append([]string(nil), items...),
		deleted: make(map[int64]struct{}),
		byItem:  byItem,
	}, nil
}

// extendItemSet copies existing and assigns items indices base, base+1, ...
// rejecting duplicates within the batch and against existing.
func extendItemSet(existing map[string]int64, base int64, items []string) (map[string]int64, error) {
	out := make(map[string]int64, len(existing)+len(items))
	for item, idx := range existing {
		out[item] = idx
	}
	for i, item := range items {
		if _, ok := out[item]; ok {
			return nil, qerr.New(qerr.CodeItemsMismatch,
				fmt.Sprintf("duplicate item %q", item))
		}
		out[item] = base + int64(i)
	}
	return out, nil
}

// ID returns the index identity assigned at build time and preserved across
// save/load.
func (q *Quiver) ID() uuid.UUID { return q.id }

// Backend exposes the underlying adapter.
func (q *Quiver) Backend() backend.Backend { return q.be }

// Dim returns the vector dimensionality.
func (q *Quiver) Dim() int { return q.be.Dim() }

// Len returns the number of live items.
func (q *Quiver) Len() int { return q.be.Len() }

// Query returns up to k item matches per query vector, ascending by distance.
func (q *Quiver) Query(queries [][]float32, k int) ([][]ItemMatch, error) {
	matches, err := q.be.Query(queries, k)
	if err != nil {
		return nil, err
	}

	out := make([][]ItemMatch, len(matches))
	for i, row := range matches {
		hits := make([]ItemMatch, 0, len(row))
		for _, m := range row {
			item, err := q.itemAt(m.Index)
			if err != nil {
				return nil, err
			}
			hits = append(hits, ItemMatch{Item: item, Distance: m.Distance})
		}
		out[i] = hits
	}
	return out, nil
}

// QueryThreshold returns, per query vector, the items whose distance is
// strictly below max.
func (q *Quiver) QueryThreshold(queries [][]float32, max float32) ([][]string, error) {
	indices, err := q.be.Threshold(queries, max)
	if err != nil {
		return nil, err
	}

	out := make([][]string, len(indices))
	for i, row := range indices {
		items := make([]string, 0, len(row))
		for _, idx := range row {
			item, err := q.itemAt(idx)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		out[i] = items
	}
	return out, nil
}

func (q *Quiver) itemAt(idx int64) (string, error) {
	if idx < 0 || idx >= int64(len(q.items)) {
		return "", qerr.Errorf(qerr.CodeItemsMismatch,
			"backend returned index %d outside item table of %d", idx, len(q.items))
	}
	if _, gone := q.deleted[idx]; gone {
		return "", qerr.Errorf(qerr.CodeItemsMismatch,
			"backend returned tombstoned index %d", idx)
	}
	return q.items[idx], nil
}

// Insert appends vectors bound to new items.
func (q *Quiver) Insert(vectors [][]float32, items []string) error {
	if len(vectors) != len(items) {
		return qerr.Errorf(qerr.CodeItemsMismatch,
			"got %d vectors for %d items", len(vectors), len(items))
	}
	byItem, err := extendItemSet(q.byItem, int64(len(q.items)), items)
	if err != nil {
		return err
	}
	if err := q.be.Insert(vectors); err != nil {
		return err
	}
	q.items = append(q.items, items...)
	q.byItem = byItem
	return nil
}

// Delete removes the given items and their vectors. Fails before touching
// the backend if any item is unknown; fails with an unsupported-operation
// error when the backend cannot delete.
func (q *Quiver) Delete(items []string) error {
	indices := make([]int64, 0, len(items))
	for _, item := range items {
		idx, ok := q.byItem[item]
		if !ok {
			return qerr.New(qerr.CodeItemNotFound,
				fmt.Sprintf("unknown item %q", item))
		}
		indices = append(indices, idx)
	}

	if err := q.be.Delete(indices); err != nil {
		return err
	}

	switch q.be.DeletePolicy() {
	case backend.DeleteCompact:
		q.compact(indices)
	default:
		for i, idx := range indices {
			q.deleted[idx] = struct{}{}
			delete(q.byItem, items[i])
		}
	}
	return nil
}

// compact removes the given slots from the item table and renumbers the
// survivors, mirroring what a compacting backend did to its indices.
func (q *Quiver) compact(indices []int64) {
	gone := make(map[int64]struct{}, len(indices))
	for _, idx := range indices {
		gone[idx] = struct{}{}
	}

	kept := make([]string, 0, len(q.items)-len(gone))
	byItem := make(map[string]int64, len(q.items)-len(gone))
	for i, item := range q.items {
		if _, ok := gone[int64(i)]; ok {
			continue
		}
		byItem[item] = int64(len(kept))
		kept = append(kept, item)
	}
	q.items = kept
	q.byItem = byItem
}

// Save persists the index into dir: metadata.json, items.json, and the
// backend's own files under index/.
func (q *Quiver) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "creating index directory", qerr.FieldPath(dir))
	}
	if err := q.be.Save(filepath.Join(dir, indexDir)); err != nil {
		return err
	}

	meta := metadata{
		FormatVersion: FormatVersion,
		ID:            q.id,
		Backend:       q.be.Type(),
		Dim:           q.be.Dim(),
		Items:         q.be.Len(),
	}
	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return err
	}

	table := itemTable{Items: q.items}
	for idx := range q.deleted {
		table.Deleted = append(table.Deleted, idx)
	}
	sort.Slice(table.Deleted, func(i, j int) bool { return table.Deleted[i] < table.Deleted[j] })
	return writeJSON(filepath.Join(dir, itemsFile), table)
}

// Load restores an index saved with Save. The backend is dispatched from the
// persisted argument record; the item table must match the backend's live
// count.
func Load(dir string) (*Quiver, error) {
	var meta metadata
	if err := readJSON(filepath.Join(dir, metadataFile), &meta); err != nil {
		return nil, err
	}
	if meta.FormatVersion != FormatVersion {
		return nil, qerr.Errorf(qerr.CodeArgsDecodeInvalid,
			"unsupported format version %d, want %d", meta.FormatVersion, FormatVersion)
	}

	var table itemTable
	if err := readJSON(filepath.Join(dir, itemsFile), &table); err != nil {
		return nil, err
	}

	be, err := backend.Load(filepath.Join(dir, indexDir))
	if err != nil {
		return nil, err
	}
	if meta.Backend != be.Type() {
		_ = be.Close()
		return nil, qerr.Errorf(qerr.CodeArgsDecodeInvalid,
			"metadata names backend %q, argument record names %q", meta.Backend, be.Type())
	}

	q := &Quiver{
		be:      be,
		id:      meta.ID,
		items:   table.Items,
		deleted: make(map[int64]struct{}, len(table.Deleted)),
		byItem:  make(map[string]int64, len(table.Items)),
	}
	for _, idx := range table.Deleted {
		q.deleted[idx] = struct{}{}
	}
	for i, item := range table.Items {
		if _, gone := q.deleted[int64(i)]; gone {
			continue
		}
		if _, dup := q.byItem[item]; dup {
			_ = be.Close()
			return nil, qerr.New(qerr.CodeArgsDecodeInvalid,
				fmt.Sprintf("duplicate item %q in item table", item))
		}
		q.byItem[item] = int64(i)
	}

	if live := len(q.byItem); live != be.Len() {
		_ = be.Close()
		return nil, qerr.Errorf(qerr.CodeItemsMismatch,
			"item table has %d live items, backend has %d vectors", live, be.Len())
	}
	return q, nil
}

// Close releases the backend's resources.
func (q *Quiver) Close() error {
	return q.be.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "encoding "+filepath.Base(path))
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "writing "+filepath.Base(path), qerr.FieldPath(path))
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return qerr.Wrap(err, qerr.CodePersistLoadFailure, "reading "+filepath.Base(path), qerr.FieldPath(path))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return qerr.Wrap(err, qerr.CodeArgsDecodeInvalid, "decoding "+filepath.Base(path), qerr.FieldPath(path))
	}
	return nil
}
