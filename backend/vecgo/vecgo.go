// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

// Package vecgo adapts the vecgo segmented vector engine. It is the only
// backend with a native range-query primitive, so Threshold is exhaustive
// rather than a bounded probe.
//
// Deletes are tombstoned: engine ids are never reused, surviving indices
// keep their numbers and deleted slots become permanent gaps.
package vecgo

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/vecgo/distance"
	"github.com/hupe1980/vecgo/engine"
	"github.com/hupe1980/vecgo/model"

	"github.com/quiverdb/quiver/backend"
	qerr "github.com/quiverdb/quiver/pkg/errors"
)

func init() {
	backend.Register(backend.TypeVecgo, build, load)
}

const engineDir = "index"

// Args is the argument record for the vecgo backend.
type Args struct {
	backend.ArgsHeader
	CompactionThreshold int `json:"compaction_threshold"`
}

// Header implements the argument-record contract.
func (a *Args) Header() backend.ArgsHeader { return a.ArgsHeader }

// Vecgo owns one engine instance rooted in a private working directory.
type Vecgo struct {
	eng     *engine.Engine
	args    Args
	workDir string
}

var _ backend.Backend = (*Vecgo)(nil)

func metricOf(name string) distance.Metric {
	switch name {
	case "cosine":
		return distance.MetricCosine
	case "dot":
		return distance.MetricDot
	default:
		return distance.MetricL2
	}
}

// score converts an engine score into a contract distance. The engine hands
// back similarities for cosine and dot (larger is better); negating them
// keeps the ascending-by-distance ordering uniform across backends.
func (v *Vecgo) score(s float32) float32 {
	if v.args.Metric == "l2" {
		return s
	}
	return -s
}

func build(vectors [][]float32, params backend.Params) (backend.Backend, error) {
	dim, err := backend.BatchDim(vectors)
	if err != nil {
		return nil, err
	}

	metric, err := params.PopMetric("l2", "l2", "cosine", "dot")
	if err != nil {
		return nil, err
	}
	compaction, err := params.PopInt("compaction_threshold", 0)
	if err != nil {
		return nil, err
	}
	if compaction < 0 {
		return nil, qerr.New(qerr.CodeParamInvalid,
			"parameter \"compaction_threshold\" must not be negative",
			qerr.FieldParam("compaction_threshold"))
	}
	if err := params.Err(); err != nil {
		return nil, err
	}

	args := Args{
		ArgsHeader:          backend.ArgsHeader{Backend: backend.TypeVecgo, Dim: dim, Metric: metric},
		CompactionThreshold: compaction,
	}

	v, err := open(args, "")
	if err != nil {
		return nil, err
	}

	if _, err := v.eng.BatchInsert(vectors, nil, nil); err != nil {
		_ = v.Close()
		return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "indexing vectors")
	}
	return v, nil
}

func load(dir string) (backend.Backend, error) {
	var args Args
	if err := backend.LoadArgs(dir, backend.TypeVecgo, &args); err != nil {
		return nil, err
	}

	return open(args, filepath.Join(dir, engineDir))
}

// open creates a working directory (seeded from src when loading) and opens
// the engine in it.
func open(args Args, src string) (*Vecgo, error) {
	workDir, err := os.MkdirTemp("", "quiver-vecgo-*")
	if err != nil {
		return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "creating working directory")
	}

	if src != "" {
		if err := copyDir(src, workDir); err != nil {
			_ = os.RemoveAll(workDir)
			return nil, qerr.Wrap(err, qerr.CodePersistLoadFailure, "copying engine state", qerr.FieldPath(src))
		}
	}

	var opts []engine.Option
	if args.CompactionThreshold > 0 {
		opts = append(opts, engine.WithCompactionThreshold(args.CompactionThreshold))
	}

	eng, err := engine.Open(workDir, args.Dim, metricOf(args.Metric), opts...)
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "opening engine")
	}
	return &Vecgo{eng: eng, args: args, workDir: workDir}, nil
}

// Type implements backend.Backend.
func (v *Vecgo) Type() backend.Type { return backend.TypeVecgo }

// Dim implements backend.Backend.
func (v *Vecgo) Dim() int { return v.args.Dim }

// Len implements backend.Backend.
func (v *Vecgo) Len() int { return v.eng.Stats().RowCount }

// Query implements backend.Backend.
func (v *Vecgo) Query(queries [][]float32, k int) ([][]backend.Match, error) {
	if err := backend.CheckK(k); err != nil {
		return nil, err
	}
	if err := backend.CheckBatch(queries, v.args.Dim); err != nil {
		return nil, err
	}

	batches, err := v.eng.BatchSearch(context.Background(), queries, k)
	if err != nil {
		return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "searching vectors")
	}

	out := make([][]backend.Match, len(batches))
	for i, batch := range batches {
		matches := make([]backend.Match, 0, len(batch))
		for _, c := range batch {
			matches = append(matches, backend.Match{
				Index:    int64(c.ID) - 1,
				Distance: v.score(c.Score),
			})
		}
		out[i] = matches
	}
	return out, nil
}

// Insert implements backend.Backend. Engine ids are assigned sequentially,
// so the contract index is always id-1.
func (v *Vecgo) Insert(vectors [][]float32) error {
	if err := backend.CheckBatch(vectors, v.args.Dim); err != nil {
		return err
	}
	if _, err := v.eng.BatchInsert(vectors, nil, nil); err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "inserting vectors")
	}
	return nil
}

// Delete implements backend.Backend with tombstone semantics.
func (v *Vecgo) Delete(indices []int64) error {
	ids := make([]model.ID, len(indices))
	for i, idx := range indices {
		ids[i] = model.ID(idx + 1)
	}
	if err := v.eng.BatchDelete(ids); err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "deleting vectors")
	}
	return nil
}

// DeletePolicy implements backend.Backend.
func (v *Vecgo) DeletePolicy() backend.DeletePolicy { return backend.DeleteTombstone }

// Threshold implements backend.Backend using the engine's native range
// search. The engine bounds the scan internally by maxResults, which we set
// to the full live count, so results are exhaustive.
func (v *Vecgo) Threshold(queries [][]float32, max float32) ([][]int64, error) {
	if err := backend.CheckBatch(queries, v.args.Dim); err != nil {
		return nil, err
	}

	limit := v.eng.Stats().RowCount
	out := make([][]int64, len(queries))
	if limit == 0 {
		for i := range out {
			out[i] = []int64{}
		}
		return out, nil
	}

	// The engine filters on its own score convention: <= for L2,
	// >= for similarities. Map the contract threshold accordingly and
	// re-check strictness on the way out.
	engThreshold := max
	if v.args.Metric != "l2" {
		engThreshold = -max
	}

	for i, q := range queries {
		cands, err := v.eng.SearchThreshold(context.Background(), q, engThreshold, limit)
		if err != nil {
			return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "threshold search")
		}
		kept := make([]int64, 0, len(cands))
		for _, c := range cands {
			if v.score(c.Score) < max {
				kept = append(kept, int64(c.ID)-1)
			}
		}
		out[i] = kept
	}
	return out, nil
}

// Save implements backend.Backend. The engine is closed to force all state
// (segments, tombstones, pk index) onto disk, the directory is copied, and
// the engine reopened from the working copy.
func (v *Vecgo) Save(dir string) error {
	if err := v.eng.Flush(); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "flushing engine")
	}
	if err := v.eng.Close(); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "closing engine")
	}

	target := filepath.Join(dir, engineDir)
	if err := os.RemoveAll(target); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "clearing previous engine state", qerr.FieldPath(target))
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "creating index directory", qerr.FieldPath(target))
	}
	if err := copyDir(v.workDir, target); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "copying engine state", qerr.FieldPath(target))
	}

	if err := backend.SaveArgs(dir, &v.args); err != nil {
		return err
	}

	var opts []engine.Option
	if v.args.CompactionThreshold > 0 {
		opts = append(opts, engine.WithCompactionThreshold(v.args.CompactionThreshold))
	}
	eng, err := engine.Open(v.workDir, v.args.Dim, metricOf(v.args.Metric), opts...)
	if err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "reopening engine")
	}
	v.eng = eng
	return nil
}

// Close implements backend.Backend.
func (v *Vecgo) Close() error {
	err := v.eng.Close()
	if rmErr := os.RemoveAll(v.workDir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// copyDir copies the regular files of a flat engine directory.
func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := os.MkdirAll(filepath.Join(dst, e.Name()), 0o755); err != nil {
				return err
			}
			if err := copyDir(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
