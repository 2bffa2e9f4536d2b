// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

// Package usearch adapts the usearch HNSW engine. It exposes the widest
// metric set of the bundled backends (cos, ip, l2sq, hamming, tanimoto)
// plus graph tunables (connectivity, expansion_add, expansion_search) and
// an internal quantization level. The engine has no removal primitive, so
// Delete refuses with an unsupported-operation error.
package usearch

import (
	"fmt"
	"os"
	"path/filepath"

	usearchlib "github.com/unum-cloud/usearch/golang"

	"github.com/quiverdb/quiver/backend"
	qerr "github.com/quiverdb/quiver/pkg/errors"
)

func init() {
	backend.Register(backend.TypeUsearch, build, load)
}

const indexFile = "index.usearch"

// Args is the argument record for the usearch backend.
type Args struct {
	backend.ArgsHeader
	Connectivity    int    `json:"connectivity"`
	ExpansionAdd    int    `json:"expansion_add"`
	ExpansionSearch int    `json:"expansion_search"`
	Quantization    string `json:"quantization"`
}

// Header implements the argument-record contract.
func (a *Args) Header() backend.ArgsHeader { return a.ArgsHeader }

// Usearch owns one usearch index. Keys are assigned sequentially from zero
// and never reused, so they double as contract indices.
type Usearch struct {
	idx     *usearchlib.Index
	args    Args
	nextKey uint64
}

var _ backend.Backend = (*Usearch)(nil)

var metrics = map[string]usearchlib.Metric{
	"cos":      usearchlib.Cosine,
	"ip":       usearchlib.InnerProduct,
	"l2sq":     usearchlib.L2sq,
	"hamming":  usearchlib.Hamming,
	"tanimoto": usearchlib.Tanimoto,
}

var quantizations = map[string]usearchlib.Quantization{
	"f64": usearchlib.F64,
	"f32": usearchlib.F32,
	"f16": usearchlib.F16,
	"i8":  usearchlib.I8,
	"b1":  usearchlib.B1,
}

func (a Args) config() (usearchlib.IndexConfig, error) {
	metric, ok := metrics[a.Metric]
	if !ok {
		return usearchlib.IndexConfig{}, qerr.New(qerr.CodeParamInvalid,
			fmt.Sprintf("unknown metric %q", a.Metric), qerr.FieldParam("metric"))
	}
	quant, ok := quantizations[a.Quantization]
	if !ok {
		return usearchlib.IndexConfig{}, qerr.New(qerr.CodeParamInvalid,
			fmt.Sprintf("unknown quantization %q", a.Quantization), qerr.FieldParam("quantization"))
	}

	conf := usearchlib.DefaultConfig(uint(a.Dim))
	conf.Metric = metric
	conf.Quantization = quant
	conf.Connectivity = uint(a.Connectivity)
	conf.ExpansionAdd = uint(a.ExpansionAdd)
	conf.ExpansionSearch = uint(a.ExpansionSearch)
	return conf, nil
}

func build(vectors [][]float32, params backend.Params) (backend.Backend, error) {
	dim, err := backend.BatchDim(vectors)
	if err != nil {
		return nil, err
	}

	metric, err := params.PopMetric("cos", "cos", "ip", "l2sq", "hamming", "tanimoto")
	if err != nil {
		return nil, err
	}
	connectivity, err := params.PopPositiveInt("connectivity", 16)
	if err != nil {
		return nil, err
	}
	expansionAdd, err := params.PopPositiveInt("expansion_add", 128)
	if err != nil {
		return nil, err
	}
	expansionSearch, err := params.PopPositiveInt("expansion_search", 64)
	if err != nil {
		return nil, err
	}
	quantization, err := params.PopString("quantization", "f32")
	if err != nil {
		return nil, err
	}
	if err := params.Err(); err != nil {
		return nil, err
	}

	args := Args{
		ArgsHeader:      backend.ArgsHeader{Backend: backend.TypeUsearch, Dim: dim, Metric: metric},
		Connectivity:    connectivity,
		ExpansionAdd:    expansionAdd,
		ExpansionSearch: expansionSearch,
		Quantization:    quantization,
	}

	u, err := open(args)
	if err != nil {
		return nil, err
	}
	if err := u.Insert(vectors); err != nil {
		_ = u.Close()
		return nil, err
	}
	return u, nil
}

func load(dir string) (backend.Backend, error) {
	var args Args
	if err := backend.LoadArgs(dir, backend.TypeUsearch, &args); err != nil {
		return nil, err
	}

	u, err := open(args)
	if err != nil {
		return nil, err
	}
	if err := u.idx.Load(filepath.Join(dir, indexFile)); err != nil {
		_ = u.Close()
		return nil, qerr.Wrap(err, qerr.CodePersistLoadFailure, "reading index file", qerr.FieldPath(dir))
	}

	n, err := u.idx.Len()
	if err != nil {
		_ = u.Close()
		return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "reading index size")
	}
	u.nextKey = uint64(n)
	return u, nil
}

func open(args Args) (*Usearch, error) {
	conf, err := args.config()
	if err != nil {
		return nil, err
	}
	idx, err := usearchlib.NewIndex(conf)
	if err != nil {
		return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "constructing index")
	}
	return &Usearch{idx: idx, args: args}, nil
}

// Type implements backend.Backend.
func (u *Usearch) Type() backend.Type { return backend.TypeUsearch }

// Dim implements backend.Backend.
func (u *Usearch) Dim() int { return u.args.Dim }

// Len implements backend.Backend.
func (u *Usearch) Len() int { return int(u.nextKey) }

// Query implements backend.Backend. usearch reports distances for every
// metric, so results are ascending without normalization.
func (u *Usearch) Query(queries [][]float32, k int) ([][]backend.Match, error) {
	if err := backend.CheckK(k); err != nil {
		return nil, err
	}
	if err := backend.CheckBatch(queries, u.args.Dim); err != nil {
		return nil, err
	}

	out := make([][]backend.Match, len(queries))
	for i, q := range queries {
		keys, distances, err := u.idx.Search(q, uint(k))
		if err != nil {
			return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "searching vectors")
		}
		matches := make([]backend.Match, len(keys))
		for j, key := range keys {
			matches[j] = backend.Match{Index: int64(key), Distance: distances[j]}
		}
		out[i] = matches
	}
	return out, nil
}

// Insert implements backend.Backend.
func (u *Usearch) Insert(vectors [][]float32) error {
	if err := backend.CheckBatch(vectors, u.args.Dim); err != nil {
		return err
	}
	if err := u.idx.Reserve(uint(u.nextKey) + uint(len(vectors))); err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "reserving index capacity")
	}
	for _, vec := range vectors {
		if err := u.idx.Add(usearchlib.Key(u.nextKey), vec); err != nil {
			return qerr.Wrap(err, qerr.CodeEngineFailure, "inserting vector")
		}
		u.nextKey++
	}
	return nil
}

// Delete implements backend.Backend by refusing: the engine has no removal
// primitive.
func (u *Usearch) Delete([]int64) error {
	return qerr.New(qerr.CodeOperationUnsupported,
		"usearch does not support deletion", qerr.FieldBackend(string(backend.TypeUsearch)))
}

// DeletePolicy implements backend.Backend.
func (u *Usearch) DeletePolicy() backend.DeletePolicy { return backend.DeleteUnsupported }

// Threshold implements backend.Backend via the bounded top-k probe.
func (u *Usearch) Threshold(queries [][]float32, max float32) ([][]int64, error) {
	return backend.ProbeThreshold(u, queries, max)
}

// Save implements backend.Backend.
func (u *Usearch) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "creating index directory", qerr.FieldPath(dir))
	}
	if err := u.idx.Save(filepath.Join(dir, indexFile)); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "writing index file", qerr.FieldPath(dir))
	}
	return backend.SaveArgs(dir, &u.args)
}

// Close implements backend.Backend, releasing the native index.
func (u *Usearch) Close() error {
	return u.idx.Destroy()
}
