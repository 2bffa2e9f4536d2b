// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

// Package faiss adapts the faiss engine family. One backend identifier
// covers nine index sub-types, routed through faiss's index_factory:
//
//	flat        Flat                    exact scan
//	ivf         IVF{nlist},Flat         inverted file
//	hnsw        HNSW{hnsw_m},Flat       hierarchical graph
//	lsh         LSH                     binary hashing
//	scalar      SQ8                     8-bit scalar quantizer
//	pq          PQ{m}x{nbits}           product quantizer
//	ivf_scalar  IVF{nlist},SQ8          inverted file + scalar quantizer
//	ivfpq       IVF{nlist},PQ{m}x{nbits}
//	ivfpqr      IVF{nlist},PQ{m}x{nbits},RFlat (re-ranked by exact distances)
//
// Deletes are supported for flat and ivf only and compact the index:
// surviving vectors are renumbered to stay contiguous, so indices cached
// before a delete are invalid afterwards. The remaining sub-types have no
// removal primitive and refuse.
package faiss

import (
	"fmt"
	"os"
	"path/filepath"

	faisslib "github.com/DataIntelligenceCrew/go-faiss"

	"github.com/quiverdb/quiver/backend"
	qerr "github.com/quiverdb/quiver/pkg/errors"
)

func init() {
	backend.Register(backend.TypeFaiss, build, load)
}

const indexFile = "index.faiss"

// IndexTypes is the closed set of sub-type identifiers.
var IndexTypes = []string{"flat", "ivf", "hnsw", "lsh", "scalar", "pq", "ivf_scalar", "ivfpq", "ivfpqr"}

// Args is the argument record for the faiss backend. All sub-type tunables
// are captured even when a sub-type does not use them, mirroring the
// keyword surface of the construction call.
type Args struct {
	backend.ArgsHeader
	IndexType string `json:"index_type"`
	NList     int    `json:"nlist"`
	M         int    `json:"m"`
	NBits     int    `json:"nbits"`
	HNSWM     int    `json:"hnsw_m"`
}

// Header implements the argument-record contract.
func (a *Args) Header() backend.ArgsHeader { return a.ArgsHeader }

// Faiss owns one faiss index built from an index_factory description.
type Faiss struct {
	idx  *faisslib.IndexImpl
	args Args
}

var _ backend.Backend = (*Faiss)(nil)

// description renders the index_factory string for the configured sub-type.
func (a Args) description() (string, error) {
	switch a.IndexType {
	case "flat":
		return "Flat", nil
	case "ivf":
		return fmt.Sprintf("IVF%d,Flat", a.NList), nil
	case "hnsw":
		return fmt.Sprintf("HNSW%d,Flat", a.HNSWM), nil
	case "lsh":
		return "LSH", nil
	case "scalar":
		return "SQ8", nil
	case "pq":
		return fmt.Sprintf("PQ%dx%d", a.M, a.NBits), nil
	case "ivf_scalar":
		return fmt.Sprintf("IVF%d,SQ8", a.NList), nil
	case "ivfpq":
		return fmt.Sprintf("IVF%d,PQ%dx%d", a.NList, a.M, a.NBits), nil
	case "ivfpqr":
		return fmt.Sprintf("IVF%d,PQ%dx%d,RFlat", a.NList, a.M, a.NBits), nil
	default:
		return "", qerr.Errorf(qerr.CodeIndexTypeUnknown, "unknown index type %q, expected one of %v", a.IndexType, IndexTypes)
	}
}

func (a Args) metricType() int {
	if a.Metric == "ip" {
		return faisslib.MetricInnerProduct
	}
	return faisslib.MetricL2
}

func build(vectors [][]float32, params backend.Params) (backend.Backend, error) {
	dim, err := backend.BatchDim(vectors)
	if err != nil {
		return nil, err
	}

	metric, err := params.PopMetric("l2", "l2", "ip")
	if err != nil {
		return nil, err
	}
	indexType, err := params.PopString("index_type", "flat")
	if err != nil {
		return nil, err
	}
	nlist, err := params.PopPositiveInt("nlist", 100)
	if err != nil {
		return nil, err
	}
	m, err := params.PopPositiveInt("m", 8)
	if err != nil {
		return nil, err
	}
	nbits, err := params.PopPositiveInt("nbits", 8)
	if err != nil {
		return nil, err
	}
	hnswM, err := params.PopPositiveInt("hnsw_m", 32)
	if err != nil {
		return nil, err
	}
	if err := params.Err(); err != nil {
		return nil, err
	}

	args := Args{
		ArgsHeader: backend.ArgsHeader{Backend: backend.TypeFaiss, Dim: dim, Metric: metric},
		IndexType:  indexType,
		NList:      nlist,
		M:          m,
		NBits:      nbits,
		HNSWM:      hnswM,
	}

	desc, err := args.description()
	if err != nil {
		return nil, err
	}

	idx, err := faisslib.IndexFactory(dim, desc, args.metricType())
	if err != nil {
		return nil, qerr.Wrapf(err, qerr.CodeParamInvalid, "constructing %q index", desc)
	}

	f := &Faiss{idx: idx, args: args}
	flat := backend.Flatten(vectors)

	// Quantizer-based sub-types need a training pass over the batch
	// before vectors can be added.
	if !idx.IsTrained() {
		if err := idx.Train(flat); err != nil {
			_ = f.Close()
			return nil, qerr.Wrapf(err, qerr.CodeEngineFailure, "training %q index", desc)
		}
	}
	if err := idx.Add(flat); err != nil {
		_ = f.Close()
		return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "indexing vectors")
	}
	return f, nil
}

func load(dir string) (backend.Backend, error) {
	var args Args
	if err := backend.LoadArgs(dir, backend.TypeFaiss, &args); err != nil {
		return nil, err
	}
	if _, err := args.description(); err != nil {
		return nil, err
	}

	idx, err := faisslib.ReadIndex(filepath.Join(dir, indexFile), 0)
	if err != nil {
		return nil, qerr.Wrap(err, qerr.CodePersistLoadFailure, "reading index file", qerr.FieldPath(dir))
	}
	return &Faiss{idx: idx, args: args}, nil
}

// Type implements backend.Backend.
func (f *Faiss) Type() backend.Type { return backend.TypeFaiss }

// Dim implements backend.Backend.
func (f *Faiss) Dim() int { return f.args.Dim }

// Len implements backend.Backend.
func (f *Faiss) Len() int { return int(f.idx.Ntotal()) }

// IndexType returns the configured sub-type identifier.
func (f *Faiss) IndexType() string { return f.args.IndexType }

// Query implements backend.Backend. Inner-product scores are negated so the
// nearest result still carries the smallest distance.
func (f *Faiss) Query(queries [][]float32, k int) ([][]backend.Match, error) {
	if err := backend.CheckK(k); err != nil {
		return nil, err
	}
	if err := backend.CheckBatch(queries, f.args.Dim); err != nil {
		return nil, err
	}

	distances, labels, err := f.idx.Search(backend.Flatten(queries), int64(k))
	if err != nil {
		return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "searching vectors")
	}

	out := make([][]backend.Match, len(queries))
	for i := range queries {
		matches := make([]backend.Match, 0, k)
		for j := 0; j < k; j++ {
			label := labels[i*k+j]
			if label < 0 {
				// faiss pads short results with -1.
				continue
			}
			d := distances[i*k+j]
			if f.args.Metric == "ip" {
				d = -d
			}
			matches = append(matches, backend.Match{Index: label, Distance: d})
		}
		out[i] = matches
	}
	return out, nil
}

// Insert implements backend.Backend. The index must already be trained,
// which from-vectors construction guarantees.
func (f *Faiss) Insert(vectors [][]float32) error {
	if err := backend.CheckBatch(vectors, f.args.Dim); err != nil {
		return err
	}
	if err := f.idx.Add(backend.Flatten(vectors)); err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "inserting vectors")
	}
	return nil
}

// Delete implements backend.Backend for the flat and ivf sub-types, with
// compaction: surviving vectors are renumbered to stay contiguous.
func (f *Faiss) Delete(indices []int64) error {
	if f.DeletePolicy() == backend.DeleteUnsupported {
		return qerr.New(qerr.CodeOperationUnsupported,
			fmt.Sprintf("faiss index type %q has no removal primitive", f.args.IndexType),
			qerr.FieldBackend(string(backend.TypeFaiss)))
	}
	if len(indices) == 0 {
		return nil
	}

	sel, err := faisslib.NewIDSelectorBatch(indices)
	if err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "building id selector")
	}
	defer sel.Delete()

	if _, err := f.idx.RemoveIDs(sel); err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "removing vectors")
	}
	return nil
}

// DeletePolicy implements backend.Backend.
func (f *Faiss) DeletePolicy() backend.DeletePolicy {
	switch f.args.IndexType {
	case "flat", "ivf":
		return backend.DeleteCompact
	default:
		return backend.DeleteUnsupported
	}
}

// Threshold implements backend.Backend via the bounded top-k probe.
func (f *Faiss) Threshold(queries [][]float32, max float32) ([][]int64, error) {
	return backend.ProbeThreshold(f, queries, max)
}

// Save implements backend.Backend.
func (f *Faiss) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "creating index directory", qerr.FieldPath(dir))
	}
	if err := faisslib.WriteIndex(f.idx, filepath.Join(dir, indexFile)); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "writing index file", qerr.FieldPath(dir))
	}
	return backend.SaveArgs(dir, &f.args)
}

// Close implements backend.Backend, releasing the native index.
func (f *Faiss) Close() error {
	f.idx.Delete()
	return nil
}
