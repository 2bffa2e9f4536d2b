// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

// Package basic implements the exact flat-scan backend on SQLite's vec0
// virtual table. Every query is a full scan with SIMD distance computation
// inside the extension, so results are exact rather than approximate.
//
// Deletes are tombstoned: surviving indices keep their numbers and deleted
// slots become permanent gaps. A meta table carries the next index to assign
// so gaps are never reused across save/load.
package basic

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/quiverdb/quiver/backend"
	qerr "github.com/quiverdb/quiver/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
	backend.Register(backend.TypeBasic, build, load)
}

const indexFile = "index.db"

// Args is the argument record for the basic backend. The engine state lives
// entirely in the SQLite file, so only the header is needed.
type Args struct {
	backend.ArgsHeader
}

// Header implements the argument-record contract.
func (a *Args) Header() backend.ArgsHeader { return a.ArgsHeader }

// Basic is the flat-scan adapter. It owns one SQLite database holding a vec0
// virtual table, kept in a private working directory until saved.
type Basic struct {
	db      *sql.DB
	args    Args
	workDir string
}

var _ backend.Backend = (*Basic)(nil)

func build(vectors [][]float32, params backend.Params) (backend.Backend, error) {
	dim, err := backend.BatchDim(vectors)
	if err != nil {
		return nil, err
	}

	metric, err := params.PopMetric("l2", "l2", "cosine")
	if err != nil {
		return nil, err
	}
	if err := params.Err(); err != nil {
		return nil, err
	}

	args := Args{ArgsHeader: backend.ArgsHeader{Backend: backend.TypeBasic, Dim: dim, Metric: metric}}

	b, err := open(args)
	if err != nil {
		return nil, err
	}

	if err := b.bulkInsert(vectors, 0); err != nil {
		_ = b.Close()
		return nil, err
	}
	if err := b.setNextIndex(int64(len(vectors))); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func load(dir string) (backend.Backend, error) {
	var args Args
	if err := backend.LoadArgs(dir, backend.TypeBasic, &args); err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "quiver-basic-*")
	if err != nil {
		return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "creating working directory")
	}

	// Work on a private copy so the saved directory stays untouched.
	if err := copyFile(filepath.Join(dir, indexFile), filepath.Join(workDir, indexFile)); err != nil {
		_ = os.RemoveAll(workDir)
		return nil, qerr.Wrap(err, qerr.CodePersistLoadFailure, "copying index file", qerr.FieldPath(dir))
	}

	db, err := openDB(filepath.Join(workDir, indexFile))
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, err
	}
	return &Basic{db: db, args: args, workDir: workDir}, nil
}

// open creates a fresh working database with the vec0 schema for args.
func open(args Args) (*Basic, error) {
	workDir, err := os.MkdirTemp("", "quiver-basic-*")
	if err != nil {
		return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "creating working directory")
	}

	db, err := openDB(filepath.Join(workDir, indexFile))
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, err
	}

	b := &Basic{db: db, args: args, workDir: workDir}
	if err := b.migrate(); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "opening sqlite db", qerr.FieldPath(path))
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "pinging sqlite db", qerr.FieldPath(path))
	}
	return db, nil
}

func (b *Basic) migrate() error {
	column := fmt.Sprintf("embedding float[%d]", b.args.Dim)
	if b.args.Metric == "cosine" {
		column += " distance_metric=cosine"
	}
	vecDDL := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(idx INTEGER PRIMARY KEY, %s)`, column)
	if _, err := b.db.Exec(vecDDL); err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "creating vectors virtual table")
	}

	const metaDDL = `CREATE TABLE IF NOT EXISTS index_meta (key TEXT PRIMARY KEY, value INTEGER NOT NULL)`
	if _, err := b.db.Exec(metaDDL); err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "creating meta table")
	}
	return nil
}

func (b *Basic) bulkInsert(vectors [][]float32, startIndex int64) error {
	tx, err := b.db.Begin()
	if err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO vectors(idx, embedding) VALUES (?, ?)`)
	if err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "preparing insert")
	}
	defer func() { _ = stmt.Close() }()

	for i, v := range vectors {
		blob, err := sqlite_vec.SerializeFloat32(v)
		if err != nil {
			return qerr.Wrap(err, qerr.CodeEngineFailure, "serializing vector")
		}
		if _, err := stmt.Exec(startIndex+int64(i), blob); err != nil {
			return qerr.Wrap(err, qerr.CodeEngineFailure, "inserting vector")
		}
	}

	if err := tx.Commit(); err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "committing insert")
	}
	return nil
}

func (b *Basic) setNextIndex(next int64) error {
	const q = `INSERT INTO index_meta(key, value) VALUES ('next_index', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := b.db.Exec(q, next); err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "updating next index")
	}
	return nil
}

func (b *Basic) nextIndex() (int64, error) {
	var next int64
	err := b.db.QueryRow(`SELECT value FROM index_meta WHERE key = 'next_index'`).Scan(&next)
	if err != nil {
		return 0, qerr.Wrap(err, qerr.CodeEngineFailure, "reading next index")
	}
	return next, nil
}

// Type implements backend.Backend.
func (b *Basic) Type() backend.Type { return backend.TypeBasic }

// Dim implements backend.Backend.
func (b *Basic) Dim() int { return b.args.Dim }

// Len implements backend.Backend.
func (b *Basic) Len() int {
	var n int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Query implements backend.Backend. Distances are exact in the configured
// metric (squared-L2 by default, cosine distance when configured).
func (b *Basic) Query(queries [][]float32, k int) ([][]backend.Match, error) {
	if err := backend.CheckK(k); err != nil {
		return nil, err
	}
	if err := backend.CheckBatch(queries, b.args.Dim); err != nil {
		return nil, err
	}

	const q = `SELECT idx, distance FROM vectors WHERE embedding MATCH ? AND k = ? ORDER BY distance`

	out := make([][]backend.Match, len(queries))
	for i, query := range queries {
		blob, err := sqlite_vec.SerializeFloat32(query)
		if err != nil {
			return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "serializing query vector")
		}

		rows, err := b.db.Query(q, blob, k)
		if err != nil {
			return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "searching vectors")
		}

		matches := make([]backend.Match, 0, k)
		for rows.Next() {
			var idx int64
			var dist float64
			if err := rows.Scan(&idx, &dist); err != nil {
				_ = rows.Close()
				return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "scanning match")
			}
			matches = append(matches, backend.Match{Index: idx, Distance: float32(dist)})
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, qerr.Wrap(err, qerr.CodeEngineFailure, "iterating matches")
		}
		_ = rows.Close()
		out[i] = matches
	}
	return out, nil
}

// Insert implements backend.Backend. New vectors take the next unused
// indices; indices of deleted vectors are never handed out again.
func (b *Basic) Insert(vectors [][]float32) error {
	if err := backend.CheckBatch(vectors, b.args.Dim); err != nil {
		return err
	}

	next, err := b.nextIndex()
	if err != nil {
		return err
	}
	if err := b.bulkInsert(vectors, next); err != nil {
		return err
	}
	return b.setNextIndex(next + int64(len(vectors)))
}

// Delete implements backend.Backend with tombstone semantics.
func (b *Basic) Delete(indices []int64) error {
	if len(indices) == 0 {
		return nil
	}

	tx, err := b.db.Begin()
	if err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`DELETE FROM vectors WHERE idx = ?`)
	if err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "preparing delete")
	}
	defer func() { _ = stmt.Close() }()

	for _, idx := range indices {
		if _, err := stmt.Exec(idx); err != nil {
			return qerr.Wrap(err, qerr.CodeEngineFailure, "deleting vector")
		}
	}

	if err := tx.Commit(); err != nil {
		return qerr.Wrap(err, qerr.CodeEngineFailure, "committing delete")
	}
	return nil
}

// DeletePolicy implements backend.Backend.
func (b *Basic) DeletePolicy() backend.DeletePolicy { return backend.DeleteTombstone }

// Threshold implements backend.Backend via the bounded top-k probe.
func (b *Basic) Threshold(queries [][]float32, max float32) ([][]int64, error) {
	return backend.ProbeThreshold(b, queries, max)
}

// Save implements backend.Backend. VACUUM INTO produces a compact,
// checkpointed copy of the database in dir.
func (b *Basic) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "creating index directory", qerr.FieldPath(dir))
	}

	target := filepath.Join(dir, indexFile)
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "clearing previous index file", qerr.FieldPath(target))
	}
	if _, err := b.db.Exec(`VACUUM INTO ?`, target); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "writing index file", qerr.FieldPath(target))
	}

	return backend.SaveArgs(dir, &b.args)
}

// Close implements backend.Backend.
func (b *Basic) Close() error {
	err := b.db.Close()
	if rmErr := os.RemoveAll(b.workDir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
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
