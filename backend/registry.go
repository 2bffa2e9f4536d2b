// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

package backend

import (
	"sort"
	"sync"

	qerr "github.com/quiverdb/quiver/pkg/errors"
)

// BuildFunc constructs a populated backend from a vector batch and keyword
// configuration. It owns validation of every parameter it recognizes.
type BuildFunc func(vectors [][]float32, params Params) (Backend, error)

// LoadFunc rehydrates a backend from an index directory written by Save.
type LoadFunc func(dir string) (Backend, error)

var (
	buildersMu sync.RWMutex
	builders   = map[Type]BuildFunc{}
	loaders    = map[Type]LoadFunc{}
)

// Register binds a backend identifier to its construction entry points.
// Adapter packages call this from init(); importing backend/all registers
// the full set. Goroutine-safe.
func Register(t Type, build BuildFunc, load LoadFunc) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[t] = build
	loaders[t] = load
}

// Registered returns the identifiers of all registered backends, sorted.
func Registered() []Type {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	out := make([]Type, 0, len(builders))
	for t := range builders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FromVectors resolves t and builds a fresh, populated backend. params may
// be nil. The map is consumed; callers must not reuse it.
func FromVectors(t Type, vectors [][]float32, params Params) (Backend, error) {
	buildersMu.RLock()
	build, ok := builders[t]
	buildersMu.RUnlock()
	if !ok {
		return nil, qerr.Errorf(qerr.CodeBackendUnknown, "unknown backend %q", t)
	}

	if params == nil {
		params = Params{}
	}
	return build(vectors, params)
}

// Load reads the argument record in dir, dispatches on its backend field,
// and rehydrates the matching adapter.
func Load(dir string) (Backend, error) {
	t, err := PeekType(dir)
	if err != nil {
		return nil, err
	}

	buildersMu.RLock()
	load, ok := loaders[t]
	buildersMu.RUnlock()
	if !ok {
		return nil, qerr.Errorf(qerr.CodeBackendUnknown, "unknown backend %q", t)
	}
	return load(dir)
}
