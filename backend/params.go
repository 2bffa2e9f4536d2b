// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

package backend

import (
	"fmt"
	"sort"

	qerr "github.com/quiverdb/quiver/pkg/errors"
)

// Params carries keyword configuration into a backend builder. Builders pop
// the keys they recognize, validate values eagerly, and fail on leftovers, so
// a misspelled or misplaced option is a configuration error rather than a
// silent default.
type Params map[string]any

// Pop removes and returns a raw value.
func (p Params) Pop(key string) (any, bool) {
	v, ok := p[key]
	if ok {
		delete(p, key)
	}
	return v, ok
}

// PopString removes key and returns its string value, or def when absent.
func (p Params) PopString(key, def string) (string, error) {
	v, ok := p.Pop(key)
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", qerr.New(qerr.CodeParamInvalid,
			fmt.Sprintf("parameter %q must be a string, got %T", key, v),
			qerr.FieldParam(key))
	}
	return s, nil
}

// PopInt removes key and returns its integer value, or def when absent.
// JSON decoding and viper both hand integers over as assorted numeric types.
func (p Params) PopInt(key string, def int) (int, error) {
	v, ok := p.Pop(key)
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, qerr.New(qerr.CodeParamInvalid,
				fmt.Sprintf("parameter %q must be an integer, got %v", key, n),
				qerr.FieldParam(key))
		}
		return int(n), nil
	default:
		return 0, qerr.New(qerr.CodeParamInvalid,
			fmt.Sprintf("parameter %q must be an integer, got %T", key, v),
			qerr.FieldParam(key))
	}
}

// PopPositiveInt is PopInt with a > 0 range check on the supplied value.
func (p Params) PopPositiveInt(key string, def int) (int, error) {
	n, err := p.PopInt(key, def)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, qerr.New(qerr.CodeParamInvalid,
			fmt.Sprintf("parameter %q must be positive, got %d", key, n),
			qerr.FieldParam(key))
	}
	return n, nil
}

// PopMetric removes the "metric" key and validates it against the backend's
// closed metric set.
func (p Params) PopMetric(def string, allowed ...string) (string, error) {
	m, err := p.PopString("metric", def)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if m == a {
			return m, nil
		}
	}
	return "", qerr.New(qerr.CodeParamInvalid,
		fmt.Sprintf("unknown metric %q, expected one of %v", m, allowed),
		qerr.FieldParam("metric"))
}

// Err fails the build if any keys were left unconsumed, naming the first
// offender deterministically.
func (p Params) Err() error {
	if len(p) == 0 {
		return nil
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return qerr.New(qerr.CodeParamUnknown,
		fmt.Sprintf("unknown parameter %q", keys[0]),
		qerr.FieldParam(keys[0]))
}
