// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

package backend

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	qerr "github.com/quiverdb/quiver/pkg/errors"
)

// ArgsFile is the name of the argument record inside every index directory.
const ArgsFile = "arguments.json"

// ArgsHeader is embedded at the top of every backend's argument record. It
// carries the fields the registry needs to reconstruct an empty engine of
// the right shape before the engine-native state is loaded.
//
// An argument record is immutable once its backend is built or loaded.
type ArgsHeader struct {
	Backend Type   `json:"backend"`
	Dim     int    `json:"dim"`
	Metric  string `json:"metric"`
}

func (h ArgsHeader) check(want Type) error {
	if h.Backend != want {
		return qerr.Errorf(qerr.CodeArgsDecodeInvalid,
			"argument record is for backend %q, expected %q", h.Backend, want)
	}
	if h.Dim <= 0 {
		return qerr.New(qerr.CodeArgsDecodeInvalid, "argument record is missing a positive dim")
	}
	if h.Metric == "" {
		return qerr.New(qerr.CodeArgsDecodeInvalid, "argument record is missing a metric")
	}
	return nil
}

// SaveArgs writes record to dir/arguments.json. Records hold only flat
// primitive fields, so dump-then-load round-trips field for field.
func SaveArgs(dir string, record any) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "encoding arguments", qerr.FieldPath(dir))
	}
	path := filepath.Join(dir, ArgsFile)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return qerr.Wrap(err, qerr.CodePersistSaveFailure, "writing arguments", qerr.FieldPath(path))
	}
	return nil
}

// LoadArgs reads dir/arguments.json strictly into record: unknown fields are
// rejected, and the embedded header must name the expected backend. On any
// failure the record contents are unspecified and no engine is constructed.
func LoadArgs(dir string, want Type, record interface{ Header() ArgsHeader }) error {
	path := filepath.Join(dir, ArgsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return qerr.Wrap(err, qerr.CodePersistLoadFailure, "reading arguments", qerr.FieldPath(path))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(record); err != nil {
		return qerr.Wrap(err, qerr.CodeArgsDecodeInvalid, "decoding arguments", qerr.FieldPath(path))
	}

	return record.Header().check(want)
}

// PeekType reads only the backend identifier from dir/arguments.json so the
// registry can dispatch a load without knowing the record's full shape.
func PeekType(dir string) (Type, error) {
	path := filepath.Join(dir, ArgsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", qerr.Wrap(err, qerr.CodePersistLoadFailure, "reading arguments", qerr.FieldPath(path))
	}

	var header struct {
		Backend Type `json:"backend"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return "", qerr.Wrap(err, qerr.CodeArgsDecodeInvalid, "decoding arguments", qerr.FieldPath(path))
	}
	if header.Backend == "" {
		return "", qerr.New(qerr.CodeArgsDecodeInvalid, "argument record is missing the backend field", qerr.FieldPath(path))
	}
	return header.Backend, nil
}
