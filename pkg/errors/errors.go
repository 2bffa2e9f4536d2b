// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

// Package errors provides coded, structured errors for quiver.
//
// Every error carries a dotted machine-readable code whose last segment
// classifies it: configuration, unsupported operation, deserialization,
// or usage. Callers classify with the Is* predicates rather than string
// matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeBackendUnknown        Code = "backend.resolve.unknown_backend"
	CodeIndexTypeUnknown      Code = "backend.resolve.unknown_index_type"
	CodeParamUnknown          Code = "backend.config.unknown_param"
	CodeParamInvalid          Code = "backend.config.invalid_value"
	CodeDimensionMismatch     Code = "backend.config.dimension_mismatch"
	CodeOperationUnsupported  Code = "backend.op.unsupported"
	CodeArgsDecodeInvalid     Code = "backend.args.decode.invalid_format"
	CodeQueryInvalid          Code = "backend.query.invalid_input"
	CodeEmptyBatch            Code = "backend.build.empty_input"
	CodeEngineFailure         Code = "backend.engine.failure"
	CodePersistSaveFailure    Code = "backend.persist.save.failure"
	CodePersistLoadFailure    Code = "backend.persist.load.failure"
	CodeItemsMismatch         Code = "facade.items.invalid_input"
	CodeItemNotFound          Code = "facade.items.not_found"
	CodeConfigLoadReadFailure Code = "config.load.read.failure"
	CodeCLIInputInvalid       Code = "cli.input.invalid_input"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldBackend(value string) Attr {
	return Field("backend", value)
}

func FieldParam(value string) Attr {
	return Field("param", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsConfig reports whether err is a configuration error: unknown backend or
// index type, unknown or out-of-range parameter, or dimension mismatch.
func IsConfig(err error) bool {
	r := reason(CodeOf(err))
	return r == "unknown_backend" || r == "unknown_index_type" ||
		r == "unknown_param" || r == "invalid_value" || r == "dimension_mismatch"
}

// IsUnsupported reports whether err signals an operation the underlying
// engine has no primitive for.
func IsUnsupported(err error) bool {
	return reason(CodeOf(err)) == "unsupported"
}

// IsDeserialization reports whether err came from decoding a persisted
// argument file.
func IsDeserialization(err error) bool {
	return reason(CodeOf(err)) == "invalid_format"
}

// IsUsage reports whether err is a caller mistake at call time (bad k,
// empty batch, mismatched item/vector counts).
func IsUsage(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid_input" || r == "empty_input"
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func Join(errs ...error) error {
	return oops.Code(CodeEngineFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
