// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the closed set of engine-level error categories (spec §4.12/§7).
// Every CieError carries exactly one Kind; Kind selects the default
// UserError exit code via KindExitCode.
type Kind string

const (
	KindInit            Kind = "init"
	KindParse           Kind = "parse"
	KindStorage         Kind = "storage"
	KindVectorIndex     Kind = "vector_index"
	KindProtocol        Kind = "protocol"
	KindModel           Kind = "model"
	KindIndexer         Kind = "indexer"
	KindFilesystem      Kind = "filesystem"
	KindInvalidArgument Kind = "invalid_argument"
	KindCancelled       Kind = "cancelled"
	KindTimeout         Kind = "timeout"
	KindUnknown         Kind = "unknown"
)

// subsystem buckets Kind into the coarser partition used for telemetry
// grouping and for choosing a CLI exit code family.
type subsystem string

const (
	subsystemInit    subsystem = "init"
	subsystemParse   subsystem = "parse"
	subsystemGraph   subsystem = "graph"
	subsystemVector  subsystem = "vector"
	subsystemProto   subsystem = "protocol"
	subsystemModel   subsystem = "model"
	subsystemIndexer subsystem = "indexer"
	subsystemGeneric subsystem = "generic"
)

func (k Kind) subsystem() subsystem {
	switch k {
	case KindInit:
		return subsystemInit
	case KindParse:
		return subsystemParse
	case KindStorage:
		return subsystemGraph
	case KindVectorIndex:
		return subsystemVector
	case KindProtocol:
		return subsystemProto
	case KindModel:
		return subsystemModel
	case KindIndexer:
		return subsystemIndexer
	default:
		return subsystemGeneric
	}
}

// KindExitCode maps an error Kind to the CLI exit code family defined in
// errors.go. Internal errors that never reach a terminal still use this
// table to produce a UserError via AsUserError.
func KindExitCode(k Kind) int {
	switch k {
	case KindInit:
		return ExitConfig
	case KindStorage, KindVectorIndex:
		return ExitDatabase
	case KindProtocol, KindModel:
		return ExitNetwork
	case KindInvalidArgument, KindParse:
		return ExitInput
	case KindFilesystem:
		return ExitPermission
	case KindIndexer:
		return ExitInternal
	case KindCancelled, KindTimeout:
		return ExitNetwork
	default:
		return ExitInternal
	}
}

// CieError is a coded, contextual error for the code-intelligence engine
// core (parser, store, router, indexer). It is distinct from UserError,
// which is the CLI's presentation-layer wrapper: a CieError produced deep
// in the pipeline is typically surfaced to a user by wrapping it with
// AsUserError at the CLI boundary.
type CieError struct {
	Kind      Kind
	Code      string
	Message   string
	Timestamp time.Time
	Context   map[string]any
	Err       error
}

// New creates a CieError of the given kind. Code should be a short, stable
// machine-readable identifier (e.g. "parse.syntax_error",
// "storage.write_conflict") unique within its kind.
func New(kind Kind, code, message string, err error) *CieError {
	return &CieError{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]any),
		Err:       err,
	}
}

// WithContext attaches a key/value pair to the error's structured context
// and returns the receiver for chaining.
func (e *CieError) WithContext(key string, value any) *CieError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Error implements the error interface.
func (e *CieError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap enables errors.Is / errors.As against the wrapped cause.
func (e *CieError) Unwrap() error {
	return e.Err
}

// Record is the JSON-serializable form of a CieError, suitable for log
// lines and telemetry span attributes.
type Record struct {
	Kind      Kind           `json:"kind"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
	Cause     string         `json:"cause,omitempty"`
}

// ToRecord converts the error to its serializable Record form.
func (e *CieError) ToRecord() Record {
	r := Record{
		Kind:      e.Kind,
		Code:      e.Code,
		Message:   e.Message,
		Timestamp: e.Timestamp,
		Context:   e.Context,
	}
	if e.Err != nil {
		r.Cause = e.Err.Error()
	}
	return r
}

// MarshalJSON implements json.Marshaler via the Record projection.
func (e *CieError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToRecord())
}

// AsUserError bridges a CieError into the CLI-facing UserError, choosing
// an exit code from KindExitCode and using fix as the actionable hint.
func AsUserError(e *CieError, fix string) *UserError {
	if e == nil {
		return nil
	}
	cause := e.Message
	if e.Err != nil {
		cause = fmt.Sprintf("%s (%v)", e.Message, e.Err)
	}
	return &UserError{
		Message:  fmt.Sprintf("%s failed", e.Kind.subsystem()),
		Cause:    cause,
		Fix:      fix,
		ExitCode: KindExitCode(e.Kind),
		Err:      e,
	}
}

// ParseError is the Kind-Parse specialization carrying file/line/column,
// per spec §7.
type ParseError struct {
	*CieError
	File   string
	Line   int
	Column int
}

// NewParseError builds a ParseError at the given file position.
func NewParseError(message, file string, line, column int, err error) *ParseError {
	base := New(KindParse, "parse.syntax_error", message, err)
	base.WithContext("file", file).WithContext("line", line).WithContext("column", column)
	return &ParseError{CieError: base, File: file, Line: line, Column: column}
}

// StorageError is the Kind-Storage specialization carrying the offending
// query script, per spec §7.
type StorageError struct {
	*CieError
	Script string
}

// NewStorageError builds a StorageError carrying the query that failed.
func NewStorageError(code, message, script string, err error) *StorageError {
	base := New(KindStorage, code, message, err)
	base.WithContext("script", script)
	return &StorageError{CieError: base, Script: script}
}

// IsCancelled reports whether err is, or wraps, a Cancelled-kind CieError.
func IsCancelled(err error) bool {
	var ce *CieError
	if as(err, &ce) {
		return ce.Kind == KindCancelled
	}
	return false
}

// as is a tiny local indirection to stdlib errors.As, kept so this file
// has no import cycle with the top-level "errors" package name collision
// (this package is itself named "errors").
func as(err error, target **CieError) bool {
	for err != nil {
		if ce, ok := err.(*CieError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
