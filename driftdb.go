// Package driftdb is a configuration-and-lifetime management layer for a
// cloud-backed storage engine.
//
// Persistent engine state (segment files, write-ahead log) is mirrored to a
// remote object store and optionally shipped to a log broker. The package
// tree composes independently-owned configuration objects into a single
// opened handle and manages the sharing and teardown of the resources built
// from it:
//
//   - cloud: bucket and log-shipping descriptors, the aggregate engine
//     configuration, and the opened cloud handle (cloud.FS).
//   - objstore: the object-store collaborator (AWS S3 and an in-memory
//     implementation for tests).
//   - logship: the log-shipping collaborator (Kafka and an in-memory
//     implementation for tests).
//   - engine: the storage engine instance opened against a cloud.FS.
//
// This root package holds the shared vocabulary: error codes and the logging
// verbosity level carried by the engine configuration.
package driftdb

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrorCode classifies failures surfaced by this layer.
type ErrorCode string

const (
	// ErrConstructionFailed means a descriptor or configuration could not be
	// constructed.
	ErrConstructionFailed ErrorCode = "CONSTRUCTION_FAILED"

	// ErrValidationFailed means a descriptor or configuration failed its
	// validity check and must not be used.
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"

	// ErrEngineConstructionFailed means the cloud handle could not be built
	// from its configuration.
	ErrEngineConstructionFailed ErrorCode = "ENGINE_CONSTRUCTION_FAILED"

	// ErrEnvironmentConstructionFailed means the storage environment could
	// not be derived from an opened cloud handle.
	ErrEnvironmentConstructionFailed ErrorCode = "ENVIRONMENT_CONSTRUCTION_FAILED"

	// ErrEngineInitializationFailed means an engine instance failed to
	// resolve its handles during open; any partially-built resources have
	// been released.
	ErrEngineInitializationFailed ErrorCode = "ENGINE_INITIALIZATION_FAILED"

	// ErrDirectoryCreationFailed wraps a filesystem error creating the local
	// engine directory.
	ErrDirectoryCreationFailed ErrorCode = "DIRECTORY_CREATION_FAILED"

	// ErrInvalidColumnFamilyHandle means the engine returned a nil column
	// family handle during open; the whole open fails.
	ErrInvalidColumnFamilyHandle ErrorCode = "INVALID_COLUMN_FAMILY_HANDLE"

	// ErrUnrecognizedDebugContext means a debug-context list contained a
	// token that is not a known context.
	ErrUnrecognizedDebugContext ErrorCode = "UNRECOGNIZED_DEBUG_CONTEXT"

	// ErrFlushFailed means a flush did not complete; during Close the
	// shutdown sequence halts and the instance stays open.
	ErrFlushFailed ErrorCode = "FLUSH_FAILED"

	// ErrCloseFailed means releasing the engine or cloud resources reported
	// an error.
	ErrCloseFailed ErrorCode = "CLOSE_FAILED"

	// ErrAlreadyClosed means Close was called on an already-closed resource.
	ErrAlreadyClosed ErrorCode = "ALREADY_CLOSED"
)

// Error is the structured error type returned across this layer. The
// diagnostic text of the underlying cause is preserved verbatim through the
// wrapped chain.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates an Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches the underlying cause and returns the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// IsCode reports whether any error in err's chain is an *Error with the
// given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Cause
	}
	return false
}

// LogLevel is the logging verbosity carried by the engine configuration.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
	// LogLevelHeader logs only the startup header lines.
	LogLevelHeader
)

// String returns the level name.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelFatal:
		return "FATAL"
	case LogLevelHeader:
		return "HEADER"
	default:
		return "UNKNOWN"
	}
}

// SlogLevel maps the level onto log/slog. Fatal and Header have no slog
// counterpart and map above Error so only the most severe records pass.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	case LogLevelFatal, LogLevelHeader:
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}
