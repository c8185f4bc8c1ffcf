// Package errors provides the coded error type shared by every edaproc stage.
// Each pipeline failure carries a Code so the entry point and tests can tell
// a missing object from a malformed payload without parsing messages.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies an error kind.
type Code string

const (
	// Locate / fetch (1xx)
	CodeNotFound Code = "E101"
	CodeFetch    Code = "E102"

	// Decode (2xx)
	CodeDecompress    Code = "E201"
	CodeParse         Code = "E202"
	CodeSchema        Code = "E203"
	CodeTemporalParse Code = "E204"

	// Output (3xx)
	CodeWrite             Code = "E301"
	CodeProfileGeneration Code = "E302"

	// Invocation (4xx)
	CodeUsage  Code = "E401"
	CodeConfig Code = "E402"

	CodeUnknown Code = "E999"
)

var codeNames = map[Code]string{
	CodeNotFound:          "NotFound",
	CodeFetch:             "FetchError",
	CodeDecompress:        "DecompressError",
	CodeParse:             "ParseError",
	CodeSchema:            "SchemaError",
	CodeTemporalParse:     "TemporalParseError",
	CodeWrite:             "WriteError",
	CodeProfileGeneration: "ProfileGenerationError",
	CodeUsage:             "UsageError",
	CodeConfig:            "ConfigError",
	CodeUnknown:           "UnknownError",
}

// Kind returns the human name of the code, e.g. "ParseError".
func (c Code) Kind() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return codeNames[CodeUnknown]
}

// Error is the base error type for all edaproc errors.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface. Context keys are printed in sorted
// order so diagnostics are stable between runs.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s [%s]: %s", e.Code.Kind(), e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds a key/value pair to the error. It is a no-op on a nil
// *Error, so it chains safely after Wrap(nil, ...).
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps err with a code and message. Wrap(nil, ...) returns nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// --- Convenience constructors ---

// NotFound reports that no object exists for a request.
func NotFound(location string) *Error {
	return New(CodeNotFound, "no data object found").WithContext("location", location)
}

// Fetch wraps a transport failure.
func Fetch(err error, location string) *Error {
	return Wrap(err, CodeFetch, "fetch failed").WithContext("location", location)
}

// Decompress wraps a malformed compressed payload.
func Decompress(err error) *Error {
	return Wrap(err, CodeDecompress, "payload is not valid gzip")
}

// Parse reports a line that is not a JSON object.
func Parse(line int, err error) *Error {
	e := New(CodeParse, "malformed record").WithContext("line", line)
	e.Cause = err
	return e
}

// Schema reports a record whose key set differs from the first record.
func Schema(line int, message string) *Error {
	return New(CodeSchema, message).WithContext("line", line)
}

// TemporalParse reports a value of the time column that cannot be parsed.
func TemporalParse(column string, row int, value interface{}) *Error {
	return New(CodeTemporalParse, "cannot parse time value").
		WithContext("column", column).
		WithContext("row", row).
		WithContext("value", value)
}

// Write wraps a filesystem failure.
func Write(err error, path string) *Error {
	return Wrap(err, CodeWrite, "write failed").WithContext("path", path)
}

// ProfileGeneration wraps a failure of the profiling engine or renderer.
func ProfileGeneration(err error, message string) *Error {
	return Wrap(err, CodeProfileGeneration, message)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// As is errors.As, re-exported so callers importing this package under the
// name "errors" keep access to it.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
