// Package errdefs defines the error taxonomy shared by the store, schema,
// page registry and render queue.
//
// Mutation and configuration errors are returned to the caller and abort the
// current operation. Query errors are captured per page by the render queue.
// DanglingReference is a diagnostic value, never returned as an error.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIndicesDisabled is returned by index-only reads issued between
// DisableIndices and EnableIndices.
var ErrIndicesDisabled = errors.New("indices are disabled")

// ValidationError reports malformed input to a single call.
type ValidationError struct {
	Label   string // operation or schema label, e.g. "createPage"
	Field   string // offending field path, e.g. "path"
	Message string
	Err     error // underlying cause, if any
}

func (e *ValidationError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Label, e.Err)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Label, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Label, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigError reports invalid configuration detected at load or bootstrap.
type ConfigError struct {
	Subject string // type name, extension name, plugin name, or config key
	Message string
}

func (e *ConfigError) Error() string {
	if e.Subject == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s: %s", e.Subject, e.Message)
}

// PathCollisionError reports two sources resolving to the same output path.
type PathCollisionError struct {
	Path        string
	Existing    string // description of the entry that owns the path
	Conflicting string // description of the entry that tried to claim it
}

func (e *PathCollisionError) Error() string {
	return fmt.Sprintf("path collision on %q: %s conflicts with %s", e.Path, e.Conflicting, e.Existing)
}

// QueryError reports a GraphQL query that failed validation or execution.
type QueryError struct {
	Path     string // page path the query ran for, empty outside rendering
	Messages []string
}

func (e *QueryError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if e.Path != "" {
		return fmt.Sprintf("query failed for %s: %s", e.Path, msg)
	}
	return "query failed: " + msg
}

// DanglingReference describes a reference whose target does not exist.
type DanglingReference struct {
	TypeName string
	ID       string
}

func (d DanglingReference) String() string {
	return fmt.Sprintf("dangling reference to %s:%s", d.TypeName, d.ID)
}

// NewValidation is a shorthand constructor.
func NewValidation(label, field, format string, args ...any) *ValidationError {
	return &ValidationError{Label: label, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NewConfig is a shorthand constructor.
func NewConfig(subject, format string, args ...any) *ConfigError {
	return &ConfigError{Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConfig reports whether err wraps a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsPathCollision reports whether err wraps a PathCollisionError.
func IsPathCollision(err error) bool {
	var pe *PathCollisionError
	return errors.As(err, &pe)
}

// IsQuery reports whether err wraps a QueryError.
func IsQuery(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}
