package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

var (
	// ErrUnsupported is returned by [Controller] translation methods when
	// an expression cannot be expressed natively. It is a control signal
	// that triggers in-process evaluation, not a user visible error.
	ErrUnsupported = errors.New("expression not supported by backend")
	// ErrCancelled is recorded on documents that were not processed
	// because the request was cancelled.
	ErrCancelled = errors.New("request cancelled")
	// ErrDuplicateID is returned by [Controller.Insert] when the document
	// id is already in use.
	ErrDuplicateID = errors.New("duplicate document id")
	// ErrDocumentNotFound is returned by controllers when the target
	// document does not exist.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrMissingID is returned when a document that must be addressed by
	// id has none.
	ErrMissingID = errors.New("document has no id")
	// ErrNonPointer is returned by [Decoder] when the target is not a
	// non-nil pointer.
	ErrNonPointer = errors.New("decode target must be a non-nil pointer")
)

// ErrDecode is returned by [Decoder] when the source cannot be decoded into
// the target.
type ErrDecode struct {
	Err error
}

// Error implements [error].
func (e ErrDecode) Error() string {
	return fmt.Sprintf("cannot decode: %s", e.Err)
}

// Unwrap returns the underlying error.
func (e ErrDecode) Unwrap() error { return e.Err }

// ErrEntityNotFound is returned by [MetadataProvider] when the entity or
// version is unknown.
type ErrEntityNotFound struct {
	Name    string
	Version string
}

// Error implements [error].
func (e ErrEntityNotFound) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("entity %q not found", e.Name)
	}
	return fmt.Sprintf("entity %q version %q not found", e.Name, e.Version)
}

// ErrRequest is returned when a request is malformed.
type ErrRequest struct {
	Reason string
}

// Error implements [error].
func (e ErrRequest) Error() string {
	return fmt.Sprintf("malformed request: %s", e.Reason)
}

// ErrAccessDenied is returned when the caller roles are not allowed to run an
// operation on an entity.
type ErrAccessDenied struct {
	Entity    string
	Operation Operation
}

// Error implements [error].
func (e ErrAccessDenied) Error() string {
	return fmt.Sprintf("%s on entity %q not allowed for caller", e.Operation, e.Entity)
}

// EvaluationError is returned when an expression is used against a tree shape
// or value it cannot be applied to. It indicates a malformed expression, never
// absent or mismatched data.
type EvaluationError struct {
	Path   path.Path
	Reason string
}

// Error implements [error].
func (e EvaluationError) Error() string {
	return fmt.Sprintf("evaluating %q: %s", e.Path, e.Reason)
}

// CastError is returned by [Type.ToNative] when a value cannot be cast.
type CastError struct {
	Type  string
	Value any
	Err   error
}

// Error implements [error].
func (e CastError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot cast %v (%T) to %s: %s", e.Value, e.Value, e.Type, e.Err)
	}
	return fmt.Sprintf("cannot cast %v (%T) to %s", e.Value, e.Value, e.Type)
}

// Unwrap returns the underlying error.
func (e CastError) Unwrap() error { return e.Err }

// UpdateError is returned when a single update operation cannot be applied.
type UpdateError struct {
	Op    string
	Field path.Path
	Err   error
}

// Error implements [error].
func (e UpdateError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Op, e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e UpdateError) Unwrap() error { return e.Err }

// Violation is a constraint violation found on a document.
type Violation struct {
	Field      path.Path
	Constraint string
	Message    string
}

// Error implements [error].
func (v Violation) Error() string {
	if v.Field.IsEmpty() {
		return fmt.Sprintf("constraint %s violated: %s", v.Constraint, v.Message)
	}
	return fmt.Sprintf("constraint %s violated on %q: %s", v.Constraint, v.Field, v.Message)
}

// HookError is recorded when a hook fails. Persisted changes are kept.
type HookError struct {
	Hook string
	Err  error
}

// Error implements [error].
func (e HookError) Error() string {
	return fmt.Sprintf("hook %q: %s", e.Hook, e.Err)
}

// Unwrap returns the underlying error.
func (e HookError) Unwrap() error { return e.Err }

// ErrUnknownType is returned when metadata references a type that is not
// registered.
type ErrUnknownType struct {
	Type string
}

// Error implements [error].
func (e ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown type %q", e.Type)
}

// ErrUnknownField is returned when a path does not exist in entity metadata.
type ErrUnknownField struct {
	Field path.Path
}

// Error implements [error].
func (e ErrUnknownField) Error() string {
	return fmt.Sprintf("unknown field %q", e.Field)
}

// ErrParse is returned when an expression or metadata tree has an invalid
// shape.
type ErrParse struct {
	Where  string
	Reason string
}

// Error implements [error].
func (e ErrParse) Error() string {
	if e.Where == "" {
		return fmt.Sprintf("parse error: %s", e.Reason)
	}
	return fmt.Sprintf("parse error at %s: %s", e.Where, e.Reason)
}

// Violations joins a list of violations into a single error.
type Violations []Violation

// Error implements [error].
func (v Violations) Error() string {
	msgs := make([]string, len(v))
	for n, vi := range v {
		msgs[n] = vi.Error()
	}
	return strings.Join(msgs, "; ")
}
