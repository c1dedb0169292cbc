// Package domain contains domain-specific interfaces, entities and option
// types for gedal.
//
// This package defines the core interfaces that must be implemented by
// adapters (evaluators, backend controllers, metadata providers, constraint
// checkers and hooks), the immutable expression trees they exchange and
// functional options for configuring the default implementations.
package domain

import (
	"context"
	"iter"

	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

// Document is an object node of a document tree. Keys keep insertion order.
// A Document is owned by one request at a time and doesn't need to be
// concurrency safe.
type Document interface {
	// D returns the subdocument for the given key, if any.
	D(string) Document
	// Get returns the value under the given key, or nil if unset.
	Get(string) any
	// Set sets the value under the given key. New keys are appended.
	Set(string, any)
	// Unset removes the given key.
	Unset(string)
	// Iter returns the key-value pairs in insertion order.
	Iter() iter.Seq2[string, any]
	// Keys returns the keys in insertion order.
	Keys() iter.Seq[string]
	// Values returns the values in insertion order.
	Values() iter.Seq[any]
	// Has reports whether a value is set under the given key.
	Has(string) bool
	// Len returns the number of set fields in the document.
	Len() int
}

// Getter represents a value that can be treated as undefined.
type Getter interface {
	// Get returns the value for the given address and a bool that indicates
	// whether the value counts as defined or not. If an address points to
	// an unset key in a document, an out of bounds index in an array or
	// any address within a scalar value, it counts as undefined. An
	// explicit nil is defined.
	Get() (value any, defined bool)
}

// GetSetter represents a location in a [Document]. It is returned by
// [FieldNavigator] so reading, replacing and removing values found through
// wildcards does not require walking the tree again.
type GetSetter interface {
	// GetSetter implements [Getter]. Undefined values can neither be set
	// nor unset.
	Getter
	// Set replaces the value at the location.
	Set(any)
	// Unset removes the value from the parent (object or array).
	Unset()
}

// Field is a concrete location a path resolved to.
type Field struct {
	// Path is the concrete path, with every wildcard replaced by the index
	// it was expanded to.
	Path path.Path
	GetSetter
}

// FieldNavigator resolves paths against document trees.
type FieldNavigator interface {
	// GetField returns every concrete location p resolves to in obj.
	// Wildcards are expanded over the current array contents; locations
	// that do not exist are returned as undefined.
	GetField(obj any, p path.Path) ([]Field, error)
	// EnsureField is like GetField but creates missing objects and array
	// slots so that the returned locations can be set.
	EnsureField(obj any, p path.Path) ([]Field, error)
}

// Comparer provides ordering and comparison operations for different data types.
type Comparer interface {
	// Compare returns -1, 0, or 1 based on the comparison of two values.
	Compare(any, any) (int, error)
	// Comparable returns true if two values are of comparable kinds.
	Comparable(any, any) bool
}

// Decoder converts between different data representations.
type Decoder interface {
	// Decode converts from one data format to another.
	Decode(any, any) error
}

// TreeNode is the format-agnostic view of a parsed document (JSON, YAML or a
// binary document format) consumed by the expression and metadata parsers.
type TreeNode interface {
	IsValue() bool
	IsObject() bool
	IsList() bool
	// Value returns the scalar value of a value node.
	Value() any
	// Child returns the named field of an object node.
	Child(name string) (TreeNode, bool)
	// Fields returns the fields of an object node in declaration order.
	Fields() iter.Seq2[string, TreeNode]
	// Elements returns the elements of a list node.
	Elements() []TreeNode
}

// Type converts values between their portable (JSON-like) form and the
// native form used inside documents.
type Type interface {
	// Name returns the type identifier used in metadata.
	Name() string
	// ToNative casts v, returning a [CastError] when it cannot be cast.
	ToNative(v any) (any, error)
	// ToPortable converts a native value to its portable form.
	ToPortable(v any) any
}

// QueryEvaluator is a compiled query. Implementations are immutable and safe
// for concurrent use; all per-call state lives in the [EvalContext].
type QueryEvaluator interface {
	// Evaluate reports whether root matches, recording matched array
	// indices into ectx.
	Evaluate(root any, ectx *EvalContext) (bool, error)
}

// Projector is a compiled projection.
type Projector interface {
	// Decide returns the decision of the projection for the concrete path
	// p of the document root.
	Decide(p path.Path, root any, ectx *EvalContext) (Decision, error)
	// Project returns a new document with only the included fields. The
	// input is never mutated.
	Project(doc Document, ectx *EvalContext) (Document, error)
}

// Updater is a compiled update.
type Updater interface {
	// Update modifies doc in place. Paths are resolved relative to
	// contextPath and values are cast using the field types found in
	// contextMetadata, which may be nil. It returns whether anything
	// changed together with the joined errors of the operations that
	// failed; sibling operations are applied regardless.
	Update(doc Document, contextMetadata FieldNode, contextPath path.Path) (bool, error)
}

// EvaluatorFactory compiles expressions into evaluators.
type EvaluatorFactory interface {
	Query(Query) (QueryEvaluator, error)
	Projection(Projection) (Projector, error)
	Update(Update) (Updater, error)
}

// MetadataProvider resolves entity metadata.
type MetadataProvider interface {
	// Resolve returns the metadata of the given entity version. An empty
	// version means the default version. Unknown entities or versions
	// return [ErrEntityNotFound].
	Resolve(ctx context.Context, name, version string) (*EntityMetadata, error)
}

// ConstraintChecker validates a single constraint kind. Checkers are
// read-only.
type ConstraintChecker interface {
	// Check validates constraint c on the field at p of doc. For entity
	// level constraints p is empty.
	Check(ctx context.Context, doc Document, p path.Path, c Constraint) ([]Violation, error)
}

// ConstraintParser validates and converts the raw value of a constraint when
// metadata is parsed.
type ConstraintParser func(raw TreeNode) (any, error)

// Hook is invoked after a request's documents were processed.
type Hook interface {
	// Configure parses the raw hook configuration found in metadata.
	Configure(raw TreeNode) (HookConfiguration, error)
	// Execute runs the hook for one document. original is nil for
	// inserts and updated is nil for deletes.
	Execute(ctx context.Context, cfg HookConfiguration, original, updated Document, roles []string) error
}

// Controller is the capability a storage backend implements. The Mediator
// drives it one document at a time; translation failures make the Mediator
// fall back to in-process evaluation.
type Controller interface {
	// TranslateQuery converts q to the backend's native form or returns
	// [ErrUnsupported]. It must not have side effects.
	TranslateQuery(md *EntityMetadata, q Query) (NativeQuery, error)
	// TranslateUpdate converts u to the backend's native form or returns
	// [ErrUnsupported]. It must not have side effects.
	TranslateUpdate(md *EntityMetadata, u Update) (NativeUpdate, error)
	// Find returns the documents matching a native query. A nil query
	// returns every document of the entity.
	Find(ctx context.Context, md *EntityMetadata, q NativeQuery) ([]Document, error)
	// Insert stores a new document. It returns [ErrDuplicateID] if the id
	// is taken.
	Insert(ctx context.Context, md *EntityMetadata, doc Document) error
	// Save replaces the document with the same id. When upsert is false
	// and no document exists, it returns [ErrDocumentNotFound].
	Save(ctx context.Context, md *EntityMetadata, doc Document, upsert bool) error
	// ApplyUpdate applies a native update to the document with the given
	// id and returns its new version.
	ApplyUpdate(ctx context.Context, md *EntityMetadata, id any, u NativeUpdate) (Document, error)
	// Delete removes the document with the given id.
	Delete(ctx context.Context, md *EntityMetadata, id any) error
}

// NativeQuery is a query in a backend's own representation.
type NativeQuery any

// NativeUpdate is an update in a backend's own representation.
type NativeUpdate any

// DocumentFactory represents a function that constructs [Document] instances
// from structured data types. If nil is provided, returns an empty document.
type DocumentFactory = func(any) (Document, error)
