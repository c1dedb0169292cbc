package domain

import "github.com/vinicius-lino-figueiredo/gedal/pkg/path"

// Operation is the kind of request handled by the Mediator.
type Operation uint8

// Supported operations.
const (
	OpFind Operation = iota
	OpInsert
	OpSave
	OpUpdate
	OpDelete
)

// String implements [fmt.Stringer].
func (o Operation) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpSave:
		return "save"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "find"
	}
}

// ParseOperation returns the operation with the given name.
func ParseOperation(s string) (Operation, bool) {
	for _, op := range []Operation{OpFind, OpInsert, OpSave, OpUpdate, OpDelete} {
		if op.String() == s {
			return op, true
		}
	}
	return 0, false
}

// Status is a state of the request state machine.
type Status uint8

// Request states. The last three are terminal.
const (
	StatusCreated Status = iota
	StatusMetadataResolved
	StatusValidated
	StatusExecuting
	StatusHooksQueued
	StatusCompleted
	StatusPartiallyFailed
	StatusFailed
)

// String implements [fmt.Stringer].
func (s Status) String() string {
	switch s {
	case StatusMetadataResolved:
		return "metadata_resolved"
	case StatusValidated:
		return "validated"
	case StatusExecuting:
		return "executing"
	case StatusHooksQueued:
		return "hooks_queued"
	case StatusCompleted:
		return "completed"
	case StatusPartiallyFailed:
		return "partially_failed"
	case StatusFailed:
		return "failed"
	default:
		return "created"
	}
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s >= StatusCompleted
}

// Sort represents an ordered list of fields which should be used to sort
// results, applied in sequence.
type Sort = []SortField

// SortField represents a single field and the order which should be used to
// sort it. A negative Order means descending order.
type SortField struct {
	Field path.Path
	Order int
}

// Request is a CRUD request against one entity.
type Request struct {
	Operation Operation
	Entity    EntityVersion
	// Roles are the caller roles, checked against the entity access
	// lists and passed to hooks.
	Roles []string
	// Documents are the input documents of insert and save.
	Documents []Document
	// Query selects the documents of find, update and delete. A nil
	// query selects every document.
	Query Query
	// Projection shapes the returned documents. A nil projection
	// returns documents unchanged.
	Projection Projection
	Update     Update
	// Upsert makes save insert documents that do not exist yet.
	Upsert bool
	Sort   Sort
	// From and To limit find results to the given inclusive range of
	// positions, after sorting.
	From *int
	To   *int
}

// DocumentResult is the outcome of one document of a request.
type DocumentResult struct {
	// Document is the projected document, nil when processing failed or
	// the operation returns nothing.
	Document Document
	Errors   []error
}

// Response is the result of a request.
type Response struct {
	RequestID string
	Status    Status
	// Documents holds one result per processed document, in input order
	// for insert and save and in result order otherwise.
	Documents []DocumentResult
	// Errors are the request scoped errors, including hook failures.
	Errors []error
	// Matched is the number of documents selected by the query.
	Matched int
	// Modified is the number of documents written or deleted.
	Modified int
}

// Succeeded returns the documents processed without errors.
func (r *Response) Succeeded() []Document {
	var res []Document
	for _, d := range r.Documents {
		if len(d.Errors) == 0 && d.Document != nil {
			res = append(res, d.Document)
		}
	}
	return res
}
