// Package opctx holds the per-request state driven by the mediator: the
// document contexts, the metadata cache, the hook queue and the request
// status.
package opctx

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
)

// ErrInvalidTransition is returned when a status change is not allowed by
// the request state machine.
type ErrInvalidTransition struct {
	From domain.Status
	To   domain.Status
}

// Error implements [error].
func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// DocumentContext is the state of one document of a request. It is owned by
// a single goroutine at a time.
type DocumentContext struct {
	// Original is the stored version of the document. It is nil for inserts
	// and is never mutated.
	Original domain.Document
	// Working is the copy changed by evaluators and backends.
	Working domain.Document
	// Projected is the document returned to the caller.
	Projected domain.Document
	// EvalContext holds the matches of the request query.
	EvalContext *domain.EvalContext
	Errors      []error
	// Written is set once the backend persisted the document.
	Written bool
}

// AddError records a document scoped error.
func (d *DocumentContext) AddError(err error) {
	if err != nil {
		d.Errors = append(d.Errors, err)
	}
}

// Failed reports whether any error was recorded.
func (d *DocumentContext) Failed() bool {
	return len(d.Errors) > 0
}

// HookInvocation is a queued hook call.
type HookInvocation struct {
	Name     string
	Hook     domain.Hook
	Config   domain.HookConfiguration
	Original domain.Document
	Updated  domain.Document
}

// OperationContext is the state of a single request.
type OperationContext struct {
	ctx     context.Context
	id      string
	request *domain.Request

	mu        sync.Mutex
	status    domain.Status
	documents []*DocumentContext
	errors    []error
	hooks     []HookInvocation
	metadata  map[domain.EntityVersion]*domain.EntityMetadata
	entity    *domain.EntityMetadata

	cancelled atomic.Bool
	matched   atomic.Int64
	modified  atomic.Int64
}

// New returns the context of req identified by id. Cancelling ctx cancels
// the request.
func New(ctx context.Context, id string, req *domain.Request) *OperationContext {
	return &OperationContext{
		ctx:      ctx,
		id:       id,
		request:  req,
		status:   domain.StatusCreated,
		metadata: make(map[domain.EntityVersion]*domain.EntityMetadata),
	}
}

// Context returns the context of the request.
func (o *OperationContext) Context() context.Context { return o.ctx }

// ID returns the request id.
func (o *OperationContext) ID() string { return o.id }

// Request returns the request.
func (o *OperationContext) Request() *domain.Request { return o.request }

// Roles returns the caller roles.
func (o *OperationContext) Roles() []string { return o.request.Roles }

var transitions = map[domain.Status]domain.Status{
	domain.StatusCreated:          domain.StatusMetadataResolved,
	domain.StatusMetadataResolved: domain.StatusValidated,
	domain.StatusValidated:        domain.StatusExecuting,
	domain.StatusExecuting:        domain.StatusHooksQueued,
}

// Status returns the current status.
func (o *OperationContext) Status() domain.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Transition moves the request to the next state. Any non terminal state
// may move to [domain.StatusFailed]; the terminal states are reached from
// [domain.StatusHooksQueued] through [OperationContext.Finish].
func (o *OperationContext) Transition(to domain.Status) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transition(to)
}

func (o *OperationContext) transition(to domain.Status) error {
	from := o.status
	ok := false
	switch {
	case from.Terminal():
	case to == domain.StatusFailed:
		ok = true
	case from == domain.StatusHooksQueued:
		ok = to == domain.StatusCompleted || to == domain.StatusPartiallyFailed
	default:
		ok = transitions[from] == to
	}
	if !ok {
		return ErrInvalidTransition{From: from, To: to}
	}
	o.status = to
	return nil
}

// Fail records a request-fatal error and moves the request to
// [domain.StatusFailed].
func (o *OperationContext) Fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
	_ = o.transition(domain.StatusFailed)
}

// Finish computes the terminal status: completed without errors, failed when
// every document failed and none was written, partially failed otherwise.
func (o *OperationContext) Finish() domain.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.Terminal() {
		return o.status
	}
	failed, written := 0, 0
	for _, d := range o.documents {
		if d.Failed() {
			failed++
		}
		if d.Written {
			written++
		}
	}
	to := domain.StatusCompleted
	switch {
	case failed > 0 && failed == len(o.documents) && written == 0:
		to = domain.StatusFailed
	case failed > 0 || len(o.errors) > 0:
		to = domain.StatusPartiallyFailed
	}
	if o.status != domain.StatusHooksQueued {
		to = domain.StatusFailed
	}
	o.status = to
	return to
}

// Cancel marks the request as cancelled. Documents not started yet are
// skipped.
func (o *OperationContext) Cancel() {
	o.cancelled.Store(true)
}

// Cancelled reports whether the request or its context was cancelled.
func (o *OperationContext) Cancelled() bool {
	return o.cancelled.Load() || o.ctx.Err() != nil
}

// CacheMetadata stores md for the requested entity version. md is also
// reachable under its concrete version.
func (o *OperationContext) CacheMetadata(requested domain.EntityVersion, md *domain.EntityMetadata) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metadata[requested] = md
	o.metadata[domain.EntityVersion{Name: md.Info.Name, Version: md.Schema.Version}] = md
	if o.entity == nil {
		o.entity = md
	}
}

// Metadata returns the cached metadata of an entity version.
func (o *OperationContext) Metadata(ev domain.EntityVersion) (*domain.EntityMetadata, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	md, ok := o.metadata[ev]
	return md, ok
}

// Entity returns the metadata of the request entity, the first one cached.
func (o *OperationContext) Entity() *domain.EntityMetadata {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.entity
}

// AddDocument appends a new document context.
func (o *OperationContext) AddDocument(original, working domain.Document) *DocumentContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := &DocumentContext{Original: original, Working: working}
	o.documents = append(o.documents, d)
	return d
}

// Documents returns the document contexts in the order they were added.
func (o *OperationContext) Documents() []*DocumentContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*DocumentContext(nil), o.documents...)
}

// AddError records a request scoped error that does not abort the request.
func (o *OperationContext) AddError(err error) {
	if err == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
}

// Errors returns the request scoped errors.
func (o *OperationContext) Errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errors...)
}

// QueueHook appends a hook invocation to the queue.
func (o *OperationContext) QueueHook(h HookInvocation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, h)
}

// DrainHooks empties the queue and returns its invocations in queue order.
func (o *OperationContext) DrainHooks() []HookInvocation {
	o.mu.Lock()
	defer o.mu.Unlock()
	res := o.hooks
	o.hooks = nil
	return res
}

// AddMatched adds n to the number of documents selected by the query.
func (o *OperationContext) AddMatched(n int) { o.matched.Add(int64(n)) }

// AddModified adds n to the number of documents written or deleted.
func (o *OperationContext) AddModified(n int) { o.modified.Add(int64(n)) }

// Response builds the response of the request.
func (o *OperationContext) Response() *domain.Response {
	o.mu.Lock()
	defer o.mu.Unlock()
	res := &domain.Response{
		RequestID: o.id,
		Status:    o.status,
		Errors:    append([]error(nil), o.errors...),
		Matched:   int(o.matched.Load()),
		Modified:  int(o.modified.Load()),
		Documents: make([]domain.DocumentResult, len(o.documents)),
	}
	for n, d := range o.documents {
		res.Documents[n] = domain.DocumentResult{
			Document: d.Projected,
			Errors:   append([]error(nil), d.Errors...),
		}
		if d.Failed() {
			res.Documents[n].Document = nil
		}
	}
	return res
}
