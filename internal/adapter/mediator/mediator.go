// Package mediator contains the request orchestrator.
//
// A request goes through the states of [domain.Status]: metadata of the
// entity and of every entity it references is resolved, access and input
// documents are validated, documents are processed concurrently against the
// entity's backend controller and, once all of them are finalized, queued
// hooks run in order.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/constraint"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/controller/memory"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/factory"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/metadata"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/opctx"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

// DefaultMaxConcurrency is the number of documents of a request processed
// at the same time when no limit is configured.
const DefaultMaxConcurrency = 8

var errUnknownHook = errors.New("hook not registered")

// Mediator runs requests end to end.
type Mediator struct {
	logger         *slog.Logger
	maxConcurrency int
	factory        domain.EvaluatorFactory
	provider       domain.MetadataProvider
	checkers       map[string]domain.ConstraintChecker
	hooks          map[string]domain.Hook
	controllers    map[string]domain.Controller
	defaultBackend string
	idField        string
	idGenerator    func() string
	comparer       domain.Comparer
	fieldNavigator domain.FieldNavigator
}

// NewMediator returns a new Mediator. When no controller is registered under
// the default backend an in-memory one is used.
func NewMediator(options ...domain.MediatorOption) *Mediator {
	opts := domain.MediatorOptions{
		MaxConcurrency:  DefaultMaxConcurrency,
		DefaultBackend:  "memory",
		IDField:         "_id",
		IDGenerator:     uuid.NewString,
		DocumentFactory: data.NewDocument,
		Comparer:        comparer.NewComparer(),
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.FieldNavigator == nil {
		opts.FieldNavigator = fieldnavigator.NewFieldNavigator(opts.DocumentFactory)
	}
	if opts.Factory == nil {
		opts.Factory = factory.NewFactory(
			domain.WithFactoryComparer(opts.Comparer),
			domain.WithFactoryFieldNavigator(opts.FieldNavigator),
			domain.WithFactoryDocumentFactory(opts.DocumentFactory),
		)
	}
	if opts.Provider == nil {
		opts.Provider = metadata.NewStaticProvider()
	}
	if opts.Checkers == nil {
		opts.Checkers = constraint.Checkers(opts.FieldNavigator, opts.Comparer)
	}
	if opts.Controllers == nil {
		opts.Controllers = make(map[string]domain.Controller)
	}
	if opts.Controllers[opts.DefaultBackend] == nil {
		opts.Controllers[opts.DefaultBackend] = memory.NewController(
			domain.WithControllerIDField(opts.IDField),
			domain.WithControllerComparer(opts.Comparer),
		)
	}
	return &Mediator{
		logger:         opts.Logger,
		maxConcurrency: opts.MaxConcurrency,
		factory:        opts.Factory,
		provider:       opts.Provider,
		checkers:       opts.Checkers,
		hooks:          opts.Hooks,
		controllers:    opts.Controllers,
		defaultBackend: opts.DefaultBackend,
		idField:        opts.IDField,
		idGenerator:    opts.IDGenerator,
		comparer:       opts.Comparer,
		fieldNavigator: opts.FieldNavigator,
	}
}

// plan holds what a request needs once it is validated.
type plan struct {
	md         *domain.EntityMetadata
	controller domain.Controller
	query      domain.QueryEvaluator
	projector  domain.Projector
	updater    domain.Updater
	// nativeUpdate is set when the controller translated the update.
	nativeUpdate domain.NativeUpdate
}

// Execute runs req and returns its response.
func (m *Mediator) Execute(ctx context.Context, req *domain.Request) *domain.Response {
	return m.Run(m.NewOperation(ctx, req))
}

// NewOperation returns the context of a new request. Callers that need to
// cancel the request while it runs keep it and pass it to [Mediator.Run].
func (m *Mediator) NewOperation(ctx context.Context, req *domain.Request) *opctx.OperationContext {
	return opctx.New(ctx, uuid.NewString(), req)
}

// Run runs the request of oc and returns its response.
func (m *Mediator) Run(oc *opctx.OperationContext) *domain.Response {
	req := oc.Request()
	log := m.logger.With(slog.String("request_id", oc.ID()))
	if req != nil {
		log = log.With(
			slog.String("entity", req.Entity.String()),
			slog.String("operation", req.Operation.String()),
		)
	}

	pl, err := m.prepare(oc)
	if err != nil {
		oc.Fail(err)
		log.Warn("request failed", slog.String("status", oc.Status().String()), slog.Any("error", err))
		return oc.Response()
	}
	log.Debug("request validated", slog.Bool("native_update", pl.nativeUpdate != nil))

	if err := m.execute(oc, pl); err != nil {
		oc.Fail(err)
		log.Warn("request failed", slog.String("status", oc.Status().String()), slog.Any("error", err))
		return oc.Response()
	}
	m.runHooks(oc, pl)

	status := oc.Finish()
	res := oc.Response()
	level := slog.LevelInfo
	if status != domain.StatusCompleted {
		level = slog.LevelWarn
	}
	log.Log(oc.Context(), level, "request finished",
		slog.String("status", status.String()),
		slog.Int("documents", len(res.Documents)),
		slog.Int("matched", res.Matched),
		slog.Int("modified", res.Modified),
		slog.Int("errors", len(res.Errors)),
	)
	return res
}

// prepare moves the request to [domain.StatusValidated]. Any error it
// returns is request-fatal.
func (m *Mediator) prepare(oc *opctx.OperationContext) (*plan, error) {
	req := oc.Request()
	if err := m.validateRequest(req); err != nil {
		return nil, err
	}
	if err := m.resolveMetadata(oc); err != nil {
		return nil, err
	}
	if err := oc.Transition(domain.StatusMetadataResolved); err != nil {
		return nil, err
	}

	md := oc.Entity()
	if !md.Schema.Access.Allowed(req.Operation, req.Roles) {
		return nil, domain.ErrAccessDenied{Entity: md.Info.Name, Operation: req.Operation}
	}

	pl := &plan{md: md}
	backend := md.Info.Backend
	if backend == "" {
		backend = m.defaultBackend
	}
	var ok bool
	if pl.controller, ok = m.controllers[backend]; !ok || pl.controller == nil {
		return nil, fmt.Errorf("entity %q: unknown backend %q", md.Info.Name, backend)
	}

	var err error
	if pl.query, err = m.factory.Query(req.Query); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if pl.projector, err = m.factory.Projection(req.Projection); err != nil {
		return nil, fmt.Errorf("projection: %w", err)
	}
	if req.Operation == domain.OpUpdate {
		if pl.updater, err = m.factory.Update(req.Update); err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		// constraints are checked on the post-image, which native
		// updates never expose before writing
		if !md.HasConstraints() {
			nu, err := pl.controller.TranslateUpdate(md, req.Update)
			switch {
			case err == nil:
				pl.nativeUpdate = nu
			case !errors.Is(err, domain.ErrUnsupported):
				return nil, fmt.Errorf("translating update: %w", err)
			}
		}
	}

	if err := oc.Transition(domain.StatusValidated); err != nil {
		return nil, err
	}
	return pl, nil
}

func (m *Mediator) validateRequest(req *domain.Request) error {
	if req == nil {
		return domain.ErrRequest{Reason: "nil request"}
	}
	if req.Entity.Name == "" {
		return domain.ErrRequest{Reason: "missing entity"}
	}
	switch req.Operation {
	case domain.OpInsert, domain.OpSave:
		if len(req.Documents) == 0 {
			return domain.ErrRequest{Reason: fmt.Sprintf("%s without documents", req.Operation)}
		}
		if slices.Contains(req.Documents, nil) {
			return domain.ErrRequest{Reason: "nil document"}
		}
	case domain.OpUpdate:
		if req.Update == nil {
			return domain.ErrRequest{Reason: "update without update expression"}
		}
	case domain.OpFind, domain.OpDelete:
	default:
		return domain.ErrRequest{Reason: fmt.Sprintf("unknown operation %d", req.Operation)}
	}
	if req.Operation != domain.OpInsert && req.Operation != domain.OpSave && len(req.Documents) > 0 {
		return domain.ErrRequest{Reason: fmt.Sprintf("%s does not take documents", req.Operation)}
	}
	if (req.From != nil && *req.From < 0) || (req.To != nil && *req.To < 0) {
		return domain.ErrRequest{Reason: "negative range bound"}
	}
	return nil
}

// resolveMetadata caches the metadata of the request entity and of every
// entity reachable through reference fields.
func (m *Mediator) resolveMetadata(oc *opctx.OperationContext) error {
	ctx := oc.Context()
	req := oc.Request()
	md, err := m.provider.Resolve(ctx, req.Entity.Name, req.Entity.Version)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", req.Entity, err)
	}
	oc.CacheMetadata(req.Entity, md)

	queue := []*domain.EntityMetadata{md}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		var refs []domain.EntityVersion
		curr.Walk(func(_ path.Path, f domain.FieldNode) {
			if r, ok := f.(*domain.ReferenceField); ok {
				refs = append(refs, domain.EntityVersion{Name: r.Entity, Version: r.Version})
			}
		})
		for _, ev := range refs {
			if _, ok := oc.Metadata(ev); ok {
				continue
			}
			ref, err := m.provider.Resolve(ctx, ev.Name, ev.Version)
			if err != nil {
				return fmt.Errorf("resolving %s referenced by %s: %w", ev, curr.Info.Name, err)
			}
			oc.CacheMetadata(ev, ref)
			queue = append(queue, ref)
		}
	}
	return nil
}

// fields returns the field tree of md as a node, nil when the entity has no
// declared fields.
func fields(md *domain.EntityMetadata) domain.FieldNode {
	if md.Schema.Fields == nil {
		return nil
	}
	return md.Schema.Fields
}
