package mediator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/opctx"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
	"golang.org/x/sync/errgroup"
)

// execute processes the documents of the request and leaves it in
// [domain.StatusExecuting]. Errors are request-fatal; document failures are
// recorded on their document context.
func (m *Mediator) execute(oc *opctx.OperationContext, pl *plan) error {
	req := oc.Request()
	switch req.Operation {
	case domain.OpInsert, domain.OpSave:
		m.addInputDocuments(oc, pl)
		if err := oc.Transition(domain.StatusExecuting); err != nil {
			return err
		}
		if req.Operation == domain.OpInsert {
			m.each(oc, func(ctx context.Context, dc *opctx.DocumentContext) error {
				return m.insert(ctx, pl, dc)
			})
		} else {
			m.each(oc, func(ctx context.Context, dc *opctx.DocumentContext) error {
				return m.save(ctx, pl, dc, req.Upsert)
			})
		}
		return nil
	}

	if err := oc.Transition(domain.StatusExecuting); err != nil {
		return err
	}
	if err := m.selectDocuments(oc, pl); err != nil {
		return err
	}
	switch req.Operation {
	case domain.OpUpdate:
		m.each(oc, func(ctx context.Context, dc *opctx.DocumentContext) error {
			return m.update(ctx, pl, dc)
		})
	case domain.OpDelete:
		m.each(oc, func(ctx context.Context, dc *opctx.DocumentContext) error {
			return m.delete(ctx, pl, dc)
		})
	default:
		m.each(oc, func(_ context.Context, dc *opctx.DocumentContext) error {
			return m.project(pl, dc)
		})
	}
	return nil
}

// each runs fn for every document that has not failed yet, at most
// maxConcurrency at a time. Cancellation is checked before a document
// starts, never while it is processed.
func (m *Mediator) each(oc *opctx.OperationContext, fn func(context.Context, *opctx.DocumentContext) error) {
	ctx := oc.Context()
	var g errgroup.Group
	g.SetLimit(m.maxConcurrency)
	for _, dc := range oc.Documents() {
		if dc.Failed() {
			continue
		}
		g.Go(func() error {
			if oc.Cancelled() {
				dc.AddError(domain.ErrCancelled)
				return nil
			}
			dc.AddError(fn(ctx, dc))
			if dc.Written {
				oc.AddModified(1)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// addInputDocuments adds a document context for each input document, cast
// to the entity field types and validated. Documents that fail are recorded
// and never reach the controller.
func (m *Mediator) addInputDocuments(oc *opctx.OperationContext, pl *plan) {
	req := oc.Request()
	for _, doc := range oc.Request().Documents {
		working := data.CopyDocument(doc)
		dc := oc.AddDocument(nil, working)
		for _, err := range m.castInput(pl.md, working) {
			dc.AddError(err)
		}
		if dc.Failed() {
			continue
		}
		if req.Operation == domain.OpInsert && working.Get(m.idField) == nil {
			working.Set(m.idField, m.idGenerator())
		}
		for _, err := range m.validate(oc.Context(), pl.md, working) {
			dc.AddError(err)
		}
	}
}

// castInput casts every top-level field of doc but the id in place.
func (m *Mediator) castInput(md *domain.EntityMetadata, doc domain.Document) []error {
	if md.Schema.Fields == nil {
		return nil
	}
	var errs []error
	for k, v := range doc.Iter() {
		if k == m.idField {
			continue
		}
		node, ok := md.Schema.Fields.Child(k)
		if !ok {
			errs = append(errs, domain.ErrUnknownField{Field: path.New(path.FieldSegment(k))})
			continue
		}
		nv, err := modifier.CastValue(node, v)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", k, err))
			continue
		}
		doc.Set(k, nv)
	}
	return errs
}

// validate runs the entity constraints and then the field constraints in
// declaration order.
func (m *Mediator) validate(ctx context.Context, md *domain.EntityMetadata, doc domain.Document) []error {
	var errs []error
	check := func(p path.Path, c domain.Constraint) {
		checker, ok := m.checkers[c.Type]
		if !ok || checker == nil {
			errs = append(errs, fmt.Errorf("no checker for constraint %q", c.Type))
			return
		}
		violations, err := checker.Check(ctx, doc, p, c)
		if err != nil {
			errs = append(errs, err)
		}
		for _, v := range violations {
			errs = append(errs, v)
		}
	}
	for _, c := range md.Info.Constraints {
		check(path.Empty, c)
	}
	md.Walk(func(p path.Path, f domain.FieldNode) {
		for _, c := range f.Constraints() {
			check(p, c)
		}
	})
	return errs
}

func (m *Mediator) id(doc domain.Document) (any, error) {
	if doc == nil || doc.Get(m.idField) == nil {
		return nil, domain.ErrMissingID
	}
	return doc.Get(m.idField), nil
}

func (m *Mediator) project(pl *plan, dc *opctx.DocumentContext) error {
	projected, err := pl.projector.Project(dc.Working, dc.EvalContext)
	if err != nil {
		return err
	}
	dc.Projected = projected
	return nil
}

func (m *Mediator) written(pl *plan, dc *opctx.DocumentContext) error {
	dc.Written = true
	return m.project(pl, dc)
}

func (m *Mediator) insert(ctx context.Context, pl *plan, dc *opctx.DocumentContext) error {
	if err := pl.controller.Insert(ctx, pl.md, dc.Working); err != nil {
		return err
	}
	return m.written(pl, dc)
}

func (m *Mediator) save(ctx context.Context, pl *plan, dc *opctx.DocumentContext, upsert bool) error {
	id, err := m.id(dc.Working)
	if err != nil {
		return err
	}
	original, err := m.findByID(ctx, pl, id)
	if err != nil {
		return err
	}
	if original == nil && !upsert {
		return fmt.Errorf("%w: %v", domain.ErrDocumentNotFound, id)
	}
	dc.Original = original
	if err := pl.controller.Save(ctx, pl.md, dc.Working, upsert); err != nil {
		return err
	}
	return m.written(pl, dc)
}

// findByID returns the stored document with the given id, or nil.
func (m *Mediator) findByID(ctx context.Context, pl *plan, id any) (domain.Document, error) {
	q := domain.ValueComparison{Field: path.New(path.FieldSegment(m.idField)), Op: domain.Eq, Value: id}
	nq, err := pl.controller.TranslateQuery(pl.md, q)
	if err != nil && !errors.Is(err, domain.ErrUnsupported) {
		return nil, err
	}
	docs, err := pl.controller.Find(ctx, pl.md, nq)
	if err != nil {
		return nil, err
	}
	eval, err := m.factory.Query(q)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if ok, err := eval.Evaluate(doc, nil); err != nil {
			return nil, err
		} else if ok {
			return doc, nil
		}
	}
	return nil, nil
}

func (m *Mediator) update(ctx context.Context, pl *plan, dc *opctx.DocumentContext) error {
	id, err := m.id(dc.Original)
	if err != nil {
		return err
	}
	if pl.nativeUpdate != nil {
		updated, err := pl.controller.ApplyUpdate(ctx, pl.md, id, pl.nativeUpdate)
		if err != nil {
			return err
		}
		dc.Working = updated
		if data.Equal(dc.Original, updated) {
			return m.project(pl, dc)
		}
		return m.written(pl, dc)
	}

	// the failures of single update nodes are recorded, but what the
	// others changed is still written
	changed, updErr := pl.updater.Update(dc.Working, fields(pl.md), path.Empty)
	if !changed {
		if updErr != nil {
			return updErr
		}
		return m.project(pl, dc)
	}
	if errs := m.validate(ctx, pl.md, dc.Working); len(errs) > 0 {
		return errors.Join(append([]error{updErr}, errs...)...)
	}
	if err := pl.controller.Save(ctx, pl.md, dc.Working, false); err != nil {
		return errors.Join(updErr, err)
	}
	return errors.Join(updErr, m.written(pl, dc))
}

func (m *Mediator) delete(ctx context.Context, pl *plan, dc *opctx.DocumentContext) error {
	id, err := m.id(dc.Original)
	if err != nil {
		return err
	}
	if err := pl.controller.Delete(ctx, pl.md, id); err != nil {
		return err
	}
	return m.written(pl, dc)
}

type selected struct {
	doc  domain.Document
	ectx *domain.EvalContext
}

// selectDocuments adds a document context for every stored document the
// query matches, sorted and limited for finds. The query is translated when
// the controller supports it, but the in-process evaluator always runs to
// record the matched array elements.
func (m *Mediator) selectDocuments(oc *opctx.OperationContext, pl *plan) error {
	ctx := oc.Context()
	req := oc.Request()

	var nq domain.NativeQuery
	if req.Query != nil {
		var err error
		nq, err = pl.controller.TranslateQuery(pl.md, req.Query)
		if err != nil {
			if !errors.Is(err, domain.ErrUnsupported) {
				return fmt.Errorf("translating query: %w", err)
			}
			nq = nil
		}
	}
	docs, err := pl.controller.Find(ctx, pl.md, nq)
	if err != nil {
		return err
	}

	var res []selected
	for _, doc := range docs {
		ectx := domain.NewEvalContext()
		ok, err := pl.query.Evaluate(doc, ectx)
		if err != nil {
			return err
		}
		if ok {
			res = append(res, selected{doc: doc, ectx: ectx})
		}
	}
	oc.AddMatched(len(res))

	if req.Operation == domain.OpFind {
		m.sort(req.Sort, res)
		res = limit(res, req.From, req.To)
	}
	for _, s := range res {
		working := s.doc
		if req.Operation == domain.OpUpdate {
			working = data.CopyDocument(s.doc)
		}
		dc := oc.AddDocument(s.doc, working)
		dc.EvalContext = s.ectx
	}
	return nil
}

// sort orders res by the sort fields. Documents missing a field come first
// in ascending order; values of different kinds keep their order.
func (m *Mediator) sort(sort domain.Sort, res []selected) {
	if len(sort) == 0 {
		return
	}
	key := func(doc domain.Document, p path.Path) (any, bool) {
		fields, err := m.fieldNavigator.GetField(doc, p)
		if err != nil || len(fields) != 1 {
			return nil, false
		}
		return fields[0].Get()
	}
	slices.SortStableFunc(res, func(a, b selected) int {
		for _, sf := range sort {
			va, oka := key(a.doc, sf.Field)
			vb, okb := key(b.doc, sf.Field)
			c := 0
			switch {
			case !oka && !okb:
			case !oka:
				c = -1
			case !okb:
				c = 1
			case m.comparer.Comparable(va, vb):
				c, _ = m.comparer.Compare(va, vb)
			}
			if sf.Order < 0 {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// limit returns the positions from..to of res, both inclusive.
func limit(res []selected, from, to *int) []selected {
	start, end := 0, len(res)-1
	if from != nil {
		start = *from
	}
	if to != nil {
		end = min(*to, end)
	}
	if start > end {
		return nil
	}
	return res[start : end+1]
}

// runHooks queues, in document order, one invocation per written document
// and triggered hook, following their declaration order, and then runs them
// one after the other. Hook failures do not undo anything.
func (m *Mediator) runHooks(oc *opctx.OperationContext, pl *plan) {
	op := oc.Request().Operation
	for _, dc := range oc.Documents() {
		if !dc.Written {
			continue
		}
		original, updated := dc.Original, dc.Working
		switch op {
		case domain.OpInsert:
			original = nil
		case domain.OpDelete:
			updated = nil
		}
		for _, h := range pl.md.Info.Hooks {
			if !h.Triggers(op) {
				continue
			}
			oc.QueueHook(opctx.HookInvocation{
				Name:     h.Name,
				Hook:     m.hooks[h.Name],
				Config:   h.Config,
				Original: original,
				Updated:  updated,
			})
		}
	}
	if err := oc.Transition(domain.StatusHooksQueued); err != nil {
		oc.AddError(err)
		return
	}

	for _, inv := range oc.DrainHooks() {
		if inv.Hook == nil {
			oc.AddError(domain.HookError{Hook: inv.Name, Err: errUnknownHook})
			continue
		}
		err := inv.Hook.Execute(oc.Context(), inv.Config, inv.Original, inv.Updated, oc.Roles())
		if err != nil {
			m.logger.Warn("hook failed",
				slog.String("request_id", oc.ID()),
				slog.String("hook", inv.Name),
				slog.Any("error", err),
			)
			oc.AddError(domain.HookError{Hook: inv.Name, Err: err})
		}
	}
}
