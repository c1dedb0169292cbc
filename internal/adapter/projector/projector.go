// Package projector contains the default projection evaluator.
//
// Projections are allow-lists: a path is kept only when a rule includes it,
// or when it is a container of an included path. For each path the first
// rule that decides wins.
package projector

import (
	"fmt"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

// Projector compiles projections into [domain.Projector] values.
type Projector struct {
	fieldNavigator  domain.FieldNavigator
	documentFactory domain.DocumentFactory
	queryCompiler   domain.QueryCompiler
}

// NewProjector returns a new Projector.
func NewProjector(options ...domain.ProjectorOption) *Projector {
	opts := domain.ProjectorOptions{DocumentFactory: data.NewDocument}
	for _, option := range options {
		option(&opts)
	}
	if opts.FieldNavigator == nil {
		opts.FieldNavigator = fieldnavigator.NewFieldNavigator(opts.DocumentFactory)
	}
	if opts.QueryCompiler == nil {
		opts.QueryCompiler = matcher.NewMatcher(
			domain.WithMatcherFieldNavigator(opts.FieldNavigator),
		).Compile
	}
	return &Projector{
		fieldNavigator:  opts.FieldNavigator,
		documentFactory: opts.DocumentFactory,
		queryCompiler:   opts.QueryCompiler,
	}
}

// rule decides the concrete path c of the document root. Rules of nested
// projections are anchored base segments into c.
type rule interface {
	decide(c path.Path, base int, root any, ectx *domain.EvalContext) (domain.Decision, error)
}

type ruleList []rule

func (l ruleList) decide(c path.Path, base int, root any, ectx *domain.EvalContext) (domain.Decision, error) {
	for _, r := range l {
		d, err := r.decide(c, base, root, ectx)
		if err != nil || d != domain.Undecided {
			return d, err
		}
	}
	return domain.Undecided, nil
}

func decision(include bool) domain.Decision {
	if include {
		return domain.Include
	}
	return domain.Exclude
}

// nested decides descendants through a sub projection. Paths it leaves
// undecided are excluded.
func nested(sub ruleList, c path.Path, base int, root any, ectx *domain.EvalContext) (domain.Decision, error) {
	d, err := sub.decide(c, base, root, ectx)
	if err != nil || d != domain.Undecided {
		return d, err
	}
	return domain.Exclude, nil
}

type fieldRule struct {
	pattern   path.Path
	include   bool
	recursive bool
	sub       ruleList
}

func (r *fieldRule) decide(c path.Path, base int, root any, ectx *domain.EvalContext) (domain.Decision, error) {
	rel := c.Suffix(base)
	n := r.pattern.Len()
	if !rel.HasPrefix(r.pattern) {
		return domain.Undecided, nil
	}
	switch {
	case rel.Len() == n:
		return decision(r.include), nil
	case r.sub != nil && r.include:
		return nested(r.sub, c, base+n, root, ectx)
	case r.recursive:
		return decision(r.include), nil
	}
	return domain.Undecided, nil
}

// selector reports whether element i of arr, found at the concrete path
// array, is targeted by an array rule.
type selector func(array path.Path, arr []any, i int, ectx *domain.EvalContext) (bool, error)

type arrayRule struct {
	fieldNavigator domain.FieldNavigator
	pattern        path.Path
	include        bool
	selects        selector
	sub            ruleList
}

func (r *arrayRule) decide(c path.Path, base int, root any, ectx *domain.EvalContext) (domain.Decision, error) {
	rel := c.Suffix(base)
	n := r.pattern.Len()
	if !rel.HasPrefix(r.pattern) {
		return domain.Undecided, nil
	}
	if rel.Len() == n {
		if r.include {
			return domain.Include, nil
		}
		return domain.Undecided, nil
	}
	seg := rel.Segment(n)
	if seg.Kind() != path.Index {
		return domain.Undecided, nil
	}
	array := c.Prefix(base + n)
	fields, err := r.fieldNavigator.GetField(root, array)
	if err != nil || len(fields) != 1 {
		return domain.Undecided, err
	}
	v, _ := fields[0].Get()
	arr, ok := v.([]any)
	if !ok || seg.Index() >= len(arr) {
		return domain.Undecided, nil
	}
	in, err := r.selects(array, arr, seg.Index(), ectx)
	if err != nil || !in {
		return domain.Undecided, err
	}
	if rel.Len() == n+1 || r.sub == nil || !r.include {
		return decision(r.include), nil
	}
	return nested(r.sub, c, base+n+1, root, ectx)
}

func rangeSelector(from, to int) selector {
	return func(_ path.Path, arr []any, i int, _ *domain.EvalContext) (bool, error) {
		f, t := from, to
		if f < 0 {
			f += len(arr)
		}
		if t < 0 {
			t += len(arr)
		}
		return i >= f && i <= t, nil
	}
}

func querySelector(q domain.QueryEvaluator) selector {
	return func(_ path.Path, arr []any, i int, _ *domain.EvalContext) (bool, error) {
		return q.Evaluate(arr[i], domain.NewEvalContext())
	}
}

func matchedSelector(array path.Path, _ []any, i int, ectx *domain.EvalContext) (bool, error) {
	if ectx == nil {
		return false, nil
	}
	matched, _ := ectx.Matched(array, i)
	return matched, nil
}

// compiled implements [domain.Projector].
type compiled struct {
	rules           ruleList
	documentFactory domain.DocumentFactory
}

// Compile returns a projector for proj. A nil projection includes
// everything.
func (p *Projector) Compile(proj domain.Projection) (domain.Projector, error) {
	if proj == nil {
		proj = domain.FieldProjection{Field: path.Empty, Include: true, Recursive: true}
	}
	rules, err := p.compile(proj)
	if err != nil {
		return nil, err
	}
	return &compiled{rules: rules, documentFactory: p.documentFactory}, nil
}

func (p *Projector) compile(proj domain.Projection) (ruleList, error) {
	switch t := proj.(type) {
	case domain.ProjectionList:
		var res ruleList
		for _, item := range t.Items {
			rules, err := p.compile(item)
			if err != nil {
				return nil, err
			}
			res = append(res, rules...)
		}
		return res, nil
	case domain.FieldProjection:
		sub, err := p.compileSub(t.Project)
		if err != nil {
			return nil, err
		}
		return ruleList{&fieldRule{pattern: t.Field, include: t.Include, recursive: t.Recursive, sub: sub}}, nil
	case domain.ArrayRangeProjection:
		sub, err := p.compileSub(t.Project)
		if err != nil {
			return nil, err
		}
		return ruleList{p.arrayRule(t.Field, t.Include, rangeSelector(t.From, t.To), sub)}, nil
	case domain.ArrayQueryProjection:
		sub, err := p.compileSub(t.Project)
		if err != nil {
			return nil, err
		}
		sel := matchedSelector
		if t.Match != nil {
			q, err := p.queryCompiler(t.Match)
			if err != nil {
				return nil, err
			}
			sel = querySelector(q)
		}
		return ruleList{p.arrayRule(t.Field, t.Include, sel, sub)}, nil
	default:
		return nil, domain.EvaluationError{Reason: fmt.Sprintf("unknown projection node %T", proj)}
	}
}

func (p *Projector) compileSub(proj domain.Projection) (ruleList, error) {
	if proj == nil {
		return nil, nil
	}
	return p.compile(proj)
}

func (p *Projector) arrayRule(pattern path.Path, include bool, sel selector, sub ruleList) *arrayRule {
	return &arrayRule{
		fieldNavigator: p.fieldNavigator,
		pattern:        pattern,
		include:        include,
		selects:        sel,
		sub:            sub,
	}
}

// Decide implements [domain.Projector].
func (c *compiled) Decide(p path.Path, root any, ectx *domain.EvalContext) (domain.Decision, error) {
	return c.rules.decide(p, 0, root, ectx)
}

// Project implements [domain.Projector].
func (c *compiled) Project(doc domain.Document, ectx *domain.EvalContext) (domain.Document, error) {
	if doc == nil {
		return nil, nil
	}
	res, _, err := c.value(path.Empty, doc, domain.Include, doc, ectx)
	if err != nil {
		return nil, err
	}
	return res.(domain.Document), nil
}

// value returns the projected copy of v, found at cp and decided as d, and
// whether it must be kept in its parent.
func (c *compiled) value(cp path.Path, v any, d domain.Decision, root any, ectx *domain.EvalContext) (any, bool, error) {
	switch t := v.(type) {
	case domain.Document:
		out, err := c.documentFactory(nil)
		if err != nil {
			return nil, false, err
		}
		for k, cv := range t.Iter() {
			nv, keep, err := c.child(cp.Field(k), cv, root, ectx)
			if err != nil {
				return nil, false, err
			}
			if keep {
				out.Set(k, nv)
			}
		}
		return out, d == domain.Include || out.Len() > 0, nil
	case []any:
		out := make([]any, 0, len(t))
		for i, cv := range t {
			nv, keep, err := c.child(cp.Index(i), cv, root, ectx)
			if err != nil {
				return nil, false, err
			}
			if keep {
				out = append(out, nv)
			}
		}
		return out, d == domain.Include || len(out) > 0, nil
	default:
		return v, d == domain.Include, nil
	}
}

func (c *compiled) child(cp path.Path, v any, root any, ectx *domain.EvalContext) (any, bool, error) {
	d, err := c.Decide(cp, root, ectx)
	if err != nil {
		return nil, false, err
	}
	return c.value(cp, v, d, root, ectx)
}
