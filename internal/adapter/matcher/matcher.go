// Package matcher contains the default query evaluator.
package matcher

import (
	"fmt"
	"regexp"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

type evalFn func(root any, ectx *domain.EvalContext) (bool, error)

// Matcher compiles queries into [domain.QueryEvaluator] values.
type Matcher struct {
	comparer       domain.Comparer
	fieldNavigator domain.FieldNavigator
}

// NewMatcher returns a new Matcher.
func NewMatcher(options ...domain.MatcherOption) *Matcher {
	opts := domain.MatcherOptions{
		Comparer:       comparer.NewComparer(),
		FieldNavigator: fieldnavigator.NewFieldNavigator(data.NewDocument),
	}
	for _, option := range options {
		option(&opts)
	}
	return &Matcher{
		comparer:       opts.Comparer,
		fieldNavigator: opts.FieldNavigator,
	}
}

// evaluator implements [domain.QueryEvaluator]. It holds no state besides the
// compiled closures, so it can be shared between goroutines.
type evaluator struct {
	fn evalFn
}

// Evaluate implements [domain.QueryEvaluator].
func (e *evaluator) Evaluate(root any, ectx *domain.EvalContext) (bool, error) {
	if ectx == nil {
		ectx = domain.NewEvalContext()
	}
	return e.fn(root, ectx)
}

// Compile returns an evaluator for q. A nil query matches everything.
// Malformed nodes are reported as [domain.EvaluationError].
func (m *Matcher) Compile(q domain.Query) (domain.QueryEvaluator, error) {
	if q == nil {
		return &evaluator{fn: func(any, *domain.EvalContext) (bool, error) { return true, nil }}, nil
	}
	fn, err := m.compile(q)
	if err != nil {
		return nil, err
	}
	return &evaluator{fn: fn}, nil
}

func (m *Matcher) compile(q domain.Query) (evalFn, error) {
	switch t := q.(type) {
	case domain.ValueComparison:
		return m.valueComparison(t), nil
	case domain.FieldComparison:
		return m.fieldComparison(t), nil
	case domain.RegexMatch:
		return m.regex(t)
	case domain.SetMembership:
		return m.setMembership(t), nil
	case domain.FieldExists:
		return m.exists(t), nil
	case domain.ElemMatch:
		return m.elemMatch(t)
	case domain.ArrayContains:
		return m.contains(t), nil
	case domain.NaryLogical:
		return m.logical(t)
	case domain.Not:
		return m.not(t)
	case nil:
		return nil, domain.EvaluationError{Reason: "nil query node"}
	default:
		return nil, domain.EvaluationError{Reason: fmt.Sprintf("unknown query node %T", q)}
	}
}

// recordWildcards marks, for every wildcard segment of pattern, the index
// concrete resolved it to.
func recordWildcards(ectx *domain.EvalContext, pattern, concrete path.Path) {
	for i := range min(pattern.Len(), concrete.Len()) {
		if pattern.Segment(i).Kind() != path.AnyIndex {
			continue
		}
		if seg := concrete.Segment(i); seg.Kind() == path.Index {
			ectx.Record(concrete.Prefix(i), seg.Index())
		}
	}
}

// matchEach evaluates pred against every defined location of p and returns
// whether any of them satisfied it. Satisfying locations are recorded.
func (m *Matcher) matchEach(root any, ectx *domain.EvalContext, p path.Path, pred func(v any) (bool, error)) (bool, error) {
	fields, err := m.fieldNavigator.GetField(root, p)
	if err != nil {
		return false, err
	}
	matched := false
	for _, f := range fields {
		v, defined := f.Get()
		if !defined {
			continue
		}
		ok, err := pred(v)
		if err != nil {
			return false, err
		}
		if ok {
			matched = true
			recordWildcards(ectx, p, f.Path)
		}
	}
	return matched, nil
}

// compare applies op to a and b. Values of different kinds never satisfy a
// comparison, not even a difference.
func (m *Matcher) compare(a any, op domain.BinaryOp, b any) (bool, error) {
	if !m.comparer.Comparable(a, b) {
		return false, nil
	}
	c, err := m.comparer.Compare(a, b)
	if err != nil {
		return false, err
	}
	return op.Apply(c), nil
}

func (m *Matcher) equal(a, b any) (bool, error) {
	return m.compare(a, domain.Eq, b)
}

func (m *Matcher) valueComparison(q domain.ValueComparison) evalFn {
	return func(root any, ectx *domain.EvalContext) (bool, error) {
		return m.matchEach(root, ectx, q.Field, func(v any) (bool, error) {
			return m.compare(v, q.Op, q.Value)
		})
	}
}

func (m *Matcher) fieldComparison(q domain.FieldComparison) evalFn {
	return func(root any, ectx *domain.EvalContext) (bool, error) {
		lefts, err := m.fieldNavigator.GetField(root, q.Field)
		if err != nil {
			return false, err
		}
		rights, err := m.fieldNavigator.GetField(root, q.RField)
		if err != nil {
			return false, err
		}
		matched := false
		for _, l := range lefts {
			lv, defined := l.Get()
			if !defined {
				continue
			}
			for _, r := range rights {
				rv, defined := r.Get()
				if !defined {
					continue
				}
				ok, err := m.compare(lv, q.Op, rv)
				if err != nil {
					return false, err
				}
				if ok {
					matched = true
					recordWildcards(ectx, q.Field, l.Path)
					recordWildcards(ectx, q.RField, r.Path)
				}
			}
		}
		return matched, nil
	}
}

func (m *Matcher) regex(q domain.RegexMatch) (evalFn, error) {
	rgx := q.Regex
	if rgx == nil {
		var err error
		if rgx, err = regexp.Compile(q.Pattern); err != nil {
			return nil, domain.EvaluationError{Path: q.Field, Reason: err.Error()}
		}
	}
	return func(root any, ectx *domain.EvalContext) (bool, error) {
		return m.matchEach(root, ectx, q.Field, func(v any) (bool, error) {
			s, ok := v.(string)
			return ok && rgx.MatchString(s), nil
		})
	}, nil
}

func (m *Matcher) in(v any, values []any) (bool, error) {
	for _, item := range values {
		ok, err := m.equal(v, item)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (m *Matcher) setMembership(q domain.SetMembership) evalFn {
	return func(root any, ectx *domain.EvalContext) (bool, error) {
		return m.matchEach(root, ectx, q.Field, func(v any) (bool, error) {
			found, err := m.in(v, q.Values)
			if err != nil {
				return false, err
			}
			return found != q.Negate, nil
		})
	}
}

func (m *Matcher) exists(q domain.FieldExists) evalFn {
	return func(root any, ectx *domain.EvalContext) (bool, error) {
		fields, err := m.fieldNavigator.GetField(root, q.Field)
		if err != nil {
			return false, err
		}
		found := false
		for _, f := range fields {
			if _, defined := f.Get(); defined {
				found = true
				if q.Exists {
					recordWildcards(ectx, q.Field, f.Path)
				}
			}
		}
		return found == q.Exists, nil
	}
}

func (m *Matcher) elemMatch(q domain.ElemMatch) (evalFn, error) {
	sub, err := m.compile(q.Query)
	if err != nil {
		return nil, err
	}
	return func(root any, ectx *domain.EvalContext) (bool, error) {
		fields, err := m.fieldNavigator.GetField(root, q.Array)
		if err != nil {
			return false, err
		}
		matched := false
		for _, f := range fields {
			v, _ := f.Get()
			arr, ok := v.([]any)
			if !ok {
				continue
			}
			var indices []int
			for i, elem := range arr {
				child := domain.NewEvalContext()
				ok, err := sub(elem, child)
				if err != nil {
					return false, err
				}
				if !ok {
					continue
				}
				indices = append(indices, i)
				ectx.Merge(child.Rebase(f.Path.Index(i)))
			}
			ectx.RecordElemMatch(f.Path, indices)
			if len(indices) > 0 {
				matched = true
				recordWildcards(ectx, q.Array, f.Path)
			}
		}
		return matched, nil
	}, nil
}

func (m *Matcher) contains(q domain.ArrayContains) evalFn {
	return func(root any, ectx *domain.EvalContext) (bool, error) {
		fields, err := m.fieldNavigator.GetField(root, q.Array)
		if err != nil {
			return false, err
		}
		matched := false
		for _, f := range fields {
			v, _ := f.Get()
			arr, ok := v.([]any)
			if !ok {
				continue
			}
			hits := make([]bool, len(q.Values))
			var indices []int
			for i, elem := range arr {
				hit := false
				for n, want := range q.Values {
					eq, err := m.equal(elem, want)
					if err != nil {
						return false, err
					}
					if eq {
						hits[n], hit = true, true
					}
				}
				if hit {
					indices = append(indices, i)
				}
			}
			var ok2 bool
			switch q.Mode {
			case domain.ContainsAll:
				ok2 = len(q.Values) > 0
				for _, h := range hits {
					ok2 = ok2 && h
				}
			case domain.ContainsNone:
				ok2 = len(indices) == 0
			default:
				ok2 = len(indices) > 0
			}
			if !ok2 {
				continue
			}
			matched = true
			if q.Mode != domain.ContainsNone {
				for _, i := range indices {
					ectx.Record(f.Path, i)
				}
			}
			recordWildcards(ectx, q.Array, f.Path)
		}
		return matched, nil
	}
}

func (m *Matcher) logical(q domain.NaryLogical) (evalFn, error) {
	if len(q.Queries) == 0 {
		return nil, domain.EvaluationError{Reason: "logical operator without operands"}
	}
	subs := make([]evalFn, len(q.Queries))
	for i, sq := range q.Queries {
		fn, err := m.compile(sq)
		if err != nil {
			return nil, err
		}
		subs[i] = fn
	}
	if q.Op == domain.Or {
		return func(root any, ectx *domain.EvalContext) (bool, error) {
			for _, sub := range subs {
				branch := domain.NewEvalContext()
				ok, err := sub(root, branch)
				if err != nil {
					return false, err
				}
				if ok {
					ectx.Merge(branch)
					return true, nil
				}
			}
			return false, nil
		}, nil
	}
	return func(root any, ectx *domain.EvalContext) (bool, error) {
		branches := make([]*domain.EvalContext, len(subs))
		for i, sub := range subs {
			branches[i] = domain.NewEvalContext()
			ok, err := sub(root, branches[i])
			if err != nil || !ok {
				return false, err
			}
		}
		for _, b := range branches {
			ectx.Merge(b)
		}
		return true, nil
	}, nil
}

func (m *Matcher) not(q domain.Not) (evalFn, error) {
	sub, err := m.compile(q.Query)
	if err != nil {
		return nil, err
	}
	return func(root any, _ *domain.EvalContext) (bool, error) {
		ok, err := sub(root, domain.NewEvalContext())
		return !ok, err
	}, nil
}
