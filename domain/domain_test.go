package domain_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

type DomainTestSuite struct {
	suite.Suite
}

func (s *DomainTestSuite) TestOptions() {
	var mos domain.MatcherOptions
	domain.WithMatcherComparer(nil)(&mos)
	domain.WithMatcherFieldNavigator(nil)(&mos)
	s.Equal(domain.MatcherOptions{}, mos)

	var pos domain.ProjectorOptions
	domain.WithProjectorQueryCompiler(func(domain.Query) (domain.QueryEvaluator, error) {
		return nil, nil
	})(&pos)
	s.NotNil(pos.QueryCompiler)

	var pars domain.MetadataParserOptions
	for _, opt := range []domain.MetadataParserOption{
		domain.WithParserDefaultFieldType("string"),
		domain.WithParserDefaultBackend("memory"),
		domain.WithParserTypes(map[string]domain.Type{}),
	} {
		opt(&pars)
	}
	s.Equal("string", pars.DefaultFieldType)
	s.Equal("memory", pars.DefaultBackend)
	s.NotNil(pars.Types)

	var meds domain.MediatorOptions
	logger := slog.Default()
	for _, opt := range []domain.MediatorOption{
		domain.WithMediatorLogger(logger),
		domain.WithMediatorMaxConcurrency(4),
		domain.WithMediatorController("a", nil),
		domain.WithMediatorController("b", nil),
		domain.WithMediatorDefaultBackend("a"),
		domain.WithMediatorIDField("id"),
	} {
		opt(&meds)
	}
	s.Same(logger, meds.Logger)
	s.Equal(4, meds.MaxConcurrency)
	s.Len(meds.Controllers, 2)
	s.Equal("a", meds.DefaultBackend)
	s.Equal("id", meds.IDField)

	var cos domain.ControllerOptions
	domain.WithControllerIDField("_id")(&cos)
	domain.WithControllerTablePrefix("t_")(&cos)
	s.Equal(domain.ControllerOptions{IDField: "_id", TablePrefix: "t_"}, cos)
}

func (s *DomainTestSuite) TestEvalContext() {
	arr := path.MustParse("a")
	ctx := domain.NewEvalContext()

	_, decided := ctx.Matched(arr, 0)
	s.False(decided)

	ctx.Record(arr, 2)
	ctx.Record(arr, 0)
	matched, decided := ctx.Matched(arr, 1)
	s.True(decided)
	s.False(matched)
	idx, ok := ctx.Indices(arr)
	s.True(ok)
	s.Equal([]int{0, 2}, idx)

	ctx.RecordElemMatch(arr, []int{1})
	ctx.Record(arr, 3)
	idx, _ = ctx.Indices(arr)
	s.Equal([]int{1}, idx)

	other := domain.NewEvalContext()
	other.Record(arr, 4)
	other.Record(path.MustParse("b"), 1)
	ctx.Merge(other)
	idx, _ = ctx.Indices(arr)
	s.Equal([]int{1}, idx)
	s.Equal([]path.Path{arr, path.MustParse("b")}, ctx.Arrays())
}

func (s *DomainTestSuite) TestEvalContextDistinctArrays() {
	ctx := domain.NewEvalContext()
	dotted := path.New(path.FieldSegment("a.b"))
	nested := path.MustParse("a.b")
	ctx.Record(dotted, 0)
	ctx.Record(nested, 1)

	numeric := path.New(path.FieldSegment("x"), path.FieldSegment("0"))
	indexed := path.MustParse("x.0")
	ctx.RecordElemMatch(numeric, []int{2})
	ctx.Record(indexed, 3)

	for _, tc := range []struct {
		array path.Path
		want  []int
	}{
		{dotted, []int{0}},
		{nested, []int{1}},
		{numeric, []int{2}},
		{indexed, []int{3}},
	} {
		idx, ok := ctx.Indices(tc.array)
		s.True(ok)
		s.Equal(tc.want, idx, tc.array.Key())
	}
	s.Len(ctx.Arrays(), 4)

	rebased := ctx.Rebase(path.MustParse("r"))
	idx, _ := rebased.Indices(path.New(path.FieldSegment("r"), path.FieldSegment("a.b")))
	s.Equal([]int{0}, idx)
	idx, _ = rebased.Indices(path.MustParse("r.a.b"))
	s.Equal([]int{1}, idx)
}

func (s *DomainTestSuite) TestEvalContextRebase() {
	ctx := domain.NewEvalContext()
	ctx.RecordElemMatch(path.MustParse("b"), []int{0})
	ctx.Record(path.Empty, 1)

	rebased := ctx.Rebase(path.MustParse("a.2"))
	s.Equal([]path.Path{path.MustParse("a.2"), path.MustParse("a.2.b")}, rebased.Arrays())

	again := ctx.Rebase(path.MustParse("a.2"))
	s.True(rebased.Equal(again))
	s.False(rebased.Equal(ctx))
}

func (s *DomainTestSuite) TestMetadata() {
	md := &domain.EntityMetadata{
		Info: domain.EntityInfo{Name: "person"},
		Schema: domain.EntitySchema{
			Fields: &domain.ObjectField{Fields: []domain.FieldNode{
				&domain.SimpleField{FieldName: "name"},
				&domain.ArrayField{
					FieldName: "pets",
					Element: &domain.ObjectField{Fields: []domain.FieldNode{
						&domain.SimpleField{FieldName: "age", FieldConstraints: []domain.Constraint{{Type: "minimum", Value: 0}}},
						&domain.ReferenceField{FieldName: "kind", Entity: "species"},
					}},
				},
				&domain.ReferenceField{FieldName: "owner", Entity: "species"},
			}},
		},
	}

	f, err := md.Resolve(path.MustParse("pets.3.age"))
	s.NoError(err)
	s.Equal("age", f.Name())

	f, err = md.Resolve(path.MustParse("pets.*"))
	s.NoError(err)
	s.Equal(domain.KindObject, f.Kind())

	_, err = md.Resolve(path.MustParse("name.x"))
	s.ErrorAs(err, new(domain.ErrUnknownField))

	_, err = md.Resolve(path.MustParse("pets.age"))
	s.ErrorAs(err, new(domain.ErrUnknownField))

	var walked []string
	md.Walk(func(p path.Path, _ domain.FieldNode) {
		walked = append(walked, p.String())
	})
	s.Equal([]string{"name", "pets", "pets.*", "pets.*.age", "pets.*.kind", "owner"}, walked)

	s.Equal([]domain.EntityVersion{{Name: "species"}}, md.References())
	s.True(md.HasConstraints())
}

func (s *DomainTestSuite) TestAccess() {
	a := domain.Access{Find: []string{"anyone"}, Update: []string{"admin"}}
	s.True(a.Allowed(domain.OpFind, nil))
	s.True(a.Allowed(domain.OpInsert, nil))
	s.False(a.Allowed(domain.OpSave, []string{"user"}))
	s.True(a.Allowed(domain.OpUpdate, []string{"user", "admin"}))
}

func (s *DomainTestSuite) TestHookTriggers() {
	s.True(domain.HookDef{}.Triggers(domain.OpDelete))
	h := domain.HookDef{Actions: []domain.Operation{domain.OpInsert}}
	s.True(h.Triggers(domain.OpInsert))
	s.False(h.Triggers(domain.OpDelete))
}

func (s *DomainTestSuite) TestOperationAndStatus() {
	for _, name := range []string{"find", "insert", "save", "update", "delete"} {
		op, ok := domain.ParseOperation(name)
		s.True(ok)
		s.Equal(name, op.String())
	}
	_, ok := domain.ParseOperation("upsert")
	s.False(ok)

	s.False(domain.StatusHooksQueued.Terminal())
	s.True(domain.StatusPartiallyFailed.Terminal())
	s.Equal("partially_failed", domain.StatusPartiallyFailed.String())
}

func (s *DomainTestSuite) TestErrors() {
	cast := domain.CastError{Type: "integer", Value: "x", Err: errors.New("bad")}
	upd := domain.UpdateError{Op: "set", Field: path.MustParse("a"), Err: cast}
	s.ErrorAs(upd, new(domain.CastError))
	s.Equal(`set "a": cannot cast x (string) to integer: bad`, upd.Error())

	v := domain.Violations{
		{Constraint: "requiredFields", Message: "missing a"},
		{Field: path.MustParse("b"), Constraint: "minimum", Message: "too small"},
	}
	s.Equal(`constraint requiredFields violated: missing a; constraint minimum violated on "b": too small`, v.Error())

	s.Equal(`entity "p" version "2" not found`, domain.ErrEntityNotFound{Name: "p", Version: "2"}.Error())
}

func (s *DomainTestSuite) TestResponse() {
	r := domain.Response{Documents: []domain.DocumentResult{
		{Document: nil},
		{Errors: []error{errors.New("x")}},
	}}
	s.Empty(r.Succeeded())
}

func TestDomainTestSuite(t *testing.T) {
	suite.Run(t, new(DomainTestSuite))
}
