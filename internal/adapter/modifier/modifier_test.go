package modifier

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/types"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

var p = path.MustParse

type ModifierTestSuite struct {
	suite.Suite
	modifier *Modifier
	doc      domain.Document
	md       domain.FieldNode
}

func (s *ModifierTestSuite) SetupTest() {
	s.modifier = NewModifier()
	s.doc = data.FromPairs(
		"name", "ann",
		"n", int64(1),
		"tags", []any{"a"},
		"items", []any{
			data.FromPairs("n", int64(1), "m", "a"),
			data.FromPairs("n", int64(2), "m", "b"),
			data.FromPairs("n", int64(3), "m", "c"),
		},
	)
	ts := types.Default()
	s.md = &domain.ObjectField{Fields: []domain.FieldNode{
		&domain.SimpleField{FieldName: "name", Type: ts[types.String]},
		&domain.SimpleField{FieldName: "age", Type: ts[types.Integer]},
		&domain.ArrayField{FieldName: "scores", Element: &domain.SimpleField{Type: ts[types.Double]}},
		&domain.ObjectField{FieldName: "address", Fields: []domain.FieldNode{
			&domain.SimpleField{FieldName: "zip", Type: ts[types.Integer]},
		}},
	}}
}

func (s *ModifierTestSuite) update(u domain.Update, md domain.FieldNode) (bool, error) {
	c, err := s.modifier.Compile(u)
	s.Require().NoError(err)
	return c.Update(s.doc, md, path.Empty)
}

func (s *ModifierTestSuite) mustUpdate(u domain.Update) bool {
	changed, err := s.update(u, nil)
	s.Require().NoError(err)
	return changed
}

func set(f string, v any) domain.SetValue {
	return domain.SetValue{Field: p(f), Value: domain.RValue{Literal: v}}
}

func (s *ModifierTestSuite) TestSet() {
	s.True(s.mustUpdate(set("age", 30)))
	s.Equal(int64(30), s.doc.Get("age"))

	s.True(s.mustUpdate(set("address.city", "x")))
	s.Equal("x", s.doc.D("address").Get("city"))

	s.True(s.mustUpdate(set("items.*.m", "z")))
	for _, item := range s.doc.Get("items").([]any) {
		s.Equal("z", item.(domain.Document).Get("m"))
	}
}

func (s *ModifierTestSuite) TestSetIdempotent() {
	u := domain.UpdateList{Items: []domain.Update{set("a.b", []any{1, 2}), domain.Unset{Field: p("name")}}}
	s.True(s.mustUpdate(u))
	once := data.CopyDocument(s.doc)
	s.False(s.mustUpdate(u))
	s.True(data.Equal(once, s.doc))
}

func (s *ModifierTestSuite) TestSetDoesNotShareLiterals() {
	literal := []any{int64(1)}
	s.mustUpdate(domain.UpdateList{Items: []domain.Update{set("a", literal), set("b", literal)}})
	s.doc.Get("a").([]any)[0] = int64(2)
	s.Equal(int64(1), s.doc.Get("b").([]any)[0])
	s.Equal(int64(1), literal[0])
}

func (s *ModifierTestSuite) TestSetCopy() {
	s.True(s.mustUpdate(domain.SetValue{Field: p("copy"), Value: domain.RValue{CopyFrom: p("items.1"), IsCopy: true}}))
	s.True(data.Equal(data.FromPairs("n", int64(2), "m", "b"), s.doc.Get("copy")))

	s.doc.D("copy").Set("m", "changed")
	s.Equal("b", s.doc.Get("items").([]any)[1].(domain.Document).Get("m"))

	for _, src := range []string{"missing", "items.*.n"} {
		_, err := s.update(domain.SetValue{Field: p("x"), Value: domain.RValue{CopyFrom: p(src), IsCopy: true}}, nil)
		s.ErrorAs(err, new(domain.UpdateError), src)
	}
}

func (s *ModifierTestSuite) TestUnset() {
	s.True(s.mustUpdate(domain.Unset{Field: p("name")}))
	s.False(s.doc.Has("name"))
	s.False(s.mustUpdate(domain.Unset{Field: p("name")}))

	s.True(s.mustUpdate(domain.Unset{Field: p("items.*.m")}))
	for _, item := range s.doc.Get("items").([]any) {
		s.False(item.(domain.Document).Has("m"))
	}
}

func (s *ModifierTestSuite) TestIncrement() {
	s.True(s.mustUpdate(domain.Increment{Field: p("n"), Delta: int64(2)}))
	s.Equal(int64(3), s.doc.Get("n"))

	s.True(s.mustUpdate(domain.Increment{Field: p("n"), Delta: 0.5}))
	s.Equal(3.5, s.doc.Get("n"))

	s.True(s.mustUpdate(domain.Increment{Field: p("counter"), Delta: int64(4)}))
	s.Equal(int64(4), s.doc.Get("counter"))

	s.True(s.mustUpdate(domain.Increment{Field: p("items.*.n"), Delta: 10}))
	s.Equal(int64(13), s.doc.Get("items").([]any)[2].(domain.Document).Get("n"))

	_, err := s.update(domain.Increment{Field: p("name"), Delta: 1}, nil)
	s.ErrorAs(err, new(domain.UpdateError))
	s.Equal("ann", s.doc.Get("name"))

	_, err = s.modifier.Compile(domain.Increment{Field: p("n"), Delta: "1"})
	s.ErrorAs(err, new(domain.EvaluationError))
}

func (s *ModifierTestSuite) TestCast() {
	changed, err := s.update(domain.UpdateList{Items: []domain.Update{
		set("age", "42"),
		set("address", data.FromPairs("zip", "123")),
		set("scores", []any{1, "2.5"}),
	}}, s.md)
	s.NoError(err)
	s.True(changed)
	s.Equal(int64(42), s.doc.Get("age"))
	s.Equal(int64(123), s.doc.D("address").Get("zip"))
	s.Equal([]any{1.0, 2.5}, s.doc.Get("scores"))

	_, err = s.update(domain.AddToSet{Field: p("scores"), Values: []any{"3"}}, s.md)
	s.NoError(err)
	s.Equal([]any{1.0, 2.5, 3.0}, s.doc.Get("scores"))
}

func (s *ModifierTestSuite) TestCastErrorsKeepSiblings() {
	changed, err := s.update(domain.UpdateList{Items: []domain.Update{
		set("age", "x"),
		set("name", "bob"),
		set("unknown", 1),
		domain.Increment{Field: p("age"), Delta: 0.5},
	}}, s.md)
	s.True(changed)
	s.Equal("bob", s.doc.Get("name"))
	s.False(s.doc.Has("age"))
	s.False(s.doc.Has("unknown"))

	s.ErrorAs(err, new(domain.CastError))
	s.ErrorAs(err, new(domain.ErrUnknownField))
	var upd domain.UpdateError
	s.Require().ErrorAs(err, &upd)
	s.Equal(OpSet, upd.Op)
	s.Equal("age", upd.Field.String())
}

func (s *ModifierTestSuite) TestAddToSet() {
	s.True(s.mustUpdate(domain.AddToSet{Field: p("tags"), Values: []any{"a", "b", "b"}}))
	s.Equal([]any{"a", "b"}, s.doc.Get("tags"))
	s.False(s.mustUpdate(domain.AddToSet{Field: p("tags"), Values: []any{"b"}}))

	s.True(s.mustUpdate(domain.AddToSet{Field: p("fresh"), Values: []any{1}}))
	s.Equal([]any{int64(1)}, s.doc.Get("fresh"))

	_, err := s.update(domain.AddToSet{Field: p("name"), Values: []any{1}}, nil)
	s.ErrorAs(err, new(domain.UpdateError))
}

func (s *ModifierTestSuite) TestInsert() {
	s.doc.Set("arr", []any{int64(1), int64(2), int64(3)})

	s.True(s.mustUpdate(domain.ArrayInsert{Field: p("arr"), Index: 1, Values: []any{9}}))
	s.Equal([]any{int64(1), int64(9), int64(2), int64(3)}, s.doc.Get("arr"))

	s.True(s.mustUpdate(domain.ArrayInsert{Field: p("arr"), Append: true, Values: []any{7, 8}}))
	s.Equal([]any{int64(1), int64(9), int64(2), int64(3), int64(7), int64(8)}, s.doc.Get("arr"))

	s.True(s.mustUpdate(domain.ArrayInsert{Field: p("short"), Index: 2, Values: []any{"x"}}))
	s.Equal([]any{nil, nil, "x"}, s.doc.Get("short"))

	s.False(s.mustUpdate(domain.ArrayInsert{Field: p("arr"), Append: true}))

	_, err := s.modifier.Compile(domain.ArrayInsert{Field: p("arr"), Index: -1})
	s.Error(err)
}

func (s *ModifierTestSuite) TestRemove() {
	s.True(s.mustUpdate(domain.ArrayRemove{Field: p("tags"), Value: "a"}))
	s.Equal([]any{}, s.doc.Get("tags"))
	s.False(s.mustUpdate(domain.ArrayRemove{Field: p("tags"), Value: "a"}))
	s.False(s.mustUpdate(domain.ArrayRemove{Field: p("missing"), Value: "a"}))

	s.True(s.mustUpdate(domain.ArrayRemove{
		Field: p("items"),
		Match: domain.ValueComparison{Field: p("n"), Op: domain.Gt, Value: 1},
	}))
	s.Len(s.doc.Get("items"), 1)
}

func (s *ModifierTestSuite) TestForEach() {
	s.True(s.mustUpdate(domain.ForEach{
		Field:  p("items"),
		Match:  domain.ValueComparison{Field: p("n"), Op: domain.Gte, Value: 2},
		Update: domain.UpdateList{Items: []domain.Update{set("m", "z"), domain.Increment{Field: p("n"), Delta: 1}}},
	}))
	items := s.doc.Get("items").([]any)
	s.True(data.Equal(data.FromPairs("n", int64(1), "m", "a"), items[0]))
	s.True(data.Equal(data.FromPairs("n", int64(3), "m", "z"), items[1]))
	s.True(data.Equal(data.FromPairs("n", int64(4), "m", "z"), items[2]))

	s.True(s.mustUpdate(domain.ForEach{Field: p("tags"), Update: set("$this", "b")}))
	s.Equal([]any{"b"}, s.doc.Get("tags"))

	s.True(s.mustUpdate(domain.ForEach{
		Field:  p("items"),
		Match:  domain.ValueComparison{Field: p("m"), Op: domain.Eq, Value: "z"},
		Remove: true,
	}))
	s.Len(s.doc.Get("items"), 1)
}

func (s *ModifierTestSuite) TestContextPath() {
	c, err := s.modifier.Compile(set("m", "ctx"))
	s.Require().NoError(err)
	changed, err := c.Update(s.doc, nil, p("items.1"))
	s.NoError(err)
	s.True(changed)
	s.Equal("ctx", s.doc.Get("items").([]any)[1].(domain.Document).Get("m"))
}

func (s *ModifierTestSuite) TestNotTraversable() {
	changed, err := s.update(domain.UpdateList{Items: []domain.Update{set("name.first", "x"), set("ok", true)}}, nil)
	s.True(changed)
	s.ErrorAs(err, new(domain.EvaluationError))
	s.Equal(true, s.doc.Get("ok"))
	s.Equal("ann", s.doc.Get("name"))
}

func (s *ModifierTestSuite) TestNilUpdate() {
	s.False(s.mustUpdate(nil))
}

func TestModifierTestSuite(t *testing.T) {
	suite.Run(t, new(ModifierTestSuite))
}
