package fieldnavigator

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

type FieldNavigatorTestSuite struct {
	suite.Suite
	fn *FieldNavigator
}

func (s *FieldNavigatorTestSuite) SetupTest() {
	s.fn = NewFieldNavigator(data.NewDocument).(*FieldNavigator)
}

func planets() []any {
	return []any{
		data.FromPairs("name", "Earth", "number", 3),
		data.FromPairs("name", "Mars", "number", 4),
		data.FromPairs("name", "Pluton", "number", 9),
	}
}

func (s *FieldNavigatorTestSuite) TestFirstLevel() {
	doc := data.FromPairs(
		"hello", "world",
		"type", data.FromPairs("planet", true, "blue", true),
	)

	dv, err := s.fn.GetField(doc, path.MustParse("hello"))
	s.NoError(err)
	s.Len(dv, 1)
	value, isSet := dv[0].Get()
	s.True(isSet)
	s.Equal("world", value)
	s.Equal("hello", dv[0].Path.String())

	dv, err = s.fn.GetField(doc, path.MustParse("type.planet"))
	s.NoError(err)
	s.Len(dv, 1)
	value, isSet = dv[0].Get()
	s.True(isSet)
	s.Equal(true, value)
}

func (s *FieldNavigatorTestSuite) TestRoot() {
	doc := data.FromPairs("a", 1)
	dv, err := s.fn.GetField(doc, path.Empty)
	s.NoError(err)
	s.Len(dv, 1)
	value, isSet := dv[0].Get()
	s.True(isSet)
	s.Same(doc, value)
	s.True(dv[0].Path.IsEmpty())
}

func (s *FieldNavigatorTestSuite) TestNotOk() {
	doc := data.FromPairs(
		"hello", "world",
		"type", data.FromPairs("planet", true, "blue", true),
	)

	dv, err := s.fn.GetField(doc, path.MustParse("helloo"))
	s.NoError(err)
	s.Len(dv, 1)
	_, isSet := dv[0].Get()
	s.False(isSet)

	dv, err = s.fn.GetField(doc, path.MustParse("type.plane"))
	s.NoError(err)
	s.Len(dv, 1)
	_, isSet = dv[0].Get()
	s.False(isSet)
	s.Equal("type.plane", dv[0].Path.String())
}

func (s *FieldNavigatorTestSuite) TestWildcard() {
	doc := data.FromPairs(
		"data", data.FromPairs("planets", planets()),
		"planets", planets(),
		"planetsMultiNumber", []any{
			data.FromPairs("name", "Earth", "number", []any{1, 3}),
			data.FromPairs("name", "Mars", "number", []any{7}),
		},
	)

	dv, err := s.fn.GetField(doc, path.MustParse("planets.*.name"))
	s.NoError(err)
	s.Equal([]any{"Earth", "Mars", "Pluton"}, s.values(dv))
	s.Equal([]string{"planets.0.name", "planets.1.name", "planets.2.name"}, s.paths(dv))

	dv, err = s.fn.GetField(doc, path.MustParse("data.planets.*.number"))
	s.NoError(err)
	s.Equal([]any{3, 4, 9}, s.values(dv))

	// nested arrays are not flattened without a second wildcard
	dv, err = s.fn.GetField(doc, path.MustParse("planetsMultiNumber.*.number"))
	s.NoError(err)
	s.Equal([]any{[]any{1, 3}, []any{7}}, s.values(dv))

	dv, err = s.fn.GetField(doc, path.MustParse("planetsMultiNumber.*.number.*"))
	s.NoError(err)
	s.Equal([]any{1, 3, 7}, s.values(dv))
	s.Equal([]string{
		"planetsMultiNumber.0.number.0",
		"planetsMultiNumber.0.number.1",
		"planetsMultiNumber.1.number.0",
	}, s.paths(dv))
}

func (s *FieldNavigatorTestSuite) TestNoImplicitExpansion() {
	doc := data.FromPairs("planets", planets())
	dv, err := s.fn.GetField(doc, path.MustParse("planets.name"))
	s.NoError(err)
	s.Len(dv, 1)
	_, isSet := dv[0].Get()
	s.False(isSet)
}

func (s *FieldNavigatorTestSuite) TestIndex() {
	doc := data.FromPairs(
		"planets", planets(),
		"data", data.FromPairs("planets", planets()),
	)

	dv, err := s.fn.GetField(doc, path.MustParse("planets.1"))
	s.NoError(err)
	s.Len(dv, 1)
	s.Equal(data.FromPairs("name", "Mars", "number", 4), s.values(dv)[0])

	// out of bounds
	dv, err = s.fn.GetField(doc, path.MustParse("planets.3"))
	s.NoError(err)
	s.Len(dv, 1)
	_, isSet := dv[0].Get()
	s.False(isSet)

	dv, err = s.fn.GetField(doc, path.MustParse("data.planets.0.name"))
	s.NoError(err)
	s.Equal([]any{"Earth"}, s.values(dv))
}

func (s *FieldNavigatorTestSuite) TestNilObject() {
	dv, err := s.fn.GetField(nil, path.MustParse("planets.0"))
	s.NoError(err)
	s.Len(dv, 1)
	_, isSet := dv[0].Get()
	s.False(isSet)
}

func (s *FieldNavigatorTestSuite) TestEmptyArray() {
	doc := data.FromPairs("planets", []any{})
	dv, err := s.fn.GetField(doc, path.MustParse("planets.*.name"))
	s.NoError(err)
	s.Empty(dv)
}

func (s *FieldNavigatorTestSuite) TestUnsetFieldInList() {
	doc := data.FromPairs("planets", []any{nil, "str", data.FromPairs()})

	dv, err := s.fn.GetField(doc, path.MustParse("planets.*.name"))
	s.NoError(err)
	s.Len(dv, 3)
	for _, v := range dv {
		value, isSet := v.Get()
		s.Nil(value)
		s.False(isSet)
	}
}

func (s *FieldNavigatorTestSuite) TestNestedInPrimitive() {
	doc := data.FromPairs("data", data.FromPairs("planets", "Not an object"))

	dv, err := s.fn.GetField(doc, path.MustParse("data.planets.name"))
	s.NoError(err)
	s.Len(dv, 1)
	value, isSet := dv[0].Get()
	s.False(isSet)
	s.Nil(value)
}

func (s *FieldNavigatorTestSuite) TestSetThroughWildcard() {
	doc := data.FromPairs("planets", planets())
	dv, err := s.fn.GetField(doc, path.MustParse("planets.*.number"))
	s.NoError(err)
	for _, f := range dv {
		f.Set(0)
	}
	dv, err = s.fn.GetField(doc, path.MustParse("planets.*.number"))
	s.NoError(err)
	s.Equal([]any{0, 0, 0}, s.values(dv))
}

func (s *FieldNavigatorTestSuite) TestEnsureCreatesObjects() {
	doc := data.FromPairs()
	dv, err := s.fn.EnsureField(doc, path.MustParse("a.b.c"))
	s.NoError(err)
	s.Len(dv, 1)
	_, isSet := dv[0].Get()
	s.False(isSet)
	dv[0].Set(1)
	s.Equal(data.FromPairs("a", data.FromPairs("b", data.FromPairs("c", 1))), doc)
}

func (s *FieldNavigatorTestSuite) TestEnsureGrowsArrays() {
	doc := data.FromPairs("arr", []any{1})
	dv, err := s.fn.EnsureField(doc, path.MustParse("arr.3"))
	s.NoError(err)
	dv[0].Set(4)
	s.Equal([]any{1, nil, nil, 4}, doc.Get("arr"))

	dv, err = s.fn.EnsureField(doc, path.MustParse("new.1.x"))
	s.NoError(err)
	dv[0].Set(true)
	s.Equal([]any{nil, data.FromPairs("x", true)}, doc.Get("new"))
}

func (s *FieldNavigatorTestSuite) TestEnsureReplacesNull() {
	doc := data.FromPairs("a", nil)
	dv, err := s.fn.EnsureField(doc, path.MustParse("a.b"))
	s.NoError(err)
	dv[0].Set(1)
	s.Equal(data.FromPairs("a", data.FromPairs("b", 1)), doc)
}

func (s *FieldNavigatorTestSuite) TestEnsureLeafIsNotCreated() {
	doc := data.FromPairs("a", data.FromPairs())
	_, err := s.fn.EnsureField(doc, path.MustParse("a.b"))
	s.NoError(err)
	s.Equal(data.FromPairs("a", data.FromPairs()), doc)
}

func (s *FieldNavigatorTestSuite) TestEnsureThroughScalar() {
	doc := data.FromPairs("a", 5)
	_, err := s.fn.EnsureField(doc, path.MustParse("a.b"))
	s.ErrorAs(err, new(domain.EvaluationError))

	_, err = s.fn.EnsureField(doc, path.MustParse("a.0"))
	s.ErrorAs(err, new(domain.EvaluationError))
}

func (s *FieldNavigatorTestSuite) values(fields []domain.Field) []any {
	res := make([]any, len(fields))
	for n, f := range fields {
		res[n], _ = f.Get()
	}
	return res
}

func (s *FieldNavigatorTestSuite) paths(fields []domain.Field) []string {
	res := make([]string, len(fields))
	for n, f := range fields {
		res[n] = f.Path.String()
	}
	return res
}

func TestFieldNavigatorTestSuite(t *testing.T) {
	suite.Run(t, new(FieldNavigatorTestSuite))
}
