package constraint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/tree"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

type ConstraintTestSuite struct {
	suite.Suite
	parsers  map[string]domain.ConstraintParser
	checkers map[string]domain.ConstraintChecker
}

func (s *ConstraintTestSuite) SetupTest() {
	s.parsers = Parsers(decoder.NewDecoder())
	s.checkers = Checkers(fieldnavigator.NewFieldNavigator(data.NewDocument), comparer.NewComparer())
}

func (s *ConstraintTestSuite) constraint(typ string, raw any) domain.Constraint {
	v, err := s.parsers[typ](tree.FromValue(raw))
	s.Require().NoError(err)
	return domain.Constraint{Type: typ, Value: v}
}

func (s *ConstraintTestSuite) check(doc domain.Document, field string, c domain.Constraint) []domain.Violation {
	v, err := s.checkers[c.Type].Check(context.Background(), doc, path.MustParse(field), c)
	s.Require().NoError(err)
	return v
}

func (s *ConstraintTestSuite) TestRequired() {
	c := s.constraint(Required, true)
	s.Empty(s.check(data.FromPairs("a", 1), "a", c))
	s.Len(s.check(data.FromPairs("a", nil), "a", c), 1)
	s.Len(s.check(data.FromPairs(), "a", c), 1)

	doc := data.FromPairs("pets", []any{
		data.FromPairs("name", "rex"),
		data.FromPairs(),
		data.FromPairs("name", "tom"),
	})
	v := s.check(doc, "pets.*.name", c)
	s.Len(v, 1)
	s.Equal("pets.1.name", v[0].Field.String())

	// missing parents are not checked
	s.Empty(s.check(data.FromPairs(), "owner.name", c))
	s.Empty(s.check(data.FromPairs("a", 1), "a", s.constraint(Required, false)))
}

func (s *ConstraintTestSuite) TestLength() {
	minLen := s.constraint(MinLength, int64(2))
	maxLen := s.constraint(MaxLength, int64(3))

	s.Empty(s.check(data.FromPairs("a", "ab"), "a", minLen))
	s.Len(s.check(data.FromPairs("a", "á"), "a", minLen), 1)
	s.Len(s.check(data.FromPairs("a", []any{1, 2, 3, 4}), "a", maxLen), 1)
	s.Len(s.check(data.FromPairs("a", 12), "a", maxLen), 1)
	s.Empty(s.check(data.FromPairs(), "a", maxLen))

	_, err := s.parsers[MinLength](tree.FromValue(-1))
	s.Error(err)
}

func (s *ConstraintTestSuite) TestBounds() {
	minimum := s.constraint(Minimum, int64(0))
	maximum := s.constraint(Maximum, 10.5)

	s.Empty(s.check(data.FromPairs("n", 0), "n", minimum))
	s.Len(s.check(data.FromPairs("n", -1), "n", minimum), 1)
	s.Len(s.check(data.FromPairs("n", int64(11)), "n", maximum), 1)
	s.Len(s.check(data.FromPairs("n", "x"), "n", maximum), 1)
	v := s.check(data.FromPairs("n", []any{1, 20, 30}), "n.*", maximum)
	s.Len(v, 2)
	s.Equal("n.1", v[0].Field.String())

	_, err := s.parsers[Minimum](tree.FromValue("1"))
	s.Error(err)
}

func (s *ConstraintTestSuite) TestEnum() {
	c := s.constraint(Enum, []any{"a", int64(1)})
	s.Empty(s.check(data.FromPairs("v", "a"), "v", c))
	s.Empty(s.check(data.FromPairs("v", 1.0), "v", c))
	s.Len(s.check(data.FromPairs("v", "b"), "v", c), 1)
	s.Len(s.check(data.FromPairs("v", true), "v", c), 1)
}

func (s *ConstraintTestSuite) TestRequiredFields() {
	c := s.constraint(RequiredFields, []any{"name", "address.city"})
	s.Equal([]path.Path{path.MustParse("name"), path.MustParse("address.city")}, c.Value)

	s.Empty(s.check(data.FromPairs("name", "x", "address", data.FromPairs("city", "y")), "", c))
	v := s.check(data.FromPairs("name", "x"), "", c)
	s.Len(v, 1)
	s.Equal(RequiredFields, v[0].Constraint)
	s.True(v[0].Field.IsEmpty())

	_, err := s.parsers[RequiredFields](tree.FromValue([]any{1}))
	s.Error(err)
}

func (s *ConstraintTestSuite) TestBadConfiguration() {
	_, err := s.checkers[Enum].Check(context.Background(), data.FromPairs(), path.Empty, domain.Constraint{Type: Enum, Value: 1})
	s.Error(err)
	_, err = s.parsers[Required](tree.FromValue("yes"))
	s.Error(err)
}

func TestConstraintTestSuite(t *testing.T) {
	suite.Run(t, new(ConstraintTestSuite))
}
