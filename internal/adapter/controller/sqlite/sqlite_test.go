package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/types"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

var p = path.MustParse

type SQLiteTestSuite struct {
	suite.Suite
	ctx        context.Context
	controller *Controller
	md         *domain.EntityMetadata
	docs       []domain.Document
}

func (s *SQLiteTestSuite) SetupTest() {
	s.ctx = context.Background()
	c, err := Open(":memory:", domain.WithControllerTablePrefix("t_"))
	s.Require().NoError(err)
	s.controller = c
	s.md = &domain.EntityMetadata{Info: domain.EntityInfo{Name: "users"}}
	s.docs = []domain.Document{
		data.FromPairs("_id", "1", "name", "ann", "age", int64(30), "active", true, "tags", []any{"a"}, "address", data.FromPairs("city", "x")),
		data.FromPairs("_id", "2", "name", "bob", "age", 25.5, "active", false, "nick", nil),
		data.FromPairs("_id", "3", "name", "cy", "age", "old", "address", data.FromPairs("city", "y")),
		data.FromPairs("_id", "4"),
	}
}

func (s *SQLiteTestSuite) TearDownTest() {
	s.NoError(s.controller.Close())
}

func (s *SQLiteTestSuite) insertAll() {
	for _, doc := range s.docs {
		s.Require().NoError(s.controller.Insert(s.ctx, s.md, doc))
	}
}

func ids(docs []domain.Document) []any {
	res := make([]any, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.Get("_id"))
	}
	return res
}

func (s *SQLiteTestSuite) TestCRUD() {
	s.insertAll()
	all, err := s.controller.Find(s.ctx, s.md, nil)
	s.Require().NoError(err)
	s.Equal([]any{"1", "2", "3", "4"}, ids(all))
	s.True(data.Equal(s.docs[0], all[0]))

	s.ErrorIs(s.controller.Insert(s.ctx, s.md, data.FromPairs("_id", "1")), domain.ErrDuplicateID)
	s.ErrorIs(s.controller.Insert(s.ctx, s.md, data.FromPairs("n", 1)), domain.ErrMissingID)

	s.ErrorIs(s.controller.Save(s.ctx, s.md, data.FromPairs("_id", "9"), false), domain.ErrDocumentNotFound)
	s.NoError(s.controller.Save(s.ctx, s.md, data.FromPairs("_id", "9", "n", int64(1)), true))
	s.NoError(s.controller.Save(s.ctx, s.md, data.FromPairs("_id", "4", "n", int64(2)), false))

	all, err = s.controller.Find(s.ctx, s.md, nil)
	s.Require().NoError(err)
	s.Equal([]any{"1", "2", "3", "4", "9"}, ids(all))
	s.Equal(int64(2), all[3].Get("n"))

	s.NoError(s.controller.Delete(s.ctx, s.md, "9"))
	s.ErrorIs(s.controller.Delete(s.ctx, s.md, "9"), domain.ErrDocumentNotFound)
}

func (s *SQLiteTestSuite) TestIDKinds() {
	s.NoError(s.controller.Insert(s.ctx, s.md, data.FromPairs("_id", 1)))
	s.NoError(s.controller.Insert(s.ctx, s.md, data.FromPairs("_id", "1")))
	s.ErrorIs(s.controller.Insert(s.ctx, s.md, data.FromPairs("_id", int64(1))), domain.ErrDuplicateID)
	s.NoError(s.controller.Delete(s.ctx, s.md, int32(1)))
}

// native results must be the ones the in-process matcher selects
func (s *SQLiteTestSuite) TestQueryTranslation() {
	s.insertAll()
	m := matcher.NewMatcher()
	queries := map[string]domain.Query{
		"gt":          domain.ValueComparison{Field: p("age"), Op: domain.Gt, Value: 26},
		"ne":          domain.ValueComparison{Field: p("age"), Op: domain.Ne, Value: 30},
		"eq":          domain.ValueComparison{Field: p("age"), Op: domain.Eq, Value: 30.0},
		"strings":     domain.ValueComparison{Field: p("name"), Op: domain.Gte, Value: "b"},
		"bool":        domain.ValueComparison{Field: p("active"), Op: domain.Eq, Value: true},
		"bool order":  domain.ValueComparison{Field: p("active"), Op: domain.Lt, Value: true},
		"null":        domain.ValueComparison{Field: p("nick"), Op: domain.Eq, Value: nil},
		"not null":    domain.ValueComparison{Field: p("nick"), Op: domain.Ne, Value: nil},
		"nested":      domain.ValueComparison{Field: p("address.city"), Op: domain.Eq, Value: "y"},
		"index":       domain.ValueComparison{Field: p("tags.0"), Op: domain.Eq, Value: "a"},
		"in":          domain.SetMembership{Field: p("age"), Values: []any{25.5, "old"}},
		"nin":         domain.SetMembership{Field: p("age"), Negate: true, Values: []any{30}},
		"empty in":    domain.SetMembership{Field: p("age")},
		"exists":      domain.FieldExists{Field: p("address.city"), Exists: true},
		"not exists":  domain.FieldExists{Field: p("nick"), Exists: false},
		"not absent":  domain.Not{Query: domain.ValueComparison{Field: p("age"), Op: domain.Gt, Value: 26}},
		"or":          domain.NaryLogical{Op: domain.Or, Queries: []domain.Query{domain.ValueComparison{Field: p("name"), Op: domain.Eq, Value: "ann"}, domain.ValueComparison{Field: p("age"), Op: domain.Eq, Value: 25.5}}},
		"and":         domain.NaryLogical{Op: domain.And, Queries: []domain.Query{domain.FieldExists{Field: p("name"), Exists: true}, domain.Not{Query: domain.SetMembership{Field: p("name"), Values: []any{"bob"}}}}},
		"type clash":  domain.ValueComparison{Field: p("name"), Op: domain.Lt, Value: 100},
		"quoted name": domain.ValueComparison{Field: path.New(path.FieldSegment("a b")), Op: domain.Eq, Value: 1},
	}
	for name, q := range queries {
		nq, err := s.controller.TranslateQuery(s.md, q)
		s.Require().NoError(err, name)
		native, err := s.controller.Find(s.ctx, s.md, nq)
		s.Require().NoError(err, name)

		e, err := m.Compile(q)
		s.Require().NoError(err, name)
		expected := []any{}
		for _, doc := range s.docs {
			ok, err := e.Evaluate(doc, domain.NewEvalContext())
			s.Require().NoError(err, name)
			if ok {
				expected = append(expected, doc.Get("_id"))
			}
		}
		s.Equal(expected, append([]any{}, ids(native)...), name)
	}
}

func (s *SQLiteTestSuite) TestUnsupportedQueries() {
	for _, q := range []domain.Query{
		domain.ValueComparison{Field: p("tags.*"), Op: domain.Eq, Value: "a"},
		domain.ValueComparison{Field: p("address"), Op: domain.Eq, Value: data.FromPairs("city", "x")},
		domain.ValueComparison{Field: p("at"), Op: domain.Eq, Value: time.Now()},
		domain.ValueComparison{Field: p("n"), Op: domain.Eq, Value: uint64(1 << 63)},
		domain.RegexMatch{Field: p("name"), Pattern: "a"},
		domain.ElemMatch{Array: p("tags"), Query: domain.FieldExists{Field: path.Empty, Exists: true}},
		domain.ArrayContains{Array: p("tags"), Values: []any{"a"}},
		domain.FieldComparison{Field: p("a"), Op: domain.Eq, RField: p("b")},
		domain.NaryLogical{Op: domain.And, Queries: []domain.Query{domain.FieldExists{Field: p("a")}, domain.RegexMatch{Field: p("a")}}},
		domain.SetMembership{Field: p("a"), Values: []any{[]any{1}}},
	} {
		_, err := s.controller.TranslateQuery(s.md, q)
		s.ErrorIs(err, domain.ErrUnsupported, "%#v", q)
	}
}

// a translated update must leave the document as the in-process modifier
// would
func (s *SQLiteTestSuite) TestUpdateTranslation() {
	s.insertAll()
	u := domain.UpdateList{Items: []domain.Update{
		domain.SetValue{Field: p("name"), Value: domain.RValue{Literal: "zed"}},
		domain.Unset{Field: p("age")},
		domain.SetValue{Field: p("active"), Value: domain.RValue{Literal: false}},
		domain.SetValue{Field: p("nick"), Value: domain.RValue{Literal: nil}},
		domain.SetValue{Field: p("score"), Value: domain.RValue{Literal: 1.5}},
	}}
	nu, err := s.controller.TranslateUpdate(s.md, u)
	s.Require().NoError(err)
	updated, err := s.controller.ApplyUpdate(s.ctx, s.md, "1", nu)
	s.Require().NoError(err)

	expected := data.CopyDocument(s.docs[0])
	upd, err := modifier.NewModifier().Compile(u)
	s.Require().NoError(err)
	_, err = upd.Update(expected, nil, path.Empty)
	s.Require().NoError(err)

	s.True(data.Equal(expected, updated), "%v != %v", expected, updated)

	all, err := s.controller.Find(s.ctx, s.md, nil)
	s.Require().NoError(err)
	s.True(data.Equal(expected, all[0]))

	_, err = s.controller.ApplyUpdate(s.ctx, s.md, "missing", nu)
	s.ErrorIs(err, domain.ErrDocumentNotFound)
}

func (s *SQLiteTestSuite) TestUnsupportedUpdates() {
	for _, u := range []domain.Update{
		domain.SetValue{Field: p("a.b"), Value: domain.RValue{Literal: 1}},
		domain.SetValue{Field: p("_id"), Value: domain.RValue{Literal: "x"}},
		domain.SetValue{Field: p("a"), Value: domain.RValue{CopyFrom: p("b"), IsCopy: true}},
		domain.SetValue{Field: p("a"), Value: domain.RValue{Literal: []any{1}}},
		domain.Unset{Field: p("items.0")},
		domain.Increment{Field: p("n"), Delta: 1},
		domain.UpdateList{Items: []domain.Update{
			domain.SetValue{Field: p("a"), Value: domain.RValue{Literal: 1}},
			domain.ForEach{Field: p("items"), Remove: true},
		}},
	} {
		_, err := s.controller.TranslateUpdate(s.md, u)
		s.ErrorIs(err, domain.ErrUnsupported, "%#v", u)
	}
}

func (s *SQLiteTestSuite) TestTypedFields() {
	ts := types.Default()
	s.md.Schema.Fields = &domain.ObjectField{Fields: []domain.FieldNode{
		&domain.SimpleField{FieldName: "age", Type: ts[types.Integer]},
		&domain.SimpleField{FieldName: "score", Type: ts[types.Double]},
		&domain.SimpleField{FieldName: "at", Type: ts[types.Date]},
	}}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.controller.Insert(s.ctx, s.md, data.FromPairs("_id", "1", "score", 2.0, "at", at)))

	docs, err := s.controller.Find(s.ctx, s.md, nil)
	s.Require().NoError(err)
	s.Equal(2.0, docs[0].Get("score"))
	s.Equal(at, docs[0].Get("at"))

	nu, err := s.controller.TranslateUpdate(s.md, domain.SetValue{Field: p("age"), Value: domain.RValue{Literal: "42"}})
	s.Require().NoError(err)
	doc, err := s.controller.ApplyUpdate(s.ctx, s.md, "1", nu)
	s.Require().NoError(err)
	s.Equal(int64(42), doc.Get("age"))

	for _, u := range []domain.Update{
		domain.SetValue{Field: p("age"), Value: domain.RValue{Literal: "x"}},
		domain.SetValue{Field: p("unknown"), Value: domain.RValue{Literal: 1}},
		domain.SetValue{Field: p("at"), Value: domain.RValue{Literal: at}},
	} {
		_, err := s.controller.TranslateUpdate(s.md, u)
		s.ErrorIs(err, domain.ErrUnsupported)
	}
}

// dates are stored as text, so comparing them in SQL would compare text
func (s *SQLiteTestSuite) TestQueriesOnDates() {
	ts := types.Default()
	s.md.Schema.Fields = &domain.ObjectField{Fields: []domain.FieldNode{
		&domain.SimpleField{FieldName: "at", Type: ts[types.Date]},
		&domain.SimpleField{FieldName: "age", Type: ts[types.Integer]},
		&domain.ArrayField{FieldName: "log", Element: &domain.ObjectField{Fields: []domain.FieldNode{
			&domain.SimpleField{FieldName: "when", Type: ts[types.Date]},
		}}},
	}}
	text := "2020-01-01T00:00:00Z"
	for _, q := range []domain.Query{
		domain.ValueComparison{Field: p("at"), Op: domain.Eq, Value: text},
		domain.Not{Query: domain.ValueComparison{Field: p("at"), Op: domain.Eq, Value: text}},
		domain.ValueComparison{Field: p("log.0.when"), Op: domain.Lt, Value: text},
		domain.SetMembership{Field: p("at"), Values: []any{text}, Negate: true},
		domain.NaryLogical{Op: domain.Or, Queries: []domain.Query{
			domain.ValueComparison{Field: p("age"), Op: domain.Gt, Value: int64(1)},
			domain.Not{Query: domain.ValueComparison{Field: p("at"), Op: domain.Gte, Value: text}},
		}},
	} {
		_, err := s.controller.TranslateQuery(s.md, q)
		s.ErrorIs(err, domain.ErrUnsupported, "%#v", q)
	}

	for _, q := range []domain.Query{
		domain.FieldExists{Field: p("at"), Exists: true},
		domain.Not{Query: domain.ValueComparison{Field: p("age"), Op: domain.Eq, Value: int64(1)}},
		domain.ValueComparison{Field: p("undeclared"), Op: domain.Eq, Value: text},
	} {
		_, err := s.controller.TranslateQuery(s.md, q)
		s.NoError(err, "%#v", q)
	}
}

func (s *SQLiteTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.controller.Find(ctx, s.md, nil)
	s.Error(err)
}

func TestSQLiteTestSuite(t *testing.T) {
	suite.Run(t, new(SQLiteTestSuite))
}
