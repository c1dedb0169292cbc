package comparer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
)

type ComparerTestSuite struct {
	suite.Suite
	c *Comparer
}

func (s *ComparerTestSuite) SetupTest() {
	s.c = NewComparer().(*Comparer)
}

func (s *ComparerTestSuite) compare(a, b any) int {
	n, err := s.c.Compare(a, b)
	s.Require().NoError(err, "%v %v", a, b)
	return n
}

// every value of a group sorts before every value of the next groups.
func (s *ComparerTestSuite) TestKindOrder() {
	groups := [][]any{
		{undefined{}},
		{nil, defined{v: nil}},
		{int64(-12), 0, uint(12), 5.7, float32(1.5)},
		{"", "string"},
		{false, true},
		{time.UnixMilli(12345)},
		{[]any{}, []any{"quite", 5}},
		{data.FromPairs(), data.FromPairs("hello", "world")},
		{struct{}{}},
	}
	for i, lower := range groups {
		for _, higher := range groups[i+1:] {
			for _, a := range lower {
				for _, b := range higher {
					s.Equal(-1, s.compare(a, b), "%v < %v", a, b)
					s.Equal(1, s.compare(b, a), "%v > %v", b, a)
				}
			}
		}
	}
}

func (s *ComparerTestSuite) TestSameKind() {
	now := time.Now()
	testCases := []struct {
		a, b any
		res  int
	}{
		{a: int64(-12), b: int16(0), res: -1},
		{a: uint8(0), b: int8(-3), res: 1},
		{a: 5.7, b: uint32(2), res: 1},
		{a: 5.7, b: float32(12.3), res: -1},
		{a: uint64(0), b: uint16(0), res: 0},
		{a: int32(5), b: 5, res: 0},
		{a: int64(math.MaxInt64), b: float64(math.MaxInt64), res: -1},
		{a: "abc", b: "abd", res: -1},
		{a: "b", b: "a", res: 1},
		{a: false, b: true, res: -1},
		{a: true, b: true, res: 0},
		{a: now, b: now.Add(time.Second), res: -1},
		{a: []any{1, "a"}, b: []any{1, "b"}, res: -1},
		{a: []any{1, 2}, b: []any{1}, res: 1},
		{a: data.FromPairs("a", 42, "b", 312), b: data.FromPairs("b", 312, "a", 42), res: 0},
		{a: data.FromPairs("a", 1), b: data.FromPairs("a", 1, "b", 0), res: -1},
		{a: data.FromPairs("a", 1), b: data.FromPairs("b", 1), res: -1},
		{a: data.FromPairs("a", 2), b: data.FromPairs("b", 1), res: 1},
		{a: defined{v: 2}, b: 1, res: 1},
		{a: undefined{}, b: undefined{}, res: 0},
	}
	for _, tc := range testCases {
		s.Equal(tc.res, s.compare(tc.a, tc.b), "%v %v", tc.a, tc.b)
	}
}

// comparison between two unknown types should return errors.
func (s *ComparerTestSuite) TestErrorOnUnknownPair() {
	testCases := []struct {
		a, b any
	}{
		{a: struct{}{}, b: []byte{}},
		{a: make(map[string]any), b: []string{}},
		{a: math.NaN(), b: math.NaN()},
		{a: data.FromPairs("nested", []string{"invalid"}), b: data.FromPairs("invalid", []int{})},
		{a: []any{[]string{"invalid"}}, b: []any{[]string{"invalid too"}}},
	}
	for _, tc := range testCases {
		_, err := s.c.Compare(tc.a, tc.b)
		s.Error(err)
	}
}

func (s *ComparerTestSuite) TestComparable() {
	testCases := []struct {
		a, b any
		res  bool
	}{
		{a: nil, b: nil, res: true},
		{a: 1, b: 2.5, res: true},
		{a: int64(1), b: "1", res: false},
		{a: "a", b: "b", res: true},
		{a: true, b: false, res: true},
		{a: true, b: 1, res: false},
		{a: time.Now(), b: time.UnixMilli(0), res: true},
		{a: []any{1}, b: []any{"a"}, res: true},
		{a: data.FromPairs(), b: data.FromPairs("a", 1), res: true},
		{a: data.FromPairs(), b: []any{}, res: false},
		{a: nil, b: 0, res: false},
		{a: math.NaN(), b: 1.0, res: false},
		{a: struct{}{}, b: struct{}{}, res: false},
		{a: undefined{}, b: undefined{}, res: false},
		{a: defined{v: 1}, b: 3, res: true},
	}
	for _, tc := range testCases {
		s.Equal(tc.res, s.c.Comparable(tc.a, tc.b), "%v %v", tc.a, tc.b)
	}
}

type undefined struct{}

func (undefined) Get() (any, bool) { return nil, false }

type defined struct{ v any }

func (d defined) Get() (any, bool) { return d.v, true }

func TestComparerTestSuite(t *testing.T) {
	suite.Run(t, new(ComparerTestSuite))
}
