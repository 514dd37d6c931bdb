package comparer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/fieldnavigator"
)

type ComparerTestSuite struct {
	suite.Suite
	c *Comparer
}

func (s *ComparerTestSuite) SetupTest() {
	s.c = NewComparer().(*Comparer)
}

func (s *ComparerTestSuite) assertOrder(values ...any) {
	for i := range values {
		for j := range values {
			comp, err := s.c.Compare(values[i], values[j])
			s.Require().NoError(err)
			switch {
			case i < j:
				s.Equal(-1, comp, "%v < %v", values[i], values[j])
			case i > j:
				s.Equal(1, comp, "%v > %v", values[i], values[j])
			default:
				s.Equal(0, comp, "%v == %v", values[i], values[j])
			}
		}
	}
}

// Brackets sort before anything inside them matters.
func (s *ComparerTestSuite) TestBracketOrder() {
	oid := primitive.NewObjectID()
	s.assertOrder(
		fieldnavigator.Undefined(),
		nil,
		-3,
		"",
		data.M{},
		[]any{},
		[]byte("x"),
		oid,
		false,
		time.UnixMilli(0),
	)
}

func (s *ComparerTestSuite) TestNumbers() {
	testCases := []struct {
		arg1 any
		arg2 any
		res  int
	}{
		{arg1: int64(-12), arg2: int16(0), res: -1},
		{arg1: uint8(0), arg2: int8(-3), res: 1},
		{arg1: 5.7, arg2: uint32(2), res: 1},
		{arg1: 5.7, arg2: float32(12.3), res: -1},
		{arg1: uint64(0), arg2: uint16(0), res: 0},
		{arg1: -2.6, arg2: -2.6, res: 0},
		{arg1: int32(5), arg2: 5, res: 0},
		{arg1: int64(1 << 62), arg2: int64(1<<62 + 1), res: -1},
	}
	for _, tc := range testCases {
		comp, err := s.c.Compare(tc.arg1, tc.arg2)
		s.NoError(err)
		s.Equal(tc.res, comp)
	}
}

func (s *ComparerTestSuite) TestStrings() {
	s.assertOrder("", "A", "a", "ab", "b")
}

func (s *ComparerTestSuite) TestBools() {
	s.assertOrder(false, true)
}

func (s *ComparerTestSuite) TestDates() {
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	s.assertOrder(at.Add(-time.Hour), at, at.Add(time.Millisecond))

	comp, err := s.c.Compare(primitive.NewDateTimeFromTime(at), at)
	s.NoError(err)
	s.Equal(0, comp)
}

func (s *ComparerTestSuite) TestObjectIDs() {
	first := primitive.NewObjectIDFromTimestamp(time.Unix(1000, 0))
	second := primitive.NewObjectIDFromTimestamp(time.Unix(2000, 0))
	s.assertOrder(first, second)
}

func (s *ComparerTestSuite) TestArrays() {
	s.assertOrder(
		[]any{},
		[]any{1},
		[]any{1, 2},
		[]any{2},
		[]any{"a"},
	)
}

func (s *ComparerTestSuite) TestDocuments() {
	s.assertOrder(
		data.M{},
		data.M{"a": 1},
		data.M{"a": 1, "b": 0},
		data.M{"a": 2},
		data.M{"b": 0},
	)
}

func (s *ComparerTestSuite) TestComparable() {
	s.True(s.c.Comparable(1, 2.5))
	s.True(s.c.Comparable("a", "b"))
	s.True(s.c.Comparable(time.Now(), primitive.NewDateTimeFromTime(time.Now())))
	s.True(s.c.Comparable(primitive.NewObjectID(), primitive.NewObjectID()))
	s.False(s.c.Comparable(1, "1"))
	s.False(s.c.Comparable(true, false))
	s.False(s.c.Comparable(nil, nil))
	s.False(s.c.Comparable([]any{1}, []any{2}))
	s.False(s.c.Comparable(data.M{}, data.M{}))
	s.False(s.c.Comparable(fieldnavigator.Undefined(), 1))
	s.True(s.c.Comparable(fieldnavigator.Value(1), 2))
}

func (s *ComparerTestSuite) TestErrorOnUnknownType() {
	type thing struct{}
	_, err := s.c.Compare(thing{}, 1)
	s.Error(err)
	_, err = s.c.Compare([]any{thing{}}, []any{thing{}})
	s.Error(err)
}

func TestComparerTestSuite(t *testing.T) {
	suite.Run(t, new(ComparerTestSuite))
}
