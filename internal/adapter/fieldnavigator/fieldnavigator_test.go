package fieldnavigator

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/data"
)

type FieldNavigatorTestSuite struct {
	suite.Suite
	fn *FieldNavigator
}

func (s *FieldNavigatorTestSuite) SetupTest() {
	s.fn = NewFieldNavigator(data.NewDocument).(*FieldNavigator)
}

func (s *FieldNavigatorTestSuite) values(gs []domain.GetSetter) []any {
	var res []any
	for _, g := range gs {
		if v, ok := g.Get(); ok {
			res = append(res, v)
		}
	}
	return res
}

func (s *FieldNavigatorTestSuite) TestGetAddress() {
	parts, err := s.fn.GetAddress("a.b.0")
	s.NoError(err)
	s.Equal([]string{"a", "b", "0"}, parts)

	_, err = s.fn.GetAddress("")
	s.Error(err)
	_, err = s.fn.GetAddress("a..b")
	s.Error(err)
}

func (s *FieldNavigatorTestSuite) TestNested() {
	doc := data.M{"name": "Burt", "lair": data.M{"name": "Cave", "gold": nil}}

	gs, expanded, err := s.fn.GetField(doc, "lair", "name")
	s.NoError(err)
	s.False(expanded)
	s.Equal([]any{"Cave"}, s.values(gs))

	// explicit nil is defined
	gs, _, err = s.fn.GetField(doc, "lair", "gold")
	s.NoError(err)
	s.Equal([]any{nil}, s.values(gs))

	for _, path := range [][]string{{"nope"}, {"lair", "nope"}, {"name", "x"}, {}} {
		gs, _, err = s.fn.GetField(doc, path...)
		s.NoError(err)
		s.Len(gs, 1)
		_, defined := gs[0].Get()
		s.False(defined)
	}
}

func (s *FieldNavigatorTestSuite) TestLists() {
	doc := data.M{
		"friends": []any{
			data.M{"name": "Fred", "pets": []any{data.M{"name": "Rex"}}},
			data.M{"name": "Ann"},
			"not a document",
		},
	}

	gs, expanded, err := s.fn.GetField(doc, "friends", "name")
	s.NoError(err)
	s.True(expanded)
	s.Equal([]any{"Fred", "Ann"}, s.values(gs))

	gs, expanded, err = s.fn.GetField(doc, "friends", "1", "name")
	s.NoError(err)
	s.False(expanded)
	s.Equal([]any{"Ann"}, s.values(gs))

	gs, _, err = s.fn.GetField(doc, "friends", "pets", "name")
	s.NoError(err)
	s.Equal([]any{"Rex"}, s.values(gs))

	gs, _, err = s.fn.GetField(doc, "friends", "9")
	s.NoError(err)
	s.Empty(s.values(gs))

	gs, expanded, err = s.fn.GetField(doc, "friends", "age")
	s.NoError(err)
	s.True(expanded)
	s.Empty(s.values(gs))
}

func (s *FieldNavigatorTestSuite) TestSetAndUnset() {
	doc := data.M{"lair": data.M{"name": "Cave"}, "list": []any{1, 2}}

	gs, _, err := s.fn.GetField(doc, "lair", "name")
	s.NoError(err)
	gs[0].Set("Castle")
	s.Equal("Castle", doc.D("lair").Get("name"))
	gs[0].Unset()
	s.False(doc.D("lair").Has("name"))

	gs, _, err = s.fn.GetField(doc, "list", "1")
	s.NoError(err)
	gs[0].Unset()
	s.Equal([]any{1, nil}, doc["list"])
}

func (s *FieldNavigatorTestSuite) TestEnsureField() {
	doc := data.M{"list": []any{1}}

	gs, err := s.fn.EnsureField(doc, "a", "b", "c")
	s.NoError(err)
	gs[0].Set(1)
	s.Equal(data.M{"b": data.M{"c": 1}}, doc["a"])

	gs, err = s.fn.EnsureField(doc, "list", "2")
	s.NoError(err)
	gs[0].Set(3)
	s.Equal([]any{1, nil, 3}, doc["list"])

	gs, err = s.fn.EnsureField(doc, "list", "4", "x")
	s.NoError(err)
	gs[0].Set(true)
	s.Equal(data.M{"x": true}, doc["list"].([]any)[4])

	_, err = s.fn.EnsureField(doc, "list", "x")
	s.Error(err)
	_, err = s.fn.EnsureField(doc, "a", "b", "c", "d")
	s.Error(err)
}

func TestFieldNavigatorTestSuite(t *testing.T) {
	suite.Run(t, new(FieldNavigatorTestSuite))
}
