package projection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type M = map[string]any

type targetStub struct{ name string }

func (t *targetStub) Resolve(context.Context, []any, domain.Projection) ([]domain.Resolved, error) {
	return nil, nil
}

type subTargetStub struct{ name string }

func (t *subTargetStub) Construct(raw map[string]any) (any, error) { return raw, nil }

func (t *subTargetStub) DefaultProjection() domain.Projection { return nil }

type ProjectionTestSuite struct {
	suite.Suite
	lair      *targetStub
	inventory *subTargetStub
}

func (s *ProjectionTestSuite) SetupTest() {
	s.lair = &targetStub{name: "Lair"}
	s.inventory = &subTargetStub{name: "Inventory"}
}

func (s *ProjectionTestSuite) TestEmpty() {
	res, err := Expand(nil)
	s.NoError(err)
	s.Nil(res.Flat)
	s.Empty(res.Refs)
	s.Empty(res.Subs)
}

func (s *ProjectionTestSuite) TestLiterals() {
	res, err := Expand(M{"name": true, "breed": 1})
	s.NoError(err)
	s.Equal(domain.Projection{"name": true, "breed": true}, res.Flat)
}

func (s *ProjectionTestSuite) TestNestedSubs() {
	res, err := Expand(M{
		"name": true,
		"inventory": M{
			"$sub": s.inventory,
			"gold": true,
			"secret_draw": M{
				"$sub": s.inventory,
				"gold": true,
			},
		},
	})
	s.NoError(err)
	s.Equal(domain.Projection{
		"name":                       true,
		"inventory.gold":             true,
		"inventory.secret_draw.gold": true,
	}, res.Flat)
	s.Empty(res.Refs)
	s.Len(res.Subs, 1)
	s.Same(s.inventory, res.Subs["inventory"].Target)
	s.False(res.Subs["inventory"].Mapped)
	s.Equal(domain.Projection{
		"gold":        true,
		"secret_draw": M{"$sub": s.inventory, "gold": true},
	}, res.Subs["inventory"].Projection)
}

// A projection holding only markers doesn't restrict the fetch.
func (s *ProjectionTestSuite) TestInclusive() {
	res, err := Expand(M{
		"lair":      Ref(s.lair, M{"inventory": Sub(s.inventory)}),
		"inventory": Sub(s.inventory),
	})
	s.NoError(err)
	s.Nil(res.Flat)
	s.Equal(Reference{Target: s.lair, Projection: domain.Projection{"inventory": M{"$sub": s.inventory}}}, res.Refs["lair"])
	s.Equal(Embedded{Target: s.inventory}, res.Subs["inventory"])
}

func (s *ProjectionTestSuite) TestInclusiveSubWithLiterals() {
	res, err := Expand(M{"name": true, "inventory": Sub(s.inventory)})
	s.NoError(err)
	s.Equal(domain.Projection{"name": true, "inventory": true}, res.Flat)
}

func (s *ProjectionTestSuite) TestSubMap() {
	res, err := Expand(M{"misc": SubMap(s.inventory)})
	s.NoError(err)
	s.True(res.Subs["misc"].Mapped)
}

func (s *ProjectionTestSuite) TestReferenceWins() {
	res, err := Expand(M{
		"name":      true,
		"lair.name": true,
		"lair":      Ref(s.lair),
	})
	s.NoError(err)
	s.Equal(domain.Projection{"name": true, "lair": true}, res.Flat)
	s.Contains(res.Refs, "lair")
	s.Nil(res.Refs["lair"].Projection)
}

func (s *ProjectionTestSuite) TestPlainNestedNodes() {
	res, err := Expand(M{"a": M{"b": true, "c": M{"d": 1}}})
	s.NoError(err)
	s.Equal(domain.Projection{"a.b": true, "a.c.d": true}, res.Flat)

	res, err = Expand(M{"name": true, "a": M{"b": Ref(s.lair)}})
	s.NoError(err)
	s.Equal(domain.Projection{"name": true, "a": true}, res.Flat)
	s.Contains(res.Refs, "a.b")
}

func (s *ProjectionTestSuite) TestDirectives() {
	res, err := Expand(M{"items": M{"$sub": s.inventory, "$slice": 2}})
	s.NoError(err)
	s.Equal(domain.Projection{"items": M{"$slice": 2}}, res.Flat)

	_, err = Expand(M{"$slice": 2})
	s.Error(err)
}

func (s *ProjectionTestSuite) TestInvalidTargets() {
	_, err := Expand(M{"lair": M{"$ref": "Lair"}})
	s.Error(err)
	_, err = Expand(M{"inventory": M{"$sub": 1}})
	s.Error(err)
}

func (s *ProjectionTestSuite) TestRemoveKeys() {
	cases := []struct {
		doc      M
		paths    []string
		expected M
	}{
		{M{"a": "something"}, []string{"a"}, M{}},
		{M{"a": 1, "b": M{"c": 2}}, []string{"b.c"}, M{"a": 1, "b": M{}}},
		{M{"a": 1, "b": M{"c": 2}}, []string{"a"}, M{"b": M{"c": 2}}},
		{M{"a": M{"b": M{"c": 3}}}, []string{"a.b.c"}, M{"a": M{"b": M{}}}},
		{M{}, []string{"a"}, M{}},
		{M{"a": 1}, nil, M{"a": 1}},
		{M{"a": M{"b": M{"c": 3}}}, []string{"a.b.d"}, M{"a": M{"b": M{"c": 3}}}},
		{M{"a": 1}, []string{"b.c"}, M{"a": 1}},
		{M{"a": M{"b": 2}}, []string{"a.b.c"}, M{"a": M{"b": 2}}},
	}
	for _, c := range cases {
		RemoveKeys(c.doc, c.paths...)
		s.Equal(c.expected, c.doc)
	}
}

func (s *ProjectionTestSuite) TestLookup() {
	doc := M{"a": M{"b": []any{1, M{"c": 2}}}}
	v, ok := Lookup(doc, "a.b.1.c")
	s.True(ok)
	s.Equal(2, v)

	_, ok = Lookup(doc, "a.b.5")
	s.False(ok)
	_, ok = Lookup(doc, "a.x")
	s.False(ok)
	_, ok = Lookup(doc, "a.b.0.c")
	s.False(ok)
}

func TestProjectionTestSuite(t *testing.T) {
	suite.Run(t, new(ProjectionTestSuite))
}
