package codec

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type M = map[string]any

type refStub struct {
	id    any
	value *lair
}

func (r refStub) RefID() any {
	if r.value != nil {
		return r.value.ID
	}
	return r.id
}

func (r *refStub) LoadRef(v any) error {
	if l, ok := v.(*lair); ok {
		r.value = l
		return nil
	}
	r.id = v
	return nil
}

type optStub struct {
	v    string
	set  bool
	null bool
}

func (o optStub) OptValue() (any, bool) {
	if o.null {
		return nil, true
	}
	return o.v, o.set
}

func (o *optStub) LoadOpt(v any, decode func(in, out any) error) error {
	o.set = true
	if v == nil {
		o.null = true
		return nil
	}
	return decode(v, &o.v)
}

type inventory struct {
	Gold       int        `bson:"gold"`
	SecretDraw *inventory `bson:"secret_draw,omitempty"`
}

type Timestamps struct {
	Created time.Time `bson:"created,omitzero"`
}

type lair struct {
	ID   primitive.ObjectID `bson:"_id,omitempty"`
	Name string             `bson:"name"`
}

type dragon struct {
	ID        string `bson:"_id,omitempty"`
	Name      string `bson:"name"`
	Breed     string `bson:"breed,omitempty"`
	Hidden    string `bson:"-"`
	Level     int
	Lair      refStub           `bson:"lair"`
	Inventory inventory         `bson:"inventory"`
	Tags      []string          `bson:"tags,omitempty"`
	Misc      map[string]string `bson:"misc,omitempty"`
	Nick      optStub           `bson:"nick"`
	Timestamps
	secret string
}

type CodecTestSuite struct {
	suite.Suite
	c *Codec
}

func (s *CodecTestSuite) SetupTest() {
	s.c = NewCodec()
}

func (s *CodecTestSuite) TestToDict() {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := dragon{
		Name:      "Burt",
		Hidden:    "x",
		Level:     3,
		Lair:      refStub{id: 7},
		Inventory: inventory{Gold: 10, SecretDraw: &inventory{Gold: 1}},
		Tags:      []string{"a"},
		Timestamps: Timestamps{
			Created: at,
		},
		secret: "y",
	}
	doc, err := s.c.ToDict(&d)
	s.NoError(err)
	s.Equal(M{
		"name":      "Burt",
		"level":     3,
		"lair":      7,
		"inventory": M{"gold": 10, "secret_draw": M{"gold": 1}},
		"tags":      []any{"a"},
		"created":   at,
	}, doc)
}

func (s *CodecTestSuite) TestToDictOptional() {
	doc, err := s.c.ToDict(dragon{Nick: optStub{null: true}})
	s.NoError(err)
	s.Contains(doc, "nick")
	s.Nil(doc["nick"])

	doc, err = s.c.ToDict(dragon{Nick: optStub{v: "b", set: true}})
	s.NoError(err)
	s.Equal("b", doc["nick"])

	doc, err = s.c.ToDict(dragon{})
	s.NoError(err)
	s.NotContains(doc, "nick")
}

func (s *CodecTestSuite) TestToDictMap() {
	oid := primitive.NewObjectID()
	doc, err := s.c.ToDict(M{"lair": lair{ID: oid}, "ref": refStub{id: 1}, "list": []int{1, 2}})
	s.NoError(err)
	s.Equal(M{"lair": M{"_id": oid, "name": ""}, "ref": 1, "list": []any{1, 2}}, doc)
}

func (s *CodecTestSuite) TestToDictContainers() {
	type hoard struct {
		Vaults  map[string]*inventory `bson:"vaults"`
		Coords  [2]int                `bson:"coords"`
		Empty   []string              `bson:"empty"`
		Keeper  any                   `bson:"keeper"`
		Nothing *inventory            `bson:"nothing"`
		Blob    []byte                `bson:"blob"`
	}
	doc, err := s.c.ToDict(&hoard{
		Vaults: map[string]*inventory{"north": {Gold: 3}, "south": nil},
		Coords: [2]int{4, 5},
		Keeper: lair{Name: "Cave"},
		Blob:   []byte("x"),
	})
	s.NoError(err)
	s.Equal(M{
		"vaults":  M{"north": M{"gold": 3}, "south": nil},
		"coords":  []any{4, 5},
		"empty":   nil,
		"keeper":  M{"_id": primitive.NilObjectID, "name": "Cave"},
		"nothing": nil,
		"blob":    []byte("x"),
	}, doc)

	_, err = s.c.ToDict(struct {
		Ranks map[int]string `bson:"ranks"`
	}{Ranks: map[int]string{1: "a"}})
	var notSupported *domain.ErrNotSupported
	s.ErrorAs(err, &notSupported)
	s.Equal("map[int]string", notSupported.Type)
}

func (s *CodecTestSuite) TestToDictErrors() {
	_, err := s.c.ToDict(struct{ C chan int }{C: make(chan int)})
	var notSupported *domain.ErrNotSupported
	s.ErrorAs(err, &notSupported)
	s.Equal("chan int", notSupported.Type)

	_, err = s.c.ToDict((*dragon)(nil))
	var validation *domain.ErrValidation
	s.ErrorAs(err, &validation)

	_, err = s.c.ToDict(1)
	s.ErrorAs(err, &validation)
}

func (s *CodecTestSuite) TestFromDict() {
	var d dragon
	err := s.c.FromDict(M{
		"_id":       "d1",
		"name":      "Burt",
		"level":     int32(4),
		"lair":      9,
		"inventory": M{"gold": 5, "secret_draw": M{"gold": 1}},
		"tags":      []any{"a", "b"},
		"misc":      M{"k": "v"},
		"nick":      nil,
		"created":   "2024-01-02T03:04:05Z",
	}, &d)
	s.NoError(err)
	s.Equal("d1", d.ID)
	s.Equal("Burt", d.Name)
	s.Equal(4, d.Level)
	s.Equal(9, d.Lair.RefID())
	s.Equal(5, d.Inventory.Gold)
	s.Equal(1, d.Inventory.SecretDraw.Gold)
	s.Equal([]string{"a", "b"}, d.Tags)
	s.Equal(map[string]string{"k": "v"}, d.Misc)
	s.True(d.Nick.null)
	s.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), d.Created)
}

func (s *CodecTestSuite) TestFromDictHydrated() {
	l := &lair{ID: primitive.NewObjectID(), Name: "Castle"}
	var d dragon
	s.NoError(s.c.FromDict(M{"lair": l, "nick": "n"}, &d))
	s.Same(l, d.Lair.value)
	s.Equal(optStub{v: "n", set: true}, d.Nick)
}

func (s *CodecTestSuite) TestFromDictObjectID() {
	oid := primitive.NewObjectID()
	var l lair
	s.NoError(s.c.FromDict(M{"_id": oid.Hex(), "name": "Cave"}, &l))
	s.Equal(oid, l.ID)

	var d dragon
	s.NoError(s.c.FromDict(M{"_id": oid}, &d))
	s.Equal(oid.Hex(), d.ID)
}

func (s *CodecTestSuite) TestFromDictInvalid() {
	var d dragon
	err := s.c.FromDict(M{"level": "many"}, &d)
	var validation *domain.ErrValidation
	s.ErrorAs(err, &validation)
	s.Equal("codec.dragon", validation.Type)
}

func (s *CodecTestSuite) TestEncodeDecode() {
	at := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	in := dragon{
		ID:         "d1",
		Name:       "Burt",
		Level:      2,
		Lair:       refStub{id: "l1"},
		Inventory:  inventory{Gold: 3},
		Tags:       []string{"x"},
		Timestamps: Timestamps{Created: at},
	}
	b, err := s.c.Encode(in)
	s.NoError(err)

	var out dragon
	s.NoError(s.c.Decode(b, &out))
	s.Equal(in.ID, out.ID)
	s.Equal(in.Name, out.Name)
	s.Equal(in.Level, out.Level)
	s.Equal("l1", out.Lair.RefID())
	s.Equal(in.Inventory, out.Inventory)
	s.Equal(in.Tags, out.Tags)
	s.Equal(at, out.Created)
}

func (s *CodecTestSuite) TestToJSONType() {
	oid := primitive.NewObjectID()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc, err := s.c.ToJSONType(M{"_id": oid, "at": at, "list": []any{oid}, "raw": []byte("hi")})
	s.NoError(err)
	s.Equal(M{
		"_id":  oid.Hex(),
		"at":   "2024-01-02T03:04:05Z",
		"list": []any{oid.Hex()},
		"raw":  "aGk=",
	}, doc)
}

func (s *CodecTestSuite) TestNormalize() {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	v := Normalize(map[string]any{
		"a": primitive.A{primitive.M{"b": primitive.NewDateTimeFromTime(at)}},
		"d": primitive.D{{Key: "x", Value: 1}},
	})
	s.Equal(M{"a": []any{M{"b": at}}, "d": M{"x": 1}}, v)
}

func (s *CodecTestSuite) TestFields() {
	s.Equal([]string{
		"_id", "name", "breed", "level", "lair", "inventory", "tags", "misc", "nick", "created",
	}, s.c.Fields(reflect.TypeOf(&dragon{})))
	s.Nil(s.c.Fields(reflect.TypeOf(1)))
}

func (s *CodecTestSuite) TestIDs() {
	d := &dragon{}
	_, ok := s.c.IDOf(d)
	s.False(ok)

	s.NoError(s.c.SetID(d, "d1"))
	id, ok := s.c.IDOf(d)
	s.True(ok)
	s.Equal("d1", id)

	oid := primitive.NewObjectID()
	s.NoError(s.c.SetID(d, oid))
	s.Equal(oid.Hex(), d.ID)

	l := &lair{}
	s.NoError(s.c.SetID(l, oid.Hex()))
	s.Equal(oid, l.ID)
	s.Error(s.c.SetID(l, 12))
	s.Error(s.c.SetID(*l, oid))

	id, ok = s.c.IDOf(M{"_id": 3})
	s.True(ok)
	s.Equal(3, id)
}

func (s *CodecTestSuite) TestIDType() {
	typ, ok := s.c.IDType(reflect.TypeOf(&lair{}))
	s.True(ok)
	s.Equal(reflect.TypeOf(primitive.ObjectID{}), typ)

	typ, ok = s.c.IDType(reflect.TypeOf(dragon{}))
	s.True(ok)
	s.Equal(reflect.TypeOf(""), typ)

	_, ok = s.c.IDType(reflect.TypeOf(inventory{}))
	s.False(ok)
	_, ok = s.c.IDType(reflect.TypeOf(1))
	s.False(ok)
}

func (s *CodecTestSuite) TestHoldsObjectID() {
	type hexID string
	type rawID [12]byte
	s.True(s.c.HoldsObjectID(reflect.TypeOf(primitive.ObjectID{})))
	s.True(s.c.HoldsObjectID(reflect.TypeOf(hexID(""))))
	s.True(s.c.HoldsObjectID(reflect.TypeOf(rawID{})))
	s.True(s.c.HoldsObjectID(reflect.TypeOf((*any)(nil)).Elem()))
	s.False(s.c.HoldsObjectID(reflect.TypeOf(0)))
	s.False(s.c.HoldsObjectID(reflect.TypeOf(0.5)))

	var n struct {
		ID int `bson:"_id"`
	}
	var validation *domain.ErrValidation
	s.ErrorAs(s.c.SetID(&n, primitive.NewObjectID()), &validation)
	s.Zero(n.ID)
}

func (s *CodecTestSuite) TestIDKey() {
	s.Equal(int64(1), IDKey(1))
	s.Equal(int64(1), IDKey(int32(1)))
	s.Equal(int64(1), IDKey(float64(1)))
	s.Equal(1.5, IDKey(1.5))
	s.Equal("a", IDKey("a"))
	s.Equal("[1 2]", IDKey([]any{1, 2}))
	s.Nil(IDKey(nil))
}

func (s *CodecTestSuite) TestClearField() {
	d := &dragon{
		Name:      "Burt",
		Inventory: inventory{Gold: 3, SecretDraw: &inventory{Gold: 1}},
		Misc:      map[string]string{"a": "b", "c": "d"},
		Nick:      optStub{v: "n", set: true},
	}
	s.NoError(s.c.ClearField(d, "name"))
	s.NoError(s.c.ClearField(d, "inventory.secret_draw.gold"))
	s.NoError(s.c.ClearField(d, "misc.a"))
	s.NoError(s.c.ClearField(d, "nick"))
	s.NoError(s.c.ClearField(d, "created"))
	s.Empty(d.Name)
	s.Equal(3, d.Inventory.Gold)
	s.Equal(0, d.Inventory.SecretDraw.Gold)
	s.Equal(map[string]string{"c": "d"}, d.Misc)
	s.Equal(optStub{}, d.Nick)

	var validation *domain.ErrValidation
	s.ErrorAs(s.c.ClearField(d, "nope"), &validation)
}

func (s *CodecTestSuite) TestToRefs() {
	oid := primitive.NewObjectID()
	l := &lair{ID: oid}
	v, err := s.c.ToRefs(M{
		"lair":  l,
		"lairs": []*lair{l},
		"in":    M{"$in": []any{*l, refStub{id: 3}}},
		"inv":   inventory{Gold: 2},
		"at":    time.Time{},
		"n":     1,
	})
	s.NoError(err)
	s.Equal(M{
		"lair":  oid,
		"lairs": []any{oid},
		"in":    M{"$in": []any{oid, 3}},
		"inv":   M{"gold": 2},
		"at":    time.Time{},
		"n":     1,
	}, v)
}

func TestCodecTestSuite(t *testing.T) {
	suite.Run(t, new(CodecTestSuite))
}
