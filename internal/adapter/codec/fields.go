package codec

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	goreflect "github.com/goccy/go-reflect"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// IDOf returns the identity held by a record or raw document. The bool is
// false when the record has no identity yet.
func (c *Codec) IDOf(in any) (any, bool) {
	if m, ok := in.(map[string]any); ok {
		id, ok := m[IDField]
		return id, ok && id != nil
	}
	r, ok := structValue(goreflect.ValueNoEscapeOf(in))
	if !ok {
		return nil, false
	}
	f, ok := fieldByName(r, IDField)
	if !ok || f.IsZero() {
		return nil, false
	}
	return f.Interface(), true
}

// IDType returns the type of the identity field declared by typ, a struct
// or pointer to struct type.
func (c *Codec) IDType(typ reflect.Type) (reflect.Type, bool) {
	t := goreflect.ToType(typ)
	for t.Kind() == goreflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != goreflect.Struct || t == timeTyp {
		return nil, false
	}
	f, ok := fieldByName(goreflect.New(t).Elem(), IDField)
	if !ok {
		return nil, false
	}
	return goreflect.ToReflectType(f.Type()), true
}

// HoldsObjectID reports whether [Codec.SetID] can store an object id, the
// identity assigned by stores, in a field of type typ.
func (c *Codec) HoldsObjectID(typ reflect.Type) bool {
	return holds(goreflect.ToType(typ), objectIDTyp)
}

func holds(field, id goreflect.Type) bool {
	switch {
	case id.AssignableTo(field):
	case field.Kind() == goreflect.String && id == objectIDTyp:
	case field == objectIDTyp && id.Kind() == goreflect.String:
	case id.ConvertibleTo(field) && id.Kind() != goreflect.String:
	default:
		return false
	}
	return true
}

// SetID stores id in the identity field of the record pointed by target,
// converting between hex strings and object ids when needed.
func (c *Codec) SetID(target any, id any) error {
	if m, ok := target.(map[string]any); ok {
		m[IDField] = id
		return nil
	}
	r, ok := structValue(goreflect.ValueOf(target))
	if !ok || !r.CanAddr() {
		return &domain.ErrValidation{Type: targetName(target), Cause: fmt.Errorf("expected pointer to struct")}
	}
	f, ok := fieldByName(r, IDField)
	if !ok {
		return &domain.ErrValidation{Type: targetName(target), Cause: fmt.Errorf("no %s field", IDField)}
	}
	if id == nil {
		f.Set(goreflect.Zero(f.Type()))
		return nil
	}

	v := goreflect.ValueOf(id)
	if !holds(f.Type(), v.Type()) {
		return &domain.ErrValidation{
			Type:  targetName(target),
			Cause: fmt.Errorf("cannot store id of type %T in %s", id, f.Type()),
		}
	}
	switch {
	case v.Type().AssignableTo(f.Type()):
		f.Set(v)
	case f.Kind() == goreflect.String && v.Type() == objectIDTyp:
		f.SetString(id.(primitive.ObjectID).Hex())
	case f.Type() == objectIDTyp && v.Kind() == goreflect.String:
		oid, err := primitive.ObjectIDFromHex(v.String())
		if err != nil {
			return &domain.ErrValidation{Type: targetName(target), Cause: err}
		}
		f.Set(goreflect.ValueOf(oid))
	default:
		f.Set(v.Convert(f.Type()))
	}
	return nil
}

// ClearField resets the dotted document path of the record pointed by target
// to its zero value. Map entries on the way are deleted instead.
func (c *Codec) ClearField(target any, path string) error {
	r, ok := structValue(goreflect.ValueOf(target))
	if !ok || !r.CanAddr() {
		return &domain.ErrValidation{Type: targetName(target), Cause: fmt.Errorf("expected pointer to struct")}
	}
	keys := strings.Split(path, ".")
	current := r
	for i, key := range keys {
		for current.Kind() == goreflect.Ptr || current.Kind() == goreflect.Interface {
			if current.IsNil() {
				return nil
			}
			current = current.Elem()
		}
		last := i == len(keys)-1
		switch current.Kind() {
		case goreflect.Struct:
			f, ok := fieldByName(current, key)
			if !ok {
				return &domain.ErrValidation{Type: targetName(target), Cause: fmt.Errorf("unknown field %s", path)}
			}
			if last {
				f.Set(goreflect.Zero(f.Type()))
				return nil
			}
			current = f
		case goreflect.Map:
			if current.IsNil() || current.Type().Key().Kind() != goreflect.String {
				return nil
			}
			k := goreflect.ValueOf(key).Convert(current.Type().Key())
			if last {
				current.SetMapIndex(k, goreflect.Value{})
				return nil
			}
			current = current.MapIndex(k)
			if !current.IsValid() {
				return nil
			}
		default:
			return nil
		}
	}
	return nil
}

// IDKey normalizes an identity so that equal ids decoded as different
// numeric types land on the same map key.
func IDKey(id any) any {
	switch n := id.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n)
		}
		return n
	}
	if id == nil || goreflect.TypeOf(id).Comparable() {
		return id
	}
	return fmt.Sprint(id)
}

// ToRefs replaces records found in v with their identities, recursing into
// maps and lists. Records without an identity field are converted to raw
// documents.
func (c *Codec) ToRefs(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case domain.Referencer:
		return t.RefID(), nil
	case map[string]any:
		res := make(map[string]any, len(t))
		for k, v := range t {
			conv, err := c.ToRefs(v)
			if err != nil {
				return nil, err
			}
			res[k] = conv
		}
		return res, nil
	case []any:
		res := make([]any, len(t))
		for i, v := range t {
			conv, err := c.ToRefs(v)
			if err != nil {
				return nil, err
			}
			res[i] = conv
		}
		return res, nil
	}

	r := goreflect.ValueNoEscapeOf(v)
	switch r.Type() {
	case timeTyp, objectIDTyp, dateTimeTyp, decimalTyp, regexTyp, binaryTyp, bytesTyp:
		return v, nil
	}
	if s, ok := structValue(r); ok {
		if f, ok := fieldByName(s, IDField); ok {
			return f.Interface(), nil
		}
		doc, err := c.ToDict(v)
		if err != nil {
			return nil, err
		}
		return c.ToRefs(doc)
	}
	if r.Kind() == goreflect.Slice || r.Kind() == goreflect.Array {
		res := make([]any, r.Len())
		for i := range r.Len() {
			conv, err := c.ToRefs(r.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			res[i] = conv
		}
		return res, nil
	}
	return v, nil
}

func structValue(r goreflect.Value) (goreflect.Value, bool) {
	for r.Kind() == goreflect.Ptr || r.Kind() == goreflect.Interface {
		if r.IsNil() {
			return goreflect.Value{}, false
		}
		r = r.Elem()
	}
	if r.Kind() != goreflect.Struct || r.Type() == timeTyp {
		return goreflect.Value{}, false
	}
	return r, true
}

// fieldByName finds the struct field stored under the given document name,
// looking into embedded structs.
func fieldByName(r goreflect.Value, name string) (goreflect.Value, bool) {
	typ := r.Type()
	for n := range r.NumField() {
		field := typ.Field(n)
		if field.PkgPath != "" {
			continue
		}
		tag, skip := parseTag(field.Name, field.Tag)
		if skip {
			continue
		}
		if squashed(field.Anonymous, field.Type) {
			if f, ok := fieldByName(r.Field(n), name); ok {
				return f, true
			}
			continue
		}
		if tag.name == name {
			return r.Field(n), true
		}
	}
	return goreflect.Value{}, false
}
