// Package codec contains the default [domain.Codec] implementation, binding
// tagged structs to raw documents.
package codec

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	goreflect "github.com/goccy/go-reflect"
	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// TagName is the struct tag read for document field names.
const TagName = "bson"

// IDField is the name of the identity field.
const IDField = "_id"

var (
	timeTyp       = goreflect.TypeOf(time.Time{})
	objectIDTyp   = goreflect.TypeOf(primitive.ObjectID{})
	dateTimeTyp   = goreflect.TypeOf(primitive.DateTime(0))
	decimalTyp    = goreflect.TypeOf(primitive.Decimal128{})
	regexTyp      = goreflect.TypeOf(primitive.Regex{})
	binaryTyp     = goreflect.TypeOf(primitive.Binary{})
	bytesTyp      = goreflect.TypeOf([]byte(nil))
	referencerTyp = goreflect.TypeOf((*domain.Referencer)(nil)).Elem()
	optionalTyp   = goreflect.TypeOf((*domain.Optional)(nil)).Elem()
)

// Codec implements [domain.Codec].
type Codec struct{}

// NewCodec returns a new implementation of [domain.Codec].
func NewCodec() *Codec {
	return &Codec{}
}

// ToDict implements [domain.Codec].
func (c *Codec) ToDict(in any) (map[string]any, error) {
	if m, ok := in.(map[string]any); ok {
		return c.mapToDict(m)
	}
	r := goreflect.ValueNoEscapeOf(in)
	for r.Kind() == goreflect.Ptr || r.Kind() == goreflect.Interface {
		if r.IsNil() {
			return nil, &domain.ErrValidation{Type: "record", Cause: fmt.Errorf("nil %s", r.Type())}
		}
		r = r.Elem()
	}
	switch r.Kind() {
	case goreflect.Struct:
		return c.structToDict(r)
	case goreflect.Map:
		v, err := c.toValue(r)
		if err != nil {
			return nil, err
		}
		m, _ := v.(map[string]any)
		return m, nil
	case goreflect.Invalid:
		return nil, &domain.ErrValidation{Type: "record", Cause: fmt.Errorf("nil record")}
	default:
		return nil, &domain.ErrValidation{Type: "record", Cause: fmt.Errorf("expected map or struct, got %s", r.Type())}
	}
}

func (c *Codec) mapToDict(m map[string]any) (map[string]any, error) {
	res := make(map[string]any, len(m))
	for k, v := range m {
		conv, err := c.toValue(goreflect.ValueNoEscapeOf(v))
		if err != nil {
			return nil, err
		}
		res[k] = conv
	}
	return res, nil
}

func (c *Codec) structToDict(r goreflect.Value) (map[string]any, error) {
	res := make(map[string]any, r.NumField())
	if err := c.fillStruct(r, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Codec) fillStruct(r goreflect.Value, res map[string]any) error {
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
		fieldValue := r.Field(n)

		if squashed(field.Anonymous, field.Type) {
			if err := c.fillStruct(fieldValue, res); err != nil {
				return err
			}
			continue
		}

		if field.Type.Implements(optionalTyp) {
			v, set := fieldValue.Interface().(domain.Optional).OptValue()
			if !set {
				continue
			}
			conv, err := c.toValue(goreflect.ValueNoEscapeOf(v))
			if err != nil {
				return fmt.Errorf("%s: %w", tag.name, err)
			}
			res[tag.name] = conv
			continue
		}

		if tag.omitEmpty && isEmpty(fieldValue) {
			continue
		}
		if tag.omitZero && fieldValue.IsZero() {
			continue
		}

		conv, err := c.toValue(fieldValue)
		if err != nil {
			return fmt.Errorf("%s: %w", tag.name, err)
		}
		res[tag.name] = conv
	}
	return nil
}

func (c *Codec) toValue(r goreflect.Value) (any, error) {
	if !r.IsValid() {
		return nil, nil
	}
	typ := r.Type()
	if typ.Implements(referencerTyp) {
		if (r.Kind() == goreflect.Ptr || r.Kind() == goreflect.Interface) && r.IsNil() {
			return nil, nil
		}
		return r.Interface().(domain.Referencer).RefID(), nil
	}
	if typ.Implements(optionalTyp) {
		v, set := r.Interface().(domain.Optional).OptValue()
		if !set {
			return nil, nil
		}
		return c.toValue(goreflect.ValueNoEscapeOf(v))
	}
	switch typ {
	case timeTyp, objectIDTyp, dateTimeTyp, decimalTyp, regexTyp, binaryTyp:
		return r.Interface(), nil
	case bytesTyp:
		if r.IsNil() {
			return nil, nil
		}
		return r.Interface(), nil
	}

	switch r.Kind() {
	case goreflect.Ptr, goreflect.Interface:
		if r.IsNil() {
			return nil, nil
		}
		return c.toValue(r.Elem())
	case goreflect.Struct:
		return c.structToDict(r)
	case goreflect.Map:
		return c.mapToValue(r)
	case goreflect.Slice:
		if r.IsNil() {
			return nil, nil
		}
		fallthrough
	case goreflect.Array:
		res := make([]any, r.Len())
		for i := range r.Len() {
			v, err := c.toValue(r.Index(i))
			if err != nil {
				return nil, err
			}
			res[i] = v
		}
		return res, nil
	case goreflect.Chan, goreflect.Func, goreflect.Complex64, goreflect.Complex128, goreflect.UnsafePointer:
		return nil, &domain.ErrNotSupported{Type: typ.String()}
	default:
		return r.Interface(), nil
	}
}

func (c *Codec) mapToValue(r goreflect.Value) (any, error) {
	if r.IsNil() {
		return nil, nil
	}
	if r.Type().Key().Kind() != goreflect.String {
		return nil, &domain.ErrNotSupported{Type: r.Type().String()}
	}
	res := make(map[string]any, r.Len())
	for _, k := range r.MapKeys() {
		v, err := c.toValue(r.MapIndex(k))
		if err != nil {
			return nil, err
		}
		res[k.String()] = v
	}
	return res, nil
}

// FromDict implements [domain.Codec].
func (c *Codec) FromDict(raw map[string]any, target any) error {
	if err := c.decode(raw, target); err != nil {
		return err
	}
	markNulls(raw, reflect.ValueOf(target))
	return nil
}

func (c *Codec) decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: TagName,
		Squash:  true,
		Result:  out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			c.loaderHook,
			objectIDHook,
			timeHook,
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return &domain.ErrValidation{Type: targetName(out), Cause: err}
	}
	return nil
}

var (
	refLoaderTyp = reflect.TypeOf((*domain.RefLoader)(nil)).Elem()
	optLoaderTyp = reflect.TypeOf((*domain.OptLoader)(nil)).Elem()
)

// loaderHook fills values whose pointer knows how to load itself.
func (c *Codec) loaderHook(from, to reflect.Value) (any, error) {
	ptrTyp := reflect.PointerTo(to.Type())
	switch {
	case ptrTyp.Implements(refLoaderTyp):
		ptr := reflect.New(to.Type())
		if err := ptr.Interface().(domain.RefLoader).LoadRef(from.Interface()); err != nil {
			return nil, err
		}
		return ptr.Elem().Interface(), nil
	case ptrTyp.Implements(optLoaderTyp):
		ptr := reflect.New(to.Type())
		if err := ptr.Interface().(domain.OptLoader).LoadOpt(from.Interface(), c.decodeInner); err != nil {
			return nil, err
		}
		return ptr.Elem().Interface(), nil
	}
	return from.Interface(), nil
}

func (c *Codec) decodeInner(in, out any) error {
	if err := c.decode(in, out); err != nil {
		return err
	}
	if m, ok := in.(map[string]any); ok {
		markNulls(m, reflect.ValueOf(out))
	}
	return nil
}

func objectIDHook(from, to reflect.Type, data any) (any, error) {
	switch {
	case to == reflect.TypeOf(primitive.ObjectID{}) && from.Kind() == reflect.String:
		return primitive.ObjectIDFromHex(data.(string))
	case to.Kind() == reflect.String && from == reflect.TypeOf(primitive.ObjectID{}):
		return data.(primitive.ObjectID).Hex(), nil
	}
	return data, nil
}

func timeHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch t := data.(type) {
	case primitive.DateTime:
		return t.Time().UTC(), nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	}
	return data, nil
}

// markNulls flags optional fields holding an explicit nil, which the decoder
// skips without running hooks.
func markNulls(raw map[string]any, target reflect.Value) {
	for target.Kind() == reflect.Pointer || target.Kind() == reflect.Interface {
		if target.IsNil() {
			return
		}
		target = target.Elem()
	}
	if target.Kind() != reflect.Struct {
		return
	}
	typ := target.Type()
	for n := range target.NumField() {
		field := typ.Field(n)
		if field.PkgPath != "" {
			continue
		}
		fieldValue := target.Field(n)
		if squashed(field.Anonymous, goreflect.ToType(field.Type)) {
			markNulls(raw, fieldValue)
			continue
		}
		tag, skip := parseTag(field.Name, field.Tag)
		if skip {
			continue
		}
		v, ok := raw[tag.name]
		if !ok {
			continue
		}
		if v == nil {
			if loader, ok := fieldValue.Addr().Interface().(domain.OptLoader); ok {
				_ = loader.LoadOpt(nil, nil)
			}
			continue
		}
		if sub, ok := v.(map[string]any); ok && fieldValue.Kind() == reflect.Struct {
			markNulls(sub, fieldValue.Addr())
		}
	}
}

// ToJSONType implements [domain.Codec].
func (c *Codec) ToJSONType(in any) (map[string]any, error) {
	doc, err := c.ToDict(in)
	if err != nil {
		return nil, err
	}
	return jsonify(doc).(map[string]any), nil
}

func jsonify(v any) any {
	switch t := v.(type) {
	case map[string]any:
		res := make(map[string]any, len(t))
		for k, v := range t {
			res[k] = jsonify(v)
		}
		return res
	case []any:
		res := make([]any, len(t))
		for i, v := range t {
			res[i] = jsonify(v)
		}
		return res
	case primitive.ObjectID:
		return t.Hex()
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case primitive.Decimal128:
		return t.String()
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	default:
		return v
	}
}

// Encode implements [domain.Codec].
func (c *Codec) Encode(in any) ([]byte, error) {
	doc, err := c.ToDict(in)
	if err != nil {
		return nil, err
	}
	return bson.Marshal(doc)
}

// Decode implements [domain.Codec].
func (c *Codec) Decode(b []byte, target any) error {
	var m bson.M
	if err := bson.Unmarshal(b, &m); err != nil {
		return err
	}
	return c.FromDict(Normalize(m).(map[string]any), target)
}

// Normalize converts driver container and date types into plain maps,
// slices and [time.Time].
func Normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case bson.D:
		res := make(map[string]any, len(t))
		for _, e := range t {
			res[e.Key] = Normalize(e.Value)
		}
		return res
	case primitive.A:
		return normalizeList(t)
	case []any:
		return normalizeList(t)
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	res := make(map[string]any, len(m))
	for k, v := range m {
		res[k] = Normalize(v)
	}
	return res
}

func normalizeList(l []any) []any {
	res := make([]any, len(l))
	for i, v := range l {
		res[i] = Normalize(v)
	}
	return res
}

// Fields implements [domain.Codec].
func (c *Codec) Fields(typ reflect.Type) []string {
	return fields(goreflect.ToType(typ))
}

func fields(typ goreflect.Type) []string {
	for typ.Kind() == goreflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != goreflect.Struct {
		return nil
	}
	var res []string
	for n := range typ.NumField() {
		field := typ.Field(n)
		if field.PkgPath != "" {
			continue
		}
		tag, skip := parseTag(field.Name, field.Tag)
		if skip {
			continue
		}
		if squashed(field.Anonymous, field.Type) {
			res = append(res, fields(field.Type)...)
			continue
		}
		if !slices.Contains(res, tag.name) {
			res = append(res, tag.name)
		}
	}
	return res
}

type fieldTag struct {
	name      string
	omitEmpty bool
	omitZero  bool
}

func parseTag(name string, structTag goreflect.StructTag) (fieldTag, bool) {
	tag := fieldTag{name: strings.ToLower(name)}
	raw, ok := structTag.Lookup(TagName)
	if !ok {
		return tag, false
	}
	if raw == "-" {
		return tag, true
	}
	segments := strings.Split(raw, ",")
	if segments[0] != "" {
		tag.name = segments[0]
	}
	tag.omitEmpty = slices.Contains(segments[1:], "omitempty")
	tag.omitZero = slices.Contains(segments[1:], "omitzero")
	return tag, false
}

// squashed reports whether the fields of an embedded struct are promoted to
// the parent document.
func squashed(anonymous bool, typ goreflect.Type) bool {
	return anonymous && typ.Kind() == goreflect.Struct && typ != timeTyp
}

func isEmpty(r goreflect.Value) bool {
	switch r.Kind() {
	case goreflect.Slice, goreflect.Map, goreflect.String, goreflect.Array:
		return r.Len() == 0
	case goreflect.Ptr, goreflect.Interface:
		return r.IsNil()
	default:
		return r.IsZero()
	}
}

func targetName(out any) string {
	typ := reflect.TypeOf(out)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil {
		return "record"
	}
	return typ.String()
}
