package gedm

import (
	"time"

	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/codec"
)

var recordCodec = codec.NewCodec()

// Ref is a field holding a reference to another record. It is stored as the
// referenced identity and, once hydrated through a reference projection,
// holds the referenced record too.
type Ref[T any] struct {
	ID    any
	Value *T
}

// RefTo returns a reference to v.
func RefTo[T any](v *T) Ref[T] {
	id, _ := recordCodec.IDOf(v)
	return Ref[T]{ID: id, Value: v}
}

// RefID returns the referenced identity.
func (r Ref[T]) RefID() any {
	if r.Value != nil {
		if id, ok := recordCodec.IDOf(r.Value); ok {
			return id
		}
	}
	return r.ID
}

// Loaded reports whether the referenced record was fetched.
func (r Ref[T]) Loaded() bool {
	return r.Value != nil
}

// LoadRef fills the reference from an identity or a resolved record.
func (r *Ref[T]) LoadRef(v any) error {
	switch t := v.(type) {
	case *T:
		*r = RefTo(t)
	case T:
		*r = RefTo(&t)
	case Ref[T]:
		*r = t
	default:
		*r = Ref[T]{ID: v}
	}
	return nil
}

type optState uint8

const (
	optUnset optState = iota
	optNull
	optSet
)

// Opt is an optional field telling apart a field that was never set, which
// is left out of the document, from a field explicitly set to null.
type Opt[T any] struct {
	v     T
	state optState
}

// Some returns an optional holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{v: v, state: optSet}
}

// Null returns an optional holding an explicit null.
func Null[T any]() Opt[T] {
	return Opt[T]{state: optNull}
}

// Get returns the held value and whether there is one.
func (o Opt[T]) Get() (T, bool) {
	return o.v, o.state == optSet
}

// IsNull reports whether the optional holds an explicit null.
func (o Opt[T]) IsNull() bool {
	return o.state == optNull
}

// IsUnset reports whether the optional was never set.
func (o Opt[T]) IsUnset() bool {
	return o.state == optUnset
}

// OptValue implements [domain.Optional].
func (o Opt[T]) OptValue() (any, bool) {
	switch o.state {
	case optSet:
		return o.v, true
	case optNull:
		return nil, true
	default:
		return nil, false
	}
}

// LoadOpt implements [domain.OptLoader].
func (o *Opt[T]) LoadOpt(v any, decode func(in, out any) error) error {
	switch t := v.(type) {
	case nil:
		*o = Null[T]()
		return nil
	case Opt[T]:
		*o = t
		return nil
	}
	var val T
	if err := decode(v, &val); err != nil {
		return err
	}
	*o = Some(val)
	return nil
}

// Timestamps can be embedded in records to track when they were created and
// last updated. See [Spec.Stamp].
type Timestamps struct {
	CreatedAt time.Time `bson:"createdAt,omitzero"`
	UpdatedAt time.Time `bson:"updatedAt,omitzero"`
}

// Touch sets the update time, and the creation time when still unset.
func (t *Timestamps) Touch(now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

// Stamper is implemented by records tracking timestamps.
type Stamper interface {
	Touch(now time.Time)
}
