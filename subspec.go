package gedm

import (
	"reflect"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/codec"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/projection"
)

// SubSpec describes a value type embedded in records. It has no collection
// of its own, but its fields may hold references hydrated along with the
// parent record.
type SubSpec[T any] struct {
	opts  options
	typ   reflect.Type
	codec *codec.Codec
}

var _ domain.SubTarget = (*SubSpec[struct{}])(nil)

// NewSub returns a descriptor for the embedded type T. Only
// [WithDefaultProjection] affects it.
func NewSub[T any](opts ...Option) *SubSpec[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SubSpec[T]{opts: o, typ: reflect.TypeFor[T](), codec: recordCodec}
}

// Construct implements [domain.SubTarget]. It returns a *T.
func (s *SubSpec[T]) Construct(raw map[string]any) (any, error) {
	v := new(T)
	if err := s.codec.FromDict(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}

// DefaultProjection implements [domain.SubTarget].
func (s *SubSpec[T]) DefaultProjection() Projection {
	return s.opts.defaultProjection
}

// Fields returns the document field names declared by T.
func (s *SubSpec[T]) Fields() []string {
	return s.codec.Fields(s.typ)
}

// Sub returns a projection node building the field it is set on (a single
// value or a list) as T, hydrating T's own references with nested.
func (s *SubSpec[T]) Sub(nested ...Projection) Projection {
	return projection.Sub(s, nested...)
}

// SubMap is like [SubSpec.Sub] for fields holding a map of T values.
func (s *SubSpec[T]) SubMap(nested ...Projection) Projection {
	return projection.SubMap(s, nested...)
}
