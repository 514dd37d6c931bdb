// Package idgenerator contains the default [domain.IDGenerator]
// implementation.
package idgenerator

import (
	"reflect"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

var objectIDTyp = reflect.TypeOf(primitive.ObjectID{})

// IDGenerator implements [domain.IDGenerator].
type IDGenerator struct {
	newString func() string
}

// NewIDGenerator returns a new implementation of [domain.IDGenerator].
func NewIDGenerator(opts ...Option) domain.IDGenerator {
	g := IDGenerator{newString: uuid.NewString}
	for _, opt := range opts {
		opt(&g)
	}
	return &g
}

// GenerateID implements [domain.IDGenerator]. Object ids are generated
// client-side, strings get a random UUID and any other type is left for the
// store to assign.
func (g *IDGenerator) GenerateID(typ reflect.Type) (any, error) {
	switch {
	case typ == objectIDTyp:
		return primitive.NewObjectID(), nil
	case typ.Kind() == reflect.String:
		return reflect.ValueOf(g.newString()).Convert(typ).Interface(), nil
	case typ.Kind() == reflect.Interface:
		return primitive.NewObjectID(), nil
	default:
		return nil, nil
	}
}

// Option configures an [IDGenerator].
type Option func(*IDGenerator)

// WithStringSource replaces the UUID source used for string ids.
func WithStringSource(f func() string) Option {
	return func(g *IDGenerator) {
		if f != nil {
			g.newString = f
		}
	}
}
