// Package data contains the document representation used by the in-memory
// store.
package data

import (
	"fmt"
	"iter"
	"maps"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/codec"
)

// M implements domain.Document by using a hashed map. Duplicates replace old
// values.
type M map[string]any

var recordCodec = codec.NewCodec()

// NewDocument returns a new instance of [domain.Document]. Maps are copied
// deeply, nested maps becoming documents too, and structs go through the
// record codec first.
func NewDocument(in any) (domain.Document, error) {
	switch t := in.(type) {
	case nil:
		return M{}, nil
	case M:
		return convertMap(t), nil
	case map[string]any:
		return convertMap(t), nil
	case bson.M:
		return convertMap(t), nil
	}
	raw, err := recordCodec.ToDict(in)
	if err != nil {
		return nil, fmt.Errorf("expected map or struct: %w", err)
	}
	return convertMap(raw), nil
}

func convertMap(m map[string]any) M {
	res := make(M, len(m))
	for k, v := range m {
		res[k] = convert(v)
	}
	return res
}

func convert(v any) any {
	switch t := codec.Normalize(v).(type) {
	case M:
		return convertMap(t)
	case map[string]any:
		return convertMap(t)
	case []any:
		res := make([]any, len(t))
		for i, v := range t {
			res[i] = convert(v)
		}
		return res
	default:
		return t
	}
}

// ToMap converts a document back into plain nested maps.
func ToMap(doc domain.Document) map[string]any {
	if doc == nil {
		return nil
	}
	res := make(map[string]any, doc.Len())
	for k, v := range doc.Iter() {
		res[k] = toPlain(v)
	}
	return res
}

func toPlain(v any) any {
	switch t := v.(type) {
	case domain.Document:
		return ToMap(t)
	case []any:
		res := make([]any, len(t))
		for i, v := range t {
			res[i] = toPlain(v)
		}
		return res
	default:
		return v
	}
}

// Clone returns a deep copy of doc.
func Clone(doc domain.Document) domain.Document {
	if doc == nil {
		return nil
	}
	return convertMap(ToMap(doc))
}

// CloneValue returns a deep copy of a document value.
func CloneValue(v any) any {
	return convert(toPlain(v))
}

// ID implements domain.Document
func (d M) ID() any {
	return d["_id"]
}

// Get implements domain.Document
func (d M) Get(key string) any {
	return d[key]
}

// Set implements domain.Document
func (d M) Set(key string, value any) {
	d[key] = value
}

// Unset implements domain.Document
func (d M) Unset(key string) {
	delete(d, key)
}

// D implements domain.Document
func (d M) D(key string) domain.Document {
	if doc, ok := d[key].(domain.Document); ok {
		return doc
	}
	return nil
}

// Iter implements domain.Document.
func (d M) Iter() iter.Seq2[string, any] {
	return maps.All(d)
}

// Keys implements domain.Document.
func (d M) Keys() iter.Seq[string] {
	return maps.Keys(d)
}

// Len implements domain.Document.
func (d M) Len() int {
	return len(d)
}

// Has implements domain.Document.
func (d M) Has(key string) bool {
	_, has := d[key]
	return has
}

// MarshalJSON implements json.Marshaler using MongoDB Extended JSON, which
// keeps object ids and dates typed.
func (d M) MarshalJSON() ([]byte, error) {
	return bson.MarshalExtJSON(ToMap(d), true, false)
}

// UnmarshalJSON implements json.Unmarshaler for MongoDB Extended JSON.
func (d *M) UnmarshalJSON(input []byte) error {
	var raw bson.M
	if err := bson.UnmarshalExtJSON(input, true, &raw); err != nil {
		return err
	}
	*d = convertMap(raw)
	return nil
}
