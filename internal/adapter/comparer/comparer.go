// Package comparer contains the default [domain.Comparer] implementation,
// ordering values across types the way MongoDB sorts BSON values.
package comparer

import (
	"bytes"
	"cmp"
	"fmt"
	"math/big"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Type brackets, lowest first. Values of different brackets compare by
// bracket only.
const (
	rankUndefined = iota
	rankNull
	rankNumber
	rankString
	rankDocument
	rankArray
	rankBinary
	rankObjectID
	rankBool
	rankTime
	rankUnknown
)

// Comparer implements domain.Comparer.
type Comparer struct{}

// NewComparer returns a new implementation of domain.Comparer.
func NewComparer() domain.Comparer {
	return &Comparer{}
}

// Comparable implements domain.Comparer. Only values of the same ordered
// bracket (numbers, strings, object ids and dates) are comparable with range
// operators.
func (c *Comparer) Comparable(a, b any) bool {
	if !isSet(a) || !isSet(b) {
		return false
	}
	ra, rb := rank(getVal(a)), rank(getVal(b))
	if ra != rb {
		return false
	}
	switch ra {
	case rankNumber, rankString, rankObjectID, rankTime:
		return true
	default:
		return false
	}
}

// Compare implements domain.Comparer.
func (c *Comparer) Compare(a any, b any) (int, error) {
	if !isSet(a) || !isSet(b) {
		return cmp.Compare(boolRank(isSet(a)), boolRank(isSet(b))), nil
	}
	a, b = getVal(a), getVal(b)

	ra, rb := rank(a), rank(b)
	if ra == rankUnknown || rb == rankUnknown {
		return 0, fmt.Errorf("cannot compare unexpected types %T and %T", a, b)
	}
	if ra != rb {
		return cmp.Compare(ra, rb), nil
	}

	switch ra {
	case rankNull:
		return 0, nil
	case rankNumber:
		x, _ := asNumber(a)
		y, _ := asNumber(b)
		return x.Cmp(y), nil
	case rankString:
		return cmp.Compare(a.(string), b.(string)), nil
	case rankDocument:
		return c.compareDoc(a.(domain.Document), b.(domain.Document))
	case rankArray:
		return c.compareArray(a.([]any), b.([]any))
	case rankBinary:
		return bytes.Compare(a.([]byte), b.([]byte)), nil
	case rankObjectID:
		x, y := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return bytes.Compare(x[:], y[:]), nil
	case rankBool:
		return compareBool(a.(bool), b.(bool)), nil
	default:
		return asTime(a).Compare(asTime(b)), nil
	}
}

func (c *Comparer) compareArray(a, b []any) (int, error) {
	for i := range min(len(a), len(b)) {
		comp, err := c.Compare(a[i], b[i])
		if err != nil {
			return 0, err
		}
		if comp != 0 {
			return comp, nil
		}
	}
	// common section was identical, longest one wins
	return cmp.Compare(len(a), len(b)), nil
}

func (c *Comparer) compareDoc(a domain.Document, b domain.Document) (int, error) {
	aKeys := slices.Sorted(a.Keys())
	bKeys := slices.Sorted(b.Keys())

	for i := range min(len(aKeys), len(bKeys)) {
		if comp := cmp.Compare(aKeys[i], bKeys[i]); comp != 0 {
			return comp, nil
		}
		comp, err := c.Compare(a.Get(aKeys[i]), b.Get(bKeys[i]))
		if err != nil {
			return 0, err
		}
		if comp != 0 {
			return comp, nil
		}
	}
	return cmp.Compare(len(aKeys), len(bKeys)), nil
}

func rank(v any) int {
	if _, ok := asNumber(v); ok {
		return rankNumber
	}
	switch v.(type) {
	case nil:
		return rankNull
	case string:
		return rankString
	case domain.Document:
		return rankDocument
	case []any:
		return rankArray
	case []byte:
		return rankBinary
	case primitive.ObjectID:
		return rankObjectID
	case bool:
		return rankBool
	case time.Time, primitive.DateTime:
		return rankTime
	default:
		return rankUnknown
	}
}

func asTime(v any) time.Time {
	if dt, ok := v.(primitive.DateTime); ok {
		return dt.Time()
	}
	return v.(time.Time)
}

func compareBool(a, b bool) int {
	return cmp.Compare(boolRank(a), boolRank(b))
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func asNumber(v any) (*big.Float, bool) {
	r := big.NewFloat(0)
	switch n := v.(type) {
	case int:
		r.SetInt64(int64(n))
	case int8:
		r.SetInt64(int64(n))
	case int16:
		r.SetInt64(int64(n))
	case int32:
		r.SetInt64(int64(n))
	case int64:
		r.SetInt64(n)
	case uint:
		r.SetUint64(uint64(n))
	case uint8:
		r.SetUint64(uint64(n))
	case uint16:
		r.SetUint64(uint64(n))
	case uint32:
		r.SetUint64(uint64(n))
	case uint64:
		r.SetUint64(n)
	case float32:
		r.SetFloat64(float64(n))
	case float64:
		r.SetFloat64(n)
	default:
		return nil, false
	}
	return r, true
}

func isSet(v any) bool {
	if g, ok := v.(domain.Getter); ok {
		_, isSet := g.Get()
		return isSet
	}
	return true
}

func getVal(v any) any {
	if g, ok := v.(domain.Getter); ok {
		val, _ := g.Get()
		return val
	}
	return v
}
