package query

import (
	"maps"
	"reflect"
	"slices"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Op is a comparison operator keyword.
type Op string

// Comparison operators.
const (
	OpEq        Op = "$eq"
	OpNe        Op = "$ne"
	OpGt        Op = "$gt"
	OpGte       Op = "$gte"
	OpLt        Op = "$lt"
	OpLte       Op = "$lte"
	OpIn        Op = "$in"
	OpNin       Op = "$nin"
	OpAll       Op = "$all"
	OpElemMatch Op = "$elemMatch"
	OpExists    Op = "$exists"
	OpSize      Op = "$size"
	OpType      Op = "$type"
	OpNot       Op = "$not"
)

// Condition is a leaf expression comparing a path with an operand. The
// operand is stored as given and only interpreted by the store.
type Condition struct {
	path    Path
	op      Op
	operand any
}

func newCondition(p Path, op Op, operand any) Condition {
	return Condition{path: p, op: op, operand: operand}
}

// Path returns the compared path.
func (c Condition) Path() Path { return c.path }

// Op returns the operator.
func (c Condition) Op() Op { return c.op }

// Operand returns the operand as given.
func (c Condition) Operand() any { return c.operand }

// ToDict implements [domain.Filter].
func (c Condition) ToDict() map[string]any {
	if c.path.IsRoot() {
		return c.operatorForm()
	}
	if c.op == OpEq {
		return map[string]any{c.path.String(): c.operand}
	}
	return map[string]any{c.path.String(): c.operatorForm()}
}

func (c Condition) operatorForm() map[string]any {
	switch c.op {
	case OpNot:
		inner := c.operand.(Condition)
		return map[string]any{string(OpNot): inner.operatorForm()}
	case OpElemMatch:
		return map[string]any{string(OpElemMatch): c.operand}
	default:
		return map[string]any{string(c.op): c.operand}
	}
}

// And combines c and o in an $and group.
func (c Condition) And(o domain.Filter) Group { return And(c, o) }

// Or combines c and o in an $or group.
func (c Condition) Or(o domain.Filter) Group { return Or(c, o) }

// Not negates c, keeping its path: {path: {$not: {$op: v}}}.
func Not(c Condition) Condition {
	return newCondition(c.path, OpNot, newCondition(Q, c.op, c.operand))
}

// In matches documents where the path equals any of values.
func In(p Path, values ...any) Condition {
	return newCondition(p, OpIn, slices.Clone(values))
}

// NotIn matches documents where the path equals none of values.
func NotIn(p Path, values ...any) Condition {
	return newCondition(p, OpNin, slices.Clone(values))
}

// All matches arrays containing every one of values.
func All(p Path, values ...any) Condition {
	return newCondition(p, OpAll, slices.Clone(values))
}

// Size matches arrays with exactly n elements.
func Size(p Path, n int) Condition {
	return newCondition(p, OpSize, n)
}

// Type matches values of the given BSON type name or number.
func Type(p Path, t any) Condition {
	return newCondition(p, OpType, t)
}

// Exists matches documents that have (or lack) the path.
func Exists(p Path, exists bool) Condition {
	return newCondition(p, OpExists, exists)
}

// ElemMatch matches arrays with at least one element satisfying every
// expression. Expressions built on [Q] address the element itself.
func ElemMatch(p Path, exprs ...domain.Filter) Condition {
	merged := make(map[string]any)
	for _, expr := range exprs {
		deepMerge(expr.ToDict(), merged)
	}
	return newCondition(p, OpElemMatch, merged)
}

// deepMerge merges src into dst. Nested maps are merged recursively and
// lists are merged as sets, keeping dst order.
func deepMerge(src, dst map[string]any) {
	for key, value := range src {
		current, ok := dst[key]
		if ok {
			srcMap, srcIsMap := value.(map[string]any)
			dstMap, dstIsMap := current.(map[string]any)
			if srcIsMap && dstIsMap {
				deepMerge(srcMap, dstMap)
				continue
			}
			srcList, srcIsList := value.([]any)
			dstList, dstIsList := current.([]any)
			if srcIsList && dstIsList {
				for _, item := range srcList {
					if !containsValue(dstList, item) {
						dstList = append(dstList, item)
					}
				}
				dst[key] = dstList
				continue
			}
		}
		if m, isMap := value.(map[string]any); isMap {
			value = maps.Clone(m)
		}
		dst[key] = value
	}
}

func containsValue(list []any, v any) bool {
	return slices.ContainsFunc(list, func(item any) bool {
		return reflect.DeepEqual(item, v)
	})
}

// M is a raw filter document.
type M map[string]any

// ToDict implements [domain.Filter].
func (m M) ToDict() map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return map[string]any(m)
}
