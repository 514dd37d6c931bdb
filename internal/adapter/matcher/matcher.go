// Package matcher evaluates MongoDB filter documents against documents of the
// in-memory store.
package matcher

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/fieldnavigator"
)

// oper evaluates a field operator over the addresses a path resolved to.
type oper func(fields []domain.GetSetter, arg any) (bool, error)

type logicOp func(domain.Document, any) (bool, error)

// Matcher implements [domain.Matcher].
type Matcher struct {
	comparer       domain.Comparer
	fieldNavigator domain.FieldNavigator
	compFuncs      map[string]oper
	logicOps       map[string]logicOp
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithComparer replaces the comparer used to order values.
func WithComparer(c domain.Comparer) Option {
	return func(m *Matcher) { m.comparer = c }
}

// WithFieldNavigator replaces the navigator used to resolve paths.
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(m *Matcher) { m.fieldNavigator = fn }
}

// NewMatcher returns a new implementation of domain.Matcher.
func NewMatcher(options ...Option) domain.Matcher {
	m := &Matcher{
		comparer:       comparer.NewComparer(),
		fieldNavigator: fieldnavigator.NewFieldNavigator(data.NewDocument),
	}
	for _, option := range options {
		option(m)
	}
	m.logicOps = map[string]logicOp{
		"$and":   m.and,
		"$or":    m.or,
		"$nor":   m.nor,
		"$where": m.where,
	}
	m.compFuncs = map[string]oper{
		"$eq":        m.eq,
		"$ne":        m.ne,
		"$gt":        m.rangeOp(func(c int) bool { return c > 0 }),
		"$gte":       m.rangeOp(func(c int) bool { return c >= 0 }),
		"$lt":        m.rangeOp(func(c int) bool { return c < 0 }),
		"$lte":       m.rangeOp(func(c int) bool { return c <= 0 }),
		"$in":        m.in,
		"$nin":       m.nin,
		"$all":       m.all,
		"$exists":    m.exists,
		"$size":      m.size,
		"$type":      m.typeOp,
		"$elemMatch": m.elemMatch,
		"$not":       m.not,
		"$regex":     m.regex,
	}
	return m
}

// Match implements [domain.Matcher]. A non document value is matched
// against an operator document, as array elements are by $elemMatch.
func (m *Matcher) Match(val any, qry any) (bool, error) {
	if qry == nil {
		return true, nil
	}
	query, ok := qry.(domain.Document)
	if !ok {
		return false, fmt.Errorf("expected filter document, got %T", qry)
	}
	if doc, ok := val.(domain.Document); ok && !m.isOperatorDoc(query) {
		return m.matchDoc(doc, query)
	}
	return m.matchCondition([]domain.GetSetter{fieldnavigator.Value(val)}, query)
}

func (m *Matcher) matchDoc(doc, query domain.Document) (bool, error) {
	for field, value := range query.Iter() {
		var matches bool
		var err error
		if strings.HasPrefix(field, "$") {
			op, ok := m.logicOps[field]
			if !ok {
				return false, &domain.ErrUnknownOperator{Operator: field}
			}
			matches, err = op(doc, value)
		} else {
			matches, err = m.matchField(doc, field, value)
		}
		if err != nil || !matches {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) matchField(doc domain.Document, field string, value any) (bool, error) {
	addr, err := m.fieldNavigator.GetAddress(field)
	if err != nil {
		return false, err
	}
	fields, _, err := m.fieldNavigator.GetField(doc, addr...)
	if err != nil {
		return false, err
	}
	return m.matchCondition(fields, value)
}

// matchCondition applies either an operator document or a literal value to
// the resolved addresses.
func (m *Matcher) matchCondition(fields []domain.GetSetter, value any) (bool, error) {
	query, ok := value.(domain.Document)
	if !ok || !m.isOperatorDoc(query) {
		return m.eq(fields, value)
	}

	ops := make(map[string]any, query.Len())
	for op, arg := range query.Iter() {
		if !strings.HasPrefix(op, "$") {
			return false, fmt.Errorf("cannot mix operators and fields in %v", data.ToMap(query))
		}
		ops[op] = arg
	}
	if options, ok := ops["$options"]; ok {
		pattern, ok := ops["$regex"]
		if !ok {
			return false, fmt.Errorf("$options needs a $regex")
		}
		ops["$regex"] = primitive.Regex{Pattern: fmt.Sprint(patternOf(pattern)), Options: fmt.Sprint(options)}
		delete(ops, "$options")
	}

	for op := range ops {
		if _, ok := m.compFuncs[op]; !ok {
			return false, &domain.ErrUnknownOperator{Operator: op}
		}
	}
	for op, arg := range ops {
		matches, err := m.compFuncs[op](fields, arg)
		if err != nil || !matches {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) isOperatorDoc(query domain.Document) bool {
	for key := range query.Keys() {
		if _, ok := m.compFuncs[key]; ok || key == "$options" {
			return true
		}
	}
	return false
}

// candidates returns every defined value, plus the elements of list values.
func candidates(fields []domain.GetSetter) []any {
	var res []any
	for _, field := range fields {
		v, defined := field.Get()
		if !defined {
			continue
		}
		if arr, ok := v.([]any); ok {
			res = append(res, arr...)
		}
		res = append(res, v)
	}
	return res
}

func (m *Matcher) and(doc domain.Document, value any) (bool, error) {
	arr, ok := value.([]any)
	if !ok {
		return false, fmt.Errorf("$and operator used without an array")
	}
	for _, item := range arr {
		matches, err := m.Match(doc, item)
		if err != nil || !matches {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) or(doc domain.Document, value any) (bool, error) {
	arr, ok := value.([]any)
	if !ok {
		return false, fmt.Errorf("$or operator used without an array")
	}
	for _, item := range arr {
		matches, err := m.Match(doc, item)
		if err != nil || matches {
			return matches, err
		}
	}
	return false, nil
}

func (m *Matcher) nor(doc domain.Document, value any) (bool, error) {
	if _, ok := value.([]any); !ok {
		return false, fmt.Errorf("$nor operator used without an array")
	}
	matches, err := m.or(doc, value)
	return !matches && err == nil, err
}

func (m *Matcher) where(doc domain.Document, value any) (bool, error) {
	switch where := value.(type) {
	case func(domain.Document) bool:
		return where(doc), nil
	case func(domain.Document) (bool, error):
		return where(doc)
	default:
		return false, fmt.Errorf("$where operator used without a function")
	}
}

func (m *Matcher) eq(fields []domain.GetSetter, arg any) (bool, error) {
	if isRegex(arg) {
		return m.regex(fields, arg)
	}
	if arg == nil {
		for _, field := range fields {
			v, defined := field.Get()
			if !defined || v == nil {
				return true, nil
			}
			if arr, ok := v.([]any); ok {
				for _, item := range arr {
					if item == nil {
						return true, nil
					}
				}
			}
		}
		return false, nil
	}
	for _, v := range candidates(fields) {
		c, err := m.comparer.Compare(v, arg)
		if err != nil {
			return false, err
		}
		if c == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) ne(fields []domain.GetSetter, arg any) (bool, error) {
	matches, err := m.eq(fields, arg)
	return !matches && err == nil, err
}

func (m *Matcher) rangeOp(accept func(int) bool) oper {
	return func(fields []domain.GetSetter, arg any) (bool, error) {
		for _, v := range candidates(fields) {
			if !m.comparer.Comparable(v, arg) {
				continue
			}
			c, err := m.comparer.Compare(v, arg)
			if err != nil {
				return false, err
			}
			if accept(c) {
				return true, nil
			}
		}
		return false, nil
	}
}

func (m *Matcher) in(fields []domain.GetSetter, arg any) (bool, error) {
	arr, ok := arg.([]any)
	if !ok {
		return false, fmt.Errorf("$in operator called with a non-array")
	}
	for _, item := range arr {
		matches, err := m.eq(fields, item)
		if err != nil || matches {
			return matches, err
		}
	}
	return false, nil
}

func (m *Matcher) nin(fields []domain.GetSetter, arg any) (bool, error) {
	if _, ok := arg.([]any); !ok {
		return false, fmt.Errorf("$nin operator called with a non-array")
	}
	matches, err := m.in(fields, arg)
	return !matches && err == nil, err
}

func (m *Matcher) all(fields []domain.GetSetter, arg any) (bool, error) {
	arr, ok := arg.([]any)
	if !ok {
		return false, fmt.Errorf("$all operator called with a non-array")
	}
	if len(arr) == 0 {
		return false, nil
	}
	for _, item := range arr {
		var matches bool
		var err error
		if sub, ok := item.(domain.Document); ok && m.isElemMatch(sub) {
			matches, err = m.elemMatch(fields, sub.Get("$elemMatch"))
		} else {
			matches, err = m.eq(fields, item)
		}
		if err != nil || !matches {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) isElemMatch(doc domain.Document) bool {
	return doc.Len() == 1 && doc.Has("$elemMatch")
}

func (m *Matcher) exists(fields []domain.GetSetter, arg any) (bool, error) {
	want := truthy(arg)
	for _, field := range fields {
		if _, defined := field.Get(); defined {
			return want, nil
		}
	}
	return !want, nil
}

func (m *Matcher) size(fields []domain.GetSetter, arg any) (bool, error) {
	num, ok := asInt(arg)
	if !ok {
		return false, fmt.Errorf("$size operator called without an integer")
	}
	for _, field := range fields {
		v, _ := field.Get()
		if arr, ok := v.([]any); ok && len(arr) == num {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) typeOp(fields []domain.GetSetter, arg any) (bool, error) {
	names, ok := arg.([]any)
	if !ok {
		names = []any{arg}
	}
	for _, field := range fields {
		v, defined := field.Get()
		if !defined {
			continue
		}
		for _, name := range names {
			matches, err := hasType(v, name)
			if err != nil {
				return false, err
			}
			if matches {
				return true, nil
			}
			if arr, ok := v.([]any); ok {
				for _, item := range arr {
					if matches, _ := hasType(item, name); matches {
						return true, nil
					}
				}
			}
		}
	}
	return false, nil
}

func (m *Matcher) elemMatch(fields []domain.GetSetter, arg any) (bool, error) {
	query, ok := arg.(domain.Document)
	if !ok {
		return false, fmt.Errorf("$elemMatch operator called with a non-document")
	}
	for _, field := range fields {
		v, _ := field.Get()
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		for _, item := range arr {
			if _, isDoc := item.(domain.Document); !isDoc && !m.isOperatorDoc(query) {
				continue
			}
			matches, err := m.Match(item, query)
			if err != nil || matches {
				return matches, err
			}
		}
	}
	return false, nil
}

func (m *Matcher) not(fields []domain.GetSetter, arg any) (bool, error) {
	if query, ok := arg.(domain.Document); !isRegex(arg) && (!ok || !m.isOperatorDoc(query)) {
		return false, fmt.Errorf("$not needs an operator document or a regular expression")
	}
	matches, err := m.matchCondition(fields, arg)
	return !matches && err == nil, err
}

func (m *Matcher) regex(fields []domain.GetSetter, arg any) (bool, error) {
	rgx, err := compileRegex(arg)
	if err != nil {
		return false, err
	}
	for _, v := range candidates(fields) {
		if str, ok := v.(string); ok && rgx.MatchString(str) {
			return true, nil
		}
	}
	return false, nil
}

func isRegex(v any) bool {
	switch v.(type) {
	case *regexp.Regexp, primitive.Regex:
		return true
	}
	return false
}

func patternOf(v any) any {
	switch t := v.(type) {
	case *regexp.Regexp:
		return t.String()
	case primitive.Regex:
		return t.Pattern
	}
	return v
}

func compileRegex(v any) (*regexp.Regexp, error) {
	switch t := v.(type) {
	case *regexp.Regexp:
		return t, nil
	case string:
		return regexp.Compile(t)
	case primitive.Regex:
		flags := ""
		for _, o := range t.Options {
			if strings.ContainsRune("ims", o) {
				flags += string(o)
			}
		}
		if flags != "" {
			return regexp.Compile("(?" + flags + ")" + t.Pattern)
		}
		return regexp.Compile(t.Pattern)
	default:
		return nil, fmt.Errorf("$regex operator called with non regular expression")
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	}
	if n, ok := asInt(v); ok {
		return n != 0
	}
	return true
}

func asInt(v any) (int, bool) {
	r := big.NewFloat(0)
	switch n := v.(type) {
	case int:
		r.SetInt64(int64(n))
	case int32:
		r.SetInt64(int64(n))
	case int64:
		r.SetInt64(n)
	case uint:
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
		return 0, false
	}
	if !r.IsInt() {
		return 0, false
	}
	i64, _ := r.Int64()
	return int(i64), true
}

// hasType reports whether v has the BSON type named by alias or number.
func hasType(v any, name any) (bool, error) {
	alias, ok := name.(string)
	if !ok {
		code, ok := asInt(name)
		if !ok {
			return false, fmt.Errorf("$type needs a type alias or number")
		}
		if alias, ok = typeCodes[code]; !ok {
			return false, fmt.Errorf("unknown type code %d", code)
		}
	}
	switch alias {
	case "double":
		_, ok := v.(float64)
		_, ok32 := v.(float32)
		return ok || ok32, nil
	case "string":
		_, ok := v.(string)
		return ok, nil
	case "object":
		_, ok := v.(domain.Document)
		return ok, nil
	case "array":
		_, ok := v.([]any)
		return ok, nil
	case "binData":
		_, ok := v.([]byte)
		return ok, nil
	case "objectId":
		_, ok := v.(primitive.ObjectID)
		return ok, nil
	case "bool":
		_, ok := v.(bool)
		return ok, nil
	case "date":
		_, ok := v.(time.Time)
		_, okDT := v.(primitive.DateTime)
		return ok || okDT, nil
	case "null":
		return v == nil, nil
	case "regex":
		return isRegex(v), nil
	case "int":
		switch n := v.(type) {
		case int32, int16, int8:
			return true, nil
		case int:
			return int64(n) == int64(int32(n)), nil
		}
		return false, nil
	case "long":
		switch n := v.(type) {
		case int64:
			return true, nil
		case int:
			return int64(n) != int64(int32(n)), nil
		}
		return false, nil
	case "decimal":
		_, ok := v.(primitive.Decimal128)
		return ok, nil
	case "number":
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true, nil
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown type alias %s", alias)
	}
}

var typeCodes = map[int]string{
	1:  "double",
	2:  "string",
	3:  "object",
	4:  "array",
	5:  "binData",
	7:  "objectId",
	8:  "bool",
	9:  "date",
	10: "null",
	11: "regex",
	16: "int",
	18: "long",
	19: "decimal",
}
