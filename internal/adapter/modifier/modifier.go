// Package modifier applies MongoDB update documents to in-memory documents.
package modifier

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/matcher"
)

type modFunc func(domain.Document, []string, any) error

type pushProps struct {
	each     []any
	slice    int
	hasSlice bool
	position int
	hasPos   bool
}

// Modifier implements [domain.Modifier].
type Modifier struct {
	comp           domain.Comparer
	docFac         domain.DocumentFactory
	fieldNavigator domain.FieldNavigator
	matcher        domain.Matcher
	mods           map[string]modFunc
}

// Option configures a [Modifier].
type Option func(*Modifier)

// WithComparer replaces the comparer used by $addToSet, $min and $max.
func WithComparer(c domain.Comparer) Option {
	return func(m *Modifier) { m.comp = c }
}

// WithDocumentFactory replaces the factory used for new documents.
func WithDocumentFactory(f domain.DocumentFactory) Option {
	return func(m *Modifier) { m.docFac = f }
}

// WithFieldNavigator replaces the navigator used to resolve paths.
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(m *Modifier) { m.fieldNavigator = fn }
}

// WithMatcher replaces the matcher used by $pull.
func WithMatcher(mt domain.Matcher) Option {
	return func(m *Modifier) { m.matcher = mt }
}

// NewModifier returns a new implementation of [domain.Modifier].
func NewModifier(options ...Option) domain.Modifier {
	m := &Modifier{
		comp:   comparer.NewComparer(),
		docFac: data.NewDocument,
	}
	for _, option := range options {
		option(m)
	}
	if m.fieldNavigator == nil {
		m.fieldNavigator = fieldnavigator.NewFieldNavigator(m.docFac)
	}
	if m.matcher == nil {
		m.matcher = matcher.NewMatcher(
			matcher.WithComparer(m.comp),
			matcher.WithFieldNavigator(m.fieldNavigator),
		)
	}

	m.mods = map[string]modFunc{
		"$set":      m.set,
		"$unset":    m.unset,
		"$inc":      m.arith("$inc", add),
		"$mul":      m.arith("$mul", mul),
		"$min":      m.bound(func(c int) bool { return c > 0 }),
		"$max":      m.bound(func(c int) bool { return c < 0 }),
		"$push":     m.push,
		"$addToSet": m.addToSet,
		"$pop":      m.pop,
		"$pull":     m.pull,
		"$pullAll":  m.pullAll,
		"$rename":   m.rename,
	}

	return m
}

// Modify implements [domain.Modifier]. A document without operators
// replaces every field but _id.
func (m *Modifier) Modify(obj domain.Document, updateQuery domain.Document) (domain.Document, error) {
	modQry, replace, err := m.modQuery(obj, updateQuery)
	if err != nil {
		return nil, err
	}

	var res domain.Document
	if replace {
		res, err = m.replaceMod(obj, modQry)
	} else {
		res, err = m.dollarMod(obj, modQry)
	}
	if err != nil {
		return nil, err
	}

	if err := m.checkID(obj.ID(), res.ID()); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Modifier) modQuery(obj domain.Document, updateQuery domain.Document) (map[string]any, bool, error) {
	dollarFields, total := 0, 0

	query := make(map[string]any, updateQuery.Len())
	for k, v := range updateQuery.Iter() {
		total++
		if strings.HasPrefix(k, "$") {
			dollarFields++
		} else if k == "_id" {
			if err := m.checkID(obj.ID(), v); err != nil {
				return nil, false, err
			}
		}
		if dollarFields != 0 && dollarFields != total {
			return nil, false, fmt.Errorf("you cannot mix modifiers and normal fields")
		}
		query[k] = v
	}
	return query, dollarFields == 0, nil
}

func (m *Modifier) checkID(old, new any) error {
	if old == nil {
		return nil
	}
	c, err := m.comp.Compare(old, new)
	if err != nil {
		return err
	}
	if c != 0 {
		return domain.ErrCannotModifyID
	}
	return nil
}

func (m *Modifier) replaceMod(obj domain.Document, qry map[string]any) (domain.Document, error) {
	newDoc, err := m.docFac(qry)
	if err != nil {
		return nil, err
	}
	if id := obj.ID(); id != nil {
		newDoc.Set("_id", id)
	}
	return newDoc, nil
}

func (m *Modifier) dollarMod(obj domain.Document, qry map[string]any) (domain.Document, error) {
	type modCall struct {
		name string
		fn   modFunc
		args map[string]any
	}

	calls := make([]modCall, 0, len(qry))
	for _, modName := range slices.Sorted(maps.Keys(qry)) {
		mod, ok := m.mods[modName]
		if !ok {
			return nil, &domain.ErrUnknownOperator{Operator: modName}
		}
		d, ok := qry[modName].(domain.Document)
		if !ok {
			return nil, fmt.Errorf("modifier %s's argument must be an object", modName)
		}
		calls = append(calls, modCall{name: modName, fn: mod, args: maps.Collect(d.Iter())})
	}

	docCopy := data.Clone(obj)

	for _, call := range calls {
		for _, key := range slices.Sorted(maps.Keys(call.args)) {
			if key == "_id" && call.name != "$set" {
				return nil, domain.ErrCannotModifyID
			}
			addr, err := m.fieldNavigator.GetAddress(key)
			if err != nil {
				return nil, err
			}
			if err := call.fn(docCopy, addr, call.args[key]); err != nil {
				return nil, fmt.Errorf("%s %s: %w", call.name, key, err)
			}
		}
	}

	return docCopy, nil
}

func (m *Modifier) set(obj domain.Document, addr []string, arg any) error {
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		field.Set(arg)
	}
	return nil
}

func (m *Modifier) unset(obj domain.Document, addr []string, _ any) error {
	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if _, defined := field.Get(); defined {
			field.Unset()
		}
	}
	return nil
}

func (m *Modifier) arith(name string, op func(a, b any) any) modFunc {
	return func(obj domain.Document, addr []string, v any) error {
		if !isNumber(v) {
			return fmt.Errorf("%v must be a number", v)
		}
		fields, err := m.fieldNavigator.EnsureField(obj, addr...)
		if err != nil {
			return err
		}
		for _, field := range fields {
			value, _ := field.Get()
			if value == nil {
				// missing fields start from zero, so $mul stores zero
				value = 0
			}
			if !isNumber(value) {
				return fmt.Errorf("cannot apply %s to a value of type %T", name, value)
			}
			field.Set(op(value, v))
		}
		return nil
	}
}

func (m *Modifier) bound(replace func(int) bool) modFunc {
	return func(obj domain.Document, addr []string, v any) error {
		fields, err := m.fieldNavigator.EnsureField(obj, addr...)
		if err != nil {
			return err
		}
		for _, field := range fields {
			value, defined := field.Get()
			if !defined || value == nil {
				field.Set(v)
				continue
			}
			comp, err := m.comp.Compare(value, v)
			if err != nil {
				return err
			}
			if replace(comp) {
				field.Set(v)
			}
		}
		return nil
	}
}

func (m *Modifier) arrays(obj domain.Document, addr []string, ensure bool, name string) ([]domain.GetSetter, [][]any, error) {
	var fields []domain.GetSetter
	var err error
	if ensure {
		fields, err = m.fieldNavigator.EnsureField(obj, addr...)
	} else {
		fields, _, err = m.fieldNavigator.GetField(obj, addr...)
	}
	if err != nil {
		return nil, nil, err
	}
	res := make([][]any, len(fields))
	for n, field := range fields {
		value, defined := field.Get()
		if !defined || value == nil {
			if !ensure {
				fields[n] = fieldnavigator.Undefined()
			}
			continue
		}
		arr, ok := value.([]any)
		if !ok {
			return nil, nil, fmt.Errorf("cannot apply %s to a non-array value", name)
		}
		res[n] = arr
	}
	return fields, res, nil
}

func (m *Modifier) pushProperties(v any) (*pushProps, error) {
	d, ok := v.(domain.Document)
	if !ok || !d.Has("$each") {
		return &pushProps{each: []any{v}}, nil
	}

	res := &pushProps{}
	if res.each, ok = d.Get("$each").([]any); !ok {
		return nil, fmt.Errorf("$each requires an array value")
	}
	for k, v := range d.Iter() {
		switch k {
		case "$each":
		case "$slice":
			s, ok := asInt(v)
			if !ok {
				return nil, fmt.Errorf("$slice requires an integer value")
			}
			res.slice, res.hasSlice = s, true
		case "$position":
			p, ok := asInt(v)
			if !ok {
				return nil, fmt.Errorf("$position requires an integer value")
			}
			res.position, res.hasPos = p, true
		default:
			return nil, fmt.Errorf("unexpected %s in conjunction with $each", k)
		}
	}
	return res, nil
}

func (m *Modifier) push(obj domain.Document, addr []string, v any) error {
	props, err := m.pushProperties(v)
	if err != nil {
		return err
	}
	fields, arrays, err := m.arrays(obj, addr, true, "$push")
	if err != nil {
		return err
	}
	for n, field := range fields {
		array := slices.Clone(arrays[n])

		pos := len(array)
		if props.hasPos {
			pos = props.position
			if pos < 0 {
				pos = max(0, len(array)+pos)
			}
			pos = min(pos, len(array))
		}
		array = slices.Insert(array, pos, props.each...)

		if props.hasSlice {
			if props.slice >= 0 {
				array = array[:min(props.slice, len(array))]
			} else {
				array = array[len(array)+max(props.slice, -len(array)):]
			}
		}
		field.Set(array)
	}
	return nil
}

func (m *Modifier) addToSet(obj domain.Document, addr []string, v any) error {
	props, err := m.pushProperties(v)
	if err != nil {
		return err
	}
	if props.hasSlice || props.hasPos {
		return fmt.Errorf("$addToSet only accepts $each")
	}
	fields, arrays, err := m.arrays(obj, addr, true, "$addToSet")
	if err != nil {
		return err
	}
	for n, field := range fields {
		array := slices.Clone(arrays[n])
		for _, value := range props.each {
			found, err := m.contains(array, value)
			if err != nil {
				return err
			}
			if !found {
				array = append(array, value)
			}
		}
		field.Set(array)
	}
	return nil
}

func (m *Modifier) contains(array []any, value any) (bool, error) {
	for _, item := range array {
		c, err := m.comp.Compare(value, item)
		if err != nil {
			return false, err
		}
		if c == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (m *Modifier) pop(obj domain.Document, addr []string, v any) error {
	num, ok := asInt(v)
	if !ok || (num != 1 && num != -1) {
		return fmt.Errorf("$pop expects 1 or -1, got %v", v)
	}
	fields, arrays, err := m.arrays(obj, addr, false, "$pop")
	if err != nil {
		return err
	}
	for n, field := range fields {
		l := arrays[n]
		if len(l) == 0 {
			continue
		}
		if num > 0 {
			field.Set(slices.Clone(l[:len(l)-1]))
		} else {
			field.Set(slices.Clone(l[1:]))
		}
	}
	return nil
}

func (m *Modifier) pull(obj domain.Document, addr []string, v any) error {
	return m.removeFrom(obj, addr, "$pull", func(item any) (bool, error) {
		if _, ok := v.(domain.Document); ok {
			return m.matcher.Match(item, v)
		}
		c, err := m.comp.Compare(item, v)
		return c == 0, err
	})
}

func (m *Modifier) pullAll(obj domain.Document, addr []string, v any) error {
	values, ok := v.([]any)
	if !ok {
		return fmt.Errorf("$pullAll requires an array value")
	}
	return m.removeFrom(obj, addr, "$pullAll", func(item any) (bool, error) {
		return m.contains(values, item)
	})
}

func (m *Modifier) removeFrom(obj domain.Document, addr []string, name string, remove func(any) (bool, error)) error {
	fields, arrays, err := m.arrays(obj, addr, false, name)
	if err != nil {
		return err
	}
	for n, field := range fields {
		if _, defined := field.Get(); !defined {
			continue
		}
		res := make([]any, 0, len(arrays[n]))
		for _, item := range arrays[n] {
			drop, err := remove(item)
			if err != nil {
				return err
			}
			if !drop {
				res = append(res, item)
			}
		}
		field.Set(res)
	}
	return nil
}

func (m *Modifier) rename(obj domain.Document, addr []string, v any) error {
	to, ok := v.(string)
	if !ok || to == "" {
		return fmt.Errorf("$rename requires a field name")
	}
	if to == "_id" {
		return domain.ErrCannotModifyID
	}
	fields, expanded, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}
	if expanded {
		return fmt.Errorf("$rename cannot go through arrays")
	}
	value, defined := fields[0].Get()
	if !defined {
		return nil
	}
	fields[0].Unset()
	toAddr, err := m.fieldNavigator.GetAddress(to)
	if err != nil {
		return err
	}
	return m.set(obj, toAddr, value)
}

func isNumber(v any) bool {
	_, isInt := asInt64(v)
	_, isFloat := v.(float64)
	_, isFloat32 := v.(float32)
	return isInt || isFloat || isFloat32
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	}
	return 0, false
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	}
	i, _ := asInt64(v)
	return float64(i)
}

func asInt(v any) (int, bool) {
	if i, ok := asInt64(v); ok {
		return int(i), true
	}
	f, ok := v.(float64)
	if ok && f == math.Trunc(f) {
		return int(f), true
	}
	return 0, false
}

// add and mul keep integers integral and switch to float64 on overflow or
// when any side is a float.
func add(a, b any) any {
	x, okX := asInt64(a)
	y, okY := asInt64(b)
	if okX && okY {
		if sum := x + y; (sum > x) == (y > 0) {
			return sum
		}
	}
	return asFloat(a) + asFloat(b)
}

func mul(a, b any) any {
	x, okX := asInt64(a)
	y, okY := asInt64(b)
	if okX && okY {
		if x == 0 || y == 0 {
			return int64(0)
		}
		if prod := x * y; prod/y == x && !(x == -1 && y == math.MinInt64) && !(y == -1 && x == math.MinInt64) {
			return prod
		}
	}
	return asFloat(a) * asFloat(b)
}
