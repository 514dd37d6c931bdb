// Package fieldnavigator resolves dotted field paths inside documents.
package fieldnavigator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// FieldNavigator implements [domain.FieldNavigator].
type FieldNavigator struct {
	docFac domain.DocumentFactory
}

// NewFieldNavigator returns a new instance of [domain.FieldNavigator].
func NewFieldNavigator(docFac domain.DocumentFactory) domain.FieldNavigator {
	return &FieldNavigator{docFac: docFac}
}

// GetAddress implements [domain.FieldNavigator].
func (fn *FieldNavigator) GetAddress(field string) ([]string, error) {
	if field == "" {
		return nil, fmt.Errorf("empty field path")
	}
	parts := strings.Split(field, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("field path %q has an empty segment", field)
		}
	}
	return parts, nil
}

// GetField implements [domain.FieldNavigator]. A non numeric part met on a
// list is applied to every element of the list.
func (fn *FieldNavigator) GetField(obj any, parts ...string) ([]domain.GetSetter, bool, error) {
	if obj == nil || len(parts) == 0 {
		return []domain.GetSetter{undefined{}}, false, nil
	}
	return fn.walk(obj, valueSlot{v: obj}, parts, false, false)
}

// EnsureField implements [domain.FieldNavigator]. Missing documents on the
// way are created and lists are grown to fit numeric parts.
func (fn *FieldNavigator) EnsureField(obj any, parts ...string) ([]domain.GetSetter, error) {
	if obj == nil || len(parts) == 0 {
		return []domain.GetSetter{undefined{}}, nil
	}
	res, _, err := fn.walk(obj, valueSlot{v: obj}, parts, true, false)
	return res, err
}

func (fn *FieldNavigator) walk(v any, addr domain.GetSetter, parts []string, ensure, expanded bool) ([]domain.GetSetter, bool, error) {
	if len(parts) == 0 {
		return []domain.GetSetter{addr}, expanded, nil
	}
	part, rest := parts[0], parts[1:]

	switch t := v.(type) {
	case domain.Document:
		if !t.Has(part) {
			if !ensure {
				return []domain.GetSetter{undefined{}}, expanded, nil
			}
			var child any
			if len(rest) > 0 {
				doc, err := fn.docFac(nil)
				if err != nil {
					return nil, false, err
				}
				child = doc
			}
			t.Set(part, child)
		}
		return fn.walk(t.Get(part), docSlot{doc: t, key: part}, rest, ensure, expanded)

	case []any:
		i, err := strconv.Atoi(part)
		if err == nil {
			return fn.walkIndex(t, addr, i, rest, ensure, expanded)
		}
		if ensure {
			return nil, false, fmt.Errorf("cannot create field %q in a list", part)
		}
		var res []domain.GetSetter
		for n, item := range t {
			if _, ok := item.(domain.Document); !ok {
				continue
			}
			found, _, err := fn.walk(item, indexSlot{list: t, index: n}, parts, false, true)
			if err != nil {
				return nil, false, err
			}
			for _, gs := range found {
				if _, ok := gs.(undefined); !ok {
					res = append(res, gs)
				}
			}
		}
		if len(res) == 0 {
			res = []domain.GetSetter{undefined{}}
		}
		return res, true, nil

	default:
		if ensure && v != nil {
			return nil, false, fmt.Errorf("cannot create field %q in a %T", part, v)
		}
		return []domain.GetSetter{undefined{}}, expanded, nil
	}
}

func (fn *FieldNavigator) walkIndex(list []any, addr domain.GetSetter, i int, rest []string, ensure, expanded bool) ([]domain.GetSetter, bool, error) {
	if i < 0 {
		return []domain.GetSetter{undefined{}}, expanded, nil
	}
	if i >= len(list) {
		if !ensure {
			return []domain.GetSetter{undefined{}}, expanded, nil
		}
		grown := make([]any, i+1)
		copy(grown, list)
		addr.Set(grown)
		list = grown
	}
	if ensure && len(rest) > 0 && list[i] == nil {
		doc, err := fn.docFac(nil)
		if err != nil {
			return nil, false, err
		}
		list[i] = doc
	}
	return fn.walk(list[i], indexSlot{list: list, index: i}, rest, ensure, expanded)
}
