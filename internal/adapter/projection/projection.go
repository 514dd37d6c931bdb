// Package projection expands reference-aware projections.
//
// A projection may hold marker nodes flagging fields that must be resolved
// after the fetch: "$ref" nodes point to another collection and "$sub" or
// "$sub." nodes build embedded values (a single value or list for "$sub", a
// map of values for "$sub."). [Expand] turns such a projection into the flat
// dotted projection sent to the store, plus the side maps consumed by the
// hydrator.
package projection

import (
	"fmt"
	"maps"
	"strings"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Marker keys.
const (
	RefKey    = "$ref"
	SubKey    = "$sub"
	SubMapKey = "$sub."
)

// Reference is a field resolved by a secondary fetch.
type Reference struct {
	Target domain.Target
	// Projection is applied to the secondary fetch. Nil means the
	// target's default projection.
	Projection domain.Projection
}

// Embedded is a field holding embedded values.
type Embedded struct {
	Target domain.SubTarget
	// Mapped is set for "$sub." nodes, whose value is a map of embedded
	// values.
	Mapped bool
	// Projection hydrates the embedded values. Nil means the target's
	// default projection.
	Projection domain.Projection
}

// Result is the outcome of [Expand].
type Result struct {
	// Flat is the projection sent to the store. Nil means the fetch is
	// not restricted.
	Flat domain.Projection
	Refs map[string]Reference
	Subs map[string]Embedded
}

// Ref builds a reference marker node. Nested projections narrow the
// secondary fetch.
func Ref(target domain.Target, nested ...domain.Projection) domain.Projection {
	return marker(RefKey, target, nested)
}

// Sub builds an embedded value marker node for a single value or a list.
func Sub(target domain.SubTarget, nested ...domain.Projection) domain.Projection {
	return marker(SubKey, target, nested)
}

// SubMap builds an embedded value marker node for a map of values.
func SubMap(target domain.SubTarget, nested ...domain.Projection) domain.Projection {
	return marker(SubMapKey, target, nested)
}

func marker(key string, target any, nested []domain.Projection) domain.Projection {
	node := domain.Projection{key: target}
	for _, n := range nested {
		maps.Copy(node, n)
	}
	return node
}

// Expand flattens p. Markers alone don't restrict the fetch: a projection
// holding only markers without narrowing keys returns a nil Flat.
func Expand(p domain.Projection) (Result, error) {
	res := Result{
		Flat: domain.Projection{},
		Refs: map[string]Reference{},
		Subs: map[string]Embedded{},
	}
	if len(p) == 0 {
		res.Flat = nil
		return res, nil
	}
	e := expander{res: &res}
	narrowed, err := e.expand("", p, res.Flat, true)
	if err != nil {
		return Result{}, err
	}
	e.applyRefs(res.Flat)
	if !narrowed {
		res.Flat = nil
	}
	return res, nil
}

type expander struct {
	res      *Result
	refPaths []string
}

func (e *expander) expand(prefix string, node, flat domain.Projection, record bool) (bool, error) {
	narrowed := false
	for key, value := range node {
		if isMarkerKey(key) {
			continue
		}

		if strings.HasPrefix(key, "$") {
			if prefix == "" {
				return false, fmt.Errorf("projection directive %s needs a field", key)
			}
			directive, _ := flat[prefix].(map[string]any)
			if directive == nil {
				directive = map[string]any{}
			}
			directive[key] = value
			flat[prefix] = directive
			narrowed = true
			continue
		}

		path := join(prefix, key)
		sub, isNode := value.(map[string]any)
		if !isNode {
			flat[path] = literal(value)
			narrowed = true
			continue
		}

		subNarrowed, err := e.expandNode(path, sub, flat, record)
		if err != nil {
			return false, err
		}
		narrowed = narrowed || subNarrowed
	}
	return narrowed, nil
}

func (e *expander) expandNode(path string, node, flat domain.Projection, record bool) (bool, error) {
	if target, ok := node[RefKey]; ok {
		t, ok := target.(domain.Target)
		if !ok {
			return false, fmt.Errorf("projection %s: %T cannot be referenced", path, target)
		}
		if record {
			e.res.Refs[path] = Reference{Target: t, Projection: rest(node)}
		}
		e.refPaths = append(e.refPaths, path)
		flat[path] = true
		return false, nil
	}

	_, isSub := node[SubKey]
	_, isSubMap := node[SubMapKey]
	if isSub || isSubMap {
		target := node[SubKey]
		if isSubMap {
			target = node[SubMapKey]
		}
		t, ok := target.(domain.SubTarget)
		if !ok {
			return false, fmt.Errorf("projection %s: %T cannot be embedded", path, target)
		}
		if record {
			e.res.Subs[path] = Embedded{Target: t, Mapped: isSubMap, Projection: rest(node)}
		}
		return e.collapse(path, node, flat, false)
	}

	return e.collapse(path, node, flat, record)
}

// collapse expands the children of a node, replacing them with a single
// inclusion when they don't narrow the node. Markers nested below a sub
// document are resolved when the sub document itself is hydrated, so they
// are not recorded here.
func (e *expander) collapse(path string, node, flat domain.Projection, record bool) (bool, error) {
	children := domain.Projection{}
	narrowed, err := e.expand(path, node, children, record)
	if err != nil {
		return false, err
	}
	if !narrowed {
		flat[path] = true
		return false, nil
	}
	maps.Copy(flat, children)
	return true, nil
}

// applyRefs makes references win over literal inclusions on the same path
// or below it. References already covered by an included ancestor are left
// to the ancestor.
func (e *expander) applyRefs(flat domain.Projection) {
	for _, path := range e.refPaths {
		if coveredByAncestor(flat, path) {
			delete(flat, path)
			continue
		}
		for key := range flat {
			if strings.HasPrefix(key, path+".") {
				delete(flat, key)
			}
		}
		flat[path] = true
	}
}

func coveredByAncestor(flat domain.Projection, path string) bool {
	for i := range len(path) {
		if path[i] != '.' {
			continue
		}
		if included, _ := flat[path[:i]].(bool); included {
			return true
		}
	}
	return false
}

func isMarkerKey(key string) bool {
	return key == RefKey || key == SubKey || key == SubMapKey
}

func rest(node domain.Projection) domain.Projection {
	res := make(domain.Projection, len(node))
	for key, value := range node {
		if !isMarkerKey(key) {
			res[key] = value
		}
	}
	if len(res) == 0 {
		return nil
	}
	return res
}

func literal(v any) any {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return v
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
