// Package projector contains the default [domain.Projector] implementation.
package projector

import (
	"fmt"
	"maps"
	"slices"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/matcher"
)

// Projector implements [domain.Projector].
type Projector struct {
	fn      domain.FieldNavigator
	docFac  domain.DocumentFactory
	matcher domain.Matcher
}

// Option configures a [Projector].
type Option func(*Projector)

// WithFieldNavigator replaces the navigator used to resolve paths.
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(p *Projector) { p.fn = fn }
}

// WithDocumentFactory replaces the factory used for projected documents.
func WithDocumentFactory(f domain.DocumentFactory) Option {
	return func(p *Projector) { p.docFac = f }
}

// WithMatcher replaces the matcher used by $elemMatch.
func WithMatcher(m domain.Matcher) Option {
	return func(p *Projector) { p.matcher = m }
}

// NewProjector returns a new implementation of [domain.Projector].
func NewProjector(opts ...Option) domain.Projector {
	p := &Projector{docFac: data.NewDocument}
	for _, opt := range opts {
		opt(p)
	}
	if p.fn == nil {
		p.fn = fieldnavigator.NewFieldNavigator(p.docFac)
	}
	if p.matcher == nil {
		p.matcher = matcher.NewMatcher(matcher.WithFieldNavigator(p.fn))
	}
	return p
}

// pathTree holds projected paths split by segment.
type pathTree map[string]pathTree

func (t pathTree) add(addr []string) {
	node := t
	for n, part := range addr {
		child, ok := node[part]
		if ok && len(child) == 0 {
			// an ancestor is already projected whole
			return
		}
		if !ok {
			child = pathTree{}
			node[part] = child
		}
		if n == len(addr)-1 {
			clear(child)
		}
		node = child
	}
}

type directive struct {
	addr []string
	name string
	arg  any
}

// Project implements [domain.Projector]. Values are true or false (or 1 and
// 0) for inclusion and exclusion, or a document holding $slice or
// $elemMatch.
func (q *Projector) Project(docs []domain.Document, p map[string]any) ([]domain.Document, error) {
	if len(p) == 0 {
		return docs, nil
	}

	keepID := true
	include, exclude := pathTree{}, pathTree{}
	var directives []directive

	for _, field := range slices.Sorted(maps.Keys(p)) {
		addr, err := q.fn.GetAddress(field)
		if err != nil {
			return nil, err
		}
		value := p[field]
		if n, ok := asInt(value); ok {
			value = n != 0
		}
		switch value := value.(type) {
		case bool:
			if field == "_id" {
				keepID = value
			} else if value {
				include.add(addr)
			} else {
				exclude.add(addr)
			}
		case map[string]any, data.M:
			dirs, err := data.NewDocument(value)
			if err != nil {
				return nil, err
			}
			for name, arg := range dirs.Iter() {
				switch name {
				case "$elemMatch":
					include.add(addr)
				case "$slice":
				default:
					return nil, &domain.ErrUnknownOperator{Operator: name}
				}
				directives = append(directives, directive{addr: addr, name: name, arg: arg})
			}
		default:
			return nil, fmt.Errorf("invalid projection value %v for %s", value, field)
		}
	}

	if len(include) > 0 && len(exclude) > 0 {
		return nil, fmt.Errorf("can't both keep and omit fields except for _id")
	}
	_, onlyID := p["_id"]
	inclusive := len(include) > 0 || (onlyID && keepID && len(p) == 1)

	res := make([]domain.Document, len(docs))
	for n, doc := range docs {
		var projected domain.Document
		var err error
		if inclusive {
			projected, err = q.keep(doc, include)
		} else {
			projected, err = q.omit(doc, exclude)
		}
		if err != nil {
			return nil, err
		}

		for _, d := range directives {
			if err := q.apply(doc, projected, d); err != nil {
				return nil, err
			}
		}

		if keepID && doc.Has("_id") {
			projected.Set("_id", doc.ID())
		} else {
			projected.Unset("_id")
		}
		res[n] = projected
	}

	return res, nil
}

func (q *Projector) keep(doc domain.Document, tree pathTree) (domain.Document, error) {
	res, err := q.docFac(nil)
	if err != nil {
		return nil, err
	}
	for key, sub := range tree {
		if !doc.Has(key) {
			continue
		}
		value := doc.Get(key)
		if len(sub) == 0 {
			res.Set(key, data.CloneValue(value))
			continue
		}
		kept, ok, err := q.keepValue(value, sub)
		if err != nil {
			return nil, err
		}
		if ok {
			res.Set(key, kept)
		}
	}
	return res, nil
}

// keepValue narrows a nested value. Lists keep their documents narrowed
// and drop anything else.
func (q *Projector) keepValue(value any, tree pathTree) (any, bool, error) {
	switch t := value.(type) {
	case domain.Document:
		kept, err := q.keep(t, tree)
		return kept, err == nil, err
	case []any:
		res := make([]any, 0, len(t))
		for _, item := range t {
			doc, ok := item.(domain.Document)
			if !ok {
				continue
			}
			kept, err := q.keep(doc, tree)
			if err != nil {
				return nil, false, err
			}
			res = append(res, kept)
		}
		return res, true, nil
	default:
		return nil, false, nil
	}
}

func (q *Projector) omit(doc domain.Document, tree pathTree) (domain.Document, error) {
	res, err := q.docFac(nil)
	if err != nil {
		return nil, err
	}
	for key, value := range doc.Iter() {
		sub, listed := tree[key]
		switch {
		case !listed:
			res.Set(key, data.CloneValue(value))
		case len(sub) > 0:
			omitted, err := q.omitValue(value, sub)
			if err != nil {
				return nil, err
			}
			res.Set(key, omitted)
		}
	}
	return res, nil
}

func (q *Projector) omitValue(value any, tree pathTree) (any, error) {
	switch t := value.(type) {
	case domain.Document:
		return q.omit(t, tree)
	case []any:
		res := make([]any, len(t))
		for n, item := range t {
			omitted, err := q.omitValue(item, tree)
			if err != nil {
				return nil, err
			}
			res[n] = omitted
		}
		return res, nil
	default:
		return data.CloneValue(value), nil
	}
}

func (q *Projector) apply(src, dst domain.Document, d directive) error {
	fields, expanded, err := q.fn.GetField(src, d.addr...)
	if err != nil {
		return err
	}
	if expanded {
		return fmt.Errorf("%s projection cannot go through arrays", d.name)
	}
	value, defined := fields[0].Get()
	list, isList := value.([]any)
	if !defined || !isList {
		return nil
	}

	var result []any
	switch d.name {
	case "$slice":
		result, err = slice(list, d.arg)
		if err != nil {
			return err
		}
	case "$elemMatch":
		for _, item := range list {
			matches, err := q.matcher.Match(item, d.arg)
			if err != nil {
				return err
			}
			if matches {
				result = []any{item}
				break
			}
		}
		if result == nil {
			targets, _, err := q.fn.GetField(dst, d.addr...)
			if err != nil {
				return err
			}
			for _, t := range targets {
				t.Unset()
			}
			return nil
		}
	}

	targets, err := q.fn.EnsureField(dst, d.addr...)
	if err != nil {
		return err
	}
	for _, t := range targets {
		t.Set(data.CloneValue(result))
	}
	return nil
}

func slice(list []any, arg any) ([]any, error) {
	skip, limit := 0, 0
	switch t := arg.(type) {
	case []any:
		if len(t) != 2 {
			return nil, fmt.Errorf("$slice expects a number or [skip, limit]")
		}
		var ok bool
		if skip, ok = asInt(t[0]); !ok {
			return nil, fmt.Errorf("$slice skip must be an integer")
		}
		if limit, ok = asInt(t[1]); !ok || limit <= 0 {
			return nil, fmt.Errorf("$slice limit must be a positive integer")
		}
	default:
		n, ok := asInt(arg)
		if !ok {
			return nil, fmt.Errorf("$slice expects a number or [skip, limit]")
		}
		if n >= 0 {
			limit = n
		} else {
			skip, limit = n, -n
		}
	}
	if skip < 0 {
		skip = max(0, len(list)+skip)
	}
	skip = min(skip, len(list))
	return list[skip:min(len(list), skip+limit)], nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
