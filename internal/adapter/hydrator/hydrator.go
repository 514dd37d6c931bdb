// Package hydrator resolves references and builds embedded values in raw
// documents after they are fetched.
package hydrator

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/codec"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/projection"
)

// Hydrator mutates raw documents in place, replacing reference ids with
// resolved records and raw embedded documents with constructed values.
type Hydrator struct {
	logger *slog.Logger
}

// NewHydrator returns a new Hydrator.
func NewHydrator(opts ...Option) *Hydrator {
	h := Hydrator{logger: slog.Default()}
	for _, opt := range opts {
		opt(&h)
	}
	return &h
}

// Hydrate resolves every reference path first, then builds every embedded
// value path. Dangling references are dropped.
func (h *Hydrator) Hydrate(ctx context.Context, docs []map[string]any, refs map[string]projection.Reference, subs map[string]projection.Embedded) error {
	if len(docs) == 0 {
		return nil
	}
	for _, path := range slices.Sorted(maps.Keys(refs)) {
		if err := h.dereference(ctx, docs, path, refs[path]); err != nil {
			return fmt.Errorf("dereferencing %s: %w", path, err)
		}
	}
	for _, path := range slices.Sorted(maps.Keys(subs)) {
		if err := h.embed(ctx, docs, path, subs[path]); err != nil {
			return fmt.Errorf("embedding %s: %w", path, err)
		}
	}
	return nil
}

// HydrateProjection expands p and hydrates docs with its side maps.
func (h *Hydrator) HydrateProjection(ctx context.Context, docs []map[string]any, p domain.Projection) error {
	if len(p) == 0 {
		return nil
	}
	res, err := projection.Expand(p)
	if err != nil {
		return err
	}
	return h.Hydrate(ctx, docs, res.Refs, res.Subs)
}

type slot struct {
	parent map[string]any
	key    string
}

func (s slot) value() any { return s.parent[s.key] }

// slots returns the containers holding path, fanning out through lists of
// documents on the way.
func slots(docs []map[string]any, path string) []slot {
	keys := strings.Split(path, ".")
	parents := slices.Clone(docs)
	for _, key := range keys[:len(keys)-1] {
		next := make([]map[string]any, 0, len(parents))
		for _, parent := range parents {
			switch t := parent[key].(type) {
			case map[string]any:
				next = append(next, t)
			case []any:
				for _, item := range t {
					if doc, ok := item.(map[string]any); ok {
						next = append(next, doc)
					}
				}
			}
		}
		parents = next
	}
	last := keys[len(keys)-1]
	res := make([]slot, 0, len(parents))
	for _, parent := range parents {
		if _, ok := parent[last]; ok {
			res = append(res, slot{parent: parent, key: last})
		}
	}
	return res
}

func (h *Hydrator) dereference(ctx context.Context, docs []map[string]any, path string, ref projection.Reference) error {
	found := slots(docs, path)

	seen := make(map[any]bool)
	var ids []any
	collect := func(id any) {
		if id == nil {
			return
		}
		k := codec.IDKey(id)
		if !seen[k] {
			seen[k] = true
			ids = append(ids, id)
		}
	}
	for _, s := range found {
		switch t := s.value().(type) {
		case []any:
			for _, id := range t {
				collect(id)
			}
		case map[string]any:
			for _, k := range slices.Sorted(maps.Keys(t)) {
				collect(t[k])
			}
		default:
			collect(t)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	h.logger.DebugContext(ctx, "resolving references", "path", path, "ids", len(ids))
	resolved, err := ref.Target.Resolve(ctx, ids, ref.Projection)
	if err != nil {
		return err
	}
	byID := make(map[any]any, len(resolved))
	for _, r := range resolved {
		byID[codec.IDKey(r.ID)] = r.Value
	}

	for _, s := range found {
		switch t := s.value().(type) {
		case []any:
			list := make([]any, 0, len(t))
			for _, id := range t {
				if v, ok := byID[codec.IDKey(id)]; ok {
					list = append(list, v)
				}
			}
			s.parent[s.key] = list
		case map[string]any:
			m := make(map[string]any, len(t))
			for k, id := range t {
				if v, ok := byID[codec.IDKey(id)]; ok {
					m[k] = v
				}
			}
			s.parent[s.key] = m
		case nil:
		default:
			if v, ok := byID[codec.IDKey(t)]; ok {
				s.parent[s.key] = v
			} else {
				delete(s.parent, s.key)
			}
		}
	}
	return nil
}

type rawSub struct {
	raw map[string]any
	set func(any)
}

func (h *Hydrator) embed(ctx context.Context, docs []map[string]any, path string, sub projection.Embedded) error {
	var raws []rawSub
	add := func(v any, set func(any)) {
		if raw, ok := v.(map[string]any); ok {
			raws = append(raws, rawSub{raw: raw, set: set})
		}
	}

	for _, s := range slots(docs, path) {
		switch t := s.value().(type) {
		case map[string]any:
			if !sub.Mapped {
				add(t, func(v any) { s.parent[s.key] = v })
				continue
			}
			for k, v := range t {
				add(v, func(v any) { t[k] = v })
			}
		case []any:
			for n, v := range t {
				add(v, func(v any) { t[n] = v })
			}
		}
	}
	if len(raws) == 0 {
		return nil
	}

	p := sub.Projection
	if p == nil {
		p = sub.Target.DefaultProjection()
	}
	nested := make([]map[string]any, len(raws))
	for n, r := range raws {
		nested[n] = r.raw
	}
	if err := h.HydrateProjection(ctx, nested, p); err != nil {
		return err
	}

	h.logger.DebugContext(ctx, "building embedded values", "path", path, "count", len(raws))
	for _, r := range raws {
		v, err := sub.Target.Construct(r.raw)
		if err != nil {
			return err
		}
		r.set(v)
	}
	return nil
}
