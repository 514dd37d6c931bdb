package gedm

import (
	"context"

	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/codec"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/projection"
)

// Cascade deletes the records of target referenced by field in records. It
// is meant to run from a deleted listener and fires no events.
func Cascade[T, R any](ctx context.Context, target *Spec[R], field string, records []*T) error {
	var ids []any
	for _, r := range records {
		if r == nil {
			continue
		}
		doc, err := recordCodec.ToDict(r)
		if err != nil {
			return err
		}
		v, ok := projection.Lookup(doc, field)
		if !ok || v == nil {
			continue
		}
		ids = append(ids, flatten(v)...)
	}
	if len(ids) == 0 {
		return nil
	}
	coll, err := target.Collection()
	if err != nil {
		return err
	}
	_, err = coll.DeleteMany(ctx, map[string]any{codec.IDField: map[string]any{"$in": ids}})
	return err
}

// Nullify sets field to null in the records of target referencing any of
// records. It fires no events.
func Nullify[T, R any](ctx context.Context, target *Spec[R], field string, records []*T) error {
	return integrityUpdate(ctx, target, field, records, func(ids []any) map[string]any {
		return map[string]any{"$set": map[string]any{field: nil}}
	})
}

// Pull removes the references to records from the list field of the
// records of target. It fires no events.
func Pull[T, R any](ctx context.Context, target *Spec[R], field string, records []*T) error {
	return integrityUpdate(ctx, target, field, records, func(ids []any) map[string]any {
		return map[string]any{"$pull": map[string]any{field: map[string]any{"$in": ids}}}
	})
}

func integrityUpdate[T, R any](ctx context.Context, target *Spec[R], field string, records []*T, update func([]any) map[string]any) error {
	ids := make([]any, 0, len(records))
	for _, r := range records {
		if id, ok := recordCodec.IDOf(r); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	coll, err := target.Collection()
	if err != nil {
		return err
	}
	_, err = coll.UpdateMany(ctx, map[string]any{field: map[string]any{"$in": ids}}, update(ids))
	return err
}

func flatten(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		if id, ok := t[codec.IDField]; ok {
			return []any{id}
		}
		return nil
	}
	return []any{v}
}
