package gedm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/codec"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/events"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/hydrator"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/idgenerator"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/projection"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/query"
)

// Listener is called with the records affected by a lifecycle event.
// Transaction events pass nil records.
type Listener[T any] func(ctx context.Context, sender *Spec[T], records []*T) error

// ListenerID identifies a registered [Listener].
type ListenerID = events.ListenerID

// Spec binds the record type T to a collection. It runs the lifecycle
// operations, fires lifecycle events and resolves references to T held by
// other records.
//
// A Spec is safe for concurrent use; the records it handles are not.
type Spec[T any] struct {
	collection string
	opts       options
	typ        reflect.Type
	idType     reflect.Type
	codec      *codec.Codec
	hydrator   *hydrator.Hydrator
	events     *events.Registry[Listener[T]]
}

var _ domain.Target = (*Spec[struct{}])(nil)

// New returns a descriptor binding T to the named collection. T must be a
// struct type; its identity is the field stored as "_id".
func New[T any](collection string, opts ...Option) *Spec[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Spec[T]{
		collection: collection,
		opts:       o,
		typ:        reflect.TypeFor[T](),
		codec:      recordCodec,
		hydrator:   hydrator.NewHydrator(hydrator.WithLogger(o.logger)),
		events:     events.NewRegistry[Listener[T]](),
	}
	s.idType, _ = s.codec.IDType(s.typ)
	return s
}

func defaultOptions() options {
	return options{
		logger:      slog.Default(),
		idGenerator: idgenerator.NewIDGenerator(),
		timeGetter:  time.Now,
	}
}

// Name returns the collection name.
func (s *Spec[T]) Name() string {
	return s.collection
}

// Store returns the bound store, falling back to the process default.
func (s *Spec[T]) Store() (domain.Store, error) {
	if s.opts.store != nil {
		return s.opts.store, nil
	}
	if st := DefaultStore(); st != nil {
		return st, nil
	}
	return nil, ErrNoStore
}

// Collection returns the store collection handle.
func (s *Spec[T]) Collection() (domain.Collection, error) {
	st, err := s.Store()
	if err != nil {
		return nil, err
	}
	return st.Collection(s.collection), nil
}

// DefaultProjection returns the projection used by reads that don't pass
// one.
func (s *Spec[T]) DefaultProjection() Projection {
	return s.opts.defaultProjection
}

// Ref returns a projection node resolving the field it is set on to records
// of this spec. Nested projections narrow the secondary fetch.
func (s *Spec[T]) Ref(nested ...Projection) Projection {
	return projection.Ref(s, nested...)
}

// Listen registers fn for event and returns its id.
func (s *Spec[T]) Listen(event Event, fn Listener[T]) ListenerID {
	return s.events.Listen(event, fn)
}

// StopListening removes a listener. It reports whether the listener was
// registered for event.
func (s *Spec[T]) StopListening(event Event, id ListenerID) bool {
	return s.events.StopListening(event, id)
}

func (s *Spec[T]) fire(ctx context.Context, event Event, records []*T) error {
	return s.events.Fire(event, func(fn Listener[T]) error {
		return fn(ctx, s, records)
	})
}

// Stamp registers listeners that touch records implementing [Stamper]
// before they are inserted or updated, using the spec time getter.
func (s *Spec[T]) Stamp() (insert, update ListenerID) {
	touch := func(_ context.Context, _ *Spec[T], records []*T) error {
		now := s.opts.timeGetter()
		for _, r := range records {
			if st, ok := any(r).(Stamper); ok {
				st.Touch(now)
			}
		}
		return nil
	}
	return s.Listen(EventInsert, touch), s.Listen(EventUpdate, touch)
}

// Insert writes r, assigning its identity when absent.
func (s *Spec[T]) Insert(ctx context.Context, r *T) error {
	return s.InsertMany(ctx, r)
}

// InsertMany writes every record in one batch. Identities are generated
// client side for object id and string id fields; other identities are
// read back from the store.
func (s *Spec[T]) InsertMany(ctx context.Context, rs ...*T) error {
	if len(rs) == 0 {
		return nil
	}
	coll, err := s.Collection()
	if err != nil {
		return err
	}
	for _, r := range rs {
		if err := s.assignID(r); err != nil {
			return err
		}
	}
	if err := s.fire(ctx, EventInsert, rs); err != nil {
		return err
	}

	docs := make([]map[string]any, len(rs))
	for n, r := range rs {
		if docs[n], err = s.codec.ToDict(r); err != nil {
			return err
		}
	}
	ids, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return err
	}
	for n, r := range rs {
		if _, ok := s.codec.IDOf(r); !ok && s.idType != nil && n < len(ids) {
			if err := s.codec.SetID(r, ids[n]); err != nil {
				return err
			}
		}
	}
	s.opts.logger.DebugContext(ctx, "inserted records", slog.String("collection", s.collection), slog.Int("count", len(rs)))
	return s.fire(ctx, EventInserted, rs)
}

func (s *Spec[T]) assignID(r *T) error {
	if r == nil {
		return s.invalid(errors.New("nil record"))
	}
	if _, ok := s.codec.IDOf(r); ok || s.idType == nil {
		return nil
	}
	id, err := s.opts.idGenerator.GenerateID(s.idType)
	if err != nil {
		return err
	}
	if id != nil {
		return s.codec.SetID(r, id)
	}
	if !s.codec.HoldsObjectID(s.idType) {
		return s.invalid(fmt.Errorf("identity of type %s must be set before insert", s.idType))
	}
	return nil
}

func (s *Spec[T]) idOf(r *T) (any, error) {
	if r == nil {
		return nil, s.invalid(errors.New("nil record"))
	}
	id, ok := s.codec.IDOf(r)
	if !ok {
		return nil, s.invalid(errors.New("record has no identity"))
	}
	return id, nil
}

func (s *Spec[T]) idsOf(rs []*T) ([]any, error) {
	ids := make([]any, len(rs))
	for n, r := range rs {
		id, err := s.idOf(r)
		if err != nil {
			return nil, err
		}
		ids[n] = id
	}
	return ids, nil
}

func (s *Spec[T]) invalid(cause error) error {
	return &ErrValidation{Type: s.typ.String(), Cause: cause}
}

// Update writes r. With no fields, every declared field except the identity
// is written and fields left out of the document are unset. Otherwise only
// the given dotted paths are written.
func (s *Spec[T]) Update(ctx context.Context, r *T, fields ...string) error {
	return s.UpdateMany(ctx, []*T{r}, fields...)
}

// UpdateMany runs [Spec.Update] for every record, firing events once.
func (s *Spec[T]) UpdateMany(ctx context.Context, rs []*T, fields ...string) error {
	if len(rs) == 0 {
		return nil
	}
	coll, err := s.Collection()
	if err != nil {
		return err
	}
	ids, err := s.idsOf(rs)
	if err != nil {
		return err
	}
	if err := s.fire(ctx, EventUpdate, rs); err != nil {
		return err
	}
	for n, r := range rs {
		upd, err := s.updateDoc(r, fields)
		if err != nil {
			return err
		}
		if len(upd) == 0 {
			continue
		}
		if _, err := coll.UpdateOne(ctx, map[string]any{codec.IDField: ids[n]}, upd); err != nil {
			return err
		}
	}
	s.opts.logger.DebugContext(ctx, "updated records", slog.String("collection", s.collection), slog.Int("count", len(rs)))
	return s.fire(ctx, EventUpdated, rs)
}

func (s *Spec[T]) updateDoc(r *T, fields []string) (map[string]any, error) {
	doc, err := s.codec.ToDict(r)
	if err != nil {
		return nil, err
	}
	set := map[string]any{}
	unset := map[string]any{}
	if len(fields) == 0 {
		projection.RemoveKeys(doc, codec.IDField)
		set = doc
		for _, f := range s.codec.Fields(s.typ) {
			if _, ok := doc[f]; !ok && f != codec.IDField {
				unset[f] = ""
			}
		}
	} else {
		for _, f := range fields {
			if v, ok := projection.Lookup(doc, f); ok {
				set[f] = v
			} else {
				unset[f] = ""
			}
		}
	}
	upd := map[string]any{}
	if len(set) > 0 {
		upd["$set"] = set
	}
	if len(unset) > 0 {
		upd["$unset"] = unset
	}
	return upd, nil
}

// Unset resets the given dotted paths of r to their zero value, which is
// the unset state of [Opt], and removes them from the stored document.
func (s *Spec[T]) Unset(ctx context.Context, r *T, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	coll, err := s.Collection()
	if err != nil {
		return err
	}
	id, err := s.idOf(r)
	if err != nil {
		return err
	}
	rs := []*T{r}
	if err := s.fire(ctx, EventUpdate, rs); err != nil {
		return err
	}
	unset := make(map[string]any, len(fields))
	for _, f := range fields {
		if err := s.codec.ClearField(r, f); err != nil {
			return err
		}
		unset[f] = ""
	}
	if _, err := coll.UpdateOne(ctx, map[string]any{codec.IDField: id}, map[string]any{"$unset": unset}); err != nil {
		return err
	}
	return s.fire(ctx, EventUpdated, rs)
}

// Upsert updates r when it has an identity and inserts it otherwise. No
// concurrency guard is applied: the last writer wins.
func (s *Spec[T]) Upsert(ctx context.Context, r *T) error {
	if r != nil {
		if _, ok := s.codec.IDOf(r); ok {
			return s.Update(ctx, r)
		}
	}
	return s.Insert(ctx, r)
}

// Delete removes the stored document of r. The record itself is left as
// is.
func (s *Spec[T]) Delete(ctx context.Context, r *T) error {
	return s.DeleteMany(ctx, r)
}

// DeleteMany removes the stored documents of every record in one call.
func (s *Spec[T]) DeleteMany(ctx context.Context, rs ...*T) error {
	if len(rs) == 0 {
		return nil
	}
	coll, err := s.Collection()
	if err != nil {
		return err
	}
	ids, err := s.idsOf(rs)
	if err != nil {
		return err
	}
	if err := s.fire(ctx, EventDelete, rs); err != nil {
		return err
	}
	if _, err := coll.DeleteMany(ctx, map[string]any{codec.IDField: map[string]any{"$in": ids}}); err != nil {
		return err
	}
	s.opts.logger.DebugContext(ctx, "deleted records", slog.String("collection", s.collection), slog.Int("count", len(rs)))
	return s.fire(ctx, EventDeleted, rs)
}

// ByID returns the record with the given identity, or [ErrNotFound].
func (s *Spec[T]) ByID(ctx context.Context, id any, opts ...FindOption) (*T, error) {
	return s.One(ctx, query.M{codec.IDField: id}, opts...)
}

// One returns the first record matching filter, or [ErrNotFound].
func (s *Spec[T]) One(ctx context.Context, filter Filter, opts ...FindOption) (*T, error) {
	res, err := s.find(ctx, filter, opts, true)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// Many returns every record matching filter. References and embedded
// values flagged by the projection are hydrated.
func (s *Spec[T]) Many(ctx context.Context, filter Filter, opts ...FindOption) ([]*T, error) {
	return s.find(ctx, filter, opts, false)
}

func (s *Spec[T]) find(ctx context.Context, filter Filter, opts []FindOption, one bool) ([]*T, error) {
	coll, err := s.Collection()
	if err != nil {
		return nil, err
	}
	q, err := s.filterDoc(filter)
	if err != nil {
		return nil, err
	}
	fo := domain.NewFindOptions(opts...)
	p := fo.Projection
	if p == nil {
		p = s.opts.defaultProjection
	}
	exp, err := projection.Expand(p)
	if err != nil {
		return nil, err
	}
	findOpts := []FindOption{
		WithSort(fo.Sort),
		WithSkip(fo.Skip),
		WithLimit(fo.Limit),
		WithProjection(exp.Flat),
	}

	var raws []map[string]any
	if one {
		raw, err := coll.FindOne(ctx, q, findOpts...)
		if err != nil {
			return nil, err
		}
		raws = []map[string]any{raw}
	} else if raws, err = coll.Find(ctx, q, findOpts...); err != nil {
		return nil, err
	}
	s.opts.logger.DebugContext(ctx, "fetched documents", slog.String("collection", s.collection), slog.Int("count", len(raws)))

	if err := s.hydrator.Hydrate(ctx, raws, exp.Refs, exp.Subs); err != nil {
		return nil, err
	}
	res := make([]*T, len(raws))
	for n, raw := range raws {
		r := new(T)
		if err := s.codec.FromDict(raw, r); err != nil {
			return nil, err
		}
		res[n] = r
	}
	return res, nil
}

func (s *Spec[T]) filterDoc(filter Filter) (map[string]any, error) {
	doc := query.Render(filter)
	if len(doc) == 0 {
		return map[string]any{}, nil
	}
	conv, err := s.codec.ToRefs(doc)
	if err != nil {
		return nil, err
	}
	return conv.(map[string]any), nil
}

// Count counts the records matching filter.
func (s *Spec[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	coll, err := s.Collection()
	if err != nil {
		return 0, err
	}
	q, err := s.filterDoc(filter)
	if err != nil {
		return 0, err
	}
	return coll.CountDocuments(ctx, q)
}

// IDs returns the identities of the records matching filter.
func (s *Spec[T]) IDs(ctx context.Context, filter Filter) ([]any, error) {
	coll, err := s.Collection()
	if err != nil {
		return nil, err
	}
	q, err := s.filterDoc(filter)
	if err != nil {
		return nil, err
	}
	docs, err := coll.Find(ctx, q, WithProjection(Projection{codec.IDField: true}))
	if err != nil {
		return nil, err
	}
	ids := make([]any, len(docs))
	for n, doc := range docs {
		ids[n] = doc[codec.IDField]
	}
	return ids, nil
}

// Reload fetches r again by identity and overwrites it.
func (s *Spec[T]) Reload(ctx context.Context, r *T, opts ...FindOption) error {
	id, err := s.idOf(r)
	if err != nil {
		return err
	}
	fresh, err := s.ByID(ctx, id, opts...)
	if err != nil {
		return err
	}
	*r = *fresh
	return nil
}

// Resolve implements [domain.Target].
func (s *Spec[T]) Resolve(ctx context.Context, ids []any, p Projection) ([]domain.Resolved, error) {
	var opts []FindOption
	if p != nil {
		opts = append(opts, WithProjection(p))
	}
	records, err := s.Many(ctx, query.M{codec.IDField: map[string]any{"$in": ids}}, opts...)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Resolved, 0, len(records))
	for _, r := range records {
		if id, ok := s.codec.IDOf(r); ok {
			res = append(res, domain.Resolved{ID: id, Value: r})
		}
	}
	return res, nil
}

// Transaction runs fn inside a store transaction. See [RunTransaction].
// The spec fires [EventTransactionCommitted] or [EventTransactionAborted]
// once the outcome is known.
func (s *Spec[T]) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	st, err := s.Store()
	if err != nil {
		return err
	}
	return runTransaction(ctx, st, s.opts.logger, fn, func(ctx context.Context, event Event) error {
		return s.fire(ctx, event, nil)
	})
}

// CreateIndex creates an index over keys and returns its name.
func (s *Spec[T]) CreateIndex(ctx context.Context, keys Sort, opts ...IndexOption) (string, error) {
	coll, err := s.Collection()
	if err != nil {
		return "", err
	}
	return coll.CreateIndex(ctx, keys, opts...)
}

// DropIndex removes the named index.
func (s *Spec[T]) DropIndex(ctx context.Context, name string) error {
	coll, err := s.Collection()
	if err != nil {
		return err
	}
	return coll.DropIndex(ctx, name)
}

// ListIndexes describes the indexes of the collection.
func (s *Spec[T]) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	coll, err := s.Collection()
	if err != nil {
		return nil, err
	}
	return coll.ListIndexes(ctx)
}

// ToDict converts r to a raw document.
func (s *Spec[T]) ToDict(r *T) (map[string]any, error) {
	return s.codec.ToDict(r)
}

// FromDict builds a record out of a raw document.
func (s *Spec[T]) FromDict(raw map[string]any) (*T, error) {
	r := new(T)
	if err := s.codec.FromDict(raw, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ToJSONType converts r to a document holding only JSON-safe values.
func (s *Spec[T]) ToJSONType(r *T) (map[string]any, error) {
	return s.codec.ToJSONType(r)
}

// Encode serializes r to BSON.
func (s *Spec[T]) Encode(r *T) ([]byte, error) {
	return s.codec.Encode(r)
}

// Decode builds a record out of BSON produced by [Spec.Encode].
func (s *Spec[T]) Decode(b []byte) (*T, error) {
	r := new(T)
	if err := s.codec.Decode(b, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Fields returns the document field names declared by T.
func (s *Spec[T]) Fields() []string {
	return s.codec.Fields(s.typ)
}

// ToRefs replaces records found in v with their identities.
func (s *Spec[T]) ToRefs(v any) (any, error) {
	return s.codec.ToRefs(v)
}
