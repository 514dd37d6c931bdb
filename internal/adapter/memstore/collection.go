package memstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/codec"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/index"
)

// ErrInvalidField is returned when a stored document has a field name that
// starts with $ or contains a dot.
type ErrInvalidField struct {
	Field string
}

func (e ErrInvalidField) Error() string {
	return fmt.Sprintf("field names cannot begin with the $ character or contain a dot: %q", e.Field)
}

// collection holds the documents of a collection and their indexes.
type collection struct {
	store      *Store
	name       string
	docs       []domain.Document
	indexes    map[string]domain.Index
	indexOrder []string
}

func newCollection(s *Store, name string) (*collection, error) {
	c := &collection{store: s, name: name, indexes: make(map[string]domain.Index)}
	if err := c.addIndex(domain.IndexInfo{
		Name:   idIndex,
		Keys:   domain.Sort{{Key: "_id", Order: 1}},
		Unique: true,
	}); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *collection) addIndex(info domain.IndexInfo) error {
	idx, err := c.store.newIndex(info)
	if err != nil {
		return err
	}
	if err := idx.Reset(c.docs...); err != nil {
		return err
	}
	c.indexes[info.Name] = idx
	c.indexOrder = append(c.indexOrder, info.Name)
	return nil
}

// clone returns a deep copy of the collection with rebuilt indexes.
func (c *collection) clone() (*collection, error) {
	res := &collection{
		store:   c.store,
		name:    c.name,
		docs:    make([]domain.Document, len(c.docs)),
		indexes: make(map[string]domain.Index, len(c.indexes)),
	}
	for n, doc := range c.docs {
		res.docs[n] = data.Clone(doc)
	}
	for _, name := range c.indexOrder {
		if err := res.addIndex(c.indexes[name].Info()); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// candidates narrows the scan through the _id index when the filter pins
// the _id to a value or a $in list.
func (c *collection) candidates(filter map[string]any) []domain.Document {
	id, ok := filter["_id"]
	if !ok {
		return c.docs
	}
	var values []any
	switch t := id.(type) {
	case map[string]any:
		in, ok := t["$in"].([]any)
		if !ok || len(t) != 1 {
			return c.docs
		}
		values = in
	case primitive.M:
		in, ok := t["$in"].(primitive.A)
		if !ok || len(t) != 1 {
			return c.docs
		}
		values = in
	case data.M, []any, primitive.A, primitive.Regex:
		return c.docs
	default:
		values = []any{id}
	}
	return c.indexes[idIndex].GetMatching(values...)
}

func (c *collection) query(filter map[string]any, opts ...domain.QueryOption) ([]domain.Document, error) {
	qry, err := c.store.docFac(filter)
	if err != nil {
		return nil, fmt.Errorf("reading filter: %w", err)
	}
	opts = append([]domain.QueryOption{domain.WithQuery(qry)}, opts...)
	return c.store.querier.Query(c.candidates(filter), opts...)
}

func (c *collection) insert(docs []domain.Document) error {
	inserted := 0
	var err error
	for _, name := range c.indexOrder {
		if err = c.indexes[name].Insert(docs...); err != nil {
			break
		}
		inserted++
	}
	if err != nil {
		for _, name := range c.indexOrder[:inserted] {
			if removeErr := c.indexes[name].Remove(docs...); removeErr != nil {
				return errors.Join(err, removeErr)
			}
		}
		return err
	}
	c.docs = append(c.docs, docs...)
	return nil
}

type update struct {
	old domain.Document
	new domain.Document
}

func (c *collection) update(mods []update) error {
	for n, mod := range mods {
		if err := c.updateIndexes(mod); err != nil {
			for _, done := range slices.Backward(mods[:n]) {
				if revertErr := c.updateIndexes(update{old: done.new, new: done.old}); revertErr != nil {
					return errors.Join(err, revertErr)
				}
			}
			return err
		}
	}
	for _, mod := range mods {
		if i := slices.IndexFunc(c.docs, func(d domain.Document) bool { return sameDoc(d, mod.old) }); i >= 0 {
			c.docs[i] = mod.new
		}
	}
	return nil
}

func (c *collection) updateIndexes(mod update) error {
	updated := 0
	var err error
	for _, name := range c.indexOrder {
		if err = c.indexes[name].Update(mod.old, mod.new); err != nil {
			break
		}
		updated++
	}
	if err != nil {
		for _, name := range c.indexOrder[:updated] {
			if revertErr := c.indexes[name].Update(mod.new, mod.old); revertErr != nil {
				return errors.Join(err, revertErr)
			}
		}
	}
	return err
}

func (c *collection) remove(docs []domain.Document) error {
	for _, name := range c.indexOrder {
		if err := c.indexes[name].Remove(docs...); err != nil {
			return err
		}
	}
	c.docs = slices.DeleteFunc(c.docs, func(d domain.Document) bool {
		return slices.ContainsFunc(docs, func(r domain.Document) bool { return sameDoc(d, r) })
	})
	return nil
}

// sameDoc reports whether both documents are the same stored document.
// Stored documents are never shared, so their _id tells them apart.
func sameDoc(a, b domain.Document) bool {
	return codec.IDKey(a.ID()) == codec.IDKey(b.ID())
}

// Collection implements [domain.Collection] over a [Store].
type Collection struct {
	store *Store
	name  string
}

// Name implements [domain.Collection].
func (c *Collection) Name() string {
	return c.name
}

// Find implements [domain.Collection].
func (c *Collection) Find(ctx context.Context, filter map[string]any, opts ...domain.FindOption) ([]map[string]any, error) {
	if err := c.store.lock(ctx); err != nil {
		return nil, err
	}
	defer c.store.mu.Unlock()
	return c.find(filter, domain.NewFindOptions(opts...))
}

func (c *Collection) find(filter map[string]any, fo domain.FindOptions) ([]map[string]any, error) {
	coll, err := c.store.collection(c.name, false)
	if err != nil || coll == nil {
		return []map[string]any{}, err
	}
	docs, err := coll.query(filter, domain.WithQueryFind(fo))
	if err != nil {
		return nil, err
	}
	res := make([]map[string]any, len(docs))
	for n, doc := range docs {
		res[n] = data.ToMap(doc)
	}
	return res, nil
}

// FindOne implements [domain.Collection].
func (c *Collection) FindOne(ctx context.Context, filter map[string]any, opts ...domain.FindOption) (map[string]any, error) {
	if err := c.store.lock(ctx); err != nil {
		return nil, err
	}
	defer c.store.mu.Unlock()
	fo := domain.NewFindOptions(opts...)
	fo.Limit = 1
	docs, err := c.find(filter, fo)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.ErrNotFound
	}
	return docs[0], nil
}

// InsertOne implements [domain.Collection].
func (c *Collection) InsertOne(ctx context.Context, doc map[string]any) (any, error) {
	ids, err := c.InsertMany(ctx, []map[string]any{doc})
	if err != nil {
		return nil, err
	}
	return ids[0], nil
}

// InsertMany implements [domain.Collection]. Either every document is
// written or none is.
func (c *Collection) InsertMany(ctx context.Context, docs []map[string]any) ([]any, error) {
	if err := c.store.lock(ctx); err != nil {
		return nil, err
	}
	defer c.store.mu.Unlock()

	prepared := make([]domain.Document, len(docs))
	ids := make([]any, len(docs))
	for n, raw := range docs {
		doc, err := c.store.docFac(raw)
		if err != nil {
			return nil, err
		}
		if err := checkDocument(doc); err != nil {
			return nil, err
		}
		if doc.ID() == nil {
			doc.Set("_id", primitive.NewObjectID())
		}
		prepared[n] = doc
		ids[n] = doc.ID()
	}
	coll, err := c.store.collection(c.name, true)
	if err != nil {
		return nil, err
	}
	if err := coll.insert(prepared); err != nil {
		return nil, err
	}
	c.store.logger.Debug("inserted documents", slog.String("collection", c.name), slog.Int("count", len(prepared)))
	return ids, nil
}

// UpdateOne implements [domain.Collection].
func (c *Collection) UpdateOne(ctx context.Context, filter, update map[string]any) (int64, error) {
	return c.update(ctx, filter, update, 1)
}

// UpdateMany implements [domain.Collection].
func (c *Collection) UpdateMany(ctx context.Context, filter, update map[string]any) (int64, error) {
	return c.update(ctx, filter, update, 0)
}

func (c *Collection) update(ctx context.Context, filter, upd map[string]any, limit int64) (int64, error) {
	if err := c.store.lock(ctx); err != nil {
		return 0, err
	}
	defer c.store.mu.Unlock()

	coll, err := c.store.collection(c.name, false)
	if err != nil || coll == nil {
		return 0, err
	}
	mod, err := c.store.docFac(upd)
	if err != nil {
		return 0, fmt.Errorf("reading update: %w", err)
	}
	matched, err := coll.query(filter, domain.WithQueryFind(domain.FindOptions{Limit: limit}))
	if err != nil {
		return 0, err
	}
	mods := make([]update, len(matched))
	for n, old := range matched {
		newDoc, err := c.store.modifier.Modify(old, mod)
		if err != nil {
			return 0, err
		}
		if err := checkDocument(newDoc); err != nil {
			return 0, err
		}
		mods[n] = update{old: old, new: newDoc}
	}
	if err := coll.update(mods); err != nil {
		return 0, err
	}
	c.store.logger.Debug("updated documents", slog.String("collection", c.name), slog.Int("count", len(mods)))
	return int64(len(mods)), nil
}

// DeleteOne implements [domain.Collection].
func (c *Collection) DeleteOne(ctx context.Context, filter map[string]any) (int64, error) {
	return c.delete(ctx, filter, 1)
}

// DeleteMany implements [domain.Collection].
func (c *Collection) DeleteMany(ctx context.Context, filter map[string]any) (int64, error) {
	return c.delete(ctx, filter, 0)
}

func (c *Collection) delete(ctx context.Context, filter map[string]any, limit int64) (int64, error) {
	if err := c.store.lock(ctx); err != nil {
		return 0, err
	}
	defer c.store.mu.Unlock()

	coll, err := c.store.collection(c.name, false)
	if err != nil || coll == nil {
		return 0, err
	}
	matched, err := coll.query(filter, domain.WithQueryFind(domain.FindOptions{Limit: limit}))
	if err != nil {
		return 0, err
	}
	if err := coll.remove(matched); err != nil {
		return 0, err
	}
	c.store.logger.Debug("deleted documents", slog.String("collection", c.name), slog.Int("count", len(matched)))
	return int64(len(matched)), nil
}

// CountDocuments implements [domain.Collection].
func (c *Collection) CountDocuments(ctx context.Context, filter map[string]any) (int64, error) {
	if err := c.store.lock(ctx); err != nil {
		return 0, err
	}
	defer c.store.mu.Unlock()

	coll, err := c.store.collection(c.name, false)
	if err != nil || coll == nil {
		return 0, err
	}
	matched, err := coll.query(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// CreateIndex implements [domain.Collection]. Creating an index that already
// exists with the same keys and options is a no-op.
func (c *Collection) CreateIndex(ctx context.Context, keys domain.Sort, opts ...domain.IndexOption) (string, error) {
	if err := c.store.lock(ctx); err != nil {
		return "", err
	}
	defer c.store.mu.Unlock()

	var io domain.IndexOptions
	for _, opt := range opts {
		opt(&io)
	}
	info := domain.IndexInfo{Name: io.Name, Keys: keys, Unique: io.Unique, Sparse: io.Sparse}
	if info.Name == "" {
		info.Name = index.Name(keys)
	}
	coll, err := c.store.collection(c.name, true)
	if err != nil {
		return "", err
	}
	if existing, ok := coll.indexes[info.Name]; ok {
		if !sameIndex(existing.Info(), info) {
			return "", fmt.Errorf("index %s already exists with different options", info.Name)
		}
		return info.Name, nil
	}
	if err := coll.addIndex(info); err != nil {
		return "", err
	}
	c.store.logger.Debug("created index", slog.String("collection", c.name), slog.String("index", info.Name))
	return info.Name, nil
}

func sameIndex(a, b domain.IndexInfo) bool {
	return a.Unique == b.Unique && a.Sparse == b.Sparse && slices.Equal(a.Keys, b.Keys)
}

// DropIndex implements [domain.Collection]. The _id index cannot be dropped.
func (c *Collection) DropIndex(ctx context.Context, name string) error {
	if err := c.store.lock(ctx); err != nil {
		return err
	}
	defer c.store.mu.Unlock()

	if name == idIndex {
		return fmt.Errorf("cannot drop index %s", idIndex)
	}
	coll, err := c.store.collection(c.name, false)
	if err != nil {
		return err
	}
	if coll == nil || coll.indexes[name] == nil {
		return fmt.Errorf("index not found with name [%s]", name)
	}
	delete(coll.indexes, name)
	coll.indexOrder = slices.DeleteFunc(coll.indexOrder, func(n string) bool { return n == name })
	return nil
}

// ListIndexes implements [domain.Collection]. The _id index comes first,
// followed by the others in creation order.
func (c *Collection) ListIndexes(ctx context.Context) ([]domain.IndexInfo, error) {
	if err := c.store.lock(ctx); err != nil {
		return nil, err
	}
	defer c.store.mu.Unlock()

	coll, err := c.store.collection(c.name, false)
	if err != nil || coll == nil {
		return nil, err
	}
	res := make([]domain.IndexInfo, len(coll.indexOrder))
	for n, name := range coll.indexOrder {
		res[n] = coll.indexes[name].Info()
	}
	return res, nil
}

func checkDocument(doc domain.Document) error {
	for k, v := range doc.Iter() {
		if strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
			return &ErrInvalidField{Field: k}
		}
		if err := checkValue(v); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(v any) error {
	switch t := v.(type) {
	case domain.Document:
		return checkDocument(t)
	case []any:
		for _, item := range t {
			if err := checkValue(item); err != nil {
				return err
			}
		}
	}
	return nil
}
