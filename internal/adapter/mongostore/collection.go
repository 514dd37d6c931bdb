package mongostore

import (
	"context"
	"errors"
	"log/slog"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/codec"
)

// Collection implements [domain.Collection] over a driver collection.
type Collection struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// Name implements [domain.Collection].
func (c *Collection) Name() string {
	return c.coll.Name()
}

// Find implements [domain.Collection].
func (c *Collection) Find(ctx context.Context, filter map[string]any, opts ...domain.FindOption) ([]map[string]any, error) {
	ctx, err := withSession(ctx)
	if err != nil {
		return nil, err
	}
	cursor, err := c.coll.Find(ctx, nonNil(filter), findOptions(domain.NewFindOptions(opts...)))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	res := []map[string]any{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		res = append(res, codec.Normalize(doc).(map[string]any))
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// FindOne implements [domain.Collection].
func (c *Collection) FindOne(ctx context.Context, filter map[string]any, opts ...domain.FindOption) (map[string]any, error) {
	ctx, err := withSession(ctx)
	if err != nil {
		return nil, err
	}
	fo := domain.NewFindOptions(opts...)
	findOne := mopt.FindOne().SetSkip(fo.Skip)
	if len(fo.Sort) > 0 {
		findOne.SetSort(sortDoc(fo.Sort))
	}
	if len(fo.Projection) > 0 {
		findOne.SetProjection(fo.Projection)
	}
	var doc bson.M
	err = c.coll.FindOne(ctx, nonNil(filter), findOne).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return codec.Normalize(doc).(map[string]any), nil
}

// InsertOne implements [domain.Collection].
func (c *Collection) InsertOne(ctx context.Context, doc map[string]any) (any, error) {
	ctx, err := withSession(ctx)
	if err != nil {
		return nil, err
	}
	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, convertErr(err)
	}
	return res.InsertedID, nil
}

// InsertMany implements [domain.Collection]. The batch is ordered: the
// server stops at the first failing document.
func (c *Collection) InsertMany(ctx context.Context, docs []map[string]any) ([]any, error) {
	if len(docs) == 0 {
		return []any{}, nil
	}
	ctx, err := withSession(ctx)
	if err != nil {
		return nil, err
	}
	batch := make([]any, len(docs))
	for n, doc := range docs {
		batch[n] = doc
	}
	res, err := c.coll.InsertMany(ctx, batch)
	if err != nil {
		return nil, convertErr(err)
	}
	c.logger.Debug("inserted documents", slog.String("collection", c.Name()), slog.Int("count", len(res.InsertedIDs)))
	return res.InsertedIDs, nil
}

// UpdateOne implements [domain.Collection].
func (c *Collection) UpdateOne(ctx context.Context, filter, update map[string]any) (int64, error) {
	ctx, err := withSession(ctx)
	if err != nil {
		return 0, err
	}
	res, err := c.coll.UpdateOne(ctx, nonNil(filter), update)
	if err != nil {
		return 0, convertErr(err)
	}
	return res.MatchedCount, nil
}

// UpdateMany implements [domain.Collection].
func (c *Collection) UpdateMany(ctx context.Context, filter, update map[string]any) (int64, error) {
	ctx, err := withSession(ctx)
	if err != nil {
		return 0, err
	}
	res, err := c.coll.UpdateMany(ctx, nonNil(filter), update)
	if err != nil {
		return 0, convertErr(err)
	}
	return res.MatchedCount, nil
}

// DeleteOne implements [domain.Collection].
func (c *Collection) DeleteOne(ctx context.Context, filter map[string]any) (int64, error) {
	ctx, err := withSession(ctx)
	if err != nil {
		return 0, err
	}
	res, err := c.coll.DeleteOne(ctx, nonNil(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteMany implements [domain.Collection].
func (c *Collection) DeleteMany(ctx context.Context, filter map[string]any) (int64, error) {
	ctx, err := withSession(ctx)
	if err != nil {
		return 0, err
	}
	res, err := c.coll.DeleteMany(ctx, nonNil(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CountDocuments implements [domain.Collection].
func (c *Collection) CountDocuments(ctx context.Context, filter map[string]any) (int64, error) {
	ctx, err := withSession(ctx)
	if err != nil {
		return 0, err
	}
	return c.coll.CountDocuments(ctx, nonNil(filter))
}

// CreateIndex implements [domain.Collection].
func (c *Collection) CreateIndex(ctx context.Context, keys domain.Sort, opts ...domain.IndexOption) (string, error) {
	ctx, err := withSession(ctx)
	if err != nil {
		return "", err
	}
	name, err := c.coll.Indexes().CreateOne(ctx, indexModel(keys, opts...))
	if err != nil {
		return "", convertErr(err)
	}
	c.logger.Debug("created index", slog.String("collection", c.Name()), slog.String("index", name))
	return name, nil
}

// DropIndex implements [domain.Collection].
func (c *Collection) DropIndex(ctx context.Context, name string) error {
	ctx, err := withSession(ctx)
	if err != nil {
		return err
	}
	_, err = c.coll.Indexes().DropOne(ctx, name)
	return err
}

// ListIndexes implements [domain.Collection].
func (c *Collection) ListIndexes(ctx context.Context) ([]domain.IndexInfo, error) {
	ctx, err := withSession(ctx)
	if err != nil {
		return nil, err
	}
	cursor, err := c.coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var res []domain.IndexInfo
	for cursor.Next(ctx) {
		var spec indexSpec
		if err := cursor.Decode(&spec); err != nil {
			return nil, err
		}
		res = append(res, spec.info())
	}
	return res, cursor.Err()
}

type indexSpec struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique"`
	Sparse bool   `bson:"sparse"`
}

func (s indexSpec) info() domain.IndexInfo {
	info := domain.IndexInfo{Name: s.Name, Unique: s.Unique, Sparse: s.Sparse}
	for _, e := range s.Key {
		info.Keys = append(info.Keys, domain.SortName{Key: e.Key, Order: order(e.Value)})
	}
	return info
}

// order reads an index direction. Special index kinds such as "text" or
// "2dsphere" count as ascending.
func order(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 1
	}
}

func sortDoc(sort domain.Sort) bson.D {
	res := make(bson.D, len(sort))
	for n, s := range sort {
		direction := 1
		if s.Order < 0 {
			direction = -1
		}
		res[n] = bson.E{Key: s.Key, Value: direction}
	}
	return res
}

func findOptions(fo domain.FindOptions) *mopt.FindOptions {
	res := mopt.Find()
	if len(fo.Sort) > 0 {
		res.SetSort(sortDoc(fo.Sort))
	}
	if fo.Skip > 0 {
		res.SetSkip(fo.Skip)
	}
	if fo.Limit > 0 {
		res.SetLimit(fo.Limit)
	}
	if len(fo.Projection) > 0 {
		res.SetProjection(fo.Projection)
	}
	return res
}

func indexModel(keys domain.Sort, opts ...domain.IndexOption) mongo.IndexModel {
	var io domain.IndexOptions
	for _, opt := range opts {
		opt(&io)
	}
	idxOpts := mopt.Index()
	if io.Name != "" {
		idxOpts.SetName(io.Name)
	}
	if io.Unique {
		idxOpts.SetUnique(true)
	}
	if io.Sparse {
		idxOpts.SetSparse(true)
	}
	return mongo.IndexModel{Keys: sortDoc(keys), Options: idxOpts}
}

func nonNil(filter map[string]any) any {
	if filter == nil {
		return bson.M{}
	}
	return filter
}

var dupIndex = regexp.MustCompile(`index: (\S+) dup key`)

// convertErr maps duplicate key errors to [domain.ErrUniqueViolated].
func convertErr(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	violated := &domain.ErrUniqueViolated{}
	if m := dupIndex.FindStringSubmatch(err.Error()); m != nil {
		violated.Index = m[1]
	}
	return errors.Join(violated, err)
}
