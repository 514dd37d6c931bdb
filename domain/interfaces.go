// Package domain contains the contracts shared by every GEDM component.
//
// It defines the store-facing interfaces (Store, Collection, Session) that
// adapters must implement, the engine interfaces used by the in-memory store,
// and functional options for finds and indexes.
package domain

import (
	"context"
	"iter"
	"reflect"
)

// Filter is a query expression that can be rendered into a filter document.
type Filter interface {
	// ToDict renders the expression into the native nested-map filter
	// representation understood by the store.
	ToDict() map[string]any
}

// Store is a connection to a document database.
type Store interface {
	// Collection returns a handle to the named collection. Handles are
	// cheap and do not touch the store until an operation is called.
	Collection(name string) Collection
	// StartSession opens a new session. The caller owns the session and
	// must call [Session.EndSession].
	StartSession(ctx context.Context) (Session, error)
	// Close releases every resource held by the store.
	Close(ctx context.Context) error
}

// Collection is the narrow CRUD surface consumed from a store. Every
// operation joins the session carried by ctx, if any (see [WithSession]).
type Collection interface {
	// Name returns the collection name.
	Name() string
	// Find returns every document matching filter.
	Find(ctx context.Context, filter map[string]any, opts ...FindOption) ([]map[string]any, error)
	// FindOne returns the first document matching filter, or [ErrNotFound].
	FindOne(ctx context.Context, filter map[string]any, opts ...FindOption) (map[string]any, error)
	// InsertOne writes doc and returns its _id, assigning one if missing.
	InsertOne(ctx context.Context, doc map[string]any) (any, error)
	// InsertMany writes docs in one batch and returns their ids in order.
	InsertMany(ctx context.Context, docs []map[string]any) ([]any, error)
	// UpdateOne applies update to the first document matching filter and
	// returns the number of matched documents.
	UpdateOne(ctx context.Context, filter, update map[string]any) (int64, error)
	// UpdateMany applies update to every document matching filter.
	UpdateMany(ctx context.Context, filter, update map[string]any) (int64, error)
	// DeleteOne removes the first document matching filter.
	DeleteOne(ctx context.Context, filter map[string]any) (int64, error)
	// DeleteMany removes every document matching filter.
	DeleteMany(ctx context.Context, filter map[string]any) (int64, error)
	// CountDocuments counts the documents matching filter.
	CountDocuments(ctx context.Context, filter map[string]any) (int64, error)
	// CreateIndex creates an index over keys and returns its name.
	CreateIndex(ctx context.Context, keys Sort, opts ...IndexOption) (string, error)
	// DropIndex removes the named index.
	DropIndex(ctx context.Context, name string) error
	// ListIndexes describes every index on the collection.
	ListIndexes(ctx context.Context) ([]IndexInfo, error)
}

// Session is a store session able to run a single transaction at a time.
type Session interface {
	// StartTransaction begins a transaction on the session.
	StartTransaction(ctx context.Context) error
	// CommitTransaction commits the active transaction.
	CommitTransaction(ctx context.Context) error
	// AbortTransaction rolls back the active transaction.
	AbortTransaction(ctx context.Context) error
	// EndSession releases the session. An active transaction is aborted.
	EndSession(ctx context.Context)
}

// Target is a collection-bound descriptor that references resolve against.
type Target interface {
	// Resolve fetches every record whose _id is in ids, applying the given
	// projection (nil means the target's default).
	Resolve(ctx context.Context, ids []any, projection Projection) ([]Resolved, error)
}

// SubTarget builds embedded values out of raw documents.
type SubTarget interface {
	// Construct builds a new instance out of a hydrated raw document.
	Construct(raw map[string]any) (any, error)
	// DefaultProjection returns the projection used to hydrate nested
	// fields when the caller does not provide one.
	DefaultProjection() Projection
}

// Referencer is implemented by values stored as a reference to another
// record.
type Referencer interface {
	// RefID returns the referenced identity.
	RefID() any
}

// RefLoader is implemented by pointers to reference values so decoders can
// fill them from either an identity or a resolved record.
type RefLoader interface {
	LoadRef(v any) error
}

// Optional is implemented by values that distinguish unset from null.
type Optional interface {
	// OptValue returns the held value and whether it should be written at
	// all. Null values return (nil, true).
	OptValue() (any, bool)
}

// OptLoader is implemented by pointers to optional values. Decode converts
// the raw value into the wrapped type. A nil v marks the value as null.
type OptLoader interface {
	LoadOpt(v any, decode func(in, out any) error) error
}

// Codec is the schema binding layer: it maps records to documents and back.
type Codec interface {
	// ToDict converts a record to a raw document.
	ToDict(any) (map[string]any, error)
	// FromDict fills target (a pointer) from a raw document.
	FromDict(map[string]any, any) error
	// ToJSONType converts a record to a document holding only JSON-safe
	// values.
	ToJSONType(any) (map[string]any, error)
	// Encode serializes a record to bytes.
	Encode(any) ([]byte, error)
	// Decode fills target (a pointer) from bytes produced by Encode.
	Decode([]byte, any) error
	// Fields returns the document field names declared by the type.
	Fields(reflect.Type) []string
}

// IDGenerator produces identities for new records.
type IDGenerator interface {
	// GenerateID returns a new identity for an _id field of the given type.
	// It returns nil when the store should assign the identity itself.
	GenerateID(reflect.Type) (any, error)
}

// Comparer provides ordering and comparison operations for different data types.
type Comparer interface {
	// Compare returns -1, 0, or 1 based on the comparison of two values.
	Compare(any, any) (int, error)
	// Comparable returns true if two values can be compared.
	Comparable(any, any) bool
}

// Getter represents a value that can be treated as undefined.
type Getter interface {
	// Get returns the value and whether it counts as defined. An address
	// pointing to a missing key, an out of bounds index or a field of a
	// primitive value is undefined. Explicit nil is defined.
	Get() (value any, defined bool)
}

// GetSetter represents a value in a [Document], returned by [FieldNavigator]
// so updates can write back to the right parent container.
type GetSetter interface {
	// GetSetter implements [Getter]. Undefined values can neither be set
	// nor unset.
	Getter
	// Set will set a new value for the address.
	Set(any)
	// Unset removes the given value from the parent item (object or array).
	Unset()
}

// FieldNavigator provides field access operations with dot notation support.
type FieldNavigator interface {
	// GetField extracts values from nested documents, following path parts.
	// The bool reports whether an array was expanded on the way.
	GetField(any, ...string) ([]GetSetter, bool, error)
	// EnsureField works like GetField, creating missing parents.
	EnsureField(any, ...string) ([]GetSetter, error)
	// GetAddress splits a dotted field name into path parts.
	GetAddress(field string) ([]string, error)
}

// Document is the mutable representation used by the in-memory engine. It is
// read by one goroutine at a time and doesn't need to be concurrency safe.
type Document interface {
	// ID returns the document _id, or nil.
	ID() any
	// D returns the subdocument for the given key, if any.
	D(string) Document
	// Get returns the value under the given key, or nil if unset.
	Get(string) any
	// Set sets the value under the given key.
	Set(string, any)
	// Unset unsets the value under the given key.
	Unset(string)
	// Iter returns an unordered sequence of key-value pairs.
	Iter() iter.Seq2[string, any]
	// Keys returns an unordered sequence of keys.
	Keys() iter.Seq[string]
	// Has reports whether a value is set under the given key.
	Has(string) bool
	// Len returns the number of set fields.
	Len() int
}

// DocumentFactory builds a [Document] out of a map or struct. A nil input
// returns an empty document.
type DocumentFactory = func(any) (Document, error)

// Matcher evaluates whether values match a filter document.
type Matcher interface {
	// Match returns true if the value matches the query.
	Match(any, any) (bool, error)
}

// Modifier applies update documents.
type Modifier interface {
	// Modify applies an update to a copy of a document and returns it.
	Modify(Document, Document) (Document, error)
}

// Projector narrows documents to a projection.
type Projector interface {
	// Project returns projected copies of the documents.
	Project([]Document, map[string]any) ([]Document, error)
}

// Querier runs matching, sorting, paging and projection over documents.
type Querier interface {
	// Query returns the documents selected by the given options.
	Query([]Document, ...QueryOption) ([]Document, error)
}

// Index keeps documents ordered by a key for lookups and constraints.
type Index interface {
	// Info describes the index.
	Info() IndexInfo
	// Insert adds documents, failing without changes on a unique
	// violation.
	Insert(docs ...Document) error
	// Remove removes documents.
	Remove(docs ...Document) error
	// Update replaces old with new, restoring old on failure.
	Update(old, new Document) error
	// Reset clears the index and inserts the given documents.
	Reset(docs ...Document) error
	// GetMatching returns the documents indexed under any of the values.
	GetMatching(values ...any) []Document
	// GetNumberOfKeys returns the number of distinct keys.
	GetNumberOfKeys() int
}
