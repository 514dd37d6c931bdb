// Package gedm maps Go structs to documents of a document database.
//
// A record type is bound to a collection with [New], which returns a
// [Spec]. It writes records, reads them back through filters built
// with [Q], and hydrates the references and embedded values requested by
// the read projection. Writes fire lifecycle events that listeners
// registered with [Spec.Listen] can hook into.
//
// Stores are consumed through [domain.Store]. [Open] builds one out of a
// configuration: an in-memory store backed by an optional dump file or a
// MongoDB connection.
package gedm

import (
	"sync"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/memstore"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/query"
)

var (
	// ErrNoStore is returned when an operation needs a store and none is
	// bound to the descriptor nor set with [SetDefaultStore].
	ErrNoStore = domain.ErrNoStore
	// ErrNotFound is returned by [Spec.One], [Spec.ByID] and
	// [Spec.Reload] when nothing matches.
	ErrNotFound = domain.ErrNotFound
	// ErrNoTransaction is returned when committing or aborting a session
	// without an active transaction.
	ErrNoTransaction = domain.ErrNoTransaction
	// ErrTransactionInProgress is returned when starting a transaction
	// while another one is active.
	ErrTransactionInProgress = domain.ErrTransactionInProgress
	// ErrCannotModifyID is returned when an update would change an _id.
	ErrCannotModifyID = domain.ErrCannotModifyID
	// ErrSessionEnded is returned when using a session after it ended.
	ErrSessionEnded = domain.ErrSessionEnded
	// ErrClosed is returned by in-memory stores after Close.
	ErrClosed = memstore.ErrClosed
)

// ErrValidation is returned when a value cannot be converted to or from its
// declared field type.
type ErrValidation = domain.ErrValidation

// ErrNotSupported is returned when a record holds a value kind without a
// document representation, such as channels or functions.
type ErrNotSupported = domain.ErrNotSupported

// ErrUniqueViolated is returned when a write breaks a unique index.
type ErrUniqueViolated = domain.ErrUniqueViolated

// ErrUnknownOperator is returned by the in-memory store for filter or update
// operators it does not implement.
type ErrUnknownOperator = domain.ErrUnknownOperator

// ErrCorruptDump is returned by [Open] when too many lines of the dump file
// of an in-memory store cannot be restored.
type ErrCorruptDump = memstore.ErrCorruptDump

// Projection selects the fields fetched by a read. See [Spec.Ref] and
// [SubSpec.Sub] for hydrated fields.
type Projection = domain.Projection

// Sort is an ordered list of sort keys. Build it with [SortBy].
type Sort = domain.Sort

// IndexInfo describes an index.
type IndexInfo = domain.IndexInfo

// Filter is anything rendering to a filter document.
type Filter = domain.Filter

// FindOption configures reads.
type FindOption = domain.FindOption

// IndexOption configures index creation.
type IndexOption = domain.IndexOption

// Event names a lifecycle event.
type Event = domain.Event

// Lifecycle events. Transaction events are fired by [Spec.Transaction] only.
const (
	EventInsert               = domain.EventInsert
	EventInserted             = domain.EventInserted
	EventUpdate               = domain.EventUpdate
	EventUpdated              = domain.EventUpdated
	EventDelete               = domain.EventDelete
	EventDeleted              = domain.EventDeleted
	EventTransactionCommitted = domain.EventTransactionCommitted
	EventTransactionAborted   = domain.EventTransactionAborted
)

// Q is the root field path. Fields are appended with [Path.F] and list
// positions with [Path.I].
var Q = query.Q

type (
	// Path is an immutable document field path.
	Path = query.Path
	// Condition is a single field predicate.
	Condition = query.Condition
	// Group combines filters with $and, $or or $nor.
	Group = query.Group
	// M is a literal filter document.
	M = query.M
	// SortField is a path and a sort direction.
	SortField = query.SortField
)

// Sort directions.
const (
	Ascending  = query.Ascending
	Descending = query.Descending
)

var (
	And       = query.And
	Or        = query.Or
	Nor       = query.Nor
	Not       = query.Not
	In        = query.In
	NotIn     = query.NotIn
	All       = query.All
	Size      = query.Size
	Type      = query.Type
	Exists    = query.Exists
	ElemMatch = query.ElemMatch
	SortBy    = query.SortBy
)

var (
	WithProjection = domain.WithProjection
	WithSort       = domain.WithSort
	WithSkip       = domain.WithSkip
	WithLimit      = domain.WithLimit
	WithIndexName  = domain.WithIndexName
	WithUnique     = domain.WithUnique
	WithSparse     = domain.WithSparse
)

var defaultStore struct {
	sync.RWMutex
	store domain.Store
}

// SetDefaultStore sets the store used by descriptors built without
// [WithStore]. A nil store clears it.
func SetDefaultStore(s domain.Store) {
	defaultStore.Lock()
	defer defaultStore.Unlock()
	defaultStore.store = s
}

// DefaultStore returns the store set with [SetDefaultStore], or nil.
func DefaultStore() domain.Store {
	defaultStore.RLock()
	defer defaultStore.RUnlock()
	return defaultStore.store
}
