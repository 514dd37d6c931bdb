package domain

// Projection selects which fields of a document are fetched. Values are
// true, a nested Projection, a $-directive or a reference/sub-document
// marker node (see the projection helpers in package gedm).
type Projection = map[string]any

// Sort represents an ordered list of fields which should be used to sort query
// results, applied in sequence.
type Sort = []SortName

// SortName represents a single field and the order which should be used to sort
// it. A positive Order value means ascending order and a negative value means
// descending order.
type SortName struct {
	Key   string
	Order int64
}

// Resolved pairs a record fetched by [Target.Resolve] with its identity.
type Resolved struct {
	ID    any
	Value any
}

// IndexInfo describes an index on a collection.
type IndexInfo struct {
	Name   string
	Keys   Sort
	Unique bool
	Sparse bool
}

// Event names a lifecycle event fired by a record descriptor.
type Event string

// Lifecycle events.
const (
	EventInsert               Event = "insert"
	EventInserted             Event = "inserted"
	EventUpdate               Event = "update"
	EventUpdated              Event = "updated"
	EventDelete               Event = "delete"
	EventDeleted              Event = "deleted"
	EventTransactionCommitted Event = "transaction_committed"
	EventTransactionAborted   Event = "transaction_aborted"
)
