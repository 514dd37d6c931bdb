package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStore is returned when an operation needs a store and neither
	// the descriptor nor the process default has one bound.
	ErrNoStore = errors.New("no store is bound: cannot reach the database")
	// ErrNotFound is returned when a single-document read matches nothing.
	ErrNotFound = errors.New("document not found")
	// ErrNoTransaction is returned when committing or aborting a session
	// without an active transaction.
	ErrNoTransaction = errors.New("no transaction started")
	// ErrTransactionInProgress is returned when starting a transaction while
	// another one is active.
	ErrTransactionInProgress = errors.New("transaction already in progress")
	// ErrCannotModifyID is returned when an update would change a document
	// _id.
	ErrCannotModifyID = errors.New("you cannot change a document's _id")
	// ErrSessionEnded is returned when using a session after EndSession.
	ErrSessionEnded = errors.New("session has ended")
)

// ErrValidation is returned when a raw value cannot be decoded into the
// declared field type.
type ErrValidation struct {
	Type  string
	Cause error
}

func (e ErrValidation) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Type, e.Cause)
}

func (e ErrValidation) Unwrap() error { return e.Cause }

// ErrNotSupported is returned when the codec meets a value kind it has no
// conversion rule for.
type ErrNotSupported struct {
	Type string
}

func (e ErrNotSupported) Error() string {
	return fmt.Sprintf("values of type %s are not supported", e.Type)
}

// ErrUniqueViolated is returned when a write would store two documents under
// the same key of a unique index.
type ErrUniqueViolated struct {
	Index string
	Key   any
}

func (e ErrUniqueViolated) Error() string {
	return fmt.Sprintf("can't insert key %v, it violates the unique constraint of index %s", e.Key, e.Index)
}

// ErrUnknownOperator is returned when a filter or update document uses an
// operator the engine doesn't implement.
type ErrUnknownOperator struct {
	Operator string
}

func (e ErrUnknownOperator) Error() string {
	return fmt.Sprintf("unknown operator %s", e.Operator)
}
