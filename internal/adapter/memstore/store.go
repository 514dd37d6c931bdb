// Package memstore implements [domain.Store] in memory, evaluating MongoDB
// filter, update and projection documents with the embedded engine.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/index"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/querier"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/ctxsync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("memstore: store is closed")

// idIndex is the name of the unique index every collection holds on _id.
const idIndex = "_id_"

// DefaultCorruptAlertThreshold is the share of undecodable dump lines
// [Store.Restore] tolerates.
const DefaultCorruptAlertThreshold = 0.1

// Store implements [domain.Store]. Operations are serialized by a
// context-aware lock.
type Store struct {
	mu          *ctxsync.Mutex
	collections map[string]*collection
	txn         *Session
	snapshot    map[string]*collection
	closed      bool

	logger                *slog.Logger
	docFac                domain.DocumentFactory
	comparer              domain.Comparer
	fieldNavigator        domain.FieldNavigator
	querier               domain.Querier
	modifier              domain.Modifier
	dumpFile              string
	corruptAlertThreshold float64
}

// NewStore returns a new empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		mu:                    ctxsync.NewMutex(),
		collections:           make(map[string]*collection),
		logger:                slog.Default(),
		docFac:                data.NewDocument,
		comparer:              comparer.NewComparer(),
		corruptAlertThreshold: DefaultCorruptAlertThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.fieldNavigator = fieldnavigator.NewFieldNavigator(s.docFac)
	mtchr := matcher.NewMatcher(
		matcher.WithComparer(s.comparer),
		matcher.WithFieldNavigator(s.fieldNavigator),
	)
	s.querier = querier.NewQuerier(
		querier.WithComparer(s.comparer),
		querier.WithDocumentFactory(s.docFac),
		querier.WithFieldNavigator(s.fieldNavigator),
		querier.WithMatcher(mtchr),
	)
	s.modifier = modifier.NewModifier(
		modifier.WithComparer(s.comparer),
		modifier.WithDocumentFactory(s.docFac),
		modifier.WithFieldNavigator(s.fieldNavigator),
		modifier.WithMatcher(mtchr),
	)
	return s
}

// Open returns a store loaded from the dump file, if it exists. The store
// writes the file back on [Store.Close].
func Open(ctx context.Context, dumpFile string, opts ...Option) (*Store, error) {
	s := NewStore(append(opts, WithDumpFile(dumpFile))...)
	if dumpFile == "" {
		return s, nil
	}
	f, err := os.Open(dumpFile)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := s.Restore(ctx, f); err != nil {
		return nil, fmt.Errorf("restoring %s: %w", dumpFile, err)
	}
	return s, nil
}

// Collection implements [domain.Store].
func (s *Store) Collection(name string) domain.Collection {
	return &Collection{store: s, name: name}
}

// StartSession implements [domain.Store].
func (s *Store) StartSession(ctx context.Context) (domain.Session, error) {
	err := s.mu.Do(ctx, func() error {
		if s.closed {
			return ErrClosed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Session{store: s}, nil
}

// Close implements [domain.Store]. A pending transaction is aborted and
// the dump file, if any, is written.
func (s *Store) Close(ctx context.Context) error {
	if err := s.mu.Lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if s.txn != nil {
		s.restoreSnapshot()
	}
	if s.dumpFile != "" {
		if err := s.dumpToFile(ctx); err != nil {
			return err
		}
	}
	s.closed = true
	s.collections = nil
	return nil
}

// lock acquires the store for an operation, checking the session carried
// by ctx.
func (s *Store) lock(ctx context.Context) error {
	if err := s.mu.Lock(ctx); err != nil {
		return err
	}
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if sess, ok := domain.SessionFrom(ctx).(*Session); ok && sess.ended {
		s.mu.Unlock()
		return domain.ErrSessionEnded
	}
	return nil
}

// collection returns the named collection data, creating it when create is
// set. It returns nil for a missing collection otherwise.
func (s *Store) collection(name string, create bool) (*collection, error) {
	if c, ok := s.collections[name]; ok || !create {
		return c, nil
	}
	c, err := newCollection(s, name)
	if err != nil {
		return nil, err
	}
	s.collections[name] = c
	return c, nil
}

// CollectionNames returns the names of the collections holding data or
// indexes.
func (s *Store) CollectionNames(ctx context.Context) ([]string, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *Store) takeSnapshot() error {
	snapshot := make(map[string]*collection, len(s.collections))
	for name, c := range s.collections {
		clone, err := c.clone()
		if err != nil {
			return fmt.Errorf("copying collection %s: %w", name, err)
		}
		snapshot[name] = clone
	}
	s.snapshot = snapshot
	return nil
}

func (s *Store) restoreSnapshot() {
	s.collections = s.snapshot
	s.snapshot = nil
	s.txn = nil
}

func (s *Store) newIndex(info domain.IndexInfo) (domain.Index, error) {
	return index.NewIndex(info,
		index.WithComparer(s.comparer),
		index.WithFieldNavigator(s.fieldNavigator),
	)
}
