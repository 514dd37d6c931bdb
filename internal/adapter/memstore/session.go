package memstore

import (
	"context"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Session implements [domain.Session]. A transaction snapshots the whole
// store and restores it on abort. Writes made outside the transaction while
// it is active are rolled back too.
type Session struct {
	store *Store
	ended bool
}

// StartTransaction implements [domain.Session]. Only one transaction may be
// active in the store at a time.
func (s *Session) StartTransaction(ctx context.Context) error {
	if err := s.store.lock(ctx); err != nil {
		return err
	}
	defer s.store.mu.Unlock()
	if s.ended {
		return domain.ErrSessionEnded
	}
	if s.store.txn != nil {
		return domain.ErrTransactionInProgress
	}
	if err := s.store.takeSnapshot(); err != nil {
		return err
	}
	s.store.txn = s
	return nil
}

// CommitTransaction implements [domain.Session].
func (s *Session) CommitTransaction(ctx context.Context) error {
	if err := s.store.lock(ctx); err != nil {
		return err
	}
	defer s.store.mu.Unlock()
	if s.ended {
		return domain.ErrSessionEnded
	}
	if s.store.txn != s {
		return domain.ErrNoTransaction
	}
	s.store.snapshot = nil
	s.store.txn = nil
	return nil
}

// AbortTransaction implements [domain.Session].
func (s *Session) AbortTransaction(ctx context.Context) error {
	if err := s.store.lock(ctx); err != nil {
		return err
	}
	defer s.store.mu.Unlock()
	if s.ended {
		return domain.ErrSessionEnded
	}
	if s.store.txn != s {
		return domain.ErrNoTransaction
	}
	s.store.restoreSnapshot()
	return nil
}

// EndSession implements [domain.Session]. It waits for the store even when
// ctx is done, since an active transaction must be rolled back.
func (s *Session) EndSession(ctx context.Context) {
	if err := s.store.mu.Lock(context.WithoutCancel(ctx)); err != nil {
		return
	}
	defer s.store.mu.Unlock()
	if s.ended {
		return
	}
	if s.store.txn == s {
		s.store.restoreSnapshot()
		s.store.logger.Debug("aborted transaction of ended session")
	}
	s.ended = true
}
