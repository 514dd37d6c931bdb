package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Session implements [domain.Session] over a driver session.
type Session struct {
	sess   mongo.Session
	active bool
	ended  bool
}

// StartTransaction implements [domain.Session].
func (s *Session) StartTransaction(ctx context.Context) error {
	switch {
	case s.ended:
		return domain.ErrSessionEnded
	case s.active:
		return domain.ErrTransactionInProgress
	}
	if err := s.sess.StartTransaction(); err != nil {
		return err
	}
	s.active = true
	return nil
}

// CommitTransaction implements [domain.Session].
func (s *Session) CommitTransaction(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	s.active = false
	return s.sess.CommitTransaction(ctx)
}

// AbortTransaction implements [domain.Session].
func (s *Session) AbortTransaction(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	s.active = false
	return s.sess.AbortTransaction(ctx)
}

// EndSession implements [domain.Session].
func (s *Session) EndSession(ctx context.Context) {
	if s.ended {
		return
	}
	s.ended = true
	s.active = false
	s.sess.EndSession(ctx)
}

func (s *Session) check() error {
	switch {
	case s.ended:
		return domain.ErrSessionEnded
	case !s.active:
		return domain.ErrNoTransaction
	}
	return nil
}

// withSession binds the driver session carried by ctx, if any.
func withSession(ctx context.Context) (context.Context, error) {
	s, ok := domain.SessionFrom(ctx).(*Session)
	if !ok {
		return ctx, nil
	}
	if s.ended {
		return nil, domain.ErrSessionEnded
	}
	return mongo.NewSessionContext(ctx, s.sess), nil
}
