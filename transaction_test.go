package gedm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type storeMock struct{ mock.Mock }

// Collection implements domain.Store.
func (s *storeMock) Collection(name string) domain.Collection {
	c, _ := s.Called(name).Get(0).(domain.Collection)
	return c
}

// StartSession implements domain.Store.
func (s *storeMock) StartSession(ctx context.Context) (domain.Session, error) {
	call := s.Called(ctx)
	sess, _ := call.Get(0).(domain.Session)
	return sess, call.Error(1)
}

// Close implements domain.Store.
func (s *storeMock) Close(ctx context.Context) error {
	return s.Called(ctx).Error(0)
}

type sessionMock struct{ mock.Mock }

// StartTransaction implements domain.Session.
func (s *sessionMock) StartTransaction(ctx context.Context) error {
	return s.Called(ctx).Error(0)
}

// CommitTransaction implements domain.Session.
func (s *sessionMock) CommitTransaction(ctx context.Context) error {
	return s.Called(ctx).Error(0)
}

// AbortTransaction implements domain.Session.
func (s *sessionMock) AbortTransaction(ctx context.Context) error {
	return s.Called(ctx).Error(0)
}

// EndSession implements domain.Session.
func (s *sessionMock) EndSession(ctx context.Context) {
	s.Called(ctx)
}

type TransactionTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *storeMock
	sess  *sessionMock
}

func (s *TransactionTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = new(storeMock)
	s.sess = new(sessionMock)
}

func (s *TransactionTestSuite) TearDownTest() {
	s.store.AssertExpectations(s.T())
	s.sess.AssertExpectations(s.T())
}

func (s *TransactionTestSuite) TestCommit() {
	s.store.On("StartSession", mock.Anything).Return(s.sess, nil).Once()
	s.sess.On("StartTransaction", mock.Anything).Return(nil).Once()
	s.sess.On("CommitTransaction", mock.Anything).Return(nil).Once()
	s.sess.On("EndSession", mock.Anything).Return().Once()

	err := RunTransaction(s.ctx, s.store, func(ctx context.Context) error {
		s.Same(s.sess, domain.SessionFrom(ctx))
		return nil
	})
	s.NoError(err)
}

func (s *TransactionTestSuite) TestAbortKeepsError() {
	errFn := errors.New("fn failed")
	s.store.On("StartSession", mock.Anything).Return(s.sess, nil).Once()
	s.sess.On("StartTransaction", mock.Anything).Return(nil).Once()
	s.sess.On("AbortTransaction", mock.Anything).Return(errors.New("abort failed")).Once()
	s.sess.On("EndSession", mock.Anything).Return().Once()

	err := RunTransaction(s.ctx, s.store, func(context.Context) error { return errFn })
	s.Equal(errFn, err)
}

func (s *TransactionTestSuite) TestCommitError() {
	errCommit := errors.New("commit failed")
	s.store.On("StartSession", mock.Anything).Return(s.sess, nil).Once()
	s.sess.On("StartTransaction", mock.Anything).Return(nil).Once()
	s.sess.On("CommitTransaction", mock.Anything).Return(errCommit).Once()
	s.sess.On("EndSession", mock.Anything).Return().Once()

	var events []Event
	err := runTransaction(s.ctx, s.store, discardLogger(), func(context.Context) error { return nil },
		func(_ context.Context, e Event) error {
			events = append(events, e)
			return nil
		})
	s.ErrorIs(err, errCommit)
	s.Equal([]Event{EventTransactionAborted}, events)
}

func (s *TransactionTestSuite) TestPanicAborts() {
	s.store.On("StartSession", mock.Anything).Return(s.sess, nil).Once()
	s.sess.On("StartTransaction", mock.Anything).Return(nil).Once()
	s.sess.On("AbortTransaction", mock.Anything).Return(nil).Once()
	s.sess.On("EndSession", mock.Anything).Return().Once()

	s.PanicsWithValue("boom", func() {
		_ = RunTransaction(s.ctx, s.store, func(context.Context) error { panic("boom") })
	})
}

func (s *TransactionTestSuite) TestStartFailures() {
	errStart := errors.New("no session")
	s.store.On("StartSession", mock.Anything).Return(nil, errStart).Once()
	err := RunTransaction(s.ctx, s.store, func(context.Context) error {
		s.Fail("must not run")
		return nil
	})
	s.ErrorIs(err, errStart)

	errTx := errors.New("no transaction")
	s.store.On("StartSession", mock.Anything).Return(s.sess, nil).Once()
	s.sess.On("StartTransaction", mock.Anything).Return(errTx).Once()
	s.sess.On("EndSession", mock.Anything).Return().Once()
	err = RunTransaction(s.ctx, s.store, func(context.Context) error {
		s.Fail("must not run")
		return nil
	})
	s.ErrorIs(err, errTx)
}

func (s *TransactionTestSuite) TestJoinsSessionInContext() {
	ctx := domain.WithSession(s.ctx, s.sess)
	called := false
	err := RunTransaction(ctx, s.store, func(inner context.Context) error {
		called = true
		s.Same(s.sess, domain.SessionFrom(inner))
		return nil
	})
	s.NoError(err)
	s.True(called)
}

func (s *TransactionTestSuite) TestNoStore() {
	err := RunTransaction(s.ctx, nil, func(context.Context) error { return nil })
	s.ErrorIs(err, ErrNoStore)
}

func TestTransactionTestSuite(t *testing.T) {
	suite.Run(t, new(TransactionTestSuite))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
