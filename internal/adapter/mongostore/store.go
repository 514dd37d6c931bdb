// Package mongostore implements [domain.Store] on top of a MongoDB server
// through the official driver.
package mongostore

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// DefaultTimeout bounds connecting and server selection.
const DefaultTimeout = 10 * time.Second

// Store implements [domain.Store].
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the logger used for store operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout sets the connect and server selection timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Connect dials the server at uri and pings it. Collections are looked up in
// the named database.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default(), timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	clientOpts := mopt.Client().ApplyURI(uri)
	clientOpts.SetConnectTimeout(s.timeout).SetServerSelectionTimeout(s.timeout)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	s.client = client
	s.db = client.Database(database)
	s.logger.Debug("connected to mongodb", slog.String("database", database))
	return s, nil
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Collection implements [domain.Store].
func (s *Store) Collection(name string) domain.Collection {
	return &Collection{coll: s.db.Collection(name), logger: s.logger}
}

// StartSession implements [domain.Store].
func (s *Store) StartSession(ctx context.Context) (domain.Session, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, err
	}
	return &Session{sess: sess}, nil
}

// Close implements [domain.Store].
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
