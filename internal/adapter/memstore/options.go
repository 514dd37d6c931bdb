package memstore

import (
	"log/slog"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

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

// WithComparer replaces the comparer used to order and match values.
func WithComparer(c domain.Comparer) Option {
	return func(s *Store) { s.comparer = c }
}

// WithDocumentFactory replaces the factory building stored documents.
func WithDocumentFactory(f domain.DocumentFactory) Option {
	return func(s *Store) { s.docFac = f }
}

// WithDumpFile makes [Store.Close] write a dump to the given path.
func WithDumpFile(path string) Option {
	return func(s *Store) { s.dumpFile = path }
}

// WithCorruptAlertThreshold sets the share of undecodable lines
// [Store.Restore] accepts before failing.
func WithCorruptAlertThreshold(t float64) Option {
	return func(s *Store) { s.corruptAlertThreshold = t }
}
