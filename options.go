package gedm

import (
	"log/slog"
	"time"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type options struct {
	store             domain.Store
	defaultProjection Projection
	logger            *slog.Logger
	idGenerator       domain.IDGenerator
	timeGetter        func() time.Time
}

// Option configures a [Spec] or [SubSpec].
type Option func(*options)

// WithStore binds the descriptor to a store instead of the process default.
func WithStore(s domain.Store) Option {
	return func(o *options) { o.store = s }
}

// WithDefaultProjection sets the projection used by reads that don't pass
// one.
func WithDefaultProjection(p Projection) Option {
	return func(o *options) { o.defaultProjection = p }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithIDGenerator replaces the generator assigning identities on insert.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.idGenerator = g
		}
	}
}

// WithTimeGetter replaces the clock used by [Spec.Stamp].
func WithTimeGetter(f func() time.Time) Option {
	return func(o *options) {
		if f != nil {
			o.timeGetter = f
		}
	}
}
