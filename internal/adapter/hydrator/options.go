package hydrator

import "log/slog"

// Option configures a [Hydrator].
type Option func(*Hydrator)

// WithLogger sets the logger used to trace secondary fetches.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hydrator) {
		if l != nil {
			h.logger = l
		}
	}
}
