package gedm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/config"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/memstore"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/mongostore"
)

// Config selects the store built by [Open] and configures logging.
type Config = config.Config

// Store drivers accepted by [Open].
const (
	DriverMemory = config.DriverMemory
	DriverMongo  = config.DriverMongo
)

// LoadConfig reads the configuration from an optional ".env" file and the
// environment variables starting with prefix, such as GEDM_STORE_URI for
// prefix "GEDM_".
func LoadConfig(prefix string) (Config, error) {
	cfg := config.Default()
	if err := config.Load(prefix, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewLogger builds the logger described by cfg, writing to stderr.
func NewLogger(cfg Config) *slog.Logger {
	return config.NewLogger(cfg.Log, os.Stderr)
}

// Open builds the store described by cfg. An in-memory store is restored
// from its dump file, if configured, and dumps back to it on Close.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (domain.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Store.Driver {
	case "", DriverMemory:
		opts := []memstore.Option{memstore.WithLogger(logger)}
		if cfg.Store.DumpFile == "" {
			return memstore.NewStore(opts...), nil
		}
		s, err := memstore.Open(ctx, cfg.Store.DumpFile, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMongo:
		s, err := mongostore.Connect(ctx, cfg.Store.URI, cfg.Store.Database,
			mongostore.WithLogger(logger),
			mongostore.WithTimeout(cfg.Store.Timeout),
		)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
