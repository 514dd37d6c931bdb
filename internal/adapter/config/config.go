// Package config loads store and logging settings from an optional dotenv
// file and prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
)

// Config is the full configuration of a gedm application.
type Config struct {
	Store Store `mapstructure:"store"`
	Log   Log   `mapstructure:"log"`
}

// Store selects and configures the store backend.
type Store struct {
	// Driver is either [DriverMemory] or [DriverMongo].
	Driver string `mapstructure:"driver"`
	// URI is the MongoDB connection string.
	URI string `mapstructure:"uri"`
	// Database is the MongoDB database name.
	Database string `mapstructure:"database"`
	// Timeout bounds connecting to MongoDB.
	Timeout time.Duration `mapstructure:"timeout"`
	// DumpFile is the file an in-memory store is restored from and dumped
	// to on close. Empty means no persistence.
	DumpFile string `mapstructure:"dumpfile"`
}

// Log configures the logger built by [NewLogger].
type Log struct {
	// Level is one of DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level"`
	// Format is json or text.
	Format string `mapstructure:"format"`
}

// Default returns the configuration used for unset keys.
func Default() Config {
	return Config{
		Store: Store{Driver: DriverMemory, Database: "gedm", Timeout: 10 * time.Second},
		Log:   Log{Level: "INFO", Format: "text"},
	}
}

type loadOptions struct {
	file    string
	environ func() []string
}

// Option configures [Load].
type Option func(*loadOptions)

// WithFile reads path instead of ".env". The file is optional either way.
func WithFile(path string) Option {
	return func(o *loadOptions) { o.file = path }
}

// WithEnviron replaces [os.Environ] as the source of environment variables.
func WithEnviron(f func() []string) Option {
	return func(o *loadOptions) { o.environ = f }
}

// Load reads the configuration into target. Keys are looked up as
// PREFIX_SECTION_KEY, so with prefix "GEDM_" the variable GEDM_STORE_URI sets
// store.uri. Environment variables win over the dotenv file.
func Load(prefix string, target any, opts ...Option) error {
	o := loadOptions{file: ".env", environ: os.Environ}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	def := Default()
	v.SetDefault("store.driver", def.Store.Driver)
	v.SetDefault("store.database", def.Store.Database)
	v.SetDefault("store.timeout", def.Store.Timeout)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	prefix = strings.ToUpper(prefix)

	file := viper.New()
	file.SetConfigFile(o.file)
	file.SetConfigType("env")
	if err := file.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read config file %s: %w", o.file, err)
		}
	}
	for _, key := range file.AllKeys() {
		if k, ok := propKey(prefix, key); ok {
			v.Set(k, file.Get(key))
		}
	}

	for _, env := range o.environ() {
		key, value, _ := strings.Cut(env, "=")
		if k, ok := propKey(prefix, key); ok {
			v.Set(k, value)
		}
	}

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// propKey maps PREFIX_STORE_URI to store.uri.
func propKey(prefix, key string) (string, bool) {
	key = strings.ToUpper(key)
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	k := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, prefix), "_", "."))
	k = strings.TrimPrefix(k, ".")
	return k, k != ""
}
