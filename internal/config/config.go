// Package config loads the process configuration of gedal from a file and
// from GEDAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables read by [Load].
const EnvPrefix = "GEDAL"

// Config keys.
const (
	KeyDefaultFieldType  = "default_field_type"
	KeyIDField           = "id_field"
	KeyMaxConcurrency    = "max_concurrency"
	KeyDefaultBackend    = "default_backend"
	KeyLogLevel          = "log_level"
	KeyMetadataDir       = "metadata_dir"
	KeySQLiteDSN         = "sqlite.dsn"
	KeySQLiteTablePrefix = "sqlite.table_prefix"
)

var (
	errIDField        = errors.New("id field must not be empty")
	errMaxConcurrency = errors.New("max concurrency must be positive")
	errBackend        = errors.New("default backend must not be empty")
)

// SQLite configures the sqlite controller. It is only registered when DSN
// is set.
type SQLite struct {
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// Config is the process configuration.
type Config struct {
	// DefaultFieldType is the type of metadata fields that declare none.
	DefaultFieldType string `mapstructure:"default_field_type"`
	IDField          string `mapstructure:"id_field"`
	MaxConcurrency   int    `mapstructure:"max_concurrency"`
	DefaultBackend   string `mapstructure:"default_backend"`
	LogLevel         string `mapstructure:"log_level"`
	// MetadataDir, when set, is a directory of YAML or JSON metadata
	// files loaded at start.
	MetadataDir string `mapstructure:"metadata_dir"`
	SQLite      SQLite `mapstructure:"sqlite"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DefaultFieldType: "string",
		IDField:          "_id",
		MaxConcurrency:   8,
		DefaultBackend:   "memory",
		LogLevel:         "warn",
	}
}

// Load reads the configuration file at path, if not empty, and the
// environment. Environment variables win over the file and the file over
// the defaults. Nested keys use an underscore in the environment
// (GEDAL_SQLITE_DSN).
func Load(path string) (Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault(KeyDefaultFieldType, def.DefaultFieldType)
	v.SetDefault(KeyIDField, def.IDField)
	v.SetDefault(KeyMaxConcurrency, def.MaxConcurrency)
	v.SetDefault(KeyDefaultBackend, def.DefaultBackend)
	v.SetDefault(KeyLogLevel, def.LogLevel)
	v.SetDefault(KeyMetadataDir, def.MetadataDir)
	v.SetDefault(KeySQLiteDSN, def.SQLite.DSN)
	v.SetDefault(KeySQLiteTablePrefix, def.SQLite.TablePrefix)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that have no usable zero value.
func (c Config) Validate() error {
	var errs []error
	if c.IDField == "" {
		errs = append(errs, errIDField)
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, errMaxConcurrency)
	}
	if c.DefaultBackend == "" {
		errs = append(errs, errBackend)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel. An empty level is info.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return l, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("log level: %w", err)
	}
	return l, nil
}
