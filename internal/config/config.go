// Package config loads settings from defaults, an optional YAML file,
// STUDYSYNC_ environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: STUDYSYNC_SERVER__BASE_URL sets server.base_url.
const EnvPrefix = "STUDYSYNC_"

type Config struct {
	DB         string           `koanf:"db" validate:"required"`
	Server     ServerConfig     `koanf:"server"`
	Sync       SyncConfig       `koanf:"sync"`
	Generation GenerationConfig `koanf:"generation"`
	Log        LogConfig        `koanf:"log"`
}

type ServerConfig struct {
	BaseURL           string        `koanf:"base_url" validate:"required,url"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	RetryInitial      time.Duration `koanf:"retry_initial" validate:"gt=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int           `koanf:"burst" validate:"gte=1"`
	CompressAbove     int           `koanf:"compress_above" validate:"gte=0"`
}

type SyncConfig struct {
	Interval     time.Duration `koanf:"interval" validate:"gt=0"`
	Debounce     time.Duration `koanf:"debounce" validate:"gte=0"`
	ScanInterval time.Duration `koanf:"scan_interval" validate:"gt=0"`
	Workers      int           `koanf:"workers" validate:"gte=1,lte=32"`
}

type GenerationConfig struct {
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
}

type LogConfig struct {
	Level      string `koanf:"level" validate:"oneof=debug info warn error"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" validate:"gte=1"`
	MaxBackups int    `koanf:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `koanf:"max_age_days" validate:"gte=0"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DB: "studysync.db",
		Server: ServerConfig{
			BaseURL:           "http://localhost:4000/",
			Timeout:           30 * time.Second,
			MaxRetries:        3,
			RetryInitial:      500 * time.Millisecond,
			RequestsPerSecond: 10,
			Burst:             5,
			CompressAbove:     1024,
		},
		Sync: SyncConfig{
			Interval:     15 * time.Minute,
			Debounce:     2 * time.Second,
			ScanInterval: 5 * time.Second,
			Workers:      4,
		},
		Generation: GenerationConfig{
			PollInterval: 2 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  1,
			MaxBackups: 20,
			MaxAgeDays: 14,
		},
	}
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"db":        "db",
	"server":    "server.base_url",
	"log-level": "log.level",
	"log-file":  "log.file",
}

// RegisterFlags adds the flags Load understands to flags, with defaults taken
// from Default.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("db", d.DB, "Path to the SQLite cache database")
	flags.String("server", d.Server.BaseURL, "Base URL of the study service")
	flags.String("log-level", d.Log.Level, "Log level (debug, info, warn, error)")
	flags.String("log-file", d.Log.File, "Write logs to this file instead of stderr")
}

// Load builds the configuration. path may be empty; a missing file at an
// explicit path is an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s does not exist", path)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
