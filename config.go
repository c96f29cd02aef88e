package berth

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the scope settings that can come from a file.
//
//	name: api
//	stop_timeout: 30s
//	log_level: info
//	strict_operations: true
type Config struct {
	// Name is the scope ID. Empty means a random UUID.
	Name string `yaml:"name"`

	// StopTimeout bounds the whole stop phase. Zero means no bound.
	StopTimeout time.Duration `yaml:"stop_timeout"`

	// LogLevel is the level NewLogger builds at.
	LogLevel string `yaml:"log_level"`

	// StrictOperations rejects lifecycle operations on prototype bindings
	// at build time instead of running them on a fresh instance.
	StrictOperations bool `yaml:"strict_operations"`
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		StopTimeout:      30 * time.Second,
		LogLevel:         "info",
		StrictOperations: true,
	}
}

// LoadConfig decodes YAML from r over DefaultConfig. Unknown fields are an
// error.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	if c.StopTimeout < 0 {
		return fmt.Errorf("stop_timeout must not be negative, got %s", c.StopTimeout)
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// Level parses LogLevel. An empty level is info.
func (c Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}

	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("log_level: %w", err)
	}

	return lvl, nil
}

// NewLogger builds a production zap logger at the configured level.
func (c Config) NewLogger() (*zap.Logger, error) {
	lvl, err := c.Level()
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)

	return zc.Build()
}
