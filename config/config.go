// Package config loads the qcpack runtime configuration from the environment.
// Command-line flags override the loaded values.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/maspeqc/qcpack/format"
)

// Config is the runtime configuration of the qcpack command.
type Config struct {
	DBPath        string `env:"QCPACK_DB_PATH" envDefault:"qcpack.db"`
	WorkDir       string `env:"QCPACK_WORK_DIR"` // defaults to os.TempDir()
	KeepWorkDir   bool   `env:"QCPACK_KEEP_WORK_DIR"`
	PayloadFormat string `env:"QCPACK_PAYLOAD_FORMAT" envDefault:"json"`
	Compression   string `env:"QCPACK_COMPRESSION" envDefault:"none"`
	Polarity      string `env:"QCPACK_POLARITY"`
	Workers       int    `env:"QCPACK_WORKERS" envDefault:"1"`
	LogLevel      string `env:"QCPACK_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load returns the configuration read from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate checks enumerated values and bounds.
func (c Config) Validate() error {
	if _, _, err := c.Encoding(); err != nil {
		return err
	}

	switch c.Polarity {
	case "", "+", "-":
	default:
		return fmt.Errorf("invalid polarity %q", c.Polarity)
	}

	if c.Workers < 0 {
		return fmt.Errorf("invalid worker count %d", c.Workers)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	return nil
}

// Encoding returns the parsed payload format and compression.
func (c Config) Encoding() (format.PayloadFormat, format.CompressionType, error) {
	payload, err := format.ParsePayloadFormat(c.PayloadFormat)
	if err != nil {
		return 0, 0, err
	}

	compression, err := format.ParseCompression(c.Compression)
	if err != nil {
		return 0, 0, err
	}

	return payload, compression, nil
}
