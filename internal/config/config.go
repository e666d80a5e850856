// Package config provides configuration parsing and validation for the
// d4ft CLI's non-protocol settings: logging, rate limiting, and the
// defaults that back its command-line flags.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete d4ft CLI configuration.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Transfer    TransferConfig    `yaml:"transfer"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// TransferConfig controls default transfer behavior.
type TransferConfig struct {
	// Address is the default listen/connect address when neither side
	// overrides it on the command line.
	Address string `yaml:"address"`

	// AcceptTimeout is read from the config file but not applied:
	// InitListen waits for its one peer connection without a time limit.
	AcceptTimeout time.Duration `yaml:"accept_timeout"`
}

// RateLimitConfig controls the sender's optional bandwidth cap.
type RateLimitConfig struct {
	// BytesPerSecond caps file-body throughput. Zero disables the
	// limiter.
	BytesPerSecond int64 `yaml:"bytes_per_second"`
}

// MetricsConfig controls the optional Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Transfer: TransferConfig{
			Address:       "0.0.0.0:7862",
			AcceptTimeout: 0,
		},
		RateLimit: RateLimitConfig{
			BytesPerSecond: 0,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9091",
		},
	}
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, starting from Default and
// expanding ${VAR}/$VAR references before unmarshaling.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// escapedDollarPlaceholder stands in for a literal "$$" while envVarRegex
// runs, so a config that needs a literal dollar sign (e.g. a password
// containing one) doesn't have to avoid the character entirely.
const escapedDollarPlaceholder = "\x00d4ft-escaped-dollar\x00"

// expandEnvVars resolves ${VAR}, ${VAR:-default}, and bare $VAR
// references against the process environment, treating "$$" as an
// escaped literal dollar sign rather than the start of a reference.
func expandEnvVars(s string) string {
	s = strings.ReplaceAll(s, "$$", escapedDollarPlaceholder)

	s = envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		name, braced := strings.CutPrefix(match, "${")
		if braced {
			name = name[:len(name)-1]
		} else {
			name = match[1:]
		}

		varName, defaultVal, hasDefault := strings.Cut(name, ":-")
		if !hasDefault {
			varName, defaultVal = name, match
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return defaultVal
	})

	return strings.ReplaceAll(s, escapedDollarPlaceholder, "$")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}
	if c.RateLimit.BytesPerSecond < 0 {
		errs = append(errs, "rate_limit.bytes_per_second must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, "metrics.address is required when metrics.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// String returns a YAML representation of the config.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
