// Package config loads shcov settings from defaults, an optional YAML file
// and SHCOV_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

// Config is the top-level configuration struct for shcov.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Shell     string          `mapstructure:"shell"`
	Output    OutputConfig    `mapstructure:"output"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// OutputConfig controls where coverage data is written.
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	Basename string `mapstructure:"basename"`
	Format   string `mapstructure:"format"`
	Merge    bool   `mapstructure:"merge"`
}

// RegistryConfig holds coverage registry limits.
type RegistryConfig struct {
	// MaxFileSize is a humanized byte size ("512KB", "1MiB"); "0" disables the limit.
	MaxFileSize string `mapstructure:"max_file_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Environment     string            `mapstructure:"environment"`
	OTLPEndpoint    string            `mapstructure:"otlp_endpoint"`
	OTLPHeaders     map[string]string `mapstructure:"otlp_headers"`
	OTLPInsecure    bool              `mapstructure:"otlp_insecure"`
	SampleRatio     float64           `mapstructure:"sample_ratio"`
	MetricsTextfile string            `mapstructure:"metrics_textfile"`
}

// Sentinel errors for configuration validation.
var (
	// ErrEmptyShell indicates no shell command is configured.
	ErrEmptyShell = errors.New("shell must not be empty")
	// ErrEmptyOutputDir indicates no output directory is configured.
	ErrEmptyOutputDir = errors.New("output.dir must not be empty")
	// ErrEmptyBasename indicates no output basename is configured.
	ErrEmptyBasename = errors.New("output.basename must not be empty")
	// ErrInvalidFormat indicates an unsupported output format.
	ErrInvalidFormat = errors.New("output.format must be json, yaml (yml) or msgpack")
	// ErrInvalidMaxFileSize indicates an unparsable size limit.
	ErrInvalidMaxFileSize = errors.New("registry.max_file_size is not a byte size")
	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("logging.level must be debug, info, warn or error")
	// ErrInvalidSampleRatio indicates a sampling ratio outside [0, 1].
	ErrInvalidSampleRatio = errors.New("telemetry.sample_ratio must be between 0 and 1")
)

var validFormats = map[string]bool{
	"json":    true,
	"yaml":    true,
	"yml":     true,
	"msgpack": true,
}

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Shell) == "" {
		return ErrEmptyShell
	}

	outputErr := c.validateOutput()
	if outputErr != nil {
		return outputErr
	}

	_, sizeErr := c.MaxFileSizeBytes()
	if sizeErr != nil {
		return sizeErr
	}

	_, levelErr := c.LogLevel()
	if levelErr != nil {
		return levelErr
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	return nil
}

func (c *Config) validateOutput() error {
	if c.Output.Dir == "" {
		return ErrEmptyOutputDir
	}

	if c.Output.Basename == "" {
		return ErrEmptyBasename
	}

	if !validFormats[strings.ToLower(c.Output.Format)] {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Output.Format)
	}

	return nil
}

// MaxFileSizeBytes parses Registry.MaxFileSize. Empty means no limit.
func (c *Config) MaxFileSizeBytes() (uint64, error) {
	if c.Registry.MaxFileSize == "" {
		return 0, nil
	}

	size, err := humanize.ParseBytes(c.Registry.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidMaxFileSize, c.Registry.MaxFileSize, err)
	}

	return size, nil
}

// LogLevel maps Logging.Level to a slog level. Empty means warn.
func (c *Config) LogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}
}
