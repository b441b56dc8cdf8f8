// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for the shcov commands.
package observability

import (
	"io"
	"log/slog"
)

// AppMode names the subcommand a process was started for.
type AppMode string

// Subcommand modes, recorded as the app.mode resource attribute.
const (
	ModeRun    AppMode = "run"
	ModeReport AppMode = "report"
	ModeMerge  AppMode = "merge"
)

const (
	defaultServiceName        = "shcov"
	defaultShutdownTimeoutSec = 5
)

// Config selects the exporters and log format for one process.
//
// With no OTLPEndpoint and no MetricsTextfile, Init returns no-op tracer and
// meter providers and only the logger produces output.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Environment becomes deployment.environment when set.
	Environment string
	Mode        AppMode

	// OTLPEndpoint is a host:port gRPC collector address.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool
	// SampleRatio applies to root spans; 0 keeps all of them.
	SampleRatio float64

	// MetricsTextfile is rewritten at shutdown in the node_exporter
	// textfile collector format.
	MetricsTextfile string

	LogLevel slog.Level
	LogJSON  bool
	// LogWriter defaults to os.Stderr.
	LogWriter io.Writer

	ShutdownTimeoutSec int
}

// DefaultConfig returns the zero-config settings. Logs stop at warn because
// stderr is shared with the traced script.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeRun,
		LogLevel:           slog.LevelWarn,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
