package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/shcov/internal/config"
	"github.com/Sumatoshi-tech/shcov/internal/observability"
	"github.com/Sumatoshi-tech/shcov/pkg/persist"
	"github.com/Sumatoshi-tech/shcov/pkg/version"
)

// ExitError carries the traced script's non-zero exit status out of Execute.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("script exited with status %d", e.Code)
}

// loadConfig reads the config named by the persistent --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("read --%s: %w", flagConfig, err)
	}

	return config.LoadConfig(path)
}

func verbose(cmd *cobra.Command) bool {
	v, err := cmd.Flags().GetBool(flagVerbose)

	return err == nil && v
}

// initObservability builds the providers for one command invocation. Logs go
// to the command's stderr.
func initObservability(
	cmd *cobra.Command, cfg *config.Config, mode observability.AppMode,
) (observability.Providers, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return observability.Providers{}, err
	}

	if verbose(cmd) {
		level = slog.LevelDebug
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.OTLPHeaders = cfg.Telemetry.OTLPHeaders
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.MetricsTextfile = cfg.Telemetry.MetricsTextfile
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.JSON
	obsCfg.LogWriter = cmd.ErrOrStderr()

	return observability.Init(obsCfg)
}

func shutdownObservability(providers observability.Providers) {
	err := providers.Shutdown(context.Background())
	if err != nil {
		providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

// loadDocument decodes a coverage data file, picking the codec from its name.
func loadDocument(path string) (*persist.Document, error) {
	codec, err := persist.CodecForPath(path)
	if err != nil {
		return nil, err
	}

	var doc persist.Document

	err = persist.LoadFile(path, codec, &doc)
	if err != nil {
		return nil, err
	}

	return &doc, nil
}
