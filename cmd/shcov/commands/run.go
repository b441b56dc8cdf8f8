package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/shcov/internal/config"
	"github.com/Sumatoshi-tech/shcov/internal/observability"
	"github.com/Sumatoshi-tech/shcov/internal/shell"
	"github.com/Sumatoshi-tech/shcov/pkg/coverage"
	"github.com/Sumatoshi-tech/shcov/pkg/persist"
	"github.com/Sumatoshi-tech/shcov/pkg/trace"
)

const spanRun = "shcov.run"

// RunCommand holds the flag values of the run command.
type RunCommand struct {
	outputDir       string
	shell           string
	format          string
	noMerge         bool
	metricsTextfile string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{}

	cmd := &cobra.Command{
		Use:   "run [flags] script [args...]",
		Short: "Trace a script and record line coverage",
		Long: `Run a script under the tracing shell, forward its own stderr output, and
add the per-line hit counts to the coverage data file in the output
directory. Flags must precede the script path; everything after it is
passed to the script. The script's exit status becomes shcov's.`,
		Args: cobra.MinimumNArgs(1),
		RunE: rc.run,
	}

	cmd.Flags().SetInterspersed(false)

	cmd.Flags().StringVarP(&rc.outputDir, "output", "o", config.DefaultOutputDir, "Directory for the coverage data file")
	cmd.Flags().StringVarP(&rc.shell, "shell", "s", config.DefaultShell, "Tracing shell command")
	cmd.Flags().StringVar(&rc.format, "format", config.DefaultOutputFormat, "Data file format: json, yaml, msgpack")
	cmd.Flags().BoolVar(&rc.noMerge, "no-merge", false, "Replace the data file instead of adding to it")
	cmd.Flags().StringVar(&rc.metricsTextfile, "metrics-textfile", "", "Write run metrics in Prometheus text format to this file")

	return cmd
}

// applyFlags overrides config values with flags the user set explicitly.
func (rc *RunCommand) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("output") {
		cfg.Output.Dir = rc.outputDir
	}

	if flags.Changed("shell") {
		cfg.Shell = rc.shell
	}

	if flags.Changed("format") {
		cfg.Output.Format = rc.format
	}

	if rc.noMerge {
		cfg.Output.Merge = false
	}

	if flags.Changed("metrics-textfile") {
		cfg.Telemetry.MetricsTextfile = rc.metricsTextfile
	}

	return cfg.Validate()
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	err = rc.applyFlags(cmd, cfg)
	if err != nil {
		return fmt.Errorf("validate flags: %w", err)
	}

	providers, err := initObservability(cmd, cfg, observability.ModeRun)
	if err != nil {
		return err
	}

	defer shutdownObservability(providers)

	metrics, err := observability.NewCoverageMetrics(providers.Meter)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	session := &runSession{
		cmd:    cmd,
		cfg:    cfg,
		logger: providers.Logger,
		tracer: providers.Tracer,
	}

	stats, err := session.execute(ctx, args[0], args[1:])
	stats.Failed = err != nil
	metrics.RecordRun(ctx, stats)

	if err != nil {
		return err
	}

	if stats.ExitCode != 0 {
		return &ExitError{Code: stats.ExitCode}
	}

	return nil
}

// runSession carries the collaborators of one traced run.
type runSession struct {
	cmd    *cobra.Command
	cfg    *config.Config
	logger *slog.Logger
	tracer oteltrace.Tracer
}

func (s *runSession) execute(ctx context.Context, script string, scriptArgs []string) (observability.RunStats, error) {
	var stats observability.RunStats

	ctx, span := s.tracer.Start(ctx, spanRun, oteltrace.WithAttributes(
		attribute.String("shcov.script", script),
		attribute.String("shcov.shell", s.cfg.Shell),
	))
	defer span.End()

	ctx = observability.WithRunAttrs(ctx, slog.String("script", script))

	shellWords, err := shell.SplitShell(s.cfg.Shell)
	if err != nil {
		return stats, err
	}

	maxSize, err := s.cfg.MaxFileSizeBytes()
	if err != nil {
		return stats, err
	}

	reg := coverage.NewRegistry(coverage.WithMaxFileSize(maxSize))
	demux := trace.NewDemuxer(s.cmd.ErrOrStderr(), reg)
	runner := &shell.Runner{
		Shell:   shellWords,
		Stdin:   s.cmd.InOrStdin(),
		Stdout:  s.cmd.OutOrStdout(),
		Environ: append(os.Environ(), observability.PropagationEnv(ctx)...),
	}

	start := time.Now()
	code, runErr := runner.Run(ctx, script, scriptArgs, demux.Consume)
	stats.Duration = time.Since(start)

	demuxStats := demux.Stats()
	stats.Markers = demuxStats.Markers
	stats.Forwarded = demuxStats.Forwarded
	stats.Suppressed = demuxStats.Suppressed

	summary := coverage.Summarize(reg.Files())
	stats.Files = summary.Files
	stats.Lines = summary.Lines
	stats.CoveredLines = summary.CoveredLines

	span.SetAttributes(
		attribute.Int("shcov.trace.markers", demuxStats.Markers),
		attribute.Int("shcov.coverage.files", summary.Files),
	)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())

		return stats, runErr
	}

	stats.ExitCode = code
	span.SetAttributes(attribute.Int("shcov.exit_code", code))

	s.logger.DebugContext(ctx, "script finished", "exit_code", code, "duration", stats.Duration,
		"markers", demuxStats.Markers, "forwarded", demuxStats.Forwarded, "suppressed", demuxStats.Suppressed)

	path, err := s.save(ctx, reg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return stats, err
	}

	s.logger.DebugContext(ctx, "coverage saved", "path", path, "files", reg.Len())

	return stats, nil
}

// save folds the previous data file into reg, unless merging is disabled,
// and writes the result. Entries recorded against a different version of a
// file are dropped with a warning.
func (s *runSession) save(ctx context.Context, reg *coverage.Registry) (string, error) {
	codec, err := persist.CodecFor(s.cfg.Output.Format)
	if err != nil {
		return "", err
	}

	store := persist.NewStore[persist.Document](s.cfg.Output.Dir, s.cfg.Output.Basename, codec)

	if s.cfg.Output.Merge {
		err = s.mergePrevious(ctx, store, reg)
		if err != nil {
			return "", err
		}
	}

	err = store.Save(persist.FromRegistry(reg, toolName()))
	if err != nil {
		return "", fmt.Errorf("save coverage: %w", err)
	}

	return store.Path(), nil
}

func (s *runSession) mergePrevious(
	ctx context.Context, store *persist.Store[persist.Document], reg *coverage.Registry,
) error {
	prev, ok, err := store.Load()
	if err != nil {
		return fmt.Errorf("load previous coverage: %w", err)
	}

	if !ok {
		return nil
	}

	skipped, err := prev.MergeInto(reg, persist.MergeSkipStale)
	if err != nil {
		return fmt.Errorf("merge %s: %w", store.Path(), err)
	}

	for _, path := range skipped {
		s.logger.WarnContext(ctx, "dropping stale coverage: source changed since it was recorded", "path", path)
	}

	return nil
}
