package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/shcov/internal/observability"
	"github.com/Sumatoshi-tech/shcov/internal/report"
	"github.com/Sumatoshi-tech/shcov/internal/syntax"
	"github.com/Sumatoshi-tech/shcov/pkg/coverage"
	"github.com/Sumatoshi-tech/shcov/pkg/persist"
	"github.com/Sumatoshi-tech/shcov/pkg/trace"
)

// ReportCommand holds the flag values of the report command.
type ReportCommand struct {
	annotate string
	noColor  bool
}

// NewReportCommand creates the report command.
func NewReportCommand() *cobra.Command {
	rc := &ReportCommand{}

	cmd := &cobra.Command{
		Use:   "report [flags] file",
		Short: "Render a coverage data file",
		Long: `Print a per-file coverage table for a data file written by "shcov run" or
"shcov merge". With --annotate, print one source file with the hit count of
each line instead.`,
		Args: cobra.ExactArgs(1),
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.annotate, "annotate", "", "Source file to print with per-line hit counts")
	cmd.Flags().BoolVar(&rc.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (rc *ReportCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	providers, err := initObservability(cmd, cfg, observability.ModeReport)
	if err != nil {
		return err
	}

	defer shutdownObservability(providers)

	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}

	reg := coverage.NewRegistry()

	_, err = doc.MergeInto(reg, persist.MergeStrict)
	if err != nil {
		return err
	}

	renderer := report.NewRenderer(cmd.OutOrStdout(), report.Options{NoColor: rc.noColor})

	if rc.annotate == "" {
		return renderer.Table(reg.Files())
	}

	path, err := trace.CanonicalPath(rc.annotate)
	if err != nil {
		return err
	}

	rec, err := reg.Get(path)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", coverage.ErrReadSource, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if coverage.FingerprintOf(source) != rec.Fingerprint() {
		providers.Logger.WarnContext(ctx, "source changed since coverage was recorded; counts may not line up", "path", path)
	}

	executable, err := syntax.ExecutableLines(ctx, source)
	if err != nil {
		providers.Logger.DebugContext(ctx, "cannot classify executable lines", "path", path, "error", err)

		executable = nil
	}

	return renderer.Annotate(rec, source, executable)
}
