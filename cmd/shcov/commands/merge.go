package commands

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/shcov/internal/observability"
	"github.com/Sumatoshi-tech/shcov/pkg/coverage"
	"github.com/Sumatoshi-tech/shcov/pkg/persist"
)

// MergeCommand holds the flag values of the merge command.
type MergeCommand struct {
	output string
}

// NewMergeCommand creates the merge command.
func NewMergeCommand() *cobra.Command {
	mc := &MergeCommand{}

	cmd := &cobra.Command{
		Use:   "merge -o out file...",
		Short: "Combine coverage data files",
		Long: `Add up the hit counts of several coverage data files and write the result
to --output. The output format follows its extension (.json, .yaml or
.msgpack.lz4). Files that disagree on a source's fingerprint cannot be merged.`,
		Args: cobra.MinimumNArgs(1),
		RunE: mc.run,
	}

	cmd.Flags().StringVarP(&mc.output, "output", "o", "", "Merged data file")

	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func (mc *MergeCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	providers, err := initObservability(cmd, cfg, observability.ModeMerge)
	if err != nil {
		return err
	}

	defer shutdownObservability(providers)

	codec, err := persist.CodecForPath(mc.output)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	docs, err := loadDocuments(ctx, args)
	if err != nil {
		return err
	}

	reg := coverage.NewRegistry()

	for i, doc := range docs {
		_, err = doc.MergeInto(reg, persist.MergeStrict)
		if err != nil {
			return fmt.Errorf("merge %s: %w", args[i], err)
		}
	}

	err = persist.SaveFile(mc.output, codec, persist.FromRegistry(reg, toolName()))
	if err != nil {
		return err
	}

	providers.Logger.InfoContext(ctx, "coverage merged", "inputs", len(args), "files", reg.Len(), "output", mc.output)

	return nil
}

// loadDocuments decodes paths in parallel. Results keep the order of paths.
func loadDocuments(ctx context.Context, paths []string) ([]*persist.Document, error) {
	docs := make([]*persist.Document, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(runtime.GOMAXPROCS(0), len(paths)))

	for i, path := range paths {
		g.Go(func() error {
			err := gctx.Err()
			if err != nil {
				return err
			}

			doc, err := loadDocument(path)
			if err != nil {
				return err
			}

			docs[i] = doc

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return docs, nil
}
