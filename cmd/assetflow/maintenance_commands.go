package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"assetflow/internal/asset"
	"assetflow/internal/metrics"
	"assetflow/internal/pipeline"
	"assetflow/internal/stage"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify stored assets and normalize their codec",
		Long: "Re-hashes every entry, drops corrupt ones so the next sync restores them,\n" +
			"then recompresses entries to the runtime codec.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tty := isTerminal(cmd.ErrOrStderr())
			logger, err := ctx.newLogger(!tty)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			store, err := ctx.openStore(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			before, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			view := newProgressView(cmd.ErrOrStderr(), tty)
			orchestrator := pipeline.New(store, nil,
				pipeline.WithLogger(logger),
				pipeline.WithHooks(view.hooks()),
				pipeline.WithRecorder(metrics.New()),
				pipeline.WithWriteRestricted(cfg.Pipeline.WriteRestricted),
			)
			if err := orchestrator.RunPipeline(cmd.Context(), pipeline.Request{Verify: true}); err != nil {
				return err
			}
			after, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cfg.Pipeline.WriteRestricted {
				fmt.Fprintln(out, "Store is write-restricted; verification skipped")
			}
			fmt.Fprintf(out, "Verified %d entries, dropped %d\n", before.Entries, before.Entries-after.Entries)
			fmt.Fprintf(out, "Runtime codec: %d/%d entries\n", after.Runtime, after.Entries)
			return nil
		},
	}
}

func newRecompressCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recompress",
		Short: "Convert stored entries to the runtime codec",
		RunE: func(cmd *cobra.Command, args []string) error {
			tty := isTerminal(cmd.ErrOrStderr())
			logger, err := ctx.newLogger(!tty)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			store, err := ctx.openStore(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			view := newProgressView(cmd.ErrOrStderr(), tty)
			hooks := view.hooks()
			if hooks.OnStageStart != nil {
				hooks.OnStageStart(stage.Recompress)
			}
			var moved uint64
			err = store.Recompress(cmd.Context(), func(sample asset.Sample) {
				moved = sample.CumulativeBytes
				if hooks.OnProgress != nil {
					hooks.OnProgress(stage.Recompress, sample, 0)
				}
			})
			if hooks.OnStageEnd != nil {
				hooks.OnStageEnd(stage.Recompress, err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recompressed %s to %s\n", humanize.IBytes(moved), store.RuntimeCodec())
			return nil
		},
	}
}
