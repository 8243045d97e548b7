package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"assetflow/internal/api"
	"assetflow/internal/boot"
	"assetflow/internal/confirm"
	"assetflow/internal/logging"
	"assetflow/internal/metrics"
	"assetflow/internal/netclass"
	"assetflow/internal/pipeline"
	"assetflow/internal/scene"
)

type syncOptions struct {
	remote   string
	verify   bool
	yes      bool
	listen   string
	scene    string
	noRemote bool
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync [paths...]",
		Short: "Load assets into the local store",
		Long: "Materializes bundled assets, fetches updates from the CDN when one is configured,\n" +
			"and normalizes the store to the runtime codec. Without paths every file under\n" +
			"paths.bundled_dir is loaded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, ctx, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.remote, "remote", "", "Asset base URL (defaults to {remote.base_url}/{platform}/{language})")
	cmd.Flags().BoolVar(&opts.noRemote, "offline", false, "Skip the download stage")
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "Verify the store before loading")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Approve metered downloads without asking")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Serve the status API on this address during the run")
	cmd.Flags().StringVar(&opts.scene, "scene", "", "Scene bundle to enter once assets are loaded")
	return cmd
}

func runSync(cmd *cobra.Command, ctx *commandContext, opts syncOptions, args []string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	tty := isTerminal(errOut)

	logger, err := ctx.newLogger(!tty)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := ctx.openStore(runCtx, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	paths := parsePaths(args)
	if len(paths) == 0 {
		if paths, err = bundledPaths(cfg.Paths.BundledDir); err != nil {
			return fmt.Errorf("list bundled assets: %w", err)
		}
	}

	remote := strings.TrimSpace(opts.remote)
	if remote == "" {
		remote = cfg.AssetBaseURL()
	}
	if opts.noRemote {
		remote = ""
	}

	classifier := netclass.FromConfig(cfg.Network, logger)
	if err := classifier.Start(runCtx); err != nil {
		return err
	}
	defer classifier.Stop()

	met := metrics.New()
	view := newProgressView(errOut, tty)
	listen := strings.TrimSpace(opts.listen)
	if listen == "" {
		listen = cfg.API.Bind
	}

	prompter := &terminalPrompter{
		autoApprove: opts.yes,
		interactive: tty && isTerminalReader(cmd.InOrStdin()),
		remote:      listen != "",
		in:          cmd.InOrStdin(),
		out:         errOut,
		before:      view.clear,
	}
	gate := confirm.New(classifier, prompter,
		confirm.WithTimeout(cfg.ConfirmTimeout()),
		confirm.WithLogger(logger),
		confirm.WithRecorder(met),
	)
	prompter.gate = gate

	orchestrator := pipeline.New(store, gate,
		pipeline.WithLogger(logger),
		pipeline.WithHooks(view.hooks()),
		pipeline.WithRecorder(met),
		pipeline.WithWriteRestricted(cfg.Pipeline.WriteRestricted),
		pipeline.WithBundledRoot(cfg.Paths.BundledDir),
	)

	engine := scene.NewHeadlessEngine(func(name string) bool {
		_, err := store.Info(context.Background(), name)
		return err == nil
	})
	machine := scene.New(engine, store,
		scene.WithLogger(logger),
		scene.WithTick(cfg.SceneTick()),
		scene.WithRecorder(met),
		scene.WithProgressView(view),
		scene.WithBaseContext(runCtx),
	)

	if listen != "" {
		server := api.New(api.Options{
			Bind:     listen,
			Token:    cfg.API.Token,
			Pipeline: orchestrator,
			Gate:     gate,
			Scenes:   machine,
			Health:   healthFunc(store, classifier),
			Metrics:  met,
			Logger:   logger,
		})
		if err := server.Start(runCtx); err != nil {
			return err
		}
		defer server.Stop()
		fmt.Fprintf(errOut, "Status API listening on %s\n", server.Addr())
	}

	defaultScene := strings.TrimSpace(opts.scene)
	if defaultScene == "" {
		defaultScene = cfg.Scene.DefaultScene
	}

	started := time.Now()
	err = boot.Run(runCtx, boot.Options{
		Pipeline:       orchestrator,
		Scenes:         machine,
		Paths:          paths,
		RemoteBase:     remote,
		Verify:         opts.verify || cfg.Pipeline.VerifyOnLoad,
		DefaultScene:   defaultScene,
		WaitForLoaders: cfg.Scene.WaitForLoaders,
		Logger:         logger,
	})
	if err != nil {
		logging.ErrorWithContext(logger, "sync failed", "sync_failed", logging.Error(err))
		return err
	}

	stats, err := store.Stats(runCtx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Synced %d paths in %s: %d entries, %s (%s on disk)\n",
		len(paths),
		time.Since(started).Round(time.Millisecond),
		stats.Entries,
		humanize.IBytes(uint64(stats.Bytes)),
		humanize.IBytes(uint64(stats.StoredBytes)),
	)
	if defaultScene != "" {
		fmt.Fprintf(out, "Scene: %s\n", machine.Status().Current)
	}
	return nil
}
