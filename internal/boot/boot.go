// Package boot runs the startup sequence: load assets, then enter the
// default scene.
package boot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"assetflow/internal/asset"
	"assetflow/internal/logging"
	"assetflow/internal/pipeline"
	"assetflow/internal/scene"
	"assetflow/internal/services"
)

// Pipeline runs one asset session.
type Pipeline interface {
	RunPipeline(ctx context.Context, req pipeline.Request) error
}

// Scenes accepts transition requests.
type Scenes interface {
	RequestTransition(req scene.Request) bool
	CancelTransition() bool
}

// Options describes one boot.
type Options struct {
	Pipeline       Pipeline
	Scenes         Scenes
	Paths          []asset.Path
	RemoteBase     string
	Steps          []pipeline.UnzipStep
	Verify         bool
	DefaultScene   string
	WaitForLoaders bool
	Activation     scene.ActivationGate
	Logger         *slog.Logger
}

// Run loads the requested assets and then transitions to the default scene,
// returning once the transition completes. With no default scene it returns
// after the pipeline.
func Run(ctx context.Context, opts Options) error {
	logger := logging.NewComponentLogger(opts.Logger, "boot")
	if opts.Pipeline == nil {
		return services.Wrap(services.ErrConfiguration, "boot", "run", "pipeline is required", nil)
	}
	started := time.Now()

	err := opts.Pipeline.RunPipeline(ctx, pipeline.Request{
		Paths:      opts.Paths,
		RemoteBase: opts.RemoteBase,
		Steps:      opts.Steps,
		Verify:     opts.Verify,
	})
	if err != nil {
		return err
	}
	logger.Info("assets ready",
		logging.String(logging.FieldEventType, "boot_assets_ready"),
		logging.Int("paths", len(opts.Paths)),
		logging.Duration("elapsed", time.Since(started)),
	)

	target := strings.TrimSpace(opts.DefaultScene)
	if target == "" || opts.Scenes == nil {
		return nil
	}

	done := make(chan error, 1)
	accepted := opts.Scenes.RequestTransition(scene.Request{
		Target:         target,
		WaitForLoaders: opts.WaitForLoaders,
		Activation:     opts.Activation,
		OnComplete: func(err error) {
			select {
			case done <- err:
			default:
			}
		},
	})
	if !accepted {
		logger.Debug("default scene already active", logging.String(logging.FieldScene, target))
		return nil
	}

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		logger.Info("boot complete",
			logging.String(logging.FieldEventType, "boot_complete"),
			logging.String(logging.FieldScene, target),
			logging.Duration("elapsed", time.Since(started)),
		)
		return nil
	case <-ctx.Done():
		opts.Scenes.CancelTransition()
		return ctx.Err()
	}
}
