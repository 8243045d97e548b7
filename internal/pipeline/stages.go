package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"assetflow/internal/asset"
	"assetflow/internal/logging"
	"assetflow/internal/services"
	"assetflow/internal/stage"
)

func (o *Orchestrator) runStages(ctx context.Context, s *session) error {
	req := s.req
	if req.Verify && !o.writeRestricted {
		if err := o.runStage(ctx, s, stage.Verify, o.verify); err != nil {
			return err
		}
	}

	if o.gate != nil {
		o.gate.Reset()
	}
	o.hooks.sessionStart(s.id)

	if err := o.runStage(ctx, s, stage.Unzip, o.unzip); err != nil {
		return err
	}
	if req.RemoteBase != "" {
		if err := o.download(ctx, s); err != nil {
			return err
		}
	}
	if len(req.Steps) > 0 {
		if err := o.runStage(ctx, s, stage.PostSteps, o.postSteps); err != nil {
			return err
		}
	}
	o.hooks.sessionEnd(s.id)

	if req.OnLoaded != nil {
		req.OnLoaded()
	}
	if o.gate != nil {
		o.gate.Reset()
	}
	return o.runStage(ctx, s, stage.Recompress, o.recompress)
}

type stageFunc func(ctx context.Context, s *session, progress asset.ProgressFunc) error

func (o *Orchestrator) runStage(ctx context.Context, s *session, name stage.Name, fn stageFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = services.WithStage(ctx, string(name))
	o.beginStage(ctx, s, name)
	start := time.Now()
	err := fn(ctx, s, o.progressFor(ctx, s, name))
	err = stageError(name, err)
	o.endStage(ctx, s, name, start, err)
	return err
}

func (o *Orchestrator) beginStage(ctx context.Context, s *session, name stage.Name) {
	s.enter(name)
	if name.Transfers() {
		o.estimator.Start()
	}
	logging.WithContext(ctx, o.logger).Debug("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
	)
	o.hooks.stageStart(name)
}

func (o *Orchestrator) endStage(ctx context.Context, s *session, name stage.Name, start time.Time, err error) {
	duration := time.Since(start)
	if o.recorder != nil {
		o.recorder.StageFinished(string(name), services.Kind(err), duration, s.bytes(name))
	}
	if err == nil {
		logging.WithContext(ctx, o.logger).Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Uint64("bytes", s.bytes(name)),
			logging.Duration("stage_duration", duration),
		)
	}
	o.hooks.stageEnd(name, err)
}

// progressFor clamps the stage's cumulative counter so it never decreases,
// then fans the sample out to the estimator, hooks, recorder and log.
func (o *Orchestrator) progressFor(ctx context.Context, s *session, name stage.Name) asset.ProgressFunc {
	var (
		mu   sync.Mutex
		last uint64
	)
	logger := logging.WithContext(ctx, o.logger)
	return func(sample asset.Sample) {
		mu.Lock()
		if sample.CumulativeBytes < last {
			logging.WarnWithContext(logger, "progress counter regressed", "progress_regression",
				logging.String("asset", sample.Name),
				logging.Uint64("reported", sample.CumulativeBytes),
				logging.Uint64("previous", last),
				logging.String(logging.FieldImpact, "sample clamped to previous value"),
				logging.String(logging.FieldErrorHint, "store reset its counter mid-stage"),
			)
			sample.CumulativeBytes = last
		}
		last = sample.CumulativeBytes
		mu.Unlock()

		rate := o.estimator.Rate()
		if name.Transfers() {
			rate = o.estimator.Update(sample.CumulativeBytes)
			if o.recorder != nil {
				o.recorder.Throughput(rate)
			}
		}
		s.record(name, sample)
		o.hooks.progress(name, sample, rate)

		o.progressMu.Lock()
		emit := o.sampler.ShouldLog(string(name), sample.CumulativeBytes, sample.TotalBytes)
		o.progressMu.Unlock()
		if emit {
			logger.Info("stage progress",
				logging.String(logging.FieldEventType, "stage_progress"),
				logging.String("asset", sample.Name),
				logging.String("progress", FormatProgress(name, sample, rate)),
			)
		}
	}
}

func (o *Orchestrator) verify(ctx context.Context, s *session, _ asset.ProgressFunc) error {
	return o.store.Verify(ctx, func(name string, index, count int) {
		s.record(stage.Verify, asset.Sample{Name: name, Index: index, Count: count})
		o.hooks.verify(name, index, count)
	})
}

func (o *Orchestrator) unzip(ctx context.Context, s *session, progress asset.ProgressFunc) error {
	for _, p := range s.req.Paths {
		folder := p.Folder()
		if folder == "" {
			continue
		}
		if err := o.store.RegisterFolder(ctx, folder); err != nil {
			return err
		}
	}
	return o.store.MaterializeLocal(ctx, asset.LocalSources(s.req.Paths, o.bundledRoot), progress)
}

// download brackets the store's confirm callback in confirm stage events
// and defers the download stage start until after approval, so observers
// always see confirm before download.
func (o *Orchestrator) download(ctx context.Context, s *session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	downloadCtx := services.WithStage(ctx, string(stage.Download))
	var (
		startOnce sync.Once
		started   time.Time
		confirmed bool
		confirmErr error
	)
	begin := func() {
		startOnce.Do(func() {
			started = time.Now()
			o.beginStage(downloadCtx, s, stage.Download)
		})
	}

	confirmFn := func(cctx context.Context, estimated uint64) error {
		if confirmed {
			return nil
		}
		confirmed = true
		confirmCtx := services.WithStage(cctx, string(stage.Confirm))
		o.beginStage(confirmCtx, s, stage.Confirm)
		confirmStart := time.Now()
		var err error
		if o.gate != nil {
			err = o.gate.Request(confirmCtx, estimated)
		}
		err = stageError(stage.Confirm, err)
		confirmErr = err
		o.endStage(confirmCtx, s, stage.Confirm, confirmStart, err)
		if err == nil {
			begin()
		}
		return err
	}

	inner := o.progressFor(downloadCtx, s, stage.Download)
	progress := func(sample asset.Sample) {
		begin()
		inner(sample)
	}

	err := o.store.FetchRemote(downloadCtx, asset.RemoteSources(s.req.Paths, s.req.RemoteBase), confirmFn, progress)
	if confirmErr != nil {
		return confirmErr
	}
	begin()
	err = stageError(stage.Download, err)
	o.endStage(downloadCtx, s, stage.Download, started, err)
	return err
}

func (o *Orchestrator) postSteps(ctx context.Context, s *session, progress asset.ProgressFunc) error {
	logger := logging.WithContext(ctx, o.logger)
	for _, step := range s.req.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		filename := step.Filename()
		direct := filename == ""
		if !direct {
			info, err := o.store.Info(ctx, filename)
			switch {
			case errors.Is(err, services.ErrNotFound):
				direct = true
			case err != nil:
				return err
			default:
				direct = info.Runtime
			}
		}
		if direct {
			if _, err := step.Execute(ctx, nil, progress); err != nil {
				return err
			}
			continue
		}

		cached, err := o.store.HasCachedArtifact(ctx, filename)
		if err != nil {
			return err
		}
		if cached {
			logger.Debug("cached artifact present; step skipped", logging.String("artifact", filename))
			continue
		}
		if err := o.produceArtifact(ctx, step, filename, progress); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) produceArtifact(ctx context.Context, step UnzipStep, filename string, progress asset.ProgressFunc) error {
	bundle, err := o.store.OpenBundle(ctx, filename)
	if err != nil {
		return err
	}
	writeErr := o.store.WriteCachedArtifact(ctx, filename, func(pctx context.Context) ([]byte, error) {
		return step.Execute(pctx, bundle, progress)
	})
	closeErr := o.store.CloseBundle(bundle)
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

func (o *Orchestrator) recompress(ctx context.Context, _ *session, progress asset.ProgressFunc) error {
	return o.store.Recompress(ctx, progress)
}

func stageError(name stage.Name, err error) error {
	if err == nil || services.HasMarker(err) {
		return err
	}
	marker := services.ErrLocalIO
	if name == stage.Download {
		marker = services.ErrNetwork
	}
	return services.Wrap(marker, string(name), "run", "", err)
}
