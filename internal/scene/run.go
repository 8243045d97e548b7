package scene

import (
	"context"
	"errors"
	"time"

	"assetflow/internal/logging"
	"assetflow/internal/services"
)

func (m *Machine) run(ctx context.Context, cancel context.CancelFunc, index uint64, waitForLoaders bool, activation ActivationGate) {
	defer cancel()
	started := time.Now()

	err := m.yield(ctx)
	m.mu.Lock()
	for err == nil && m.next != "" && !m.canceled {
		m.mu.Unlock()
		err = m.transition(ctx, index, waitForLoaders, activation)
		m.mu.Lock()
	}
	// The idle check and the state change share one critical section so a
	// request arriving now either lands in this run or spawns a new one.
	var callback func(error)
	if m.canceled {
		if err == nil {
			err = context.Canceled
		}
		callback = m.abandoned
		m.abandoned = nil
		m.canceled = false
	} else {
		callback = m.onComplete
		m.onComplete = nil
		m.loaders = nil
		if err != nil {
			m.next = ""
		}
	}
	if m.runIndex == index {
		m.cancel = nil
	}
	current := m.current
	if restart := m.restart; restart != nil {
		m.restart = nil
		m.startLocked(*restart)
	} else {
		m.state = Idle
		m.loaders = nil
	}
	m.mu.Unlock()

	if m.view != nil {
		m.view.Clear(index)
	}
	result := services.Kind(err)
	if m.recorder != nil {
		m.recorder.TransitionFinished(result, time.Since(started))
		m.recorder.LoadersPending(0)
	}

	logger := m.logger.With(logging.String(logging.FieldScene, current))
	switch {
	case err == nil:
		logger.Info("scene transition complete",
			logging.String(logging.FieldEventType, "transition_complete"),
			logging.Duration("duration", time.Since(started)),
		)
	case errors.Is(err, context.Canceled):
		logger.Info("scene transition canceled", logging.String(logging.FieldEventType, "transition_canceled"))
	default:
		logging.ErrorWithContext(logger, "scene transition failed", "transition_failed", logging.Error(err))
	}
	if callback != nil {
		callback(err)
	}
}

// transition performs one teardown, load and drain pass for the queued target.
func (m *Machine) transition(ctx context.Context, index uint64, waitForLoaders bool, activation ActivationGate) error {
	m.mu.Lock()
	previous := m.current
	m.state = TearingDown
	m.mu.Unlock()

	if previous != "" {
		if err := m.teardown(ctx, previous); err != nil {
			m.mu.Lock()
			m.current = ""
			m.mu.Unlock()
			return err
		}
	}

	m.mu.Lock()
	if m.canceled {
		m.mu.Unlock()
		return context.Canceled
	}
	target := m.next
	m.current = target
	m.state = LoadingBundle
	m.mu.Unlock()
	if target == "" {
		return nil
	}
	sceneCtx := services.WithScene(ctx, target)

	if err := m.load(sceneCtx, index, target, waitForLoaders, activation); err != nil {
		m.mu.Lock()
		m.current = ""
		m.mu.Unlock()
		return err
	}

	m.setState(WaitingForLoaders)
	if err := m.drain(sceneCtx, index, waitForLoaders); err != nil {
		return err
	}

	m.mu.Lock()
	if m.next == target && !m.canceled {
		m.next = ""
	}
	m.mu.Unlock()
	return nil
}

// teardown waits for the previous scene to finish loading, destroys its
// roots, waits a tick for dependents to finalize, then releases the bundle
// and reclaims memory.
func (m *Machine) teardown(ctx context.Context, previous string) error {
	logging.WithContext(ctx, m.logger).Debug("tearing down scene", logging.String("previous", previous))
	if m.engine.SceneValid(previous) {
		for !m.engine.SceneLoaded(previous) {
			if err := m.yield(ctx); err != nil {
				return err
			}
		}
		if err := m.engine.DestroyRoots(ctx, previous); err != nil {
			return services.Wrap(services.ErrBundleLoad, "scene", "destroy roots", previous, err)
		}
		if err := m.yield(ctx); err != nil {
			return err
		}
	}
	if m.bundles != nil {
		if err := m.bundles.UnloadBundle(previous); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, m.logger), "bundle unload failed", "bundle_unload_failed",
				logging.String("previous", previous),
				logging.Error(err),
				logging.String(logging.FieldImpact, "previous bundle memory may stay resident"),
			)
		}
	}
	if err := m.engine.PurgeUnused(ctx); err != nil {
		return services.Wrap(services.ErrBundleLoad, "scene", "purge unused", previous, err)
	}
	m.engine.Collect()
	return nil
}

func (m *Machine) load(ctx context.Context, index uint64, target string, waitForLoaders bool, activation ActivationGate) error {
	logger := logging.WithContext(ctx, m.logger)
	logger.Info("loading scene", logging.String(logging.FieldEventType, "transition_load"))

	if m.bundles != nil {
		_, err := m.bundles.LoadSceneBundle(ctx, target, func(p float64) {
			m.report(index, bundleProgress(p, waitForLoaders))
		})
		if err != nil {
			return services.Wrap(services.ErrBundleLoad, "scene", "load bundle", target, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	op, err := m.engine.LoadScene(ctx, target)
	if err != nil {
		return services.Wrap(services.ErrBundleLoad, "scene", "load scene", target, err)
	}
	if op == nil {
		return nil
	}
	op.SetAllowActivation(activation == nil)
	for !op.Done() {
		m.report(index, engineProgress(op.Progress(), waitForLoaders))
		if activation != nil && activation(ctx) {
			op.SetAllowActivation(true)
			activation = nil
		}
		if err := m.yield(ctx); err != nil {
			return err
		}
	}
	return nil
}

// drain waits on registered loaders in FIFO order. Loaders registered while
// draining join the tail of the queue.
func (m *Machine) drain(ctx context.Context, index uint64, waitForLoaders bool) error {
	done := 0
	for {
		m.mu.Lock()
		if m.canceled {
			m.mu.Unlock()
			return context.Canceled
		}
		if len(m.loaders) == 0 {
			m.mu.Unlock()
			return nil
		}
		head := m.loaders[0]
		m.mu.Unlock()

		for {
			if err := m.yield(ctx); err != nil {
				return err
			}
			if waitForLoaders {
				m.report(index, AggregateProgress(done, m.pendingProgress()))
			}
			if head.IsDone() {
				break
			}
		}

		m.mu.Lock()
		m.loaders = m.loaders[1:]
		pending := len(m.loaders)
		m.mu.Unlock()
		if m.recorder != nil {
			m.recorder.LoadersPending(pending)
		}
		done++
	}
}

func (m *Machine) pendingProgress() []float64 {
	m.mu.Lock()
	loaders := append([]Loader(nil), m.loaders...)
	m.mu.Unlock()
	progress := make([]float64, len(loaders))
	for i, l := range loaders {
		progress[i] = l.Progress()
	}
	return progress
}
