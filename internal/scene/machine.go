package scene

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"assetflow/internal/logging"
)

// DefaultTick is the default scheduling tick between suspension points.
const DefaultTick = 16 * time.Millisecond

// Option configures a Machine.
type Option func(*Machine)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTick overrides the scheduling tick.
func WithTick(tick time.Duration) Option {
	return func(m *Machine) {
		if tick > 0 {
			m.tick = tick
		}
	}
}

// WithProgressView installs a progress renderer.
func WithProgressView(view ProgressView) Option {
	return func(m *Machine) { m.view = view }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(m *Machine) { m.recorder = recorder }
}

// WithBaseContext sets the parent of every run context.
func WithBaseContext(ctx context.Context) Option {
	return func(m *Machine) {
		if ctx != nil {
			m.base = ctx
		}
	}
}

// WithInitialScene records a scene that is already active.
func WithInitialScene(name string) Option {
	return func(m *Machine) { m.current = name }
}

// Machine is the scene transition state machine.
type Machine struct {
	engine   Engine
	bundles  BundleLoader
	view     ProgressView
	recorder Recorder
	logger   *slog.Logger
	tick     time.Duration
	base     context.Context

	mu         sync.Mutex
	state      State
	current    string
	next       string
	onComplete func(error)
	loaders    []Loader
	index      uint64
	runIndex   uint64
	cancel     context.CancelFunc
	progress   float64

	// canceled marks a run that CancelTransition detached and that is still
	// unwinding. abandoned is its completion callback; restart is the request
	// that takes over once it exits.
	canceled  bool
	abandoned func(error)
	restart   *Request
}

// New constructs an idle Machine.
func New(engine Engine, bundles BundleLoader, opts ...Option) *Machine {
	m := &Machine{
		engine:  engine,
		bundles: bundles,
		logger:  logging.NewNop(),
		tick:    DefaultTick,
		base:    context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "scene")
	return m
}

// RequestTransition queues a transition to req.Target. It returns false for
// an empty target and when the target is already active with nothing queued.
// A request for the queued target only replaces the completion callback.
func (m *Machine) RequestTransition(req Request) bool {
	if req.Target == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.canceled {
		m.next = req.Target
		m.onComplete = req.OnComplete
		m.restart = &req
		m.logger.Debug("transition queued behind canceled run",
			logging.String(logging.FieldEventType, "transition_restart"),
			logging.String(logging.FieldScene, req.Target),
		)
		return true
	}
	if m.next == "" && req.Target == m.current {
		return false
	}
	m.onComplete = req.OnComplete
	if req.Target == m.next {
		return true
	}
	m.next = req.Target

	if m.state == Idle {
		m.startLocked(req)
	} else {
		m.logger.Debug("transition redirected",
			logging.String(logging.FieldEventType, "transition_redirect"),
			logging.String(logging.FieldScene, req.Target),
		)
	}
	return true
}

// startLocked spawns a run for req under a fresh correlation index. Callers
// hold mu and have already set next and onComplete.
func (m *Machine) startLocked(req Request) {
	m.index++
	m.runIndex = m.index
	ctx, cancel := context.WithCancel(m.base)
	m.cancel = cancel
	m.state = TearingDown
	m.progress = 0
	if m.view != nil {
		m.view.Show(m.runIndex, req.Target)
	}
	go m.run(ctx, cancel, m.runIndex, req.WaitForLoaders, req.Activation)
}

// RegisterLoader enqueues a readiness signal for the in-flight transition.
// It returns false, dropping the loader, when no transition is running.
func (m *Machine) RegisterLoader(loader Loader) bool {
	if loader == nil {
		return false
	}
	m.mu.Lock()
	if m.state == Idle {
		m.mu.Unlock()
		return false
	}
	m.loaders = append(m.loaders, loader)
	pending := len(m.loaders)
	m.mu.Unlock()
	if m.recorder != nil {
		m.recorder.LoadersPending(pending)
	}
	return true
}

// CancelTransition clears the run's progress registration and cancels its
// context. The canceled run stops accepting redirects, so a request made
// before it finishes unwinding starts a fresh run. A request queued behind a
// canceled run is dropped and its callback receives context.Canceled. It
// returns false when nothing is running or queued.
func (m *Machine) CancelTransition() bool {
	m.mu.Lock()
	cancel := m.cancel
	index := m.runIndex
	if cancel == nil {
		if !m.canceled || m.restart == nil {
			m.mu.Unlock()
			return false
		}
		callback := m.onComplete
		m.restart = nil
		m.next = ""
		m.onComplete = nil
		m.loaders = nil
		m.mu.Unlock()
		if callback != nil {
			callback(context.Canceled)
		}
		return true
	}
	m.cancel = nil
	m.canceled = true
	m.abandoned = m.onComplete
	m.onComplete = nil
	m.next = ""
	m.loaders = nil
	m.mu.Unlock()

	if m.view != nil {
		m.view.Clear(index)
	}
	cancel()
	return true
}

// Status returns a snapshot of the machine.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:          m.state,
		Current:        m.current,
		Next:           m.next,
		PendingLoaders: len(m.loaders),
		Index:          m.runIndex,
		Progress:       m.progress,
	}
}

func (m *Machine) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *Machine) report(index uint64, progress float64) {
	m.mu.Lock()
	m.progress = progress
	m.mu.Unlock()
	if m.view != nil {
		m.view.Update(index, progress)
	}
}

func (m *Machine) yield(ctx context.Context) error {
	timer := time.NewTimer(m.tick)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
