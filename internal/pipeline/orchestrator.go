package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"assetflow/internal/asset"
	"assetflow/internal/confirm"
	"assetflow/internal/logging"
	"assetflow/internal/services"
	"assetflow/internal/stage"
	"assetflow/internal/throughput"
)

// Request describes one pipeline session.
type Request struct {
	Paths []asset.Path
	// RemoteBase enables the confirm and download stages when non-empty.
	RemoteBase string
	Steps      []UnzipStep
	Verify     bool
	// OnLoaded runs after post-steps and before recompress.
	OnLoaded func()
}

// SessionStatus is a snapshot of the active session.
type SessionStatus struct {
	ID         string
	Stage      stage.Name
	Sample     asset.Sample
	Paths      int
	RemoteBase string
	Started    time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHooks installs lifecycle and progress hooks.
func WithHooks(hooks Hooks) Option {
	return func(o *Orchestrator) { o.hooks = hooks }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) { o.recorder = recorder }
}

// WithWriteRestricted disables the verify stage for targets whose cache may
// not be rewritten in place.
func WithWriteRestricted(restricted bool) Option {
	return func(o *Orchestrator) { o.writeRestricted = restricted }
}

// WithBundledRoot sets the directory unzip resolves paths without a local
// prefix against.
func WithBundledRoot(root string) Option {
	return func(o *Orchestrator) { o.bundledRoot = root }
}

// WithEstimator replaces the throughput estimator.
func WithEstimator(estimator *throughput.Estimator) Option {
	return func(o *Orchestrator) {
		if estimator != nil {
			o.estimator = estimator
		}
	}
}

// Orchestrator sequences pipeline sessions against a Store.
type Orchestrator struct {
	store           Store
	gate            *confirm.Gate
	logger          *slog.Logger
	hooks           Hooks
	recorder        Recorder
	estimator       *throughput.Estimator
	writeRestricted bool
	bundledRoot     string

	queue ticketQueue

	mu      sync.RWMutex
	active  *session
	cancel  context.CancelFunc
	lastErr error

	progressMu sync.Mutex
	sampler    *logging.ProgressSampler
}

// New constructs an Orchestrator. A nil gate approves every download.
func New(store Store, gate *confirm.Gate, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		gate:    gate,
		logger:  logging.NewNop(),
		sampler: logging.NewProgressSampler(5),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.estimator == nil {
		o.estimator = throughput.New()
	}
	o.logger = logging.NewComponentLogger(o.logger, "pipeline")
	return o
}

// RunPipeline queues a session behind any in-flight one, runs it, and returns
// its terminal result.
func (o *Orchestrator) RunPipeline(ctx context.Context, req Request) error {
	return o.runTicket(ctx, o.queue.take(), req)
}

// LoadAssets queues a session and runs it asynchronously. The queue position
// is taken before LoadAssets returns; onComplete receives the result.
func (o *Orchestrator) LoadAssets(ctx context.Context, req Request, onComplete func(error)) {
	t := o.queue.take()
	go func() {
		err := o.runTicket(ctx, t, req)
		if onComplete != nil {
			onComplete(err)
		}
	}()
}

func (o *Orchestrator) runTicket(ctx context.Context, t *ticket, req Request) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	defer t.release()
	return o.run(ctx, req)
}

// CancelSession cancels the in-flight session. Queued sessions still run.
func (o *Orchestrator) CancelSession() bool {
	o.mu.RLock()
	cancel := o.cancel
	o.mu.RUnlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Active returns a snapshot of the in-flight session.
func (o *Orchestrator) Active() (SessionStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.active == nil {
		return SessionStatus{}, false
	}
	return o.active.status(), true
}

// Queued returns the number of sessions waiting for their turn.
func (o *Orchestrator) Queued() int {
	return o.queue.queued()
}

// LastError returns the result of the most recent failed session.
func (o *Orchestrator) LastError() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastErr
}

// Rate returns the current throughput estimate in bytes per second.
func (o *Orchestrator) Rate() float64 {
	return o.estimator.Rate()
}

func (o *Orchestrator) run(parent context.Context, req Request) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s := newSession(uuid.NewString(), req)
	ctx = services.WithSessionID(ctx, s.id)

	o.mu.Lock()
	o.active = s
	o.cancel = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.active = nil
		o.cancel = nil
		o.mu.Unlock()
	}()

	o.progressMu.Lock()
	o.sampler.Reset()
	o.progressMu.Unlock()

	logger := logging.WithContext(ctx, o.logger)
	logger.Info(
		"pipeline session started",
		logging.String(logging.FieldEventType, "session_start"),
		logging.Int("paths", len(req.Paths)),
		logging.String("remote_base", req.RemoteBase),
		logging.Bool("verify", req.Verify),
		logging.Int("steps", len(req.Steps)),
	)

	err := o.runStages(ctx, s)
	duration := time.Since(s.started)
	result := services.Kind(err)
	if o.recorder != nil {
		o.recorder.SessionFinished(result, duration)
	}

	o.mu.Lock()
	if err != nil {
		o.lastErr = err
	}
	o.mu.Unlock()

	switch {
	case err == nil:
		logger.Info(
			"pipeline session finished",
			logging.String(logging.FieldEventType, "session_complete"),
			logging.Duration("duration", duration),
		)
	case result == "canceled":
		logger.Info(
			"pipeline session canceled",
			logging.String(logging.FieldEventType, "session_canceled"),
			logging.String(logging.FieldStage, string(s.currentStage())),
		)
	default:
		logging.ErrorWithContext(logger, "pipeline session failed", "session_failed",
			logging.String(logging.FieldStage, string(s.currentStage())),
			logging.String("result", result),
			logging.Error(err),
		)
	}
	o.hooks.sessionFinished(s.id, err)
	return err
}
