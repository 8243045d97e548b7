package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"assetflow/internal/logging"
	"assetflow/internal/services"
)

const bytesPerMiB = 1024 * 1024

var errTimedOut = errors.New("confirmation timed out")

// NetworkClass reports whether the active connection is metered.
type NetworkClass interface {
	Metered() bool
}

// Prompt describes a pending confirmation for display.
type Prompt struct {
	EstimatedBytes uint64
	// MB is the estimate in mebibytes with two decimals, e.g. "50.00".
	MB string
}

// Prompter surfaces a Prompt to the user. Implementations must not block
// waiting for the answer; the answer arrives through Gate.Approve or
// Gate.Decline.
type Prompter interface {
	Prompt(ctx context.Context, prompt Prompt) error
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, prompt Prompt) error

// Prompt calls f.
func (f PrompterFunc) Prompt(ctx context.Context, prompt Prompt) error {
	return f(ctx, prompt)
}

// Recorder observes prompts for metrics.
type Recorder interface {
	ConfirmPrompted(estimatedBytes uint64)
}

// Option configures a Gate.
type Option func(*Gate)

// WithTimeout bounds how long Request waits for an answer. Zero waits forever.
func WithTimeout(timeout time.Duration) Option {
	return func(g *Gate) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(g *Gate) {
		g.recorder = recorder
	}
}

// Gate is a one-shot approval latch. The zero value is not usable; call New.
type Gate struct {
	network  NetworkClass
	prompter Prompter
	recorder Recorder
	logger   *slog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	asked   bool
	waiting chan error
	prompt  Prompt
}

// New constructs a Gate. A nil network is treated as unmetered; a nil
// prompter leaves the answer entirely to external Approve/Decline calls.
func New(network NetworkClass, prompter Prompter, opts ...Option) *Gate {
	g := &Gate{
		network:  network,
		prompter: prompter,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "confirm")
	return g
}

// FormatMB renders bytes as mebibytes with two decimals.
func FormatMB(bytes uint64) string {
	return fmt.Sprintf("%.2f", float64(bytes)/bytesPerMiB)
}

// Request blocks until the session's download is approved. Only the first
// call per session can block.
func (g *Gate) Request(ctx context.Context, estimatedBytes uint64) error {
	g.mu.Lock()
	if g.asked {
		g.mu.Unlock()
		return nil
	}
	g.asked = true
	if g.network == nil || !g.network.Metered() {
		g.mu.Unlock()
		return nil
	}
	decision := make(chan error, 1)
	prompt := Prompt{EstimatedBytes: estimatedBytes, MB: FormatMB(estimatedBytes)}
	g.waiting = decision
	g.prompt = prompt
	g.mu.Unlock()

	logger := logging.WithContext(ctx, g.logger)
	logger.Info("awaiting download confirmation",
		logging.String(logging.FieldEventType, "confirm_prompt"),
		logging.Uint64("estimated_bytes", estimatedBytes),
		logging.String("estimated_mb", prompt.MB),
	)
	if g.recorder != nil {
		g.recorder.ConfirmPrompted(estimatedBytes)
	}

	if g.prompter != nil {
		if err := g.prompter.Prompt(ctx, prompt); err != nil {
			g.clearWaiting(decision)
			return services.Wrap(services.ErrDeclined, "confirm", "prompt", "Confirmation prompt could not be shown", err)
		}
	}

	var timeout <-chan time.Time
	if g.timeout > 0 {
		timer := time.NewTimer(g.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-decision:
		if err != nil {
			logger.Info("download declined", logging.String(logging.FieldEventType, "confirm_declined"))
			return err
		}
		logger.Info("download approved", logging.String(logging.FieldEventType, "confirm_approved"))
		return nil
	case <-ctx.Done():
		g.clearWaiting(decision)
		return ctx.Err()
	case <-timeout:
		g.clearWaiting(decision)
		logging.WarnWithContext(logger, "confirmation timed out", "confirm_timeout",
			logging.Duration("timeout", g.timeout),
			logging.String(logging.FieldImpact, "download skipped; session aborted"),
			logging.String(logging.FieldErrorHint, "approve sooner or raise pipeline.confirm_timeout"),
		)
		return services.Wrap(services.ErrDeclined, "confirm", "await approval", "No answer before the confirmation timeout", errTimedOut)
	}
}

// Approve releases a pending Request. It reports whether one was waiting.
func (g *Gate) Approve() bool {
	return g.resolve(nil)
}

// Decline fails a pending Request with services.ErrDeclined. It reports
// whether one was waiting.
func (g *Gate) Decline() bool {
	return g.resolve(services.Wrap(services.ErrDeclined, "confirm", "await approval", "Download declined by user", nil))
}

func (g *Gate) resolve(result error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.waiting == nil {
		return false
	}
	g.waiting <- result
	g.waiting = nil
	g.prompt = Prompt{}
	return true
}

func (g *Gate) clearWaiting(ch chan error) {
	g.mu.Lock()
	if g.waiting == ch {
		g.waiting = nil
		g.prompt = Prompt{}
	}
	g.mu.Unlock()
}

// Reset re-arms the latch for a new session.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.asked = false
	g.mu.Unlock()
}

// Asked reports whether the current session has already consulted the gate.
func (g *Gate) Asked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.asked
}

// Pending returns the outstanding prompt, if any.
func (g *Gate) Pending() (Prompt, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompt, g.waiting != nil
}
