package throughput

import (
	"sync"
	"time"
)

// DefaultWindow is the minimum interval between rate recomputations.
const DefaultWindow = time.Second

// Clock returns the current time.
type Clock func() time.Time

// Option configures an Estimator.
type Option func(*Estimator)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(e *Estimator) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithWindow overrides the sampling window.
func WithWindow(window time.Duration) Option {
	return func(e *Estimator) {
		if window > 0 {
			e.window = window
		}
	}
}

// Estimator smooths cumulative byte counts into bytes per second.
type Estimator struct {
	mu        sync.Mutex
	now       Clock
	window    time.Duration
	lastTime  time.Time
	lastBytes uint64
	rate      float64
}

// New constructs an Estimator with its baseline set to now.
func New(opts ...Option) *Estimator {
	e := &Estimator{now: time.Now, window: DefaultWindow}
	for _, opt := range opts {
		opt(e)
	}
	e.lastTime = e.now()
	return e
}

// Start resets the baseline to (now, 0). The last rate stays readable until
// the new baseline produces one.
func (e *Estimator) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastTime = e.now()
	e.lastBytes = 0
}

// Update feeds a cumulative byte count and returns the current rate.
func (e *Estimator) Update(cumulative uint64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	elapsed := now.Sub(e.lastTime)
	if cumulative <= e.lastBytes || elapsed <= e.window {
		return e.rate
	}
	e.rate = float64(cumulative-e.lastBytes) / elapsed.Seconds()
	e.lastTime = now
	e.lastBytes = cumulative
	return e.rate
}

// Rate returns the most recently computed rate in bytes per second.
func (e *Estimator) Rate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}
