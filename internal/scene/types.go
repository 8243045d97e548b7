package scene

import (
	"context"
	"time"

	"assetflow/internal/asset"
)

// State is the phase of the transition goroutine.
type State int

const (
	Idle State = iota
	TearingDown
	LoadingBundle
	WaitingForLoaders
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TearingDown:
		return "tearing_down"
	case LoadingBundle:
		return "loading_bundle"
	case WaitingForLoaders:
		return "waiting_for_loaders"
	default:
		return "unknown"
	}
}

// Engine is the scene manager the machine drives.
type Engine interface {
	SceneValid(name string) bool
	SceneLoaded(name string) bool
	DestroyRoots(ctx context.Context, name string) error
	PurgeUnused(ctx context.Context) error
	Collect()
	// LoadScene starts loading name; a nil operation means the engine
	// completed the load synchronously.
	LoadScene(ctx context.Context, name string) (LoadOperation, error)
}

// LoadOperation tracks an engine scene load.
type LoadOperation interface {
	Done() bool
	Progress() float64
	SetAllowActivation(allow bool)
}

// BundleLoader provides scene bundles.
type BundleLoader interface {
	LoadSceneBundle(ctx context.Context, name string, progress func(float64)) (asset.Bundle, error)
	UnloadBundle(name string) error
}

// Loader is a scene-local readiness signal the transition waits on.
type Loader interface {
	IsDone() bool
	Progress() float64
}

// ActivationGate is polled once per tick while the engine load runs; the
// scene activates once it returns true.
type ActivationGate func(ctx context.Context) bool

// Request asks for a transition to Target.
type Request struct {
	Target         string
	OnComplete     func(error)
	Activation     ActivationGate
	WaitForLoaders bool
}

// ProgressView renders transition progress keyed by the run's correlation
// index.
type ProgressView interface {
	Show(index uint64, target string)
	Update(index uint64, progress float64)
	Clear(index uint64)
}

// Recorder receives transition measurements for metrics.
type Recorder interface {
	TransitionFinished(result string, duration time.Duration)
	LoadersPending(count int)
}

// Status is a snapshot of the machine.
type Status struct {
	State          State
	Current        string
	Next           string
	PendingLoaders int
	Index          uint64
	Progress       float64
}
