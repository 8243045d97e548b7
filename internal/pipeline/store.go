package pipeline

import (
	"context"

	"assetflow/internal/asset"
)

// Store is the asset cache the orchestrator drives. Implementations must be
// safe for concurrent use; the scene state machine reads from the same store.
type Store interface {
	Verify(ctx context.Context, report asset.VerifyFunc) error
	RegisterFolder(ctx context.Context, folder string) error
	MaterializeLocal(ctx context.Context, sources []asset.Source, progress asset.ProgressFunc) error
	// FetchRemote calls confirm at most once, before requesting the first
	// byte, with the number of bytes it expects to transfer. The call is made
	// whenever any entry is stale, with a zero estimate when sizes are
	// unknown, and skipped only when nothing needs transferring.
	FetchRemote(ctx context.Context, sources []asset.Source, confirm asset.ConfirmFunc, progress asset.ProgressFunc) error
	Recompress(ctx context.Context, progress asset.ProgressFunc) error
	// Info returns services.ErrNotFound for absent entries.
	Info(ctx context.Context, name string) (asset.Info, error)
	OpenBundle(ctx context.Context, name string) (asset.Bundle, error)
	CloseBundle(bundle asset.Bundle) error
	WriteCachedArtifact(ctx context.Context, name string, produce Producer) error
	HasCachedArtifact(ctx context.Context, name string) (bool, error)
}

// Producer yields the bytes of a cached artifact.
type Producer func(ctx context.Context) ([]byte, error)

// UnzipStep is a caller-supplied post-processing step keyed by the asset it
// derives from. Execute receives a nil bundle when the asset is absent or
// already in its runtime encoding.
type UnzipStep interface {
	Filename() string
	Execute(ctx context.Context, bundle asset.Bundle, progress asset.ProgressFunc) ([]byte, error)
}

// StepFunc adapts a function to UnzipStep.
type StepFunc struct {
	Name string
	Fn   func(ctx context.Context, bundle asset.Bundle, progress asset.ProgressFunc) ([]byte, error)
}

// Filename returns the asset the step derives from.
func (s StepFunc) Filename() string { return s.Name }

// Execute runs the step.
func (s StepFunc) Execute(ctx context.Context, bundle asset.Bundle, progress asset.ProgressFunc) ([]byte, error) {
	if s.Fn == nil {
		return nil, nil
	}
	return s.Fn(ctx, bundle, progress)
}
