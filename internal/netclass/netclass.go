package netclass

import (
	"context"
	"log/slog"

	"assetflow/internal/config"
)

// Classifier reports whether transfers currently run over a metered link.
type Classifier interface {
	Metered() bool
	Start(ctx context.Context) error
	Stop()
}

// Static is a fixed answer.
type Static bool

// Metered returns the configured answer.
func (s Static) Metered() bool { return bool(s) }

// Start is a no-op.
func (Static) Start(context.Context) error { return nil }

// Stop is a no-op.
func (Static) Stop() {}

// FromConfig picks the classifier for the network.metered mode.
func FromConfig(cfg config.Network, logger *slog.Logger) Classifier {
	switch cfg.Metered {
	case "always":
		return Static(true)
	case "never":
		return Static(false)
	default:
		return NewUdevClassifier(DefaultSysRoot, cfg.MeteredDevTypes, logger)
	}
}
