// Package services defines shared utilities consumed by the pipeline stages,
// the scene state machine, and the asset store.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, stage names, scene names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that tag failures as
//     local IO, network, declined, or bundle-load problems.
//   - Kind, which maps a wrapped error back to a short label for logs and
//     metrics.
//
// Use these helpers when wiring new stage logic so failure classification and
// observability stay uniform across the pipeline.
package services
