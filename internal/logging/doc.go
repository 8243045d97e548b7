// Package logging assembles structured slog loggers and formatting helpers used
// across assetflow.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline and scene code can
// tag log lines with session IDs, stages, scenes, and correlation IDs. The
// ProgressSampler keeps high-frequency progress ticks from flooding logs.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the system.
package logging
