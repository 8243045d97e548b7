// Package asset defines the value types shared by the pipeline orchestrator,
// the scene state machine, and asset store implementations.
//
// Path describes one requested asset and how it resolves to a local file or a
// remote URL. Sample is the per-tick progress record every store emits.
// Bundle is an opened, engine-loadable package handle.
package asset
