// Package metrics exposes Prometheus collectors for pipeline sessions, scene
// transitions, confirmation prompts and the status API.
package metrics
