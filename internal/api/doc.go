// Package api serves the status and confirmation HTTP surface.
//
// The server exposes the active pipeline session, throughput, the pending
// confirmation prompt and the scene machine state as JSON, and lets a
// remote client answer the prompt. It also mounts the Prometheus handler.
package api
