// Package pipeline runs asset pipeline sessions against a Store.
//
// A session walks the stages verify, unzip, confirm, download, post-steps and
// recompress in that order, skipping the ones a Request does not need. The
// Orchestrator serializes sessions through a FIFO ticket queue so a request
// submitted while another session runs starts only after it finishes. The
// first stage error aborts the session and is returned wrapped with a
// services marker; retry policy belongs to the Store or the caller.
//
// Progress is reported through Hooks and a Recorder, with per-stage byte
// counters clamped so consumers never observe them decreasing.
package pipeline
