// Package throughput turns cumulative byte counters into a display-stable
// transfer rate.
//
// The Estimator only recomputes its rate when more than one window has
// elapsed since the last recomputation and the counter advanced, so bursts of
// high-frequency progress callbacks never divide by a near-zero interval.
package throughput
