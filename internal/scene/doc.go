// Package scene swaps the client's active scene.
//
// A Machine runs at most one transition goroutine. Each loop iteration tears
// down the current scene, loads the queued target's bundle and engine scene,
// then drains the loaders registered while the transition is in flight. A
// request for a new target during the run is honoured on the next iteration;
// a request before the bundle load starts replaces the target outright.
//
// Every suspension point is a scheduling tick that observes the run context,
// so CancelTransition stops the run and aborts collaborator calls that honour
// the context.
package scene
