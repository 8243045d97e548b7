// Package confirm implements the once-per-session approval latch that guards
// downloads on metered networks.
//
// The first Request in a session marks the gate as asked. When the network is
// metered it surfaces the estimated size to a Prompter and blocks until
// Approve, Decline, context cancellation, or the optional timeout. Every later
// Request in the same session returns immediately. Reset re-arms the latch for
// the next session.
package confirm
