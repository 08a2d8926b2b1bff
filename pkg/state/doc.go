// Package state tracks per-direction connection state of the bridge.
package state

// Each ConnectionState value has exactly one writer, the task that
// manages the direction, and is read by observers only as a snapshot.
// Writers publish changes through Holder.Set which notifies registered
// Notifiers; observers never poll.
