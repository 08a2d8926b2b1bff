package state

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ConnectionState indicates the state of one side of a direction.
type ConnectionState int32

const (
	// Disconnected means no peer is attached. Only packet links have it.
	Disconnected ConnectionState = iota
	// Connected means the side is ready and idle.
	Connected
	// Receiving means a chunk was just read and is being published.
	Receiving
	// Sending means a chunk is being written to the link.
	Sending
)

// IsActive indicates data is moving through this side.
func (s ConnectionState) IsActive() bool {
	return s == Receiving || s == Sending
}

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Receiving:
		return "receiving"
	case Sending:
		return "sending"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Kind is the kind of link a Holder is facing.
type Kind int

const (
	// PacketSide faces a packet link and can be disconnected.
	PacketSide Kind = iota
	// StreamSide faces a stream link which is always connected.
	StreamSide
)

// Notifier is called when a state changed.
type Notifier interface {
	StateChanged(h *Holder, old, state ConnectionState)
}

// StateChangedFunc is func type of Notifier.
type StateChangedFunc func(h *Holder, old, state ConnectionState)

// StateChanged implements Notifier.
func (f StateChangedFunc) StateChanged(h *Holder, old, state ConnectionState) {
	f(h, old, state)
}

// Signal returns a Notifier which does a non-blocking send on ch.
// Use a channel with buffer size 1 to coalesce bursts of changes.
func Signal(ch chan<- struct{}) Notifier {
	return StateChangedFunc(func(*Holder, ConnectionState, ConnectionState) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
}

// Holder holds a ConnectionState with atomic get/set and
// change notification.
type Holder struct {
	name  string
	kind  Kind
	value atomic.Int32

	lock      sync.RWMutex
	notifiers []Notifier
}

// NewHolder creates a Holder. Packet side holders start
// Disconnected, stream side holders start Connected.
func NewHolder(name string, kind Kind) *Holder {
	h := &Holder{name: name, kind: kind}
	if kind == StreamSide {
		h.value.Store(int32(Connected))
	}
	return h
}

// Name returns the name of the holder.
func (h *Holder) Name() string {
	return h.name
}

// Kind returns the kind of link the holder is facing.
func (h *Holder) Kind() Kind {
	return h.kind
}

// Get returns the current state.
func (h *Holder) Get() ConnectionState {
	return ConnectionState(h.value.Load())
}

// Set updates the state and notifies if changed.
// Setting a stream side holder to Disconnected panics.
func (h *Holder) Set(state ConnectionState) bool {
	if h.kind == StreamSide && state == Disconnected {
		panic(fmt.Sprintf("state %s: stream side can't be disconnected", h.name))
	}
	old := ConnectionState(h.value.Swap(int32(state)))
	if old == state {
		return false
	}
	h.lock.RLock()
	notifiers := h.notifiers
	h.lock.RUnlock()
	for _, n := range notifiers {
		n.StateChanged(h, old, state)
	}
	return true
}

// Notify registers Notifiers.
func (h *Holder) Notify(notifiers ...Notifier) {
	h.lock.Lock()
	h.notifiers = append(h.notifiers[:len(h.notifiers):len(h.notifiers)], notifiers...)
	h.lock.Unlock()
}

// String implements fmt.Stringer.
func (h *Holder) String() string {
	return h.name + "=" + h.Get().String()
}
