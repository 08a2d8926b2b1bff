// Package status derives the indicator pattern from the connection
// states of both bridge directions.
package status

import (
	"fmt"

	"github.com/robotalks/bridge.go/pkg/state"
)

// Pattern is the derived visual signal.
type Pattern int

// Patterns.
const (
	Off Pattern = iota
	On
	Blink
	ErrorPattern
)

// String implements fmt.Stringer.
func (p Pattern) String() string {
	switch p {
	case Off:
		return "off"
	case On:
		return "on"
	case Blink:
		return "blink"
	case ErrorPattern:
		return "error"
	}
	return fmt.Sprintf("pattern(%d)", int(p))
}

// Snapshot is the states of both directions at one point.
// Direction A flows packet link to stream link, B the reverse.
type Snapshot struct {
	PacketRx state.ConnectionState // source A
	StreamTx state.ConnectionState // sink A
	StreamRx state.ConnectionState // source B
	PacketTx state.ConnectionState // sink B
}

// String implements fmt.Stringer.
func (s Snapshot) String() string {
	return fmt.Sprintf("packet-rx=%s stream-tx=%s stream-rx=%s packet-tx=%s",
		s.PacketRx, s.StreamTx, s.StreamRx, s.PacketTx)
}

// InvariantError reports a snapshot which can't be produced by a
// correctly working duplex link.
type InvariantError struct {
	Snapshot Snapshot
	Reason   string
}

// Error implements error.
func (e *InvariantError) Error() string {
	return "status invariant violated: " + e.Reason + " (" + e.Snapshot.String() + ")"
}

func valid(s state.ConnectionState) bool {
	return s >= state.Disconnected && s <= state.Sending
}

// Check validates the snapshot. It returns *InvariantError if
// the combination is impossible.
func (s Snapshot) Check() error {
	violation := func(reason string) error {
		return &InvariantError{Snapshot: s, Reason: reason}
	}
	for _, st := range []state.ConnectionState{s.PacketRx, s.StreamTx, s.StreamRx, s.PacketTx} {
		if !valid(st) {
			return violation("unknown state " + st.String())
		}
	}
	switch {
	case s.StreamTx == state.Disconnected || s.StreamRx == state.Disconnected:
		return violation("stream side disconnected")
	case s.PacketRx == state.Sending:
		return violation("packet reader sending")
	case s.PacketTx == state.Receiving:
		return violation("packet writer receiving")
	case s.StreamTx == state.Receiving:
		return violation("stream writer receiving")
	case s.StreamRx == state.Sending:
		return violation("stream reader sending")
	case s.PacketRx == state.Disconnected && s.PacketTx.IsActive():
		return violation("packet writer active while reader disconnected")
	case s.PacketTx == state.Disconnected && s.PacketRx.IsActive():
		return violation("packet reader active while writer disconnected")
	}
	return nil
}

// Evaluate derives the pattern and returns the violation if any.
func Evaluate(s Snapshot) (Pattern, error) {
	if err := s.Check(); err != nil {
		return ErrorPattern, err
	}
	rxDown, txDown := s.PacketRx == state.Disconnected, s.PacketTx == state.Disconnected
	switch {
	case rxDown && txDown:
		if s.StreamTx.IsActive() || s.StreamRx.IsActive() {
			return On, nil
		}
		return Off, nil
	case !rxDown && !txDown:
		if s.Active() {
			return Blink, nil
		}
		return On, nil
	}
	// one side connected, the other not yet (or no longer).
	return On, nil
}

// Aggregate derives the pattern from a snapshot.
func Aggregate(s Snapshot) Pattern {
	p, _ := Evaluate(s)
	return p
}

// Active indicates any side is moving data.
func (s Snapshot) Active() bool {
	return s.PacketRx.IsActive() || s.StreamTx.IsActive() ||
		s.StreamRx.IsActive() || s.PacketTx.IsActive()
}

// PacketConnected indicates both packet-facing sides are connected.
func (s Snapshot) PacketConnected() bool {
	return s.PacketRx != state.Disconnected && s.PacketTx != state.Disconnected
}
