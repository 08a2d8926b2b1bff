// Package link defines the endpoints the bridge moves bytes between.
package link

import "context"

// PacketWaiter waits for a peer to attach.
type PacketWaiter interface {
	// WaitConnection suspends until a peer is attached.
	WaitConnection(context.Context) error
}

// PacketReader reads packets.
type PacketReader interface {
	// ReadPacket reads one packet into p and returns its size.
	// It returns ErrClosed when the peer detached.
	ReadPacket(ctx context.Context, p []byte) (int, error)
}

// PacketWriter writes packets.
type PacketWriter interface {
	// WritePacket writes p as one packet. len(p) must not exceed
	// MaxPacketSize. A packet of exactly MaxPacketSize tells the
	// peer more data follows, so callers flushing data must stay
	// below it.
	WritePacket(ctx context.Context, p []byte) error
}

// PacketLink exchanges bounded packets with explicit connection signaling.
type PacketLink interface {
	PacketWaiter
	PacketReader
	PacketWriter
	// MaxPacketSize returns the max size of a packet.
	MaxPacketSize() int
}

// DisconnectWaiter is implemented by packet links which can tell
// a detach without a failed read or write.
type DisconnectWaiter interface {
	// WaitDisconnect suspends until the attached peer detaches.
	// It returns nil right away if no peer is attached.
	WaitDisconnect(context.Context) error
}

// StreamLink exchanges an unbounded byte stream. It has no packet
// boundaries and is always ready.
type StreamLink interface {
	// Read reads at least 1 and at most len(p) bytes.
	Read(ctx context.Context, p []byte) (int, error)
	// Write writes all of p or fails.
	Write(ctx context.Context, p []byte) error
}
