package link

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates the peer detached. It's a normal transition
	// back to waiting for connection rather than a failure.
	ErrClosed = errors.New("link closed")
	// ErrBufferOverflow indicates a packet doesn't fit in the read buffer.
	ErrBufferOverflow = errors.New("buffer overflow")
)

// PacketSizeError indicates a packet larger than the link supports.
type PacketSizeError struct {
	Size int
	Max  int
}

// Error implements error.
func (e *PacketSizeError) Error() string {
	return fmt.Sprintf("packet size %d exceeds max %d", e.Size, e.Max)
}

// CheckPacketSize returns *PacketSizeError if size exceeds max.
func CheckPacketSize(size, max int) error {
	if size > max {
		return &PacketSizeError{Size: size, Max: max}
	}
	return nil
}

// IsClosed indicates err reports a detached peer.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
