package bridge

import (
	"context"

	"github.com/robotalks/bridge.go/pkg/link"
)

// reader is the source side of a direction.
type reader interface {
	// WaitConnection returns immediately for sources always ready.
	WaitConnection(context.Context) error
	Read(ctx context.Context, p []byte) (int, error)
}

// writer is the sink side of a direction.
type writer interface {
	WaitConnection(context.Context) error
	Write(ctx context.Context, p []byte) error
}

type packetEndpoint struct {
	link.PacketLink
}

func (e packetEndpoint) Read(ctx context.Context, p []byte) (int, error) {
	return e.ReadPacket(ctx, p)
}

func (e packetEndpoint) Write(ctx context.Context, p []byte) error {
	return e.WritePacket(ctx, p)
}

// WaitDisconnect blocks until ctx is done on links unable to
// tell a detach before a write fails.
func (e packetEndpoint) WaitDisconnect(ctx context.Context) error {
	if w, ok := e.PacketLink.(link.DisconnectWaiter); ok {
		return w.WaitDisconnect(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

type streamEndpoint struct {
	link.StreamLink
}

func (streamEndpoint) WaitConnection(ctx context.Context) error {
	return ctx.Err()
}
