package bridge

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/bridge.go/pkg/channel"
	"github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/link"
	"github.com/robotalks/bridge.go/pkg/state"
)

// Ingress reads chunks from a source link and publishes them.
type Ingress struct {
	Name          string
	State         *state.Holder
	Publisher     channel.Publisher
	ReadSize      int
	ActivityYield time.Duration
	RetryDelay    time.Duration

	src      reader
	counters counters
}

// NewPacketIngress creates an Ingress reading from a packet link.
func NewPacketIngress(name string, l link.PacketLink, pub channel.Publisher, readSize int) *Ingress {
	return &Ingress{
		Name:      name,
		State:     state.NewHolder(name, state.PacketSide),
		Publisher: pub,
		ReadSize:  readSize,
		src:       packetEndpoint{PacketLink: l},
	}
}

// NewStreamIngress creates an Ingress reading from a stream link.
func NewStreamIngress(name string, l link.StreamLink, pub channel.Publisher, readSize int) *Ingress {
	return &Ingress{
		Name:      name,
		State:     state.NewHolder(name, state.StreamSide),
		Publisher: pub,
		ReadSize:  readSize,
		src:       streamEndpoint{StreamLink: l},
	}
}

// Stats returns the counters.
func (g *Ingress) Stats() IOStats {
	return g.counters.stats()
}

func (g *Ingress) packetSide() bool {
	return g.State.Kind() == state.PacketSide
}

// Run implements framework.Runnable.
func (g *Ingress) Run(ctx context.Context) error {
	buf := make([]byte, g.ReadSize)
	for {
		if g.packetSide() {
			if err := g.src.WaitConnection(ctx); err != nil {
				return err
			}
			g.State.Set(state.Connected)
			glog.Infof("%s: connected", g.Name)
		}
		if err := g.readLoop(ctx, buf); err != nil {
			return err
		}
		g.State.Set(state.Disconnected)
		glog.Infof("%s: disconnected", g.Name)
	}
}

// readLoop returns nil when the packet source detached.
func (g *Ingress) readLoop(ctx context.Context, buf []byte) error {
	for {
		n, err := g.src.Read(ctx, buf)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if g.packetSide() && link.IsClosed(err) {
				return nil
			}
			g.counters.errors.Add(1)
			glog.Warningf("%s: read error: %v", g.Name, err)
			if err = framework.Sleep(ctx, g.RetryDelay); err != nil {
				return err
			}
			continue
		}
		if n == 0 {
			continue
		}
		g.State.Set(state.Receiving)
		if err = framework.Yield(ctx, g.ActivityYield); err == nil {
			err = g.Publisher.Publish(ctx, channel.NewChunk(buf[:n]))
		}
		g.State.Set(state.Connected)
		if err != nil {
			return err
		}
		g.counters.transferred(n)
	}
}
