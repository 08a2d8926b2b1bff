// Package bridge moves bytes between a packet link and a stream link
// in both directions concurrently.
package bridge

import (
	"context"
	"fmt"

	"github.com/robotalks/bridge.go/pkg/channel"
	"github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/link"
	"github.com/robotalks/bridge.go/pkg/state"
	"github.com/robotalks/bridge.go/pkg/status"
)

// Direction is one way of the bridge: Ingress publishes
// into Channel and Egress consumes from it.
type Direction struct {
	Name    string
	Channel channel.Channel
	Ingress *Ingress
	Egress  *Egress
}

// Stats returns the counters of the direction.
func (d *Direction) Stats() DirectionStats {
	return DirectionStats{
		Ingress: d.Ingress.Stats(),
		Channel: d.Channel.Stats(),
		Egress:  d.Egress.Stats(),
	}
}

// Runnables returns the named tasks of the direction.
func (d *Direction) Runnables() []framework.Runnable {
	return []framework.Runnable{
		framework.NamedRun(d.Ingress.Name, d.Ingress),
		framework.NamedRun(d.Egress.Name, d.Egress),
	}
}

func newDirection(name string, cfg DirectionConfig) (*Direction, channel.Subscriber, error) {
	ch, err := channel.New(cfg.Policy, cfg.Capacity, cfg.Subscribers)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	sub, err := ch.Subscribe()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Direction{Name: name, Channel: ch}, sub, nil
}

// Bridge connects a packet link and a stream link.
type Bridge struct {
	Config   Config
	ToStream *Direction
	ToPacket *Direction
}

// New creates a Bridge.
func New(cfg Config, packetLink link.PacketLink, streamLink link.StreamLink) (*Bridge, error) {
	if err := cfg.resolve(packetLink.MaxPacketSize()); err != nil {
		return nil, err
	}
	b := &Bridge{Config: cfg}

	toStream, sub, err := newDirection("to-stream", cfg.ToStream)
	if err != nil {
		return nil, err
	}
	toStream.Ingress = NewPacketIngress("packet-rx", packetLink, toStream.Channel, cfg.ToStream.ReadSize)
	toStream.Egress = NewStreamEgress("stream-tx", streamLink, sub, cfg.ToStream.WriteSize)
	toStream.Egress.Coalesce = cfg.ToStream.Coalesce
	toStream.Egress.CoalesceDelay = cfg.ToStream.CoalesceDelay
	b.ToStream = toStream

	toPacket, sub, err := newDirection("to-packet", cfg.ToPacket)
	if err != nil {
		return nil, err
	}
	toPacket.Ingress = NewStreamIngress("stream-rx", streamLink, toPacket.Channel, cfg.ToPacket.ReadSize)
	toPacket.Egress = NewPacketEgress("packet-tx", packetLink, sub, cfg.ToPacket.WriteSize)
	toPacket.Egress.Coalesce = cfg.ToPacket.Coalesce
	toPacket.Egress.CoalesceDelay = cfg.ToPacket.CoalesceDelay
	b.ToPacket = toPacket

	for _, d := range []*Direction{toStream, toPacket} {
		d.Ingress.ActivityYield, d.Ingress.RetryDelay = cfg.ActivityYield, cfg.RetryDelay
		d.Egress.ActivityYield, d.Egress.RetryDelay = cfg.ActivityYield, cfg.RetryDelay
		d.Egress.WriteRetries = cfg.WriteRetries
	}
	return b, nil
}

func (b *Bridge) holders() []*state.Holder {
	return []*state.Holder{
		b.ToStream.Ingress.State,
		b.ToStream.Egress.State,
		b.ToPacket.Ingress.State,
		b.ToPacket.Egress.State,
	}
}

// Snapshot implements status.Source.
func (b *Bridge) Snapshot() status.Snapshot {
	return status.Snapshot{
		PacketRx: b.ToStream.Ingress.State.Get(),
		StreamTx: b.ToStream.Egress.State.Get(),
		StreamRx: b.ToPacket.Ingress.State.Get(),
		PacketTx: b.ToPacket.Egress.State.Get(),
	}
}

// Notify implements status.Source.
func (b *Bridge) Notify(notifiers ...state.Notifier) {
	for _, h := range b.holders() {
		h.Notify(notifiers...)
	}
}

// Stats returns the counters of both directions.
func (b *Bridge) Stats() Stats {
	return Stats{
		ToStream: b.ToStream.Stats(),
		ToPacket: b.ToPacket.Stats(),
	}
}

// Runnables returns the tasks of both directions.
func (b *Bridge) Runnables() []framework.Runnable {
	return append(b.ToStream.Runnables(), b.ToPacket.Runnables()...)
}

// Run runs all tasks until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	return framework.NewRunnerWith(ctx).Go(b.Runnables()...).Wait()
}
