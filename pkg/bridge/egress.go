package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/bridge.go/pkg/channel"
	"github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/link"
	"github.com/robotalks/bridge.go/pkg/state"
)

// errDetached stops the write loop when a packet sink failed.
var errDetached = errors.New("sink detached")

// Egress receives chunks and writes them to a sink link.
type Egress struct {
	Name          string
	State         *state.Holder
	Subscriber    channel.Subscriber
	WriteSize     int
	Coalesce      bool
	CoalesceDelay time.Duration
	WriteRetries  int
	ActivityYield time.Duration
	RetryDelay    time.Duration

	dst      writer
	pending  []byte
	buf      []byte
	counters counters
}

// NewPacketEgress creates an Egress writing to a packet link.
// writeSize must be less than the max packet size.
func NewPacketEgress(name string, l link.PacketLink, sub channel.Subscriber, writeSize int) *Egress {
	return &Egress{
		Name:       name,
		State:      state.NewHolder(name, state.PacketSide),
		Subscriber: sub,
		WriteSize:  writeSize,
		dst:        packetEndpoint{PacketLink: l},
	}
}

// NewStreamEgress creates an Egress writing to a stream link.
func NewStreamEgress(name string, l link.StreamLink, sub channel.Subscriber, writeSize int) *Egress {
	return &Egress{
		Name:       name,
		State:      state.NewHolder(name, state.StreamSide),
		Subscriber: sub,
		WriteSize:  writeSize,
		dst:        streamEndpoint{StreamLink: l},
	}
}

// Stats returns the counters.
func (e *Egress) Stats() IOStats {
	return e.counters.stats()
}

func (e *Egress) packetSide() bool {
	return e.State.Kind() == state.PacketSide
}

// Run implements framework.Runnable.
func (e *Egress) Run(ctx context.Context) error {
	for {
		if e.packetSide() {
			if err := e.dst.WaitConnection(ctx); err != nil {
				return err
			}
			if dropped := e.Subscriber.Resync(); dropped > 0 {
				e.counters.lagged.Add(dropped)
				glog.Warningf("%s: dropped %d stale chunks", e.Name, dropped)
			}
			e.State.Set(state.Connected)
			glog.Infof("%s: connected", e.Name)
		}
		err := e.attachedLoop(ctx)
		if err != errDetached {
			return err
		}
		e.State.Set(state.Disconnected)
		glog.Infof("%s: disconnected", e.Name)
		if len(e.pending) > 0 && !e.Subscriber.Policy().IsLossless() {
			glog.Warningf("%s: dropped %d unsent bytes", e.Name, len(e.pending))
			e.counters.dropped.Add(uint64(len(e.pending)))
			e.pending = nil
		}
	}
}

// attachedLoop runs writeLoop until the packet sink detaches,
// which is noticed while idle as well.
func (e *Egress) attachedLoop(ctx context.Context) error {
	waiter, ok := e.dst.(link.DisconnectWaiter)
	if !ok || !e.packetSide() {
		return e.writeLoop(ctx)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var detached atomic.Bool
	go func() {
		if waiter.WaitDisconnect(loopCtx) == nil {
			detached.Store(true)
			cancel()
		}
	}()
	err := e.writeLoop(loopCtx)
	if err != nil && ctx.Err() == nil && detached.Load() {
		return errDetached
	}
	return err
}

func (e *Egress) writeLoop(ctx context.Context) error {
	failures := 0
	for {
		if len(e.pending) == 0 {
			if err := e.next(ctx); err != nil {
				return err
			}
		}
		size := len(e.pending)
		if size > e.WriteSize {
			size = e.WriteSize
		}
		e.State.Set(state.Sending)
		err := e.dst.Write(ctx, e.pending[:size])
		if err == nil {
			e.counters.transferred(size)
			e.pending = e.pending[size:]
			failures = 0
			err = framework.Yield(ctx, e.ActivityYield)
			e.State.Set(state.Connected)
			if err == nil && e.Coalesce && len(e.pending) > 0 {
				err = e.topUp(ctx)
			}
			if err != nil {
				return err
			}
			continue
		}
		e.State.Set(state.Connected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.counters.errors.Add(1)
		if e.packetSide() {
			if !link.IsClosed(err) {
				glog.Warningf("%s: write error: %v", e.Name, err)
			}
			return errDetached
		}
		failures++
		if failures > e.WriteRetries {
			glog.Errorf("%s: write failed %d times, dropped %d bytes: %v", e.Name, failures, len(e.pending), err)
			e.counters.dropped.Add(uint64(len(e.pending)))
			e.pending = nil
			failures = 0
			continue
		}
		glog.Warningf("%s: write error (retry %d/%d): %v", e.Name, failures, e.WriteRetries, err)
		if err = framework.Sleep(ctx, e.RetryDelay); err != nil {
			return err
		}
	}
}

// next fills pending with the next chunk, coalescing the chunks
// immediately available up to WriteSize.
func (e *Egress) next(ctx context.Context) error {
	e.buf = e.buf[:0]
	for {
		c, err := e.Subscriber.Receive(ctx)
		if err == nil {
			e.buf = append(e.buf, c...)
			break
		}
		if !e.lagged(err) {
			return err
		}
	}
	e.pending = e.buf
	if !e.Coalesce {
		return nil
	}
	err := e.fill()
	e.pending = e.buf
	return err
}

// fill appends the chunks immediately available to buf until it
// holds at least WriteSize bytes.
func (e *Egress) fill() error {
	for len(e.buf) < e.WriteSize {
		c, ok, err := e.Subscriber.TryReceive()
		if err != nil {
			if e.lagged(err) {
				continue
			}
			return err
		}
		if !ok {
			return nil
		}
		e.buf = append(e.buf, c...)
	}
	return nil
}

// topUp merges more chunks into the tail left by a split write.
// A split means the source is mid transfer, so the next chunk is
// awaited for up to CoalesceDelay.
func (e *Egress) topUp(ctx context.Context) error {
	e.buf = append(e.buf[:0], e.pending...)
	defer func() { e.pending = e.buf }()
	if err := e.fill(); err != nil || len(e.buf) >= e.WriteSize || e.CoalesceDelay <= 0 {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, e.CoalesceDelay)
	defer cancel()
	for {
		c, err := e.Subscriber.Receive(waitCtx)
		if err == nil {
			e.buf = append(e.buf, c...)
			return e.fill()
		}
		if e.lagged(err) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if waitCtx.Err() != nil {
			return nil
		}
		return err
	}
}

func (e *Egress) lagged(err error) bool {
	var lagErr *channel.LagError
	if !errors.As(err, &lagErr) {
		return false
	}
	e.counters.lagged.Add(lagErr.Count)
	glog.Warningf("%s: lagged, missed %d chunks", e.Name, lagErr.Count)
	return true
}
