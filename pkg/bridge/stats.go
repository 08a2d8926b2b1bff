package bridge

import (
	"sync/atomic"

	"github.com/robotalks/bridge.go/pkg/channel"
)

// IOStats are the counters of an Ingress or Egress.
type IOStats struct {
	Chunks uint64
	Bytes  uint64
	Errors uint64
	// Lagged is the number of chunks missed, either reported lagged
	// by the channel or dropped by a resync after reconnecting.
	Lagged uint64
	// Dropped is the number of bytes discarded after write failures.
	Dropped uint64
}

type counters struct {
	chunks  atomic.Uint64
	bytes   atomic.Uint64
	errors  atomic.Uint64
	lagged  atomic.Uint64
	dropped atomic.Uint64
}

func (c *counters) transferred(n int) {
	c.chunks.Add(1)
	c.bytes.Add(uint64(n))
}

func (c *counters) stats() IOStats {
	return IOStats{
		Chunks:  c.chunks.Load(),
		Bytes:   c.bytes.Load(),
		Errors:  c.errors.Load(),
		Lagged:  c.lagged.Load(),
		Dropped: c.dropped.Load(),
	}
}

// DirectionStats are the counters of one direction.
type DirectionStats struct {
	Ingress IOStats
	Channel channel.Stats
	Egress  IOStats
}

// Stats are the counters of both directions.
type Stats struct {
	ToStream DirectionStats
	ToPacket DirectionStats
}
