// Package channel provides bounded transport of chunks between tasks.
package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCapacity indicates a channel is created without room.
	ErrInvalidCapacity = errors.New("invalid capacity")
	// ErrTooManySubscribers indicates all subscriber slots are taken.
	ErrTooManySubscribers = errors.New("too many subscribers")
)

// LagError is returned by Receive on a lossy channel when
// the subscriber didn't drain fast enough and items were overwritten.
type LagError struct {
	Count uint64
}

// Error implements error.
func (e *LagError) Error() string {
	return fmt.Sprintf("lagged %d chunks", e.Count)
}

// Chunk is an immutable sequence of bytes.
type Chunk []byte

// NewChunk copies p into a new Chunk.
func NewChunk(p []byte) Chunk {
	c := make(Chunk, len(p))
	copy(c, p)
	return c
}

// Policy selects the overflow behavior of a Channel.
type Policy int

const (
	// PolicyQueue is a lossless bounded queue with a single consumer.
	// Publish suspends while the queue is full.
	PolicyQueue Policy = iota
	// PolicyBroadcast is a lossy broadcast to a bounded number of
	// subscribers. Publish never blocks, slow subscribers lag.
	PolicyBroadcast
)

// ParsePolicy parses the name of a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "queue", "lossless":
		return PolicyQueue, nil
	case "broadcast", "lossy":
		return PolicyBroadcast, nil
	}
	return PolicyQueue, fmt.Errorf("unknown channel policy %q", s)
}

// String implements fmt.Stringer.
func (p Policy) String() string {
	switch p {
	case PolicyQueue:
		return "queue"
	case PolicyBroadcast:
		return "broadcast"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Set implements flag.Value.
func (p *Policy) Set(s string) error {
	v, err := ParsePolicy(s)
	if err == nil {
		*p = v
	}
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	return p.Set(string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// IsLossless indicates no item is ever dropped by the channel.
func (p Policy) IsLossless() bool {
	return p == PolicyQueue
}

// Stats are the counters of a Channel.
type Stats struct {
	// Published is the number of chunks accepted by Publish.
	Published uint64
	// Delivered is the number of chunks returned by receives, summed over subscribers.
	Delivered uint64
	// Overflows is the number of publishes which found the channel full.
	// For a queue the publisher suspended, for a broadcast the oldest
	// item was overwritten.
	Overflows uint64
	// Lost is the number of chunks reported lagged or dropped by Resync,
	// summed over subscribers.
	Lost uint64
}

// Publisher publishes chunks.
type Publisher interface {
	Publish(context.Context, Chunk) error
}

// Subscriber receives chunks.
type Subscriber interface {
	// Receive suspends until a chunk is available. On a lossy
	// channel it returns *LagError instead when items were missed.
	Receive(context.Context) (Chunk, error)
	// TryReceive is the non-suspending form of Receive.
	// ok is false if nothing is available.
	TryReceive() (c Chunk, ok bool, err error)
	// Resync drops the unread backlog of a lossy subscriber and
	// returns the number of dropped chunks. Lossless subscribers
	// keep the backlog and return 0.
	Resync() uint64
	// Policy returns the policy of the channel.
	Policy() Policy
}

// Channel is a bounded transport of chunks.
type Channel interface {
	Publisher
	// Subscribe allocates a subscriber slot.
	Subscribe() (Subscriber, error)
	// Policy returns the overflow policy.
	Policy() Policy
	// Cap returns the fixed capacity.
	Cap() int
	// Len returns the number of items buffered.
	// For a broadcast it's the backlog of the slowest subscriber.
	Len() int
	// Stats returns the counters.
	Stats() Stats
}

// New creates a Channel with the policy. subscribers is ignored
// by PolicyQueue which always has a single consumer.
func New(policy Policy, capacity, subscribers int) (Channel, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	switch policy {
	case PolicyQueue:
		return NewQueue(capacity), nil
	case PolicyBroadcast:
		if subscribers <= 0 {
			subscribers = 1
		}
		return NewBroadcast(capacity, subscribers), nil
	}
	return nil, fmt.Errorf("unknown channel policy %d", int(policy))
}
