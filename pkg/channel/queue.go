package channel

import (
	"context"
	"sync/atomic"
)

// Queue is a lossless bounded queue with a single consumer.
type Queue struct {
	items chan Chunk

	published  atomic.Uint64
	delivered  atomic.Uint64
	overflows  atomic.Uint64
	subscribed atomic.Bool
}

// NewQueue creates a Queue.
func NewQueue(capacity int) *Queue {
	return &Queue{items: make(chan Chunk, capacity)}
}

// Publish implements Publisher. It suspends while the queue is full.
func (q *Queue) Publish(ctx context.Context, c Chunk) error {
	select {
	case q.items <- c:
	default:
		q.overflows.Add(1)
		select {
		case q.items <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q.published.Add(1)
	return nil
}

// Subscribe implements Channel. Only one subscriber is allowed.
func (q *Queue) Subscribe() (Subscriber, error) {
	if !q.subscribed.CompareAndSwap(false, true) {
		return nil, ErrTooManySubscribers
	}
	return &queueSubscriber{q: q}, nil
}

// Policy implements Channel.
func (q *Queue) Policy() Policy {
	return PolicyQueue
}

// Cap implements Channel.
func (q *Queue) Cap() int {
	return cap(q.items)
}

// Len implements Channel.
func (q *Queue) Len() int {
	return len(q.items)
}

// Stats implements Channel.
func (q *Queue) Stats() Stats {
	return Stats{
		Published: q.published.Load(),
		Delivered: q.delivered.Load(),
		Overflows: q.overflows.Load(),
	}
}

type queueSubscriber struct {
	q *Queue
}

func (s *queueSubscriber) Receive(ctx context.Context) (Chunk, error) {
	select {
	case c := <-s.q.items:
		s.q.delivered.Add(1)
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *queueSubscriber) TryReceive() (Chunk, bool, error) {
	select {
	case c := <-s.q.items:
		s.q.delivered.Add(1)
		return c, true, nil
	default:
		return nil, false, nil
	}
}

func (s *queueSubscriber) Resync() uint64 {
	return 0
}

func (s *queueSubscriber) Policy() Policy {
	return PolicyQueue
}
