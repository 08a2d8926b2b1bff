package channel

import (
	"context"
	"sync"
)

// Broadcast is a lossy ring shared by a bounded number of subscribers.
// Each subscriber has its own read position. Publish overwrites the
// oldest slot when the ring is full and never blocks.
type Broadcast struct {
	maxSubs int

	lock   sync.Mutex
	slots  []Chunk
	seq    uint64 // sequence of the next published item
	wakeCh chan struct{}
	subs   []*broadcastSubscriber
	stats  Stats
}

// NewBroadcast creates a Broadcast.
func NewBroadcast(capacity, subscribers int) *Broadcast {
	return &Broadcast{
		maxSubs: subscribers,
		slots:   make([]Chunk, capacity),
		wakeCh:  make(chan struct{}),
	}
}

// Publish implements Publisher. It never blocks.
func (b *Broadcast) Publish(ctx context.Context, c Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.lock.Lock()
	if b.seq >= uint64(len(b.slots)) {
		b.stats.Overflows++
	}
	b.slots[b.seq%uint64(len(b.slots))] = c
	b.seq++
	b.stats.Published++
	close(b.wakeCh)
	b.wakeCh = make(chan struct{})
	b.lock.Unlock()
	return nil
}

// Subscribe implements Channel. A new subscriber only sees
// items published after it subscribed.
func (b *Broadcast) Subscribe() (Subscriber, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if len(b.subs) >= b.maxSubs {
		return nil, ErrTooManySubscribers
	}
	s := &broadcastSubscriber{b: b, next: b.seq}
	b.subs = append(b.subs, s)
	return s, nil
}

// Policy implements Channel.
func (b *Broadcast) Policy() Policy {
	return PolicyBroadcast
}

// Cap implements Channel.
func (b *Broadcast) Cap() int {
	return len(b.slots)
}

// Len implements Channel.
func (b *Broadcast) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	var backlog uint64
	oldest := b.oldest()
	for _, s := range b.subs {
		next := s.next
		if next < oldest {
			next = oldest
		}
		if n := b.seq - next; n > backlog {
			backlog = n
		}
	}
	return int(backlog)
}

// Stats implements Channel.
func (b *Broadcast) Stats() Stats {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.stats
}

// oldest returns the sequence of the oldest item still in the ring.
func (b *Broadcast) oldest() uint64 {
	if n := uint64(len(b.slots)); b.seq > n {
		return b.seq - n
	}
	return 0
}

type broadcastSubscriber struct {
	b    *Broadcast
	next uint64
}

// poll must be called with the lock held. wait is non-nil when
// there's nothing to read.
func (s *broadcastSubscriber) poll() (c Chunk, wait <-chan struct{}, err error) {
	b := s.b
	if oldest := b.oldest(); s.next < oldest {
		lagged := oldest - s.next
		s.next = oldest
		b.stats.Lost += lagged
		return nil, nil, &LagError{Count: lagged}
	}
	if s.next < b.seq {
		c = b.slots[s.next%uint64(len(b.slots))]
		s.next++
		b.stats.Delivered++
		return c, nil, nil
	}
	return nil, b.wakeCh, nil
}

func (s *broadcastSubscriber) Receive(ctx context.Context) (Chunk, error) {
	for {
		s.b.lock.Lock()
		c, wait, err := s.poll()
		s.b.lock.Unlock()
		if wait == nil {
			return c, err
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *broadcastSubscriber) TryReceive() (Chunk, bool, error) {
	s.b.lock.Lock()
	c, wait, err := s.poll()
	s.b.lock.Unlock()
	if wait != nil {
		return nil, false, nil
	}
	return c, err == nil, err
}

func (s *broadcastSubscriber) Resync() uint64 {
	b := s.b
	b.lock.Lock()
	defer b.lock.Unlock()
	// Overwritten items count as dropped too, they were never reported.
	dropped := b.seq - s.next
	s.next = b.seq
	b.stats.Lost += dropped
	return dropped
}

func (s *broadcastSubscriber) Policy() Policy {
	return PolicyBroadcast
}
