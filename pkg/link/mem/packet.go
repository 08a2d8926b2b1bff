// Package mem provides in-memory links. The device side implements
// link.PacketLink or link.StreamLink, the host side is driven by
// tests and the simulator.
package mem

import (
	"context"
	"sync"

	"github.com/robotalks/bridge.go/pkg/link"
)

// DefaultMaxPacketSize is the max packet size of a full speed USB bulk endpoint.
const DefaultMaxPacketSize = 64

// PacketLink is an in-memory link.PacketLink. Each Attach starts a
// new session, Detach ends it and drops undelivered packets.
type PacketLink struct {
	maxPacketSize int
	depth         int

	lock     sync.Mutex
	session  *session
	attachCh chan struct{}
	writeErr error
	writes   []int
}

type session struct {
	done   chan struct{}
	toDev  chan []byte
	toHost chan []byte
}

// NewPacketLink creates a detached PacketLink. depth is the number of
// packets buffered in each direction.
func NewPacketLink(maxPacketSize, depth int) *PacketLink {
	if maxPacketSize <= 0 {
		maxPacketSize = DefaultMaxPacketSize
	}
	if depth <= 0 {
		depth = 1
	}
	return &PacketLink{
		maxPacketSize: maxPacketSize,
		depth:         depth,
		attachCh:      make(chan struct{}),
	}
}

// MaxPacketSize implements link.PacketLink.
func (l *PacketLink) MaxPacketSize() int {
	return l.maxPacketSize
}

// Attach attaches a host. It's a no-op if already attached.
func (l *PacketLink) Attach() {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.session != nil {
		return
	}
	l.session = &session{
		done:   make(chan struct{}),
		toDev:  make(chan []byte, l.depth),
		toHost: make(chan []byte, l.depth),
	}
	close(l.attachCh)
}

// Detach detaches the host. It's a no-op if not attached.
func (l *PacketLink) Detach() {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.session == nil {
		return
	}
	close(l.session.done)
	l.session = nil
	l.attachCh = make(chan struct{})
}

// Attached indicates a host is attached.
func (l *PacketLink) Attached() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.session != nil
}

// FailNextWrite makes the next WritePacket fail with err.
func (l *PacketLink) FailNextWrite(err error) {
	l.lock.Lock()
	l.writeErr = err
	l.lock.Unlock()
}

// WriteSizes returns the sizes of all packets written by the device.
func (l *PacketLink) WriteSizes() []int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]int(nil), l.writes...)
}

func (l *PacketLink) current() *session {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.session
}

// WaitConnection implements link.PacketLink.
func (l *PacketLink) WaitConnection(ctx context.Context) error {
	l.lock.Lock()
	ch := l.attachCh
	l.lock.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitDisconnect implements link.DisconnectWaiter.
func (l *PacketLink) WaitDisconnect(ctx context.Context) error {
	s := l.current()
	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadPacket implements link.PacketLink.
func (l *PacketLink) ReadPacket(ctx context.Context, p []byte) (int, error) {
	s := l.current()
	if s == nil {
		return 0, link.ErrClosed
	}
	select {
	case pkt := <-s.toDev:
		n := copy(p, pkt)
		if n < len(pkt) {
			return n, link.ErrBufferOverflow
		}
		return n, nil
	case <-s.done:
		return 0, link.ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// WritePacket implements link.PacketLink.
func (l *PacketLink) WritePacket(ctx context.Context, p []byte) error {
	if err := link.CheckPacketSize(len(p), l.maxPacketSize); err != nil {
		return err
	}
	l.lock.Lock()
	s, err := l.session, l.writeErr
	l.writeErr = nil
	if err == nil && s != nil {
		l.writes = append(l.writes, len(p))
	}
	l.lock.Unlock()
	if err != nil {
		return err
	}
	if s == nil {
		return link.ErrClosed
	}
	pkt := append([]byte(nil), p...)
	select {
	case s.toHost <- pkt:
		return nil
	case <-s.done:
		return link.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send sends a packet from the host to the device.
func (l *PacketLink) Send(ctx context.Context, p []byte) error {
	if err := link.CheckPacketSize(len(p), l.maxPacketSize); err != nil {
		return err
	}
	s := l.current()
	if s == nil {
		return link.ErrClosed
	}
	select {
	case s.toDev <- append([]byte(nil), p...):
		return nil
	case <-s.done:
		return link.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive receives a packet written by the device.
func (l *PacketLink) Receive(ctx context.Context) ([]byte, error) {
	s := l.current()
	if s == nil {
		return nil, link.ErrClosed
	}
	select {
	case pkt := <-s.toHost:
		return pkt, nil
	case <-s.done:
		return nil, link.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
