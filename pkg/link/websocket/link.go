// Package websocket serves a link.PacketLink over websocket.
// One host is attached at a time, each binary message is a packet.
package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/bridge.go/pkg/link"
)

// Link implements link.PacketLink. It's an http.Handler accepting
// a websocket connection as the attached host.
type Link struct {
	maxPacketSize int

	lock     sync.Mutex
	conn     *conn
	attachCh chan struct{}
}

type conn struct {
	ws     *websocket.Conn
	done   chan struct{}
	once   sync.Once
	rxCh   chan []byte
	txLock sync.Mutex
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// New creates a Link.
func New(maxPacketSize int) *Link {
	return &Link{
		maxPacketSize: maxPacketSize,
		attachCh:      make(chan struct{}),
	}
}

// ServeHTTP implements http.Handler.
func (l *Link) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(l.serve).ServeHTTP(w, r)
}

func (l *Link) serve(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	c := &conn{ws: ws, done: make(chan struct{}), rxCh: make(chan []byte, 1)}
	l.lock.Lock()
	if l.conn != nil {
		l.lock.Unlock()
		glog.Warningf("websocket: reject %s, host already attached", ws.Request().RemoteAddr)
		ws.Close()
		return
	}
	l.conn = c
	close(l.attachCh)
	l.lock.Unlock()
	glog.Infof("websocket: host %s attached", ws.Request().RemoteAddr)

	defer func() {
		c.close()
		l.lock.Lock()
		if l.conn == c {
			l.conn = nil
			l.attachCh = make(chan struct{})
		}
		l.lock.Unlock()
		glog.Infof("websocket: host %s detached", ws.Request().RemoteAddr)
	}()

	for {
		var msg []byte
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			glog.V(2).Infof("websocket: receive: %v", err)
			return
		}
		// The host is not bound by packet size, split to packets.
		for len(msg) > 0 {
			size := len(msg)
			if size > l.maxPacketSize {
				size = l.maxPacketSize
			}
			select {
			case c.rxCh <- msg[:size]:
			case <-c.done:
				return
			}
			msg = msg[size:]
		}
	}
}

func (l *Link) current() *conn {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.conn
}

// MaxPacketSize implements link.PacketLink.
func (l *Link) MaxPacketSize() int {
	return l.maxPacketSize
}

// WaitConnection implements link.PacketLink.
func (l *Link) WaitConnection(ctx context.Context) error {
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
func (l *Link) WaitDisconnect(ctx context.Context) error {
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
func (l *Link) ReadPacket(ctx context.Context, p []byte) (int, error) {
	c := l.current()
	if c == nil {
		return 0, link.ErrClosed
	}
	select {
	case pkt := <-c.rxCh:
		n := copy(p, pkt)
		if n < len(pkt) {
			return n, link.ErrBufferOverflow
		}
		return n, nil
	case <-c.done:
		return 0, link.ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// WritePacket implements link.PacketLink.
func (l *Link) WritePacket(ctx context.Context, p []byte) error {
	if err := link.CheckPacketSize(len(p), l.maxPacketSize); err != nil {
		return err
	}
	c := l.current()
	if c == nil {
		return link.ErrClosed
	}
	c.txLock.Lock()
	err := websocket.Message.Send(c.ws, p)
	c.txLock.Unlock()
	if err != nil {
		glog.V(2).Infof("websocket: send: %v", err)
		c.close()
		return link.ErrClosed
	}
	return nil
}

// Close detaches the current host.
func (l *Link) Close() error {
	if c := l.current(); c != nil {
		c.close()
	}
	return nil
}
