package mqtt

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/bridge.go/pkg/link"
)

// Topics under <prefix><id>/ used by Link.
const (
	TopicRx     = "rx"
	TopicTx     = "tx"
	TopicHost   = "host"
	TopicStatus = "status"
)

// Link implements link.PacketLink over MQTT. The host publishes
// packets to <id>/rx and receives from <id>/tx. It announces itself
// by publishing a retained non-empty payload on <id>/host, and sets
// a will clearing it. The link is connected when both the broker
// connection is up and the host is present.
type Link struct {
	Queue *Queue
	ID    string

	maxPacketSize int

	lock     sync.Mutex
	broker   bool
	host     bool
	sess     *session
	attachCh chan struct{}
	subs     []*Subscription
}

type session struct {
	done chan struct{}
	rxCh chan []byte
}

// NewLink creates a Link. Start must be called to subscribe the topics.
func NewLink(q *Queue, id string, maxPacketSize int) *Link {
	l := &Link{
		Queue:         q,
		ID:            id,
		maxPacketSize: maxPacketSize,
		attachCh:      make(chan struct{}),
	}
	q.OnConnect(func(*Queue) { l.setBroker(true) })
	q.OnDisconnect(func(*Queue) { l.setBroker(false) })
	return l
}

// Topic returns the full relative topic of a link topic.
func (l *Link) Topic(name string) string {
	return l.ID + "/" + name
}

// Start subscribes the topics.
func (l *Link) Start() {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.subs != nil {
		return
	}
	l.subs = []*Subscription{
		l.Queue.Sub(l.Topic(TopicRx), l.handleRx),
		l.Queue.Sub(l.Topic(TopicHost), l.handleHost),
	}
}

// Stop unsubscribes the topics and ends the session.
func (l *Link) Stop() error {
	l.lock.Lock()
	subs := l.subs
	l.subs = nil
	l.host = false
	l.updateLocked()
	l.lock.Unlock()
	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Run connects the queue and keeps the link until ctx is done.
func (l *Link) Run(ctx context.Context) error {
	l.Start()
	token := l.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	<-ctx.Done()
	l.Stop()
	l.Queue.Close()
	return ctx.Err()
}

func (l *Link) setBroker(up bool) {
	l.lock.Lock()
	l.broker = up
	if !up {
		// host presence will be re-delivered as a retained message.
		l.host = false
	}
	l.updateLocked()
	l.lock.Unlock()
}

func (l *Link) handleHost(topic string, payload []byte) {
	l.lock.Lock()
	l.host = len(payload) > 0
	l.updateLocked()
	l.lock.Unlock()
}

func (l *Link) updateLocked() {
	attached := l.broker && l.host
	switch {
	case attached && l.sess == nil:
		l.sess = &session{done: make(chan struct{}), rxCh: make(chan []byte, 1)}
		close(l.attachCh)
		glog.Infof("mqtt: host attached on %q", l.Queue.TopicPrefix+l.ID)
	case !attached && l.sess != nil:
		close(l.sess.done)
		l.sess = nil
		l.attachCh = make(chan struct{})
		glog.Infof("mqtt: host detached on %q", l.Queue.TopicPrefix+l.ID)
	}
}

func (l *Link) current() *session {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.sess
}

func (l *Link) handleRx(topic string, payload []byte) {
	s := l.current()
	if s == nil {
		glog.V(2).Infof("mqtt: drop %d bytes, host not attached", len(payload))
		return
	}
	for len(payload) > 0 {
		size := len(payload)
		if size > l.maxPacketSize {
			size = l.maxPacketSize
		}
		select {
		case s.rxCh <- append([]byte(nil), payload[:size]...):
		case <-s.done:
			return
		}
		payload = payload[size:]
	}
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
	s := l.current()
	if s == nil {
		return 0, link.ErrClosed
	}
	select {
	case pkt := <-s.rxCh:
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
func (l *Link) WritePacket(ctx context.Context, p []byte) error {
	if err := link.CheckPacketSize(len(p), l.maxPacketSize); err != nil {
		return err
	}
	s := l.current()
	if s == nil {
		return link.ErrClosed
	}
	token := l.Queue.Pub(l.Topic(TopicTx), append([]byte(nil), p...))
	select {
	case <-waitToken(token):
	case <-s.done:
		return link.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		if l.current() != s {
			return link.ErrClosed
		}
		return err
	}
	return nil
}
