package mem

import (
	"bytes"
	"context"
	"sync"
)

// StreamLink is an in-memory link.StreamLink.
type StreamLink struct {
	lock     sync.Mutex
	rx       bytes.Buffer
	tx       bytes.Buffer
	rxCh     chan struct{}
	txCh     chan struct{}
	readErr  error
	writeErr error
	writes   []int
}

// NewStreamLink creates a StreamLink.
func NewStreamLink() *StreamLink {
	return &StreamLink{
		rxCh: make(chan struct{}, 1),
		txCh: make(chan struct{}, 1),
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Inject queues bytes from the host to the device.
func (l *StreamLink) Inject(p []byte) {
	l.lock.Lock()
	l.rx.Write(p)
	l.lock.Unlock()
	notify(l.rxCh)
}

// FailNextRead makes the next Read fail with err.
func (l *StreamLink) FailNextRead(err error) {
	l.lock.Lock()
	l.readErr = err
	l.lock.Unlock()
	notify(l.rxCh)
}

// FailNextWrite makes the next Write fail with err.
func (l *StreamLink) FailNextWrite(err error) {
	l.lock.Lock()
	l.writeErr = err
	l.lock.Unlock()
}

// WriteSizes returns the sizes of all successful writes by the device.
func (l *StreamLink) WriteSizes() []int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]int(nil), l.writes...)
}

// Read implements link.StreamLink.
func (l *StreamLink) Read(ctx context.Context, p []byte) (int, error) {
	for {
		l.lock.Lock()
		if err := l.readErr; err != nil {
			l.readErr = nil
			l.lock.Unlock()
			return 0, err
		}
		if l.rx.Len() > 0 {
			n, _ := l.rx.Read(p)
			l.lock.Unlock()
			return n, nil
		}
		l.lock.Unlock()
		select {
		case <-l.rxCh:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Write implements link.StreamLink.
func (l *StreamLink) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.lock.Lock()
	err := l.writeErr
	l.writeErr = nil
	if err == nil {
		l.tx.Write(p)
		l.writes = append(l.writes, len(p))
	}
	l.lock.Unlock()
	if err == nil {
		notify(l.txCh)
	}
	return err
}

// Next returns whatever the device has written, waiting for at least 1 byte.
func (l *StreamLink) Next(ctx context.Context) ([]byte, error) {
	for {
		l.lock.Lock()
		if l.tx.Len() > 0 {
			out := append([]byte(nil), l.tx.Bytes()...)
			l.tx.Reset()
			l.lock.Unlock()
			return out, nil
		}
		l.lock.Unlock()
		select {
		case <-l.txCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ReadOutput waits until the device has written n bytes and returns them.
func (l *StreamLink) ReadOutput(ctx context.Context, n int) ([]byte, error) {
	for {
		l.lock.Lock()
		if l.tx.Len() >= n {
			out := make([]byte, n)
			l.tx.Read(out)
			l.lock.Unlock()
			return out, nil
		}
		l.lock.Unlock()
		select {
		case <-l.txCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
