// Package stream adapts an io.ReadWriter into a link.StreamLink.
package stream

import (
	"context"
	"errors"
	"io"

	"github.com/golang/glog"
)

// ReadWriter implements link.StreamLink over an io.ReadWriter.
// Reads which time out without data are retried until ctx is done.
// The underlying reader can't be interrupted, close it to unblock.
// Once the reader reaches EOF, Read waits for ctx without data.
type ReadWriter struct {
	io.ReadWriter

	ended bool
}

// New creates a ReadWriter with io.ReadWriter.
func New(s io.ReadWriter) *ReadWriter {
	return &ReadWriter{ReadWriter: s}
}

// Read implements link.StreamLink.
func (s *ReadWriter) Read(ctx context.Context, p []byte) (int, error) {
	for {
		if s.ended {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := s.ReadWriter.Read(p)
		if n > 0 {
			return n, nil
		}
		switch {
		case err == nil || isTimeout(err):
			continue
		case errors.Is(err, io.EOF):
			glog.Infof("stream: input ended")
			s.ended = true
			continue
		}
		return 0, err
	}
}

// Write implements link.StreamLink.
func (s *ReadWriter) Write(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.ReadWriter.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Close closes the underlying ReadWriter if it's an io.Closer.
func (s *ReadWriter) Close() error {
	if closer, ok := s.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type timeout interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}
