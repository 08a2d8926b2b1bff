package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timeout" }
func (timeoutErr) Timeout() bool { return true }

type scriptedReadWriter struct {
	reads  []func(p []byte) (int, error)
	output bytes.Buffer
	limit  int
}

func (s *scriptedReadWriter) Read(p []byte) (int, error) {
	if len(s.reads) == 0 {
		return 0, io.EOF
	}
	fn := s.reads[0]
	s.reads = s.reads[1:]
	return fn(p)
}

func (s *scriptedReadWriter) Write(p []byte) (int, error) {
	if s.limit > 0 && len(p) > s.limit {
		p = p[:s.limit]
	}
	return s.output.Write(p)
}

func TestReadRetriesTimeouts(t *testing.T) {
	rw := &scriptedReadWriter{
		reads: []func([]byte) (int, error){
			func([]byte) (int, error) { return 0, timeoutErr{} },
			func([]byte) (int, error) { return 0, nil },
			func(p []byte) (int, error) { return copy(p, "ok"), nil },
		},
	}
	buf := make([]byte, 8)
	n, err := New(rw).Read(context.Background(), buf)
	require.NoError(t, err)
	require.Equal(t, "ok", string(buf[:n]))
}

func TestReadReturnsErrors(t *testing.T) {
	failure := errors.New("parity error")
	rw := &scriptedReadWriter{
		reads: []func([]byte) (int, error){
			func([]byte) (int, error) { return 0, failure },
		},
	}
	_, err := New(rw).Read(context.Background(), make([]byte, 1))
	require.Equal(t, failure, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(rw).Read(ctx, make([]byte, 1))
	require.Equal(t, context.Canceled, err)
}

func TestReadWaitsAfterEOF(t *testing.T) {
	reads := 0
	rw := &scriptedReadWriter{
		reads: []func([]byte) (int, error){
			func(p []byte) (int, error) { reads++; return copy(p, "last"), io.EOF },
			func([]byte) (int, error) { reads++; return 0, io.EOF },
			func([]byte) (int, error) { reads++; return 0, io.EOF },
		},
	}
	s := New(rw)
	buf := make([]byte, 8)
	n, err := s.Read(context.Background(), buf)
	require.NoError(t, err)
	require.Equal(t, "last", string(buf[:n]))

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err = s.Read(ctx, buf)
		cancel()
		require.Equal(t, context.DeadlineExceeded, err)
	}
	require.Equal(t, 2, reads)
}

func TestWriteCompletesShortWrites(t *testing.T) {
	rw := &scriptedReadWriter{limit: 3}
	require.NoError(t, New(rw).Write(context.Background(), []byte("0123456789")))
	require.Equal(t, "0123456789", rw.output.String())
}
