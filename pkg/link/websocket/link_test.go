package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/bridge.go/pkg/link"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, err := websocket.Dial(url, "", srv.URL)
	require.NoError(t, err)
	return ws
}

func TestLinkExchangesPackets(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l := New(4)
	srv := httptest.NewServer(l)
	defer srv.Close()

	buf := make([]byte, 4)
	_, err := l.ReadPacket(ctx, buf)
	require.Equal(t, link.ErrClosed, err)

	host := dial(t, srv)
	require.NoError(t, l.WaitConnection(ctx))

	// host messages are split into packets
	require.NoError(t, websocket.Message.Send(host, []byte("abcdef")))
	n, err := l.ReadPacket(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "abcd", string(buf[:n]))
	n, err = l.ReadPacket(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "ef", string(buf[:n]))

	require.NoError(t, l.WritePacket(ctx, []byte("xyz")))
	var msg []byte
	require.NoError(t, websocket.Message.Receive(host, &msg))
	require.Equal(t, "xyz", string(msg))

	require.Error(t, l.WritePacket(ctx, []byte("12345")))

	detached := make(chan error, 1)
	go func() { detached <- l.WaitDisconnect(ctx) }()
	host.Close()
	require.NoError(t, <-detached)
	for {
		_, err = l.ReadPacket(ctx, buf)
		if err != nil {
			break
		}
	}
	require.Equal(t, link.ErrClosed, err)
}
