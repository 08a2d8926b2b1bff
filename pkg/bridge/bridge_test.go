package bridge

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/bridge.go/pkg/channel"
	"github.com/robotalks/bridge.go/pkg/link/mem"
	"github.com/robotalks/bridge.go/pkg/state"
	"github.com/robotalks/bridge.go/pkg/status"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ActivityYield = 0
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func payload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

type testBridge struct {
	*Bridge
	packet *mem.PacketLink
	stream *mem.StreamLink
	cancel func()
	done   chan error
}

func startBridge(t *testing.T, cfg Config) *testBridge {
	packet, stream := mem.NewPacketLink(mem.DefaultMaxPacketSize, 4), mem.NewStreamLink()
	b, err := New(cfg, packet, stream)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	tb := &testBridge{Bridge: b, packet: packet, stream: stream, cancel: cancel, done: make(chan error, 1)}
	go func() { tb.done <- b.Run(ctx) }()
	t.Cleanup(tb.stop)
	return tb
}

func (b *testBridge) stop() {
	b.cancel()
	<-b.done
}

func (b *testBridge) receive(t *testing.T, ctx context.Context, n int) []byte {
	var out []byte
	for len(out) < n {
		pkt, err := b.packet.Receive(ctx)
		require.NoError(t, err)
		out = append(out, pkt...)
	}
	return out
}

func TestNewValidatesSizes(t *testing.T) {
	packet, stream := mem.NewPacketLink(64, 1), mem.NewStreamLink()

	b, err := New(DefaultConfig(), packet, stream)
	require.NoError(t, err)
	require.Equal(t, 64, b.Config.ToStream.ReadSize)
	require.Equal(t, 63, b.Config.ToPacket.WriteSize)

	cfg := DefaultConfig()
	cfg.ToPacket.WriteSize = 64
	_, err = New(cfg, packet, stream)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.ToStream.ReadSize = 32
	_, err = New(cfg, packet, stream)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.ToStream.Capacity = 0
	_, err = New(cfg, packet, stream)
	require.Error(t, err)
}

func TestEgressSplitsCoalescedChunks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q := channel.NewQueue(4)
	sub, err := q.Subscribe()
	require.NoError(t, err)
	data := payload(100)
	require.NoError(t, q.Publish(ctx, channel.NewChunk(data[:64])))
	require.NoError(t, q.Publish(ctx, channel.NewChunk(data[64:])))

	stream := mem.NewStreamLink()
	e := NewStreamEgress("stream-tx", stream, sub, 63)
	e.Coalesce = true
	go e.Run(ctx)

	out, err := stream.ReadOutput(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, data, out)
	require.Equal(t, []int{63, 37}, stream.WriteSizes())
}

func TestEgressTailWaitsForNextChunk(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q := channel.NewQueue(4)
	sub, err := q.Subscribe()
	require.NoError(t, err)
	data := payload(100)
	require.NoError(t, q.Publish(ctx, channel.NewChunk(data[:64])))

	stream := mem.NewStreamLink()
	e := NewStreamEgress("stream-tx", stream, sub, 63)
	e.Coalesce = true
	e.CoalesceDelay = time.Second
	go e.Run(ctx)

	out, err := stream.ReadOutput(ctx, 63)
	require.NoError(t, err)
	require.Equal(t, data[:63], out)
	require.NoError(t, q.Publish(ctx, channel.NewChunk(data[64:])))
	out, err = stream.ReadOutput(ctx, 37)
	require.NoError(t, err)
	require.Equal(t, data[63:], out)
	require.Equal(t, []int{63, 37}, stream.WriteSizes())
}

func TestEgressTailFlushedAfterDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q := channel.NewQueue(4)
	sub, err := q.Subscribe()
	require.NoError(t, err)
	data := payload(64)
	require.NoError(t, q.Publish(ctx, channel.NewChunk(data)))

	stream := mem.NewStreamLink()
	e := NewStreamEgress("stream-tx", stream, sub, 63)
	e.Coalesce = true
	e.CoalesceDelay = 5 * time.Millisecond
	go e.Run(ctx)

	out, err := stream.ReadOutput(ctx, 64)
	require.NoError(t, err)
	require.Equal(t, data, out)
	require.Equal(t, []int{63, 1}, stream.WriteSizes())
}

func TestBridgePacketToStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cfg := testConfig()
	cfg.ToStream.CoalesceDelay = 100 * time.Millisecond
	b := startBridge(t, cfg)
	b.packet.Attach()

	data := payload(100)
	require.NoError(t, b.packet.Send(ctx, data[:64]))
	require.NoError(t, b.packet.Send(ctx, data[64:]))

	out, err := b.stream.ReadOutput(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, data, out)
	sizes := b.stream.WriteSizes()
	require.Len(t, sizes, 2)
	for _, size := range sizes {
		require.LessOrEqual(t, size, 63)
	}
}

func TestBridgePreservesOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg := testConfig()
	cfg.ToPacket.Policy = channel.PolicyQueue
	b := startBridge(t, cfg)
	b.packet.Attach()

	// packet to stream with varying packet sizes.
	data := payload(2000)
	go func() {
		for p, size := data, 1; len(p) > 0; size = size%64 + 1 {
			if size > len(p) {
				size = len(p)
			}
			if b.packet.Send(ctx, p[:size]) != nil {
				return
			}
			p = p[size:]
		}
	}()
	out, err := b.stream.ReadOutput(ctx, len(data))
	require.NoError(t, err)
	require.Equal(t, data, out)

	// stream to packet in bursts.
	data = bytes.Repeat([]byte("0123456789abcdefghijklmnopqrstuvwxyz"), 50)
	for p := data; len(p) > 0; {
		size := 100
		if size > len(p) {
			size = len(p)
		}
		b.stream.Inject(p[:size])
		p = p[size:]
	}
	require.Equal(t, data, b.receive(t, ctx, len(data)))
	sizes := b.packet.WriteSizes()
	require.NotEmpty(t, sizes)
	for _, size := range sizes {
		require.LessOrEqual(t, size, 63)
	}

	require.Eventually(t, func() bool {
		stats := b.Stats()
		return stats.ToStream.Egress.Bytes == 2000 &&
			stats.ToPacket.Ingress.Bytes == uint64(len(data))
	}, time.Second, time.Millisecond)
	require.Zero(t, b.Stats().ToPacket.Egress.Lagged)
}

func TestBridgeLosslessResumesAfterReconnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cfg := testConfig()
	cfg.ToPacket.Policy = channel.PolicyQueue
	b := startBridge(t, cfg)
	egress := b.ToPacket.Egress

	b.packet.Attach()
	b.stream.Inject([]byte("hello"))
	require.Equal(t, "hello", string(b.receive(t, ctx, 5)))

	b.packet.Detach()
	b.stream.Inject([]byte("world"))
	require.Eventually(t, func() bool {
		return egress.State.Get() == state.Disconnected
	}, time.Second, time.Millisecond)

	b.packet.Attach()
	require.Equal(t, "world", string(b.receive(t, ctx, 5)))
	require.Zero(t, egress.Stats().Dropped)
}

func TestBridgeLossyResumesWithFreshData(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cfg := testConfig()
	cfg.ToPacket.Policy = channel.PolicyBroadcast
	b := startBridge(t, cfg)
	ingress, egress := b.ToPacket.Ingress, b.ToPacket.Egress

	b.packet.Attach()
	b.stream.Inject([]byte("old"))
	require.Equal(t, "old", string(b.receive(t, ctx, 3)))

	// a failed write drops the unsent bytes.
	b.packet.FailNextWrite(errors.New("endpoint stalled"))
	b.stream.Inject([]byte("stale1"))
	require.Eventually(t, func() bool {
		return egress.Stats().Dropped == 6 && egress.State.Get() == state.Connected
	}, time.Second, time.Millisecond)

	// chunks published while detached are skipped on reconnect.
	b.packet.Detach()
	require.Eventually(t, func() bool {
		return egress.State.Get() == state.Disconnected
	}, time.Second, time.Millisecond)
	b.stream.Inject([]byte("stale2"))
	require.Eventually(t, func() bool {
		return ingress.Stats().Chunks == 3
	}, time.Second, time.Millisecond)

	b.packet.Attach()
	require.Eventually(t, func() bool {
		return egress.State.Get() == state.Connected
	}, time.Second, time.Millisecond)
	b.stream.Inject([]byte("fresh"))
	require.Equal(t, "fresh", string(b.receive(t, ctx, 5)))

	stats := egress.Stats()
	require.Equal(t, uint64(6), stats.Dropped)
	require.Equal(t, uint64(1), stats.Lagged)
}

func TestBridgeRecoversTransientErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cfg := testConfig()
	cfg.ToPacket.Policy = channel.PolicyQueue
	b := startBridge(t, cfg)
	b.packet.Attach()

	b.stream.FailNextRead(errors.New("framing error"))
	b.stream.Inject([]byte("abc"))
	require.Equal(t, "abc", string(b.receive(t, ctx, 3)))
	require.Equal(t, uint64(1), b.ToPacket.Ingress.Stats().Errors)

	// a failed packet write is a disconnect, lossless data is kept.
	b.packet.FailNextWrite(errors.New("endpoint stalled"))
	b.stream.Inject([]byte("def"))
	require.Equal(t, "def", string(b.receive(t, ctx, 3)))
	require.Equal(t, uint64(1), b.ToPacket.Egress.Stats().Errors)

	b.stream.FailNextWrite(errors.New("tx busy"))
	require.NoError(t, b.packet.Send(ctx, []byte("xyz")))
	out, err := b.stream.ReadOutput(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "xyz", string(out))
	require.Equal(t, uint64(1), b.ToStream.Egress.Stats().Errors)
	require.Zero(t, b.ToStream.Egress.Stats().Dropped)
}

func TestEgressDropsAfterRetries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q := channel.NewQueue(4)
	sub, err := q.Subscribe()
	require.NoError(t, err)
	stream := mem.NewStreamLink()
	e := NewStreamEgress("stream-tx", stream, sub, 63)
	e.RetryDelay = time.Millisecond
	go e.Run(ctx)

	stream.FailNextWrite(errors.New("tx busy"))
	require.NoError(t, q.Publish(ctx, channel.Chunk("lost")))
	require.Eventually(t, func() bool { return e.Stats().Dropped == 4 }, time.Second, time.Millisecond)

	require.NoError(t, q.Publish(ctx, channel.Chunk("kept")))
	out, err := stream.ReadOutput(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, "kept", string(out))
}

func TestEgressReportsLag(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	bc := channel.NewBroadcast(2, 1)
	sub, err := bc.Subscribe()
	require.NoError(t, err)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, bc.Publish(ctx, channel.Chunk(s)))
	}
	stream := mem.NewStreamLink()
	e := NewStreamEgress("stream-tx", stream, sub, 63)
	go e.Run(ctx)

	out, err := stream.ReadOutput(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "d", string(out))
	out, err = stream.ReadOutput(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "e", string(out))
	require.Equal(t, uint64(3), e.Stats().Lagged)
}

func TestBridgeStatusSource(t *testing.T) {
	b := startBridge(t, testConfig())
	require.Equal(t, status.Off, status.Aggregate(b.Snapshot()))

	changed := make(chan struct{}, 1)
	b.Notify(state.Signal(changed))
	b.packet.Attach()
	require.Eventually(t, func() bool {
		return status.Aggregate(b.Snapshot()) == status.On
	}, time.Second, time.Millisecond)
	select {
	case <-changed:
	default:
		t.Fatal("no change notified")
	}
}

func TestBridgeIdleDetachTurnsOff(t *testing.T) {
	b := startBridge(t, testConfig())
	b.packet.Attach()
	require.Eventually(t, func() bool {
		return status.Aggregate(b.Snapshot()) == status.On
	}, time.Second, time.Millisecond)

	b.packet.Detach()
	require.Eventually(t, func() bool {
		s := b.Snapshot()
		return s.PacketRx == state.Disconnected && s.PacketTx == state.Disconnected
	}, time.Second, time.Millisecond)
	require.Equal(t, status.Off, status.Aggregate(b.Snapshot()))

	// and back on for the next host.
	b.packet.Attach()
	require.Eventually(t, func() bool {
		return status.Aggregate(b.Snapshot()) == status.On
	}, time.Second, time.Millisecond)
}

func TestBridgeLosslessKeepsDataAcrossIdleDetach(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cfg := testConfig()
	cfg.ToPacket.Policy = channel.PolicyQueue
	b := startBridge(t, cfg)
	egress := b.ToPacket.Egress

	b.packet.Attach()
	require.Eventually(t, func() bool {
		return egress.State.Get() == state.Connected
	}, time.Second, time.Millisecond)
	b.packet.Detach()
	require.Eventually(t, func() bool {
		return egress.State.Get() == state.Disconnected
	}, time.Second, time.Millisecond)

	b.stream.Inject([]byte("queued"))
	require.Eventually(t, func() bool {
		return b.ToPacket.Ingress.Stats().Chunks == 1
	}, time.Second, time.Millisecond)
	b.packet.Attach()
	require.Equal(t, "queued", string(b.receive(t, ctx, 6)))
	require.Zero(t, egress.Stats().Dropped)
}
