package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/bridge.go/pkg/indicator"
	"github.com/robotalks/bridge.go/pkg/state"
)

const (
	D = state.Disconnected
	C = state.Connected
	R = state.Receiving
	S = state.Sending
)

func TestAggregateTotality(t *testing.T) {
	all := []state.ConnectionState{D, C, R, S}
	for _, prx := range all {
		for _, stx := range all {
			for _, srx := range all {
				for _, ptx := range all {
					snap := Snapshot{PacketRx: prx, StreamTx: stx, StreamRx: srx, PacketTx: ptx}
					p, err := Evaluate(snap)
					require.Contains(t, []Pattern{Off, On, Blink, ErrorPattern}, p, snap.String())
					require.Equal(t, p == ErrorPattern, err != nil, snap.String())
				}
			}
		}
	}
}

func TestAggregateReachable(t *testing.T) {
	count := 0
	for _, prx := range []state.ConnectionState{D, C, R} {
		for _, ptx := range []state.ConnectionState{D, C, S} {
			for _, stx := range []state.ConnectionState{C, S} {
				for _, srx := range []state.ConnectionState{C, R} {
					snap := Snapshot{PacketRx: prx, StreamTx: stx, StreamRx: srx, PacketTx: ptx}
					p, err := Evaluate(snap)
					count++
					diverged := (prx == D && ptx.IsActive()) || (ptx == D && prx.IsActive())
					if diverged {
						require.Equal(t, ErrorPattern, p, snap.String())
						var invErr *InvariantError
						require.True(t, errors.As(err, &invErr))
						require.Equal(t, snap, invErr.Snapshot)
					} else {
						require.NoError(t, err, snap.String())
						require.NotEqual(t, ErrorPattern, p, snap.String())
					}
				}
			}
		}
	}
	require.Equal(t, 36, count)
}

func TestAggregateRules(t *testing.T) {
	cases := []struct {
		snap    Snapshot
		pattern Pattern
	}{
		// both packet sides disconnected
		{Snapshot{D, C, C, D}, Off},
		{Snapshot{D, S, C, D}, On},
		{Snapshot{D, C, R, D}, On},
		// impossible
		{Snapshot{D, C, C, S}, ErrorPattern},
		{Snapshot{R, C, C, D}, ErrorPattern},
		{Snapshot{S, C, C, C}, ErrorPattern},
		{Snapshot{C, C, C, R}, ErrorPattern},
		{Snapshot{C, D, C, C}, ErrorPattern},
		{Snapshot{C, R, C, C}, ErrorPattern},
		{Snapshot{C, C, S, C}, ErrorPattern},
		{Snapshot{C, C, state.ConnectionState(9), C}, ErrorPattern},
		// connected
		{Snapshot{C, C, C, C}, On},
		{Snapshot{R, C, C, C}, Blink},
		{Snapshot{C, C, C, S}, Blink},
		{Snapshot{C, S, R, C}, Blink},
		// connecting or disconnecting
		{Snapshot{C, C, C, D}, On},
		{Snapshot{D, S, R, C}, On},
	}
	for _, c := range cases {
		require.Equal(t, c.pattern, Aggregate(c.snap), c.snap.String())
	}
}

func TestScenarioIdleDisconnected(t *testing.T) {
	require.Equal(t, Off, Aggregate(Snapshot{PacketRx: D, StreamTx: C, StreamRx: C, PacketTx: D}))
}

func TestStatusReportEncoding(t *testing.T) {
	snap := Snapshot{D, C, C, S}
	p, err := Evaluate(snap)
	r := NewStatusReport("dev", snap, p, err)
	require.Equal(t, "error", r.Pattern)
	require.NotEmpty(t, r.Violation)

	encoded, err := proto.Marshal(r)
	require.NoError(t, err)
	var decoded StatusReport
	require.NoError(t, proto.Unmarshal(encoded, &decoded))
	require.Equal(t, "dev", decoded.ID)
	require.Equal(t, "sending", decoded.PacketTx)
}

type testSource struct {
	prx, stx, srx, ptx *state.Holder
}

func newTestSource() *testSource {
	return &testSource{
		prx: state.NewHolder("packet-rx", state.PacketSide),
		stx: state.NewHolder("stream-tx", state.StreamSide),
		srx: state.NewHolder("stream-rx", state.StreamSide),
		ptx: state.NewHolder("packet-tx", state.PacketSide),
	}
}

func (s *testSource) Snapshot() Snapshot {
	return Snapshot{s.prx.Get(), s.stx.Get(), s.srx.Get(), s.ptx.Get()}
}

func (s *testSource) Notify(notifiers ...state.Notifier) {
	for _, h := range []*state.Holder{s.prx, s.stx, s.srx, s.ptx} {
		h.Notify(notifiers...)
	}
}

func testTiming() Timing {
	return Timing{
		Blink: Sequence{Count: 2, On: time.Millisecond},
		Error: Sequence{Count: 3, On: time.Millisecond, Gap: time.Millisecond},
	}
}

func TestAggregatorRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src := newTestSource()
	rec := indicator.NewRecorder()
	reports := make(chan *StatusReport, 16)
	a := NewAggregator(src, rec)
	a.ID = "dev"
	a.Timing = testTiming()
	a.Reporter = ReporterFunc(func(ctx context.Context, r *StatusReport) error {
		select {
		case reports <- r:
		default:
		}
		return nil
	})
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	require.Equal(t, "off", (<-reports).Pattern)

	src.prx.Set(state.Connected)
	src.ptx.Set(state.Connected)
	require.Eventually(t, func() bool { return a.Pattern() == On && rec.On() }, time.Second, time.Millisecond)

	// short activity is still shown.
	src.prx.Set(state.Receiving)
	src.prx.Set(state.Connected)
	require.Eventually(t, func() bool { return rec.Pulses() >= 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return a.Pattern() == On }, time.Second, time.Millisecond)

	cancel()
	require.Equal(t, context.Canceled, <-errCh)
	require.False(t, rec.On())
}

func TestAggregatorStrict(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src := newTestSource()
	src.ptx.Set(state.Sending)
	rec := indicator.NewRecorder()
	a := NewAggregator(src, rec)
	a.Timing = testTiming()
	a.Strict = true
	err := a.Run(ctx)
	var invErr *InvariantError
	require.True(t, errors.As(err, &invErr))
	require.Equal(t, 3, rec.Pulses())
	require.Equal(t, ErrorPattern, a.Pattern())
}

func TestAggregatorNonStrictContinues(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src := newTestSource()
	src.ptx.Set(state.Sending)
	rec := indicator.NewRecorder()
	a := NewAggregator(src, rec)
	a.Timing = testTiming()
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.Pulses() >= 6 }, time.Second, time.Millisecond)
	require.Error(t, a.Violation())

	src.ptx.Set(state.Disconnected)
	require.Eventually(t, func() bool { return a.Pattern() == Off }, time.Second, time.Millisecond)
	require.NoError(t, a.Violation())
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}

func TestAggregatorSettlesTransientViolation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src := newTestSource()
	src.prx.Set(state.Connected)
	src.ptx.Set(state.Connected)
	rec := indicator.NewRecorder()
	patterns := make(chan string, 16)
	a := NewAggregator(src, rec)
	a.Timing = testTiming()
	a.Settle = 200 * time.Millisecond
	a.Strict = true
	a.Reporter = ReporterFunc(func(ctx context.Context, r *StatusReport) error {
		select {
		case patterns <- r.Pattern:
		default:
		}
		return nil
	})
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	require.Eventually(t, func() bool { return a.Pattern() == On }, time.Second, time.Millisecond)

	// writer still sending when the reader sees the detach.
	src.ptx.Set(state.Sending)
	src.prx.Set(state.Disconnected)
	time.Sleep(10 * time.Millisecond)
	src.ptx.Set(state.Disconnected)

	require.Eventually(t, func() bool { return a.Pattern() == Off }, time.Second, time.Millisecond)
	require.NoError(t, a.Violation())
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
	close(patterns)
	for p := range patterns {
		require.NotEqual(t, "error", p)
	}
}
