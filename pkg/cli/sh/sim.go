package sh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/robotalks/bridge.go/pkg/env"
	"github.com/robotalks/bridge.go/pkg/indicator"
	"github.com/robotalks/bridge.go/pkg/link/mem"
)

var errNotAttached = errors.New("host not attached")

// Sim is a running bridge over in-memory links. The shell plays
// both the host on the packet link and the device on the stream link.
type Sim struct {
	Env       *env.Env
	Packet    *mem.PacketLink
	Stream    *mem.StreamLink
	Indicator *indicator.Recorder

	cancel func()
	done   chan error
}

// StartSim builds a bridge from conf with in-memory links and runs it.
func StartSim(conf *env.Config) (*Sim, error) {
	c := *conf
	c.Packet.Kind = env.PacketMem
	c.Stream.Device = env.StreamMem
	c.Status.Indicator = env.IndicatorNone
	c.Status.Report = false
	e, err := c.NewEnv()
	if err != nil {
		return nil, err
	}
	s := &Sim{
		Env:       e,
		Packet:    e.PacketLink.(*mem.PacketLink),
		Stream:    e.StreamLink.(*mem.StreamLink),
		Indicator: indicator.NewRecorder(),
		done:      make(chan error, 1),
	}
	e.Aggregator.Indicator = s.Indicator
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() { s.done <- e.Run(ctx) }()
	return s, nil
}

// Stop stops the bridge and returns its error.
func (s *Sim) Stop() error {
	s.cancel()
	return <-s.done
}

// Send sends data from the host, split into packets.
func (s *Sim) Send(ctx context.Context, data []byte) error {
	max := s.Packet.MaxPacketSize()
	for len(data) > 0 {
		size := len(data)
		if size > max {
			size = max
		}
		if err := s.Packet.Send(ctx, data[:size]); err != nil {
			return err
		}
		data = data[size:]
	}
	return nil
}

// Receive receives n bytes on the host.
func (s *Sim) Receive(ctx context.Context, n int) ([]byte, error) {
	var out []byte
	for len(out) < n {
		pkt, err := s.Packet.Receive(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, pkt...)
	}
	return out, nil
}

// CheckPayload is the payload of Check with count words.
func CheckPayload(count int) []byte {
	words := make([]string, count)
	for i := range words {
		words[i] = "World" + strconv.Itoa(i)
	}
	return []byte(strings.Join(words, ","))
}

// Check sends the payload from the host, loops it back on the device
// and verifies the host receives the same bytes.
func (s *Sim) Check(ctx context.Context, payload []byte) error {
	if !s.Packet.Attached() {
		return errNotAttached
	}
	loopCh := make(chan error, 1)
	go func() {
		out, err := s.Stream.ReadOutput(ctx, len(payload))
		if err == nil {
			s.Stream.Inject(out)
		}
		loopCh <- err
	}()
	type result struct {
		data []byte
		err  error
	}
	echoCh := make(chan result, 1)
	go func() {
		data, err := s.Receive(ctx, len(payload))
		echoCh <- result{data: data, err: err}
	}()
	if err := s.Send(ctx, payload); err != nil {
		return err
	}
	if err := <-loopCh; err != nil {
		return fmt.Errorf("device didn't receive: %w", err)
	}
	echo := <-echoCh
	if echo.err != nil {
		return fmt.Errorf("host didn't receive echo: %w", echo.err)
	}
	if !bytes.Equal(echo.data, payload) {
		return fmt.Errorf("echo mismatch: %q", echo.data)
	}
	return nil
}
