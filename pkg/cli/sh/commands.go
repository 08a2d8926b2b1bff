package sh

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
)

const ioTimeout = time.Second

func argsPayload(c *ishell.Context) []byte {
	return []byte(strings.Join(c.Args, " "))
}

var (
	// AttachCmd attaches the host to the packet link.
	AttachCmd = ishell.Cmd{
		Name:    "attach",
		Aliases: []string{"a"},
		Help:    "attach host",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Attach()
		},
	}

	// DetachCmd detaches the host from the packet link.
	DetachCmd = ishell.Cmd{
		Name:    "detach",
		Aliases: []string{"d"},
		Help:    "detach host",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Detach()
		},
	}

	// SendCmd sends text from the host.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "TEXT: send from host over packet link",
		Func: MustBeAttached(func(c *ishell.Context) {
			ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
			defer cancel()
			if err := ShellFrom(c).Sim.Send(ctx, argsPayload(c)); err != nil {
				c.Err(err)
			}
		}),
	}

	// RecvCmd prints the next packet received by the host.
	RecvCmd = ishell.Cmd{
		Name:    "recv",
		Aliases: []string{"r"},
		Help:    "print next packet received by host",
		Func: MustBeAttached(func(c *ishell.Context) {
			s := ShellFrom(c)
			ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
			defer cancel()
			pkt, err := s.Sim.Packet.Receive(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			s.Print(c, map[string]interface{}{"packet": string(pkt), "size": len(pkt)},
				"%q (%d bytes)\n", pkt, len(pkt))
		}),
	}

	// TypeCmd types text into the stream link as the device.
	TypeCmd = ishell.Cmd{
		Name:    "type",
		Aliases: []string{"t"},
		Help:    "TEXT: write to stream link as device",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Sim.Stream.Inject(argsPayload(c))
		},
	}

	// ReadCmd prints what the bridge wrote to the stream link.
	ReadCmd = ishell.Cmd{
		Name: "read",
		Help: "print bytes written to stream link",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
			defer cancel()
			out, err := s.Sim.Stream.Next(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			s.Print(c, map[string]interface{}{"data": string(out), "size": len(out)},
				"%q (%d bytes)\n", out, len(out))
		},
	}

	// StatusCmd prints the status pattern and states.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "print status pattern and connection states",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			pattern := s.Sim.Env.Aggregator.Pattern()
			snapshot := s.Sim.Env.Bridge.Snapshot()
			info := map[string]interface{}{
				"pattern": pattern.String(),
				"states":  snapshot.String(),
				"led":     s.Sim.Indicator.On(),
				"pulses":  s.Sim.Indicator.Pulses(),
			}
			if err := s.Sim.Env.Aggregator.Violation(); err != nil {
				info["violation"] = err.Error()
			}
			s.Print(c, info, "%s led=%v pulses=%d\n%s\n",
				pattern, s.Sim.Indicator.On(), s.Sim.Indicator.Pulses(), snapshot)
		},
	}

	// StatsCmd prints the counters of both directions.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "print counters",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			stats := s.Sim.Env.Bridge.Stats()
			s.Print(c, stats, "to-stream: %+v\nto-packet: %+v\n", stats.ToStream, stats.ToPacket)
		},
	}

	// CheckCmd loops data back through both directions and verifies it.
	CheckCmd = ishell.Cmd{
		Name: "check",
		Help: "[COUNT]: echo World0,World1,... through the bridge",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			count := 20
			if len(c.Args) > 0 {
				n, err := strconv.Atoi(c.Args[0])
				if err != nil || n <= 0 {
					c.Err(strconv.ErrSyntax)
					return
				}
				count = n
			}
			if !s.Sim.Packet.Attached() {
				s.Attach()
			}
			ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
			defer cancel()
			payload := CheckPayload(count)
			if err := s.Sim.Check(ctx, payload); err != nil {
				c.Err(err)
				return
			}
			s.Print(c, map[string]interface{}{"ok": true, "size": len(payload)},
				"OK %d bytes\n", len(payload))
		},
	}
)
