package env

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/bridge.go/pkg/bridge"
	"github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/indicator"
	"github.com/robotalks/bridge.go/pkg/link"
	"github.com/robotalks/bridge.go/pkg/link/mem"
	"github.com/robotalks/bridge.go/pkg/link/mqtt"
	"github.com/robotalks/bridge.go/pkg/link/serial"
	"github.com/robotalks/bridge.go/pkg/link/stream"
	"github.com/robotalks/bridge.go/pkg/link/websocket"
	"github.com/robotalks/bridge.go/pkg/status"
)

// Env is the assembled bridge with its links and status indicator.
type Env struct {
	Config     *Config
	PacketLink link.PacketLink
	StreamLink link.StreamLink
	Indicator  indicator.Indicator
	Reporter   status.Reporter
	Bridge     *bridge.Bridge
	Aggregator *status.Aggregator

	// Services are the tasks serving the links.
	Services []framework.Runnable
}

type stdio struct {
	io.Reader
	io.Writer
}

// NewEnv creates Env from config.
func (c *Config) NewEnv() (*Env, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	env := &Env{Config: c}
	var reportQueue *mqtt.Queue
	var statusTopic string

	switch c.Packet.Kind {
	case PacketWebsocket:
		l := websocket.New(c.Packet.MaxPacketSize)
		mux := http.NewServeMux()
		mux.Handle(c.Packet.Path, l)
		server := &http.Server{Addr: c.Packet.Listen, Handler: mux}
		env.PacketLink = l
		env.Services = append(env.Services, framework.NamedRun("websocket", framework.RunFunc(func(ctx context.Context) error {
			glog.Infof("websocket: listen on %s%s", c.Packet.Listen, c.Packet.Path)
			return framework.RunWithContextCloser(ctx, server, func() error {
				if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		})))
	case PacketMQTT:
		q, err := c.newQueue()
		if err != nil {
			return nil, err
		}
		l := mqtt.NewLink(q, c.ID, c.Packet.MaxPacketSize)
		env.PacketLink = l
		env.Services = append(env.Services, framework.NamedRun("mqtt", framework.RunFunc(l.Run)))
		reportQueue, statusTopic = q, l.Topic(mqtt.TopicStatus)
	case PacketMem:
		env.PacketLink = mem.NewPacketLink(c.Packet.MaxPacketSize, 4)
	}

	switch c.Stream.Device {
	case StreamStdio:
		env.StreamLink = stream.New(stdio{Reader: os.Stdin, Writer: os.Stdout})
		env.Services = append(env.Services, framework.NamedRun("stdio", framework.CloseOnDone(os.Stdin)))
	case StreamMem:
		env.StreamLink = mem.NewStreamLink()
	default:
		port, err := serial.Open(c.Stream)
		if err != nil {
			return nil, fmt.Errorf("open %s error: %w", c.Stream.Device, err)
		}
		env.StreamLink = port
		env.Services = append(env.Services, framework.NamedRun("serial", framework.CloseOnDone(port)))
	}

	switch c.Status.Indicator {
	case IndicatorLog:
		env.Indicator = &indicator.Log{Name: c.ID}
	case IndicatorGPIO:
		g, err := indicator.OpenGPIO(c.Status.GPIOPin, c.Status.ActiveLow)
		if err != nil {
			return nil, err
		}
		env.Indicator = g
	default:
		env.Indicator = indicator.None{}
	}

	if c.Status.Report {
		if reportQueue == nil {
			q, err := c.newQueue()
			if err != nil {
				return nil, err
			}
			reportQueue, statusTopic = q, c.ID+"/"+mqtt.TopicStatus
			env.Services = append(env.Services, framework.NamedRun("mqtt-report", framework.RunFunc(func(ctx context.Context) error {
				token := q.Connect()
				token.Wait()
				if err := token.Error(); err != nil {
					return err
				}
				<-ctx.Done()
				q.Close()
				return ctx.Err()
			})))
		}
		env.Reporter = &mqtt.StatusReporter{Queue: reportQueue, Topic: statusTopic}
	}

	b, err := bridge.New(c.Bridge, env.PacketLink, env.StreamLink)
	if err != nil {
		return nil, err
	}
	env.Bridge = b
	env.Aggregator = status.NewAggregator(b, env.Indicator)
	env.Aggregator.ID = c.ID
	env.Aggregator.Timing = c.Status.Timing
	env.Aggregator.Strict = c.Status.Strict
	env.Aggregator.Settle = c.Status.Settle
	env.Aggregator.Reporter = env.Reporter
	return env, nil
}

func (c *Config) newQueue() (*mqtt.Queue, error) {
	opts, prefix, err := mqtt.ClientOptionsFromURL(c.Packet.MQTTBrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}
	if opts.ClientID == "" {
		opts.SetClientID("bridge-" + c.ID)
	}
	// an empty retained status tells subscribers the bridge is gone.
	opts.SetBinaryWill(prefix+c.ID+"/"+mqtt.TopicStatus, []byte{}, 1, true)
	return mqtt.NewQueue(opts, prefix), nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	env, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return env
}

// Runnables returns all tasks: link services, bridge and aggregator.
func (e *Env) Runnables() []framework.Runnable {
	runnables := append([]framework.Runnable(nil), e.Services...)
	runnables = append(runnables, e.Bridge.Runnables()...)
	return append(runnables, framework.NamedRun("status", e.Aggregator))
}

// Run runs all tasks until ctx is canceled or a task fails.
func (e *Env) Run(ctx context.Context) error {
	return framework.NewRunnerWith(ctx).Go(e.Runnables()...).Wait()
}
