// Package env builds the links, bridge and status indicator
// from flags, environment variables and an optional YAML file.
package env

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/bridge.go/pkg/bridge"
	"github.com/robotalks/bridge.go/pkg/link/mem"
	"github.com/robotalks/bridge.go/pkg/link/serial"
	"github.com/robotalks/bridge.go/pkg/status"
)

// Packet link kinds.
const (
	PacketWebsocket = "websocket"
	PacketMQTT      = "mqtt"
	PacketMem       = "mem"
)

// Indicator kinds.
const (
	IndicatorLog  = "log"
	IndicatorGPIO = "gpio"
	IndicatorNone = "none"
)

// Stream devices which aren't serial ports.
const (
	StreamStdio = "-"
	StreamMem   = "mem"
)

// PacketConfig configures the packet link.
type PacketConfig struct {
	Kind string `yaml:"kind"`
	// Listen is the websocket listen address.
	Listen string `yaml:"listen"`
	// Path is the websocket HTTP path.
	Path string `yaml:"path"`
	// MQTTBrokerURL specifies the MQTT broker to use.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt_url"`
	MaxPacketSize int    `yaml:"max_packet_size"`
}

// StatusConfig configures the status indicator.
type StatusConfig struct {
	Indicator string        `yaml:"indicator"`
	GPIOPin   string        `yaml:"gpio_pin"`
	ActiveLow bool          `yaml:"active_low"`
	Timing    status.Timing `yaml:"timing"`
	Strict    bool          `yaml:"strict"`
	// Settle is how long an impossible state must persist to be shown.
	Settle    time.Duration `yaml:"settle"`
	// Report publishes status reports to the MQTT broker.
	Report    bool          `yaml:"report"`
}

// Config is the complete config of a bridge.
type Config struct {
	ID     string        `yaml:"id"`
	Packet PacketConfig  `yaml:"packet"`
	Stream serial.Config `yaml:"stream"`
	Bridge bridge.Config `yaml:"bridge"`
	Status StatusConfig  `yaml:"status"`

	// ConfigFile is loaded by ParseFlags before flags apply.
	ConfigFile string `yaml:"-"`
}

var defaultConfig = builtinConfig()

func builtinConfig() Config {
	stream := serial.DefaultConfig()
	stream.Device = "/dev/ttyUSB0"
	return Config{
		Packet: PacketConfig{
			Kind:          PacketWebsocket,
			Listen:        ":8080",
			Path:          "/bridge",
			MQTTBrokerURL: "mqtt://localhost:1883/bridge/",
			MaxPacketSize: mem.DefaultMaxPacketSize,
		},
		Stream: stream,
		Bridge: bridge.DefaultConfig(),
		Status: StatusConfig{
			Indicator: IndicatorLog,
			GPIOPin:   "GPIO17",
			ActiveLow: true,
			Timing:    status.DefaultTiming(),
			Settle:    status.DefaultSettle,
		},
	}
}

func init() {
	if val := os.Getenv("BRIDGE_MQTT_URL"); val != "" {
		defaultConfig.Packet.MQTTBrokerURL = val
	}
	if val := os.Getenv("BRIDGE_STREAM_DEVICE"); val != "" {
		defaultConfig.Stream.Device = val
	}
	if val := os.Getenv("BRIDGE_ID"); val != "" {
		defaultConfig.ID = val
	}
	if defaultConfig.ID == "" {
		defaultConfig.ID = MachineID()
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	defaultConfig.SetupFlagSet(flag.CommandLine)
}

// SetupFlagSet binds the config to flags in fs.
func (c *Config) SetupFlagSet(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML config file, flags override it")
	fs.StringVar(&c.ID, "id", c.ID, "Bridge ID")
	fs.StringVar(&c.Packet.Kind, "packet", c.Packet.Kind, "Packet link: websocket, mqtt or mem")
	fs.StringVar(&c.Packet.Listen, "listen", c.Packet.Listen, "Websocket listen address")
	fs.StringVar(&c.Packet.Path, "path", c.Packet.Path, "Websocket HTTP path")
	fs.StringVar(&c.Packet.MQTTBrokerURL, "mqtt", c.Packet.MQTTBrokerURL, "MQTT broker URL")
	fs.IntVar(&c.Packet.MaxPacketSize, "max-packet-size", c.Packet.MaxPacketSize, "Max packet size")
	fs.StringVar(&c.Stream.Device, "device", c.Stream.Device, "Stream device, - for stdio")
	fs.IntVar(&c.Stream.BaudRate, "baud", c.Stream.BaudRate, "Serial baud rate")
	fs.IntVar(&c.Stream.DataBits, "data-bits", c.Stream.DataBits, "Serial data bits")
	fs.IntVar(&c.Stream.StopBits, "stop-bits", c.Stream.StopBits, "Serial stop bits")
	fs.StringVar(&c.Stream.Parity, "parity", c.Stream.Parity, "Serial parity: N, E or O")
	fs.DurationVar(&c.Stream.ReadTimeout, "read-timeout", c.Stream.ReadTimeout, "Serial read timeout")
	fs.Var(&c.Bridge.ToStream.Policy, "to-stream-policy", "Channel policy to stream: queue or broadcast")
	fs.IntVar(&c.Bridge.ToStream.Capacity, "to-stream-capacity", c.Bridge.ToStream.Capacity, "Channel capacity to stream")
	fs.Var(&c.Bridge.ToPacket.Policy, "to-packet-policy", "Channel policy to packet: queue or broadcast")
	fs.IntVar(&c.Bridge.ToPacket.Capacity, "to-packet-capacity", c.Bridge.ToPacket.Capacity, "Channel capacity to packet")
	fs.DurationVar(&c.Bridge.ActivityYield, "activity-yield", c.Bridge.ActivityYield, "Yield after marking activity")
	fs.DurationVar(&c.Bridge.RetryDelay, "retry-delay", c.Bridge.RetryDelay, "Delay after an I/O error")
	fs.StringVar(&c.Status.Indicator, "indicator", c.Status.Indicator, "Status indicator: log, gpio or none")
	fs.StringVar(&c.Status.GPIOPin, "gpio-pin", c.Status.GPIOPin, "GPIO pin of the status LED")
	fs.BoolVar(&c.Status.ActiveLow, "active-low", c.Status.ActiveLow, "Status LED is active low")
	fs.BoolVar(&c.Status.Strict, "strict", c.Status.Strict, "Exit on impossible status")
	fs.DurationVar(&c.Status.Settle, "status-settle", c.Status.Settle, "How long an impossible status must hold to be shown")
	fs.BoolVar(&c.Status.Report, "report", c.Status.Report, "Publish status reports to MQTT")
}

// ParseFlags parses args. The file given by -config is loaded
// first, the flags given explicitly override it.
func (c *Config) ParseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.ConfigFile == "" {
		return nil
	}
	explicit := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = f.Value.String()
	})
	if err := c.LoadFile(c.ConfigFile); err != nil {
		return err
	}
	for name, val := range explicit {
		if err := fs.Set(name, val); err != nil {
			return err
		}
	}
	return nil
}

// Parse parses command line flags into the default config.
func Parse() error {
	return defaultConfig.ParseFlags(flag.CommandLine, os.Args[1:])
}

// LoadFile overlays the YAML file on the config.
func (c *Config) LoadFile(fn string) error {
	data, err := os.ReadFile(fn)
	if err != nil {
		return err
	}
	return c.Load(data)
}

// Load overlays YAML on the config.
func (c *Config) Load(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("bridge id must be specified")
	}
	switch c.Packet.Kind {
	case PacketWebsocket, PacketMQTT, PacketMem:
	default:
		return fmt.Errorf("unknown packet link %q", c.Packet.Kind)
	}
	if c.Packet.MaxPacketSize < 2 {
		return fmt.Errorf("invalid max packet size %d", c.Packet.MaxPacketSize)
	}
	switch c.Stream.Device {
	case StreamStdio, StreamMem:
	default:
		if err := c.Stream.Validate(); err != nil {
			return err
		}
	}
	switch c.Status.Indicator {
	case IndicatorLog, IndicatorGPIO, IndicatorNone:
	default:
		return fmt.Errorf("unknown indicator %q", c.Status.Indicator)
	}
	if c.Status.Report && c.Packet.MQTTBrokerURL == "" {
		return fmt.Errorf("status report requires MQTT broker URL")
	}
	return nil
}

// String implements fmt.Stringer.
func (c *Config) String() string {
	return c.ID + "[" + c.Packet.Kind + "/" + strconv.Itoa(c.Packet.MaxPacketSize) + " <-> " + c.Stream.Device + "]"
}
