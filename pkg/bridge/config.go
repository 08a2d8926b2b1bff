package bridge

import (
	"fmt"
	"time"

	"github.com/robotalks/bridge.go/pkg/channel"
)

// DirectionConfig configures one direction of the bridge.
type DirectionConfig struct {
	Policy      channel.Policy `yaml:"policy"`
	Capacity    int            `yaml:"capacity"`
	Subscribers int            `yaml:"subscribers"`
	// ReadSize is the max size of a chunk read from the source.
	// 0 uses the max packet size for a packet source.
	ReadSize int `yaml:"read_size"`
	// WriteSize is the max size of a write to the sink.
	// 0 uses max packet size - 1 for a packet sink.
	WriteSize int `yaml:"write_size"`
	// Coalesce merges immediately available chunks into one write.
	Coalesce bool `yaml:"coalesce"`
	// CoalesceDelay is how long the tail of a split write waits
	// for the next chunk.
	CoalesceDelay time.Duration `yaml:"coalesce_delay"`
}

// Config configures the bridge.
type Config struct {
	// ToStream is the direction from the packet link to the stream link.
	ToStream DirectionConfig `yaml:"to_stream"`
	// ToPacket is the direction from the stream link to the packet link.
	ToPacket DirectionConfig `yaml:"to_packet"`
	// ActivityYield is the suspension after marking a source
	// Receiving, so observers see the activity.
	ActivityYield time.Duration `yaml:"activity_yield"`
	// RetryDelay is the wait after a transient I/O error.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// WriteRetries is the number of retries of a failed stream write
	// before the data is dropped.
	WriteRetries int `yaml:"write_retries"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ToStream: DirectionConfig{
			Policy:        channel.PolicyQueue,
			Capacity:      4,
			Subscribers:   1,
			WriteSize:     63,
			Coalesce:      true,
			CoalesceDelay: 2 * time.Millisecond,
		},
		ToPacket: DirectionConfig{
			Policy:        channel.PolicyBroadcast,
			Capacity:      4,
			Subscribers:   1,
			ReadSize:      63,
			Coalesce:      true,
			CoalesceDelay: 2 * time.Millisecond,
		},
		ActivityYield: time.Millisecond,
		RetryDelay:    100 * time.Millisecond,
		WriteRetries:  3,
	}
}

// resolve fills defaults from the link and validates the sizes.
func (c *Config) resolve(maxPacketSize int) error {
	if maxPacketSize <= 1 {
		return fmt.Errorf("invalid max packet size %d", maxPacketSize)
	}
	if c.ToStream.ReadSize == 0 {
		c.ToStream.ReadSize = maxPacketSize
	}
	if c.ToStream.ReadSize < maxPacketSize {
		return fmt.Errorf("to_stream read size %d can't hold a packet of %d bytes",
			c.ToStream.ReadSize, maxPacketSize)
	}
	if c.ToPacket.WriteSize == 0 {
		c.ToPacket.WriteSize = maxPacketSize - 1
	}
	if c.ToPacket.WriteSize >= maxPacketSize {
		return fmt.Errorf("to_packet write size %d must be less than max packet size %d",
			c.ToPacket.WriteSize, maxPacketSize)
	}
	for _, d := range []struct {
		name string
		cfg  *DirectionConfig
	}{{"to_stream", &c.ToStream}, {"to_packet", &c.ToPacket}} {
		if d.cfg.ReadSize <= 0 {
			return fmt.Errorf("%s: invalid read size %d", d.name, d.cfg.ReadSize)
		}
		if d.cfg.WriteSize <= 0 {
			return fmt.Errorf("%s: invalid write size %d", d.name, d.cfg.WriteSize)
		}
		if d.cfg.Capacity <= 0 {
			return fmt.Errorf("%s: invalid capacity %d", d.name, d.cfg.Capacity)
		}
	}
	if c.WriteRetries < 0 {
		c.WriteRetries = 0
	}
	return nil
}
