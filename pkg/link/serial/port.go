// Package serial opens a serial port as a link.StreamLink.
package serial

import (
	"errors"
	"io"
	"time"

	"github.com/goburrow/serial"

	"github.com/robotalks/bridge.go/pkg/link/stream"
)

// DefaultBaudRate is the symbol rate of the payload UART.
const DefaultBaudRate = 115200

// Config is the serial port config.
type Config struct {
	Device      string        `yaml:"device"`
	BaudRate    int           `yaml:"baud_rate"`
	DataBits    int           `yaml:"data_bits"`
	StopBits    int           `yaml:"stop_bits"`
	Parity      string        `yaml:"parity"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// DefaultConfig returns 115200 8N1 with a 100ms read timeout.
func DefaultConfig() Config {
	return Config{
		BaudRate:    DefaultBaudRate,
		DataBits:    8,
		StopBits:    1,
		Parity:      "N",
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("serial: device required")
	}
	if c.BaudRate <= 0 {
		return errors.New("serial: baud rate must be > 0")
	}
	switch c.DataBits {
	case 5, 6, 7, 8:
	default:
		return errors.New("serial: data bits must be 5..8")
	}
	switch c.StopBits {
	case 1, 2:
	default:
		return errors.New("serial: stop bits must be 1 or 2")
	}
	switch c.Parity {
	case "N", "E", "O":
	default:
		return errors.New("serial: parity must be N, E or O")
	}
	if c.ReadTimeout <= 0 {
		return errors.New("serial: read timeout must be > 0")
	}
	return nil
}

// Port is a serial port usable as a link.StreamLink.
type Port struct {
	*stream.ReadWriter
	port serial.Port
}

// Open opens the serial port.
func Open(c Config) (*Port, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	port, err := serial.Open(&serial.Config{
		Address:  c.Device,
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: c.StopBits,
		Parity:   c.Parity,
		Timeout:  c.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Port{
		ReadWriter: stream.New(&timeoutReader{port}),
		port:       port,
	}, nil
}

// Close implements io.Closer.
func (p *Port) Close() error {
	return p.port.Close()
}

// timeoutReader turns read timeouts into empty reads which
// stream.ReadWriter retries.
type timeoutReader struct {
	io.ReadWriter
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	n, err := r.ReadWriter.Read(p)
	if errors.Is(err, serial.ErrTimeout) {
		err = nil
	}
	return n, err
}
