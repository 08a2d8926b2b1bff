package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	conf := DefaultConfig()
	require.Error(t, conf.Validate())
	conf.Device = "/dev/ttyUSB0"
	require.NoError(t, conf.Validate())

	cases := []struct {
		name   string
		modify func(*Config)
	}{
		{"baud", func(c *Config) { c.BaudRate = 0 }},
		{"data bits", func(c *Config) { c.DataBits = 9 }},
		{"stop bits", func(c *Config) { c.StopBits = 3 }},
		{"parity", func(c *Config) { c.Parity = "M" }},
		{"timeout", func(c *Config) { c.ReadTimeout = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := conf
			tc.modify(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}
