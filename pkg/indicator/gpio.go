package indicator

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIO drives an LED on a GPIO pin.
type GPIO struct {
	Pin       gpio.PinOut
	ActiveLow bool
}

// OpenGPIO initializes the host drivers and opens the named pin.
func OpenGPIO(name string, activeLow bool) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	g := &GPIO{Pin: pin, ActiveLow: activeLow}
	if err := g.Set(false); err != nil {
		return nil, err
	}
	return g, nil
}

// Level returns the pin level for the output.
func (g *GPIO) Level(on bool) gpio.Level {
	if g.ActiveLow {
		on = !on
	}
	if on {
		return gpio.High
	}
	return gpio.Low
}

// Set implements Indicator.
func (g *GPIO) Set(on bool) error {
	return g.Pin.Out(g.Level(on))
}

// Pulse implements Indicator.
func (g *GPIO) Pulse(ctx context.Context, d time.Duration) error {
	return PulseWith(ctx, g, d)
}
