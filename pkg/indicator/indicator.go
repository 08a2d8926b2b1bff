// Package indicator drives a single-bit visual output.
package indicator

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/bridge.go/pkg/framework"
)

// Indicator is a single-bit output device.
type Indicator interface {
	Set(on bool) error
	Pulse(ctx context.Context, d time.Duration) error
}

// Setter is the minimal device an indicator can be built from.
type Setter interface {
	Set(on bool) error
}

// PulseWith turns s on for d and then off.
// The output is turned off even if ctx is done while on.
func PulseWith(ctx context.Context, s Setter, d time.Duration) error {
	if err := s.Set(true); err != nil {
		return err
	}
	err := framework.Sleep(ctx, d)
	if offErr := s.Set(false); offErr != nil && err == nil {
		err = offErr
	}
	return err
}

// Log logs the output transitions.
type Log struct {
	Name string

	lock sync.Mutex
	on   bool
}

// Set implements Indicator.
func (l *Log) Set(on bool) error {
	l.lock.Lock()
	changed := l.on != on
	l.on = on
	l.lock.Unlock()
	if changed {
		glog.V(3).Infof("indicator %s: on=%v", l.Name, on)
	}
	return nil
}

// Pulse implements Indicator.
func (l *Log) Pulse(ctx context.Context, d time.Duration) error {
	return PulseWith(ctx, l, d)
}

// None discards everything.
type None struct{}

// Set implements Indicator.
func (None) Set(bool) error { return nil }

// Pulse implements Indicator.
func (None) Pulse(ctx context.Context, d time.Duration) error {
	return framework.Sleep(ctx, d)
}
