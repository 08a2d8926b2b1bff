package indicator

import (
	"context"
	"sync"
	"time"
)

// Event is a recorded output operation.
type Event struct {
	On       bool
	Duration time.Duration
}

// Recorder records the output operations without sleeping.
type Recorder struct {
	lock   sync.Mutex
	on     bool
	events []Event
	ch     chan struct{}
}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{ch: make(chan struct{}, 1)}
}

func (r *Recorder) record(ev Event) {
	r.lock.Lock()
	r.events = append(r.events, ev)
	r.lock.Unlock()
	select {
	case r.ch <- struct{}{}:
	default:
	}
}

// Set implements Indicator.
func (r *Recorder) Set(on bool) error {
	r.lock.Lock()
	r.on = on
	r.lock.Unlock()
	r.record(Event{On: on})
	return nil
}

// Pulse implements Indicator. Duration is recorded instead of slept.
func (r *Recorder) Pulse(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.lock.Lock()
	r.on = false
	r.lock.Unlock()
	r.record(Event{On: true, Duration: d})
	return nil
}

// On returns the current output.
func (r *Recorder) On() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.on
}

// Events returns recorded events.
func (r *Recorder) Events() []Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Event(nil), r.events...)
}

// Pulses returns the number of recorded pulses.
func (r *Recorder) Pulses() int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Duration > 0 {
			n++
		}
	}
	return n
}

// Changed returns a channel signaled after each recorded event.
func (r *Recorder) Changed() <-chan struct{} {
	return r.ch
}
