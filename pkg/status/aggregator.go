package status

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/indicator"
	"github.com/robotalks/bridge.go/pkg/state"
)

// DefaultSettle is the default Aggregator.Settle.
const DefaultSettle = 20 * time.Millisecond

// Source provides snapshots and change notifications.
type Source interface {
	Snapshot() Snapshot
	Notify(notifiers ...state.Notifier)
}

// Aggregator drives an indicator from the states of a Source.
type Aggregator struct {
	ID        string
	Source    Source
	Indicator indicator.Indicator
	Timing    Timing
	Reporter  Reporter
	// Strict makes Run fail on an impossible state combination
	// after showing ErrorPattern once.
	Strict bool
	// Settle is how long a violation must persist before it's shown.
	// The two packet-facing tasks observe a detach independently.
	Settle time.Duration

	// activity seen since the last evaluation, so short
	// Receiving/Sending states are not missed.
	activity atomic.Bool

	lock    sync.RWMutex
	pattern Pattern
	lastErr error
}

// NewAggregator creates an Aggregator with default timing.
func NewAggregator(src Source, ind indicator.Indicator) *Aggregator {
	return &Aggregator{Source: src, Indicator: ind, Timing: DefaultTiming(), Settle: DefaultSettle}
}

// Pattern returns the pattern currently shown.
func (a *Aggregator) Pattern() Pattern {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.pattern
}

// Violation returns the last invariant violation, or nil.
func (a *Aggregator) Violation() error {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.lastErr
}

func (a *Aggregator) evaluate(activity bool) (Snapshot, Pattern, error) {
	snapshot := a.Source.Snapshot()
	pattern, err := Evaluate(snapshot)
	if activity && pattern == On && snapshot.PacketConnected() {
		pattern = Blink
	}
	return snapshot, pattern, err
}

// Run implements framework.Runnable.
func (a *Aggregator) Run(ctx context.Context) error {
	changed := make(chan struct{}, 1)
	signal := state.Signal(changed)
	a.Source.Notify(state.StateChangedFunc(func(h *state.Holder, old, st state.ConnectionState) {
		if st.IsActive() {
			a.activity.Store(true)
		}
		signal.StateChanged(h, old, st)
	}))

	first := true
	for {
		select {
		case <-changed:
		default:
		}
		activity := a.activity.Swap(false)
		snapshot, pattern, err := a.evaluate(activity)
		if err != nil && a.Settle > 0 {
			if sleepErr := framework.Sleep(ctx, a.Settle); sleepErr != nil {
				return sleepErr
			}
			snapshot, pattern, err = a.evaluate(activity || a.activity.Swap(false))
		}
		a.lock.Lock()
		prev := a.pattern
		a.pattern, a.lastErr = pattern, err
		a.lock.Unlock()
		if first || prev != pattern {
			glog.V(3).Infof("status: %s (%s)", pattern, snapshot)
			if err != nil {
				glog.Errorf("status: %v", err)
			}
			a.report(ctx, snapshot, pattern, err)
			first = false
		}

		if seq, ok := a.Timing.Sequence(pattern); ok {
			if playErr := seq.Play(ctx, a.Indicator); playErr != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				glog.Warningf("status: indicator: %v", playErr)
			}
			if err != nil && a.Strict {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		if setErr := a.Indicator.Set(pattern == On); setErr != nil {
			glog.Warningf("status: indicator: %v", setErr)
		}
		select {
		case <-changed:
		case <-ctx.Done():
			a.Indicator.Set(false)
			return ctx.Err()
		}
	}
}

func (a *Aggregator) report(ctx context.Context, snapshot Snapshot, pattern Pattern, err error) {
	if a.Reporter == nil {
		return
	}
	r := NewStatusReport(a.ID, snapshot, pattern, err)
	r.TimestampMs = time.Now().UnixNano() / int64(time.Millisecond)
	if reportErr := a.Reporter.Report(ctx, r); reportErr != nil && ctx.Err() == nil {
		glog.Warningf("status: report: %v", reportErr)
	}
}
