package status

import (
	"context"
	"time"

	"github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/indicator"
)

// Sequence is a finite pulse sequence.
type Sequence struct {
	Count int           `yaml:"count"`
	On    time.Duration `yaml:"on"`
	Off   time.Duration `yaml:"off"`
	Gap   time.Duration `yaml:"gap"`
}

// Duration returns the total duration of the sequence.
func (q Sequence) Duration() time.Duration {
	return time.Duration(q.Count)*(q.On+q.Off) + q.Gap
}

// Play pulses the indicator Count times, then waits for Gap.
func (q Sequence) Play(ctx context.Context, ind indicator.Indicator) error {
	if err := ind.Set(false); err != nil {
		return err
	}
	for i := 0; i < q.Count; i++ {
		if err := ind.Pulse(ctx, q.On); err != nil {
			return err
		}
		if err := framework.Sleep(ctx, q.Off); err != nil {
			return err
		}
	}
	return framework.Sleep(ctx, q.Gap)
}

// Timing defines the sequences of Blink and ErrorPattern.
type Timing struct {
	Blink Sequence `yaml:"blink"`
	Error Sequence `yaml:"error"`
}

// DefaultTiming returns the default timing.
func DefaultTiming() Timing {
	return Timing{
		Blink: Sequence{Count: 2, On: 50 * time.Millisecond, Off: 50 * time.Millisecond},
		Error: Sequence{Count: 5, On: 200 * time.Millisecond, Off: 100 * time.Millisecond, Gap: 500 * time.Millisecond},
	}
}

// Sequence returns the sequence of a pattern. ok is false for
// Off and On which are steady.
func (t Timing) Sequence(p Pattern) (Sequence, bool) {
	switch p {
	case Blink:
		return t.Blink, true
	case ErrorPattern:
		return t.Error, true
	}
	return Sequence{}, false
}
