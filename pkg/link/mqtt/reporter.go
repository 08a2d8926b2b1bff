package mqtt

import (
	"context"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/bridge.go/pkg/status"
)

// StatusReporter publishes status.StatusReport as a retained
// protobuf message on <id>/status.
type StatusReporter struct {
	Queue *Queue
	Topic string
}

// NewStatusReporter creates a StatusReporter for the link.
func NewStatusReporter(l *Link) *StatusReporter {
	return &StatusReporter{Queue: l.Queue, Topic: l.Topic(TopicStatus)}
}

// Report implements status.Reporter.
func (r *StatusReporter) Report(ctx context.Context, report *status.StatusReport) error {
	encoded, err := proto.Marshal(report)
	if err != nil {
		return err
	}
	token := r.Queue.PubWith(r.Topic, encoded, 1, true)
	select {
	case <-waitToken(token):
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitToken(token paho.Token) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		token.Wait()
		close(ch)
	}()
	return ch
}
