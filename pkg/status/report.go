package status

import (
	"context"

	"github.com/golang/protobuf/proto"
)

// StatusReport is published when the pattern changes.
type StatusReport struct {
	ID          string `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Pattern     string `protobuf:"bytes,2,opt,name=pattern,proto3" json:"pattern,omitempty"`
	PacketRx    string `protobuf:"bytes,3,opt,name=packet_rx,proto3" json:"packet_rx,omitempty"`
	StreamTx    string `protobuf:"bytes,4,opt,name=stream_tx,proto3" json:"stream_tx,omitempty"`
	StreamRx    string `protobuf:"bytes,5,opt,name=stream_rx,proto3" json:"stream_rx,omitempty"`
	PacketTx    string `protobuf:"bytes,6,opt,name=packet_tx,proto3" json:"packet_tx,omitempty"`
	Violation   string `protobuf:"bytes,7,opt,name=violation,proto3" json:"violation,omitempty"`
	TimestampMs int64  `protobuf:"varint,8,opt,name=timestamp_ms,proto3" json:"timestamp_ms,omitempty"`
}

// NewStatusReport creates a report from a snapshot.
func NewStatusReport(id string, s Snapshot, p Pattern, err error) *StatusReport {
	r := &StatusReport{
		ID:       id,
		Pattern:  p.String(),
		PacketRx: s.PacketRx.String(),
		StreamTx: s.StreamTx.String(),
		StreamRx: s.StreamRx.String(),
		PacketTx: s.PacketTx.String(),
	}
	if err != nil {
		r.Violation = err.Error()
	}
	return r
}

// ProtoMessage implements proto.Message.
func (m *StatusReport) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StatusReport) Reset() { *m = StatusReport{} }

// String implements proto.Message.
func (m *StatusReport) String() string { return proto.CompactTextString(m) }

// Reporter publishes status reports.
type Reporter interface {
	Report(ctx context.Context, report *StatusReport) error
}

// ReporterFunc is func type of Reporter.
type ReporterFunc func(ctx context.Context, report *StatusReport) error

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, report *StatusReport) error {
	return f(ctx, report)
}
