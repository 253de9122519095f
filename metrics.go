package enode

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	// MetricENodeDeliverInCount counts envelopes accepted into local
	// mailbox queues.
	MetricENodeDeliverInCount      = []string{"enode", "deliver", "in", "count"}
	MetricENodeDeliverInErrorCount = []string{"enode", "deliver", "in", "error", "count"}
	MetricENodeSendOutCount        = []string{"enode", "send", "out", "count"}
	MetricENodeSendOutErrorCount   = []string{"enode", "send", "out", "error", "count"}
	MetricENodeExitSignalOutCount  = []string{"enode", "exit", "signal", "out", "count"}
	MetricENodeExitSignalErrCount  = []string{"enode", "exit", "signal", "out", "error", "count"}
	MetricENodeMailboxSpawnCount   = []string{"enode", "mailbox", "spawn", "count"}
	MetricENodeMailboxCloseCount   = []string{"enode", "mailbox", "close", "count"}
	MetricENodeMailboxDropCount    = []string{"enode", "mailbox", "dropped", "count"}
	MetricENodeFrameInBytes        = []string{"enode", "frame", "in", "bytes"}
	MetricENodeFrameOutBytes       = []string{"enode", "frame", "out", "bytes"}
)

type TelemetryLabel string

var (
	LabelError       TelemetryLabel = "error"
	LabelPeerNode    TelemetryLabel = "peer_node"
	LabelMailboxName TelemetryLabel = "mailbox_name"
	LabelMsgType     TelemetryLabel = "msg_type"
	LabelPid         TelemetryLabel = "pid"
	LabelDuration    TelemetryLabel = "duration"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}
