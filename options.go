package enode

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"

	"github.com/raskyld/enode/pkg/eterm"
)

type config struct {
	nodeName      string
	creation      uint32
	cookie        string
	logHandler    slog.Handler
	msink         metrics.MetricSink
	metricLabels  []metrics.Label
	atoms         *eterm.AtomTable
	atomTableSize int
	mailboxDepth  int
	remote        RemoteSender
}

// Option to pass to `Create`
type Option func(*config) error

// WithNodeName specifies the name of the node, e.g. "app@host". It becomes
// the node field of every Pid, Port and Ref the node allocates.
func WithNodeName(name string) Option {
	return func(c *config) error {
		if err := eterm.ValidateNodeName(name); err != nil {
			return err
		}
		c.nodeName = name
		return nil
	}
}

// WithCreation specifies the incarnation number of the node. Only its two
// lowest bits travel inside pids, ports and refs.
func WithCreation(creation uint32) Option {
	return func(c *config) error {
		c.creation = creation
		return nil
	}
}

// WithCookie specifies the security cookie carried by SEND and REG_SEND
// control messages.
func WithCookie(cookie string) Option {
	return func(c *config) error {
		if len(cookie) > eterm.MaxAtomLen {
			return eterm.ErrBadArg
		}
		c.cookie = cookie
		return nil
	}
}

// WithLog specifies which `slog.Handler` to use.
func WithLog(handler slog.Handler) Option {
	return func(c *config) error {
		c.logHandler = handler
		return nil
	}
}

// WithMetricSink allows you to chose how to collect the metrics emitted by
// the node.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the node.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels
		return nil
	}
}

// WithAtomTable shares an existing atom table with the node. Useful when
// several nodes or codecs of the same process must agree on atom indices.
func WithAtomTable(tbl *eterm.AtomTable) Option {
	return func(c *config) error {
		c.atoms = tbl
		return nil
	}
}

// WithAtomTableSize bounds the node-owned atom table. It is ignored when
// WithAtomTable is used.
func WithAtomTableSize(size int) Option {
	return func(c *config) error {
		if size == 0 {
			size = eterm.DefaultAtomTableSize
		}
		c.atomTableSize = size
		return nil
	}
}

// WithMailboxDepth hints the initial capacity of mailbox queues. Queues
// grow past it, the hint only avoids early reallocations.
func WithMailboxDepth(depth int) Option {
	return func(c *config) error {
		if depth == 0 {
			depth = 1024
		}
		c.mailboxDepth = depth
		return nil
	}
}

// WithRemote specifies where envelopes addressed to mailboxes of other
// nodes are forwarded. Without it, any cross-node send fails with
// ErrNoRemote.
func WithRemote(rs RemoteSender) Option {
	return func(c *config) error {
		c.remote = rs
		return nil
	}
}
