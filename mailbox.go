package enode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raskyld/enode/pkg/eterm"
)

// Case is one branch of ReceiveSelect: a pattern and a handler to run
// with the bindings the pattern captured.
type Case struct {
	Pattern eterm.Term
	Run     func(env *Envelope, binding *eterm.VarBind)
}

// Mailbox is a process-like endpoint of a Node. Producers deliver
// envelopes concurrently; consumers block in the Receive methods.
// Links and monitors mirror the distribution protocol: LINK, UNLINK,
// MONITOR_P and DEMONITOR_P mutate the peer sets silently, EXIT2
// removes the sender from the link set before queueing, everything
// else is queued as-is.
type Mailbox struct {
	nd  *Node
	pid eterm.Pid

	lk       sync.Mutex
	name     eterm.Atom
	links    map[eterm.Pid]struct{}
	monitors map[eterm.Ref]eterm.Pid
	watched  map[eterm.Ref]eterm.Pid
	closed   bool
	closedAt time.Time

	queue *inbox
}

func newMailbox(nd *Node, pid eterm.Pid, depth int) *Mailbox {
	return &Mailbox{
		nd:       nd,
		pid:      pid,
		links:    make(map[eterm.Pid]struct{}),
		monitors: make(map[eterm.Ref]eterm.Pid),
		watched:  make(map[eterm.Ref]eterm.Pid),
		queue:    newInbox(depth),
	}
}

func (mb *Mailbox) Pid() eterm.Pid {
	return mb.pid
}

// Name returns the registered name, if any.
func (mb *Mailbox) Name() (eterm.Atom, bool) {
	mb.lk.Lock()
	defer mb.lk.Unlock()
	return mb.name, !mb.name.Empty()
}

// Pending is how many envelopes are queued right now.
func (mb *Mailbox) Pending() int {
	return mb.queue.depth()
}

// ClosedAt reports when the mailbox was closed.
func (mb *Mailbox) ClosedAt() (time.Time, bool) {
	mb.lk.Lock()
	defer mb.lk.Unlock()
	return mb.closedAt, mb.closed
}

func (mb *Mailbox) String() string {
	name, _ := mb.Name()
	return fmt.Sprintf("#Mbox{pid=%s, name=%s}", mb.pid, name)
}

// deliver classifies then enqueues env. It is the single entry point
// for everything addressed to this mailbox. A classification fault
// marks env.Err and enqueues anyway so the consumer sees it.
func (mb *Mailbox) deliver(env *Envelope) error {
	enqueue, err := mb.classify(env)
	if err != nil {
		env.Err = err
		enqueue = true
	}
	if !enqueue {
		return nil
	}
	if err := mb.queue.push(env); err != nil {
		return err
	}
	mb.nd.count(MetricENodeDeliverInCount, 1.0, LabelMsgType.M(env.Type.String()))
	return nil
}

// classify applies the side effects of control messages and tells
// whether the envelope must still be enqueued. EXIT deliberately takes
// the default branch: only EXIT2 tears the reverse link down.
func (mb *Mailbox) classify(env *Envelope) (bool, error) {
	switch env.Type {
	case MsgLink:
		if env.From.IsZero() {
			return false, ctrlErr(env.Type, "missing sender pid")
		}
		return false, mb.mutatePeers(func() {
			mb.links[env.From] = struct{}{}
		})
	case MsgUnlink:
		if env.From.IsZero() {
			return false, ctrlErr(env.Type, "missing sender pid")
		}
		return false, mb.mutatePeers(func() {
			delete(mb.links, env.From)
		})
	case MsgMonitorP:
		if env.From.IsZero() || env.Ref.IsZero() {
			return false, ctrlErr(env.Type, "missing sender pid or ref")
		}
		return false, mb.mutatePeers(func() {
			mb.monitors[env.Ref] = env.From
		})
	case MsgDemonitorP:
		if env.Ref.IsZero() {
			return false, ctrlErr(env.Type, "missing ref")
		}
		return false, mb.mutatePeers(func() {
			delete(mb.monitors, env.Ref)
		})
	case MsgMonitorPExit:
		_ = mb.mutatePeers(func() {
			delete(mb.monitors, env.Ref)
			delete(mb.watched, env.Ref)
		})
		return true, nil
	case MsgExit2, MsgExit2TT:
		_ = mb.mutatePeers(func() {
			delete(mb.links, env.From)
		})
		return true, nil
	default:
		return true, nil
	}
}

// mutatePeers runs fn under the mutex unless the mailbox is already
// closed, in which case the peer sets are gone and the mutation must
// not resurrect them.
func (mb *Mailbox) mutatePeers(fn func()) error {
	mb.lk.Lock()
	defer mb.lk.Unlock()
	if mb.closed {
		return mb.queue.closeErr()
	}
	fn()
	return nil
}

// Receive blocks until a message arrives. A closed mailbox surfaces as
// a *ClosedError (matching ErrMailboxClosed) carrying the exit reason,
// ctx expiration as ctx.Err().
func (mb *Mailbox) Receive(ctx context.Context) (*Envelope, error) {
	return mb.queue.pop(ctx)
}

// ReceiveMatch consumes messages until one matches pattern. Messages
// that do not match are dropped. Each attempt starts from a fresh
// binding; the returned one holds the winning captures.
func (mb *Mailbox) ReceiveMatch(ctx context.Context, pattern eterm.Term) (*Envelope, *eterm.VarBind, error) {
	for {
		env, err := mb.queue.pop(ctx)
		if err != nil {
			return nil, nil, err
		}
		binding := eterm.NewVarBind()
		if eterm.Match(pattern, env.Payload, binding) {
			return env, binding, nil
		}
		mb.nd.logger.Debug(
			"dropped a non-matching message",
			LabelPid.L(mb.pid.String()),
			LabelMsgType.L(env.Type.String()),
		)
	}
}

// ReceiveSelect consumes messages until one matches a case, then runs
// that case. Cases are tried in order; losing messages are dropped.
func (mb *Mailbox) ReceiveSelect(ctx context.Context, cases ...Case) error {
	if len(cases) == 0 {
		return eterm.ErrBadArg
	}
	for {
		env, err := mb.queue.pop(ctx)
		if err != nil {
			return err
		}
		matched := false
		for _, cs := range cases {
			binding := eterm.NewVarBind()
			if eterm.Match(cs.Pattern, env.Payload, binding) {
				if cs.Run != nil {
					cs.Run(env, binding)
				}
				matched = true
				break
			}
		}
		if matched {
			return nil
		}
		mb.nd.logger.Debug(
			"dropped a non-matching message",
			LabelPid.L(mb.pid.String()),
			LabelMsgType.L(env.Type.String()),
		)
	}
}

// Send posts msg to another mailbox, local or remote.
func (mb *Mailbox) Send(to eterm.Pid, msg eterm.Term) error {
	return mb.nd.Send(mb.pid, to, msg)
}

// SendNamed posts msg to a locally registered name.
func (mb *Mailbox) SendNamed(name string, msg eterm.Term) error {
	return mb.nd.SendNamed(mb.pid, name, msg)
}

// Link records peer in the link set and sends it LINK, so both sides
// exit-signal each other on close.
func (mb *Mailbox) Link(peer eterm.Pid) error {
	if peer.IsZero() {
		return eterm.ErrBadArg
	}
	if err := mb.mutatePeers(func() { mb.links[peer] = struct{}{} }); err != nil {
		return err
	}
	err := mb.nd.dispatch(&Envelope{Type: MsgLink, From: mb.pid, To: peer})
	if err != nil {
		_ = mb.mutatePeers(func() { delete(mb.links, peer) })
	}
	return err
}

// Unlink removes peer from the link set and sends it UNLINK.
func (mb *Mailbox) Unlink(peer eterm.Pid) error {
	if peer.IsZero() {
		return eterm.ErrBadArg
	}
	if err := mb.mutatePeers(func() { delete(mb.links, peer) }); err != nil {
		return err
	}
	return mb.nd.dispatch(&Envelope{Type: MsgUnlink, From: mb.pid, To: peer})
}

// Monitor starts monitoring peer and returns the monitoring ref. When
// peer closes, a MONITOR_P_EXIT envelope carrying that ref and the
// exit reason is enqueued here.
func (mb *Mailbox) Monitor(peer eterm.Pid) (eterm.Ref, error) {
	if peer.IsZero() {
		return eterm.Ref{}, eterm.ErrBadArg
	}
	ref, err := mb.nd.newRef()
	if err != nil {
		return eterm.Ref{}, err
	}
	if err := mb.mutatePeers(func() { mb.watched[ref] = peer }); err != nil {
		return eterm.Ref{}, err
	}
	err = mb.nd.dispatch(&Envelope{Type: MsgMonitorP, From: mb.pid, To: peer, Ref: ref})
	if err != nil {
		_ = mb.mutatePeers(func() { delete(mb.watched, ref) })
		return eterm.Ref{}, err
	}
	return ref, nil
}

// Demonitor cancels the monitor identified by ref. Unknown refs are
// no-ops, so it is safe to call after the exit already arrived.
func (mb *Mailbox) Demonitor(ref eterm.Ref) error {
	if ref.IsZero() {
		return eterm.ErrBadArg
	}
	var peer eterm.Pid
	err := mb.mutatePeers(func() {
		peer = mb.watched[ref]
		delete(mb.watched, ref)
	})
	if err != nil {
		return err
	}
	if peer.IsZero() {
		return nil
	}
	return mb.nd.dispatch(&Envelope{Type: MsgDemonitorP, From: mb.pid, To: peer, Ref: ref})
}

// Exit sends an EXIT2 signal to peer asking it to terminate with
// reason. The peer observes it as a regular envelope; acting on it
// stays its consumer's decision.
func (mb *Mailbox) Exit(peer eterm.Pid, reason eterm.Term) error {
	if peer.IsZero() {
		return eterm.ErrBadArg
	}
	if !reason.Defined() {
		reason = mb.nd.amNormal
	}
	return mb.nd.exitSignal(MsgExit2, mb.pid, peer, reason)
}

// Close shuts the mailbox down: the pending queue is dropped, the pid
// and registered name disappear from the node, then every linked
// mailbox receives EXIT2 and every monitoring one MONITOR_P_EXIT with
// the given reason. An undefined reason defaults to the atom normal.
// Close is idempotent.
func (mb *Mailbox) Close(reason eterm.Term) error {
	return mb.shutdown(ClosedByUser, reason)
}

func (mb *Mailbox) shutdown(cause ClosedBy, reason eterm.Term) error {
	if !reason.Defined() {
		reason = mb.nd.amNormal
	}

	mb.lk.Lock()
	if mb.closed {
		mb.lk.Unlock()
		return nil
	}
	mb.closed = true
	mb.closedAt = time.Now()
	name := mb.name
	mb.name = eterm.Atom{}
	links := make([]eterm.Pid, 0, len(mb.links))
	for peer := range mb.links {
		links = append(links, peer)
	}
	monitors := make(map[eterm.Ref]eterm.Pid, len(mb.monitors))
	for ref, peer := range mb.monitors {
		monitors[ref] = peer
	}
	clear(mb.links)
	clear(mb.monitors)
	clear(mb.watched)
	mb.lk.Unlock()

	dropped := mb.queue.close(&ClosedError{cause: cause, reason: reason})
	if dropped > 0 {
		mb.nd.count(MetricENodeMailboxDropCount, float32(dropped))
		mb.nd.logger.Debug(
			"dropped queued messages on close",
			LabelPid.L(mb.pid.String()),
			"count", dropped,
		)
	}

	mb.nd.forget(mb.pid, name)

	// Signal fan-out happens outside the mutex: a peer handling our
	// exit may be closing too and signalling us back.
	for _, peer := range links {
		if err := mb.nd.exitSignal(MsgExit2, mb.pid, peer, reason); err != nil {
			mb.nd.logger.Warn(
				"failed to notify a linked mailbox",
				LabelPid.L(peer.String()),
				LabelError.L(err),
			)
		}
	}
	for ref, peer := range monitors {
		if err := mb.nd.monitorExit(mb.pid, peer, ref, reason); err != nil {
			mb.nd.logger.Warn(
				"failed to notify a monitoring mailbox",
				LabelPid.L(peer.String()),
				LabelError.L(err),
			)
		}
	}

	mb.nd.count(MetricENodeMailboxCloseCount, 1.0)
	mb.nd.logger.Debug(
		"mailbox closed",
		LabelPid.L(mb.pid.String()),
		"cause", cause.String(),
	)
	return nil
}
