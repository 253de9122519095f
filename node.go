package enode

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/raskyld/enode/pkg/eterm"
)

// DefaultNodeName is used when no WithNodeName option is given, like a
// distribution-less Erlang VM.
const DefaultNodeName = "nonode@nohost"

// RemoteSender forwards envelopes addressed to mailboxes living on
// other nodes. Implementations typically frame them with a WireCodec
// over one connection per peer node.
type RemoteSender interface {
	Send(env *Envelope) error
}

// Node owns an atom table, the pid allocator, the registered-name
// registry and every local mailbox. Envelopes whose destination pid
// carries another node name are handed to the RemoteSender.
type Node struct {
	config config
	logger *slog.Logger

	atoms      *eterm.AtomTable
	name       eterm.Atom
	creation   uint32
	amNormal   eterm.Term
	amShutdown eterm.Term

	names *registry

	// pid allocation
	pidID     uint32
	pidSerial uint32
	refSeq    uint64

	lk        sync.Mutex
	mailboxes map[eterm.Pid]*Mailbox

	shutdown   bool
	shutdownCh chan struct{}
}

func Create(opts ...Option) (*Node, error) {
	nd := &Node{
		names:      newRegistry(),
		mailboxes:  make(map[eterm.Pid]*Mailbox),
		shutdownCh: make(chan struct{}),
	}

	nd.config.nodeName = DefaultNodeName
	nd.config.mailboxDepth = 1024
	nd.config.atomTableSize = eterm.DefaultAtomTableSize

	for _, opt := range opts {
		err := opt(&nd.config)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}

	// Logging implementations.
	if nd.config.logHandler != nil {
		nd.logger = slog.New(nd.config.logHandler)
	} else {
		nd.logger = slog.Default()
	}

	// Metrics implementations.
	if nd.config.msink == nil {
		nd.config.msink = metrics.Default()
	}

	nd.atoms = nd.config.atoms
	if nd.atoms == nil {
		nd.atoms = eterm.NewAtomTable(nd.config.atomTableSize)
	}

	name, err := nd.atoms.Lookup(nd.config.nodeName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
	}
	nd.name = name
	nd.creation = nd.config.creation

	normal, err := nd.atoms.Lookup("normal")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
	}
	shut, err := nd.atoms.Lookup("shutdown")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
	}
	nd.amNormal = normal.Term()
	nd.amShutdown = shut.Term()

	nd.logger.Info(
		"node created",
		LabelPeerNode.L(nd.config.nodeName),
		"creation", nd.creation,
	)
	return nd, nil
}

// Name is the node name atom every local pid carries.
func (nd *Node) Name() eterm.Atom {
	return nd.name
}

func (nd *Node) Creation() uint32 {
	return nd.creation
}

// Atoms exposes the node's atom table so callers can build terms and
// codecs sharing its indices.
func (nd *Node) Atoms() *eterm.AtomTable {
	return nd.atoms
}

// ShutdownCh closes when Shutdown begins.
func (nd *Node) ShutdownCh() <-chan struct{} {
	return nd.shutdownCh
}

// Codec builds a wire codec sharing the node's atom table and stamped
// with its cookie, for transports framing envelopes to peer nodes.
// Frame traffic through it is counted in the node's metric sink.
func (nd *Node) Codec() (*WireCodec, error) {
	wc, err := NewWireCodec(nd.atoms, nd.config.cookie)
	if err != nil {
		return nil, err
	}
	wc.msink = nd.config.msink
	wc.labels = nd.config.metricLabels
	return wc, nil
}

// Spawn creates a mailbox under a fresh pid.
func (nd *Node) Spawn() (*Mailbox, error) {
	nd.lk.Lock()
	if nd.shutdown {
		nd.lk.Unlock()
		return nil, ErrNodeShutdown
	}
	pid, err := nd.nextPid()
	if err != nil {
		nd.lk.Unlock()
		return nil, err
	}
	mb := newMailbox(nd, pid, nd.config.mailboxDepth)
	nd.mailboxes[pid] = mb
	nd.lk.Unlock()

	nd.count(MetricENodeMailboxSpawnCount, 1.0)
	nd.logger.Debug("mailbox spawned", LabelPid.L(pid.String()))
	return mb, nil
}

// SpawnName creates a mailbox and claims a registered name for it in
// one step. On conflict no mailbox is created.
func (nd *Node) SpawnName(name string) (*Mailbox, error) {
	if !ValidateRegisteredName(name) {
		return nil, ErrNameInvalid
	}
	atom, err := nd.atoms.Lookup(name)
	if err != nil {
		return nil, err
	}

	nd.lk.Lock()
	if nd.shutdown {
		nd.lk.Unlock()
		return nil, ErrNodeShutdown
	}
	pid, err := nd.nextPid()
	if err != nil {
		nd.lk.Unlock()
		return nil, err
	}
	if err := nd.names.claim(name, pid); err != nil {
		nd.lk.Unlock()
		return nil, err
	}
	mb := newMailbox(nd, pid, nd.config.mailboxDepth)
	mb.name = atom
	nd.mailboxes[pid] = mb
	nd.lk.Unlock()

	nd.count(MetricENodeMailboxSpawnCount, 1.0, LabelMailboxName.M(name))
	nd.logger.Debug(
		"mailbox spawned",
		LabelPid.L(pid.String()),
		LabelMailboxName.L(name),
	)
	return mb, nil
}

// nextPid must run under lk. The serial bumps when the 28-bit id
// wraps, like the reference counters of a live Erlang node.
func (nd *Node) nextPid() (eterm.Pid, error) {
	id := nd.pidID
	nd.pidID++
	if nd.pidID > 0x0fffffff {
		nd.pidID = 0
		nd.pidSerial++
	}
	return eterm.MakePid(nd.name, id, nd.pidSerial, nd.creation)
}

// newRef allocates a node-unique reference in the NEW_REFERENCE
// layout: three 32-bit words with 18 significant bits in the first.
func (nd *Node) newRef() (eterm.Ref, error) {
	seq := atomic.AddUint64(&nd.refSeq, 1)
	ids := []uint32{
		uint32(seq) & 0x3ffff,
		uint32(seq >> 18),
		uint32(seq >> 50),
	}
	return eterm.MakeRef(nd.name, ids, nd.creation)
}

// Register claims name for an existing local pid. A mailbox holds at
// most one name.
func (nd *Node) Register(name string, pid eterm.Pid) error {
	if !ValidateRegisteredName(name) {
		return ErrNameInvalid
	}
	atom, err := nd.atoms.Lookup(name)
	if err != nil {
		return err
	}

	nd.lk.Lock()
	if nd.shutdown {
		nd.lk.Unlock()
		return ErrNodeShutdown
	}
	mb, has := nd.mailboxes[pid]
	nd.lk.Unlock()
	if !has {
		return fmt.Errorf("%w: %s", ErrMailboxUnknown, pid)
	}

	if err := nd.names.claim(name, pid); err != nil {
		return err
	}
	mb.lk.Lock()
	switch {
	case mb.closed:
		mb.lk.Unlock()
		nd.names.dropOwned(name, pid)
		return mb.queue.closeErr()
	case !mb.name.Empty():
		mb.lk.Unlock()
		nd.names.dropOwned(name, pid)
		return fmt.Errorf("%w: %s already named %s", eterm.ErrBadArg, pid, mb.name)
	default:
		mb.name = atom
		mb.lk.Unlock()
		return nil
	}
}

// Unregister drops a registered name. The mailbox stays open.
func (nd *Node) Unregister(name string) bool {
	pid, had := nd.names.drop(name)
	if !had {
		return false
	}
	nd.lk.Lock()
	mb, has := nd.mailboxes[pid]
	nd.lk.Unlock()
	if has {
		mb.lk.Lock()
		if mb.name.Name() == name {
			mb.name = eterm.Atom{}
		}
		mb.lk.Unlock()
	}
	return true
}

// Whereis resolves a registered name to its pid.
func (nd *Node) Whereis(name string) (eterm.Pid, bool) {
	return nd.names.resolve(name)
}

// ScanNames lists registered names under a prefix, in key order.
func (nd *Node) ScanNames(prefix string) []string {
	return nd.names.scan(prefix)
}

// Mailbox returns the local mailbox owning pid.
func (nd *Node) Mailbox(pid eterm.Pid) (*Mailbox, bool) {
	nd.lk.Lock()
	defer nd.lk.Unlock()
	mb, has := nd.mailboxes[pid]
	return mb, has
}

// Send posts msg from one pid to another, routing off-node
// destinations through the remote sender.
func (nd *Node) Send(from, to eterm.Pid, msg eterm.Term) error {
	if to.IsZero() {
		return eterm.ErrBadArg
	}
	if err := nd.gate(); err != nil {
		return err
	}
	return nd.dispatch(&Envelope{Type: MsgSend, From: from, To: to, Payload: msg})
}

// SendNamed posts msg to a locally registered name, REG_SEND style.
func (nd *Node) SendNamed(from eterm.Pid, name string, msg eterm.Term) error {
	if err := nd.gate(); err != nil {
		return err
	}
	atom, err := nd.atoms.Lookup(name)
	if err != nil {
		return err
	}
	return nd.dispatch(&Envelope{Type: MsgRegSend, From: from, ToName: atom, Payload: msg})
}

// Deliver injects an inbound envelope, typically one a transport
// decoded from the wire, into local routing.
func (nd *Node) Deliver(env *Envelope) error {
	if env == nil || env.Type == 0 {
		return fmt.Errorf("%w: empty envelope", ErrProtoViolation)
	}
	if err := nd.gate(); err != nil {
		return err
	}
	return nd.dispatch(env)
}

func (nd *Node) gate() error {
	nd.lk.Lock()
	defer nd.lk.Unlock()
	if nd.shutdown {
		return ErrNodeShutdown
	}
	return nil
}

// dispatch routes env to its local mailbox or hands it to the remote
// sender. It skips the shutdown gate so exit fan-out still flows while
// the node winds down.
func (nd *Node) dispatch(env *Envelope) error {
	if !env.To.IsZero() && env.To.Node().Name() != nd.name.Name() {
		return nd.forward(env)
	}

	pid := env.To
	if pid.IsZero() {
		if env.ToName.Empty() {
			return fmt.Errorf("%w: %s without destination", ErrProtoViolation, env.Type)
		}
		resolved, has := nd.names.resolve(env.ToName.Name())
		if !has {
			nd.count(MetricENodeDeliverInErrorCount, 1.0, LabelError.M("unknown_name"))
			return fmt.Errorf("%w: name %s", ErrMailboxUnknown, env.ToName)
		}
		pid = resolved
	}

	nd.lk.Lock()
	mb, has := nd.mailboxes[pid]
	nd.lk.Unlock()
	if !has {
		nd.count(MetricENodeDeliverInErrorCount, 1.0, LabelError.M("unknown_pid"))
		return fmt.Errorf("%w: %s", ErrMailboxUnknown, pid)
	}
	if err := mb.deliver(env); err != nil {
		nd.count(MetricENodeDeliverInErrorCount, 1.0, LabelError.M("closed"))
		return err
	}
	return nil
}

func (nd *Node) forward(env *Envelope) error {
	peer := env.To.Node().Name()
	if nd.config.remote == nil {
		nd.count(MetricENodeSendOutErrorCount, 1.0, LabelError.M("no_remote"))
		return fmt.Errorf("%w: %s lives on %s", ErrNoRemote, env.To, peer)
	}
	if err := nd.config.remote.Send(env); err != nil {
		nd.count(MetricENodeSendOutErrorCount, 1.0, LabelPeerNode.M(peer))
		return err
	}
	nd.count(MetricENodeSendOutCount, 1.0, LabelPeerNode.M(peer))
	return nil
}

func (nd *Node) exitSignal(op MsgType, from, to eterm.Pid, reason eterm.Term) error {
	return nd.signal(&Envelope{Type: op, From: from, To: to, Reason: reason})
}

func (nd *Node) monitorExit(from, to eterm.Pid, ref eterm.Ref, reason eterm.Term) error {
	return nd.signal(&Envelope{Type: MsgMonitorPExit, From: from, To: to, Ref: ref, Reason: reason})
}

func (nd *Node) signal(env *Envelope) error {
	if err := nd.dispatch(env); err != nil {
		nd.count(MetricENodeExitSignalErrCount, 1.0, LabelMsgType.M(env.Type.String()))
		return err
	}
	nd.count(MetricENodeExitSignalOutCount, 1.0, LabelMsgType.M(env.Type.String()))
	return nil
}

// forget removes a dead pid and its name from the node maps.
func (nd *Node) forget(pid eterm.Pid, name eterm.Atom) {
	nd.lk.Lock()
	delete(nd.mailboxes, pid)
	nd.lk.Unlock()
	if !name.Empty() {
		nd.names.dropOwned(name.Name(), pid)
	}
}

// count emits a counter with the node's static labels plus extras.
func (nd *Node) count(name []string, v float32, extra ...metrics.Label) {
	if len(extra) == 0 {
		nd.config.msink.IncrCounterWithLabels(name, v, nd.config.metricLabels)
		return
	}
	labels := make([]metrics.Label, 0, len(nd.config.metricLabels)+len(extra))
	labels = append(labels, nd.config.metricLabels...)
	labels = append(labels, extra...)
	nd.config.msink.IncrCounterWithLabels(name, v, labels)
}

// Shutdown closes every mailbox with the reason atom shutdown and
// freezes the node: Spawn, Send and Deliver fail with ErrNodeShutdown
// afterwards. It is idempotent and safe to call concurrently.
func (nd *Node) Shutdown() error {
	// Phase 1: shutdown notify.
	nd.lk.Lock()
	if nd.shutdown {
		nd.lk.Unlock()
		return nil
	}
	nd.shutdown = true
	close(nd.shutdownCh)
	boxes := make([]*Mailbox, 0, len(nd.mailboxes))
	for _, mb := range nd.mailboxes {
		boxes = append(boxes, mb)
	}
	nd.lk.Unlock()

	start := time.Now()
	nd.logger.Info("shutting down...")

	// Phase 2: tear every mailbox down. Their exit fan-out runs while
	// peers may already be closed; those signals are logged and
	// swallowed.
	nd.logger.Info("shutdown: close mailboxes", "count", len(boxes))
	for _, mb := range boxes {
		_ = mb.shutdown(ClosedByShutdown, nd.amShutdown)
	}

	nd.logger.Info("shutdown: completed", LabelDuration.L(time.Since(start)))
	return nil
}
