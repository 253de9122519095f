package enode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashicorp/go-metrics"

	"github.com/raskyld/enode/pkg/eterm"
)

// MsgType is a control opcode of the distribution protocol.
type MsgType uint8

const (
	MsgLink         MsgType = 1
	MsgSend         MsgType = 2
	MsgExit         MsgType = 3
	MsgUnlink       MsgType = 4
	MsgNodeLink     MsgType = 5
	MsgRegSend      MsgType = 6
	MsgGroupLeader  MsgType = 7
	MsgExit2        MsgType = 8
	MsgSendTT       MsgType = 12
	MsgExitTT       MsgType = 13
	MsgRegSendTT    MsgType = 16
	MsgExit2TT      MsgType = 18
	MsgMonitorP     MsgType = 19
	MsgDemonitorP   MsgType = 20
	MsgMonitorPExit MsgType = 21
)

func (mt MsgType) String() string {
	switch mt {
	case MsgLink:
		return "link"
	case MsgSend:
		return "send"
	case MsgExit:
		return "exit"
	case MsgUnlink:
		return "unlink"
	case MsgNodeLink:
		return "node_link"
	case MsgRegSend:
		return "reg_send"
	case MsgGroupLeader:
		return "group_leader"
	case MsgExit2:
		return "exit2"
	case MsgSendTT:
		return "send_tt"
	case MsgExitTT:
		return "exit_tt"
	case MsgRegSendTT:
		return "reg_send_tt"
	case MsgExit2TT:
		return "exit2_tt"
	case MsgMonitorP:
		return "monitor_p"
	case MsgDemonitorP:
		return "demonitor_p"
	case MsgMonitorPExit:
		return "monitor_p_exit"
	default:
		return fmt.Sprintf("msg(%d)", uint8(mt))
	}
}

// hasPayload tells whether the control message is followed by a
// standalone payload term on the wire.
func (mt MsgType) hasPayload() bool {
	switch mt {
	case MsgSend, MsgSendTT, MsgRegSend, MsgRegSendTT:
		return true
	}
	return false
}

// hasTrace tells whether the control tuple carries a trace token.
func (mt MsgType) hasTrace() bool {
	switch mt {
	case MsgSendTT, MsgExitTT, MsgRegSendTT, MsgExit2TT:
		return true
	}
	return false
}

// Envelope is one routed message: the parsed control tuple of the
// distribution protocol plus, for send-class messages, its payload.
type Envelope struct {
	Type MsgType

	From   eterm.Pid
	To     eterm.Pid
	ToName eterm.Atom

	Ref     eterm.Ref
	Reason  eterm.Term
	Payload eterm.Term
	Trace   *eterm.Trace

	// Err marks an envelope whose handling faulted after it was
	// accepted. It is still enqueued so delivery is never silent.
	Err error
}

const (
	frameHeaderLen   = 4
	framePassThrough = 0x70

	// MaxFrameLen bounds inbound frames so a corrupted length prefix
	// cannot trigger an arbitrary allocation.
	MaxFrameLen = 1 << 26
)

// WireCodec translates envelopes to distribution frames: a 4-byte
// big-endian length, the pass-through marker 0x70, the versioned
// control term and, for send-class messages, the versioned payload.
type WireCodec struct {
	tbl    *eterm.AtomTable
	cookie eterm.Atom

	// set by Node.Codec so frame traffic shows up in its sink
	msink  metrics.MetricSink
	labels []metrics.Label
}

// NewWireCodec builds a codec over tbl. The cookie is stamped into
// outbound SEND and REG_SEND control tuples.
func NewWireCodec(tbl *eterm.AtomTable, cookie string) (*WireCodec, error) {
	if tbl == nil {
		tbl = eterm.NewAtomTable(0)
	}
	ck, err := tbl.Lookup(cookie)
	if err != nil {
		return nil, err
	}
	return &WireCodec{tbl: tbl, cookie: ck}, nil
}

func (wc *WireCodec) Encode(env *Envelope) ([]byte, error) {
	ctrl, err := wc.control(env)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, frameHeaderLen, frameHeaderLen+64)
	buf = append(buf, framePassThrough, eterm.VersionMagic)
	buf, err = eterm.AppendEncode(buf, ctrl)
	if err != nil {
		return nil, err
	}
	if env.Type.hasPayload() {
		buf = append(buf, eterm.VersionMagic)
		buf, err = eterm.AppendEncode(buf, env.Payload)
		if err != nil {
			return nil, err
		}
	}
	binary.BigEndian.PutUint32(buf[:frameHeaderLen], uint32(len(buf)-frameHeaderLen))
	return buf, nil
}

func (wc *WireCodec) Decode(frame []byte) (*Envelope, error) {
	if len(frame) < frameHeaderLen+2 {
		return nil, fmt.Errorf("%w: frame too short", ErrProtoViolation)
	}
	want := binary.BigEndian.Uint32(frame)
	if int64(want) != int64(len(frame)-frameHeaderLen) {
		return nil, fmt.Errorf("%w: frame length mismatch", ErrProtoViolation)
	}
	if frame[frameHeaderLen] != framePassThrough {
		return nil, fmt.Errorf("%w: unexpected frame marker %#x", ErrProtoViolation, frame[frameHeaderLen])
	}
	pos := frameHeaderLen + 1
	if frame[pos] != eterm.VersionMagic {
		return nil, fmt.Errorf("%w: control term version %#x", ErrProtoViolation, frame[pos])
	}
	pos++
	ctrl, err := eterm.Decode(wc.tbl, frame, &pos)
	if err != nil {
		return nil, err
	}
	env, err := wc.parseControl(ctrl)
	if err != nil {
		return nil, err
	}
	if env.Type.hasPayload() {
		if pos >= len(frame) {
			return nil, fmt.Errorf("%w: %s without payload", ErrProtoViolation, env.Type)
		}
		if frame[pos] != eterm.VersionMagic {
			return nil, fmt.Errorf("%w: payload term version %#x", ErrProtoViolation, frame[pos])
		}
		pos++
		payload, err := eterm.Decode(wc.tbl, frame, &pos)
		if err != nil {
			return nil, err
		}
		env.Payload = payload
	}
	if pos != len(frame) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrProtoViolation, len(frame)-pos)
	}
	return env, nil
}

// WriteTo encodes env and writes the whole frame to w.
func (wc *WireCodec) WriteTo(w io.Writer, env *Envelope) (int, error) {
	buf, err := wc.Encode(env)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	if err == nil {
		wc.countBytes(MetricENodeFrameOutBytes, n)
	}
	return n, err
}

// ReadFrom reads exactly one frame from r and decodes it. Zero-length
// frames are the tick heartbeats of the distribution protocol and are
// skipped. A clean end of stream surfaces as io.EOF.
func (wc *WireCodec) ReadFrom(r io.Reader) (*Envelope, error) {
	var head [frameHeaderLen]byte
	for {
		if _, err := io.ReadFull(r, head[:]); err != nil {
			return nil, err
		}
		size := binary.BigEndian.Uint32(head[:])
		if size == 0 {
			wc.countBytes(MetricENodeFrameInBytes, frameHeaderLen)
			continue
		}
		if size < 2 || size > MaxFrameLen {
			return nil, fmt.Errorf("%w: frame length %d", ErrProtoViolation, size)
		}
		frame := make([]byte, frameHeaderLen+int(size))
		copy(frame, head[:])
		if _, err := io.ReadFull(r, frame[frameHeaderLen:]); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		wc.countBytes(MetricENodeFrameInBytes, len(frame))
		return wc.Decode(frame)
	}
}

// WriteTick writes an empty frame, the keepalive of the protocol.
func (wc *WireCodec) WriteTick(w io.Writer) error {
	var head [frameHeaderLen]byte
	_, err := w.Write(head[:])
	if err == nil {
		wc.countBytes(MetricENodeFrameOutBytes, frameHeaderLen)
	}
	return err
}

func (wc *WireCodec) countBytes(name []string, n int) {
	if wc.msink == nil {
		return
	}
	wc.msink.IncrCounterWithLabels(name, float32(n), wc.labels)
}

func (wc *WireCodec) control(env *Envelope) (eterm.Term, error) {
	op := eterm.Int(int64(env.Type))
	switch env.Type {
	case MsgLink, MsgUnlink:
		if err := needPids(env); err != nil {
			return eterm.Term{}, err
		}
		return eterm.Tuple(op, env.From.Term(), env.To.Term()), nil
	case MsgSend:
		if env.To.IsZero() {
			return eterm.Term{}, ctrlErr(env.Type, "missing destination pid")
		}
		return eterm.Tuple(op, wc.cookie.Term(), env.To.Term()), nil
	case MsgSendTT:
		tt, err := traceTerm(env)
		if err != nil {
			return eterm.Term{}, err
		}
		if env.To.IsZero() {
			return eterm.Term{}, ctrlErr(env.Type, "missing destination pid")
		}
		return eterm.Tuple(op, wc.cookie.Term(), env.To.Term(), tt), nil
	case MsgExit, MsgExit2:
		if err := needPids(env); err != nil {
			return eterm.Term{}, err
		}
		if !env.Reason.Defined() {
			return eterm.Term{}, ctrlErr(env.Type, "missing reason")
		}
		return eterm.Tuple(op, env.From.Term(), env.To.Term(), env.Reason), nil
	case MsgExitTT, MsgExit2TT:
		tt, err := traceTerm(env)
		if err != nil {
			return eterm.Term{}, err
		}
		if err := needPids(env); err != nil {
			return eterm.Term{}, err
		}
		if !env.Reason.Defined() {
			return eterm.Term{}, ctrlErr(env.Type, "missing reason")
		}
		return eterm.Tuple(op, env.From.Term(), env.To.Term(), tt, env.Reason), nil
	case MsgRegSend:
		if env.From.IsZero() || env.ToName.Empty() {
			return eterm.Term{}, ctrlErr(env.Type, "missing sender pid or destination name")
		}
		return eterm.Tuple(op, env.From.Term(), wc.cookie.Term(), env.ToName.Term()), nil
	case MsgRegSendTT:
		tt, err := traceTerm(env)
		if err != nil {
			return eterm.Term{}, err
		}
		if env.From.IsZero() || env.ToName.Empty() {
			return eterm.Term{}, ctrlErr(env.Type, "missing sender pid or destination name")
		}
		return eterm.Tuple(op, env.From.Term(), wc.cookie.Term(), env.ToName.Term(), tt), nil
	case MsgNodeLink:
		return eterm.Tuple(op), nil
	case MsgGroupLeader:
		if err := needPids(env); err != nil {
			return eterm.Term{}, err
		}
		return eterm.Tuple(op, env.From.Term(), env.To.Term()), nil
	case MsgMonitorP, MsgDemonitorP:
		if env.From.IsZero() || env.Ref.IsZero() {
			return eterm.Term{}, ctrlErr(env.Type, "missing sender pid or ref")
		}
		target, err := monitorTarget(env)
		if err != nil {
			return eterm.Term{}, err
		}
		return eterm.Tuple(op, env.From.Term(), target, env.Ref.Term()), nil
	case MsgMonitorPExit:
		if env.From.IsZero() || env.To.IsZero() || env.Ref.IsZero() {
			return eterm.Term{}, ctrlErr(env.Type, "missing pids or ref")
		}
		if !env.Reason.Defined() {
			return eterm.Term{}, ctrlErr(env.Type, "missing reason")
		}
		return eterm.Tuple(op, env.From.Term(), env.To.Term(), env.Ref.Term(), env.Reason), nil
	default:
		return eterm.Term{}, fmt.Errorf("%w: unsupported control opcode %d", ErrProtoViolation, uint8(env.Type))
	}
}

func (wc *WireCodec) parseControl(ctrl eterm.Term) (*Envelope, error) {
	if ctrl.Kind() != eterm.KindTuple {
		return nil, fmt.Errorf("%w: control is not a tuple", ErrProtoViolation)
	}
	items, _ := ctrl.Elements()
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty control tuple", ErrProtoViolation)
	}
	opv, ok := items[0].Int64()
	if !ok || opv < 0 || opv > 255 {
		return nil, fmt.Errorf("%w: control opcode is not a small integer", ErrProtoViolation)
	}

	env := &Envelope{Type: MsgType(opv)}
	switch env.Type {
	case MsgLink, MsgUnlink, MsgGroupLeader:
		if err := arity(items, 3, env.Type); err != nil {
			return nil, err
		}
		return env, firstErr(
			pidAt(items, 1, &env.From, env.Type),
			pidAt(items, 2, &env.To, env.Type),
		)
	case MsgSend:
		if err := arity(items, 3, env.Type); err != nil {
			return nil, err
		}
		return env, pidAt(items, 2, &env.To, env.Type)
	case MsgSendTT:
		if err := arity(items, 4, env.Type); err != nil {
			return nil, err
		}
		return env, firstErr(
			pidAt(items, 2, &env.To, env.Type),
			traceAt(items, 3, env),
		)
	case MsgExit, MsgExit2:
		if err := arity(items, 4, env.Type); err != nil {
			return nil, err
		}
		env.Reason = items[3]
		return env, firstErr(
			pidAt(items, 1, &env.From, env.Type),
			pidAt(items, 2, &env.To, env.Type),
		)
	case MsgExitTT, MsgExit2TT:
		if err := arity(items, 5, env.Type); err != nil {
			return nil, err
		}
		env.Reason = items[4]
		return env, firstErr(
			pidAt(items, 1, &env.From, env.Type),
			pidAt(items, 2, &env.To, env.Type),
			traceAt(items, 3, env),
		)
	case MsgRegSend:
		if err := arity(items, 4, env.Type); err != nil {
			return nil, err
		}
		return env, firstErr(
			pidAt(items, 1, &env.From, env.Type),
			atomAt(items, 3, &env.ToName, env.Type),
		)
	case MsgRegSendTT:
		if err := arity(items, 5, env.Type); err != nil {
			return nil, err
		}
		return env, firstErr(
			pidAt(items, 1, &env.From, env.Type),
			atomAt(items, 3, &env.ToName, env.Type),
			traceAt(items, 4, env),
		)
	case MsgNodeLink:
		return env, arity(items, 1, env.Type)
	case MsgMonitorP, MsgDemonitorP:
		if err := arity(items, 4, env.Type); err != nil {
			return nil, err
		}
		return env, firstErr(
			pidAt(items, 1, &env.From, env.Type),
			targetAt(items, 2, env),
			refAt(items, 3, &env.Ref, env.Type),
		)
	case MsgMonitorPExit:
		if err := arity(items, 5, env.Type); err != nil {
			return nil, err
		}
		env.Reason = items[4]
		// The dying side may be identified by name when the monitor
		// was installed by name; From then stays zero.
		if pid, ok := items[1].Pid(); ok {
			env.From = pid
		} else if _, ok := items[1].Atom(); !ok {
			return nil, ctrlErr(env.Type, "element 2 is neither pid nor atom")
		}
		return env, firstErr(
			pidAt(items, 2, &env.To, env.Type),
			refAt(items, 3, &env.Ref, env.Type),
		)
	default:
		return nil, fmt.Errorf("%w: unknown control opcode %d", ErrProtoViolation, opv)
	}
}

func ctrlErr(mt MsgType, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrProtoViolation, mt, msg)
}

func needPids(env *Envelope) error {
	if env.From.IsZero() || env.To.IsZero() {
		return ctrlErr(env.Type, "missing sender or destination pid")
	}
	return nil
}

func traceTerm(env *Envelope) (eterm.Term, error) {
	if env.Trace == nil {
		return eterm.Term{}, ctrlErr(env.Type, "missing trace token")
	}
	return env.Trace.Term(), nil
}

func monitorTarget(env *Envelope) (eterm.Term, error) {
	if !env.To.IsZero() {
		return env.To.Term(), nil
	}
	if !env.ToName.Empty() {
		return env.ToName.Term(), nil
	}
	return eterm.Term{}, ctrlErr(env.Type, "missing destination pid or name")
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func arity(items []eterm.Term, want int, mt MsgType) error {
	if len(items) != want {
		return fmt.Errorf("%w: %s arity %d, want %d", ErrProtoViolation, mt, len(items), want)
	}
	return nil
}

func pidAt(items []eterm.Term, i int, dst *eterm.Pid, mt MsgType) error {
	pid, ok := items[i].Pid()
	if !ok {
		return ctrlErr(mt, fmt.Sprintf("element %d is not a pid", i+1))
	}
	*dst = pid
	return nil
}

func refAt(items []eterm.Term, i int, dst *eterm.Ref, mt MsgType) error {
	ref, ok := items[i].Ref()
	if !ok {
		return ctrlErr(mt, fmt.Sprintf("element %d is not a ref", i+1))
	}
	*dst = ref
	return nil
}

func atomAt(items []eterm.Term, i int, dst *eterm.Atom, mt MsgType) error {
	a, ok := items[i].Atom()
	if !ok {
		return ctrlErr(mt, fmt.Sprintf("element %d is not an atom", i+1))
	}
	*dst = a
	return nil
}

func traceAt(items []eterm.Term, i int, env *Envelope) error {
	tr, ok := eterm.TraceFromTerm(items[i])
	if !ok {
		return ctrlErr(env.Type, fmt.Sprintf("element %d is not a trace token", i+1))
	}
	env.Trace = &tr
	return nil
}

// targetAt accepts a pid or a registered name as the destination.
func targetAt(items []eterm.Term, i int, env *Envelope) error {
	if pid, ok := items[i].Pid(); ok {
		env.To = pid
		return nil
	}
	if a, ok := items[i].Atom(); ok {
		env.ToName = a
		return nil
	}
	return ctrlErr(env.Type, fmt.Sprintf("element %d is neither pid nor atom", i+1))
}
