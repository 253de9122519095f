package enode

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raskyld/enode/pkg/eterm"
)

func newTestCodec(t *testing.T) (*WireCodec, *eterm.AtomTable) {
	t.Helper()
	tbl := eterm.NewAtomTable(0)
	wc, err := NewWireCodec(tbl, "secret")
	require.NoError(t, err, "codec over a fresh table must build")
	return wc, tbl
}

func pidOn(t *testing.T, tbl *eterm.AtomTable, node string, id, serial, creation uint32) eterm.Pid {
	t.Helper()
	a, err := tbl.Lookup(node)
	require.NoError(t, err)
	pid, err := eterm.MakePid(a, id, serial, creation)
	require.NoError(t, err)
	return pid
}

func refOn(t *testing.T, tbl *eterm.AtomTable, node string, ids ...uint32) eterm.Ref {
	t.Helper()
	a, err := tbl.Lookup(node)
	require.NoError(t, err)
	ref, err := eterm.MakeRef(a, ids, 1)
	require.NoError(t, err)
	return ref
}

func TestMsgType_String(t *testing.T) {
	require.Equal(t, "send", MsgSend.String())
	require.Equal(t, "reg_send_tt", MsgRegSendTT.String())
	require.Equal(t, "monitor_p_exit", MsgMonitorPExit.String())
	require.Equal(t, "msg(42)", MsgType(42).String())
}

func TestWireCodec_RoundTrip(t *testing.T) {
	wc, tbl := newTestCodec(t)
	from := pidOn(t, tbl, "a@left", 1, 0, 1)
	to := pidOn(t, tbl, "b@right", 2, 0, 1)
	ref := refOn(t, tbl, "a@left", 10, 11, 12)
	name, err := tbl.Lookup("logger")
	require.NoError(t, err)
	trace := &eterm.Trace{Flags: 1, Label: 2, Serial: 3, From: from, Prev: 4}
	boom := eterm.MustParse(tbl, "{crashed, \"oops\"}")
	payload := eterm.MustParse(tbl, "{req, [1, 2, 3], #{mode => fast}}")

	cases := []struct {
		name string
		env  *Envelope
	}{
		{"link", &Envelope{Type: MsgLink, From: from, To: to}},
		{"unlink", &Envelope{Type: MsgUnlink, From: from, To: to}},
		{"send", &Envelope{Type: MsgSend, To: to, Payload: payload}},
		{"send_tt", &Envelope{Type: MsgSendTT, To: to, Payload: payload, Trace: trace}},
		{"exit", &Envelope{Type: MsgExit, From: from, To: to, Reason: boom}},
		{"exit_tt", &Envelope{Type: MsgExitTT, From: from, To: to, Reason: boom, Trace: trace}},
		{"exit2", &Envelope{Type: MsgExit2, From: from, To: to, Reason: boom}},
		{"exit2_tt", &Envelope{Type: MsgExit2TT, From: from, To: to, Reason: boom, Trace: trace}},
		{"reg_send", &Envelope{Type: MsgRegSend, From: from, ToName: name, Payload: payload}},
		{"reg_send_tt", &Envelope{Type: MsgRegSendTT, From: from, ToName: name, Payload: payload, Trace: trace}},
		{"node_link", &Envelope{Type: MsgNodeLink}},
		{"group_leader", &Envelope{Type: MsgGroupLeader, From: from, To: to}},
		{"monitor_p", &Envelope{Type: MsgMonitorP, From: from, To: to, Ref: ref}},
		{"demonitor_p", &Envelope{Type: MsgDemonitorP, From: from, To: to, Ref: ref}},
		{"monitor_p_exit", &Envelope{Type: MsgMonitorPExit, From: from, To: to, Ref: ref, Reason: boom}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := wc.Encode(tc.env)
			require.NoError(t, err, "encode must accept a well-formed envelope")
			require.Equal(t, byte(framePassThrough), frame[4], "frame marker")
			require.Equal(t, eterm.VersionMagic, frame[5], "control version byte")

			got, err := wc.Decode(frame)
			require.NoError(t, err, "decode must accept its own frames")
			require.Equal(t, tc.env.Type, got.Type)
			require.Equal(t, tc.env.From, got.From)
			require.Equal(t, tc.env.To, got.To)
			require.Equal(t, tc.env.ToName, got.ToName)
			require.Equal(t, tc.env.Ref, got.Ref)
			require.True(t, tc.env.Reason.Equal(got.Reason), "reason survives")
			require.True(t, tc.env.Payload.Equal(got.Payload), "payload survives")
			if tc.env.Trace != nil {
				require.NotNil(t, got.Trace, "trace token survives")
				require.Equal(t, *tc.env.Trace, *got.Trace)
			} else {
				require.Nil(t, got.Trace)
			}
		})
	}
}

func TestWireCodec_SendFrameExact(t *testing.T) {
	tbl := eterm.NewAtomTable(0)
	wc, err := NewWireCodec(tbl, "")
	require.NoError(t, err)
	to := pidOn(t, tbl, "a@b", 1, 2, 3)

	frame, err := wc.Encode(&Envelope{Type: MsgSend, To: to, Payload: eterm.Int(1)})
	require.NoError(t, err)

	want := []byte{
		0, 0, 0, 28, // length
		0x70,         // pass-through marker
		131,          // control version
		104, 3,       // {..., ..., ...}
		97, 2,        // opcode 2
		100, 0, 0,    // cookie ''
		103,          // PID_EXT
		100, 0, 3, 'a', '@', 'b',
		0, 0, 0, 1, // id
		0, 0, 0, 2, // serial
		3,    // creation
		131,  // payload version
		97, 1, // payload 1
	}
	require.Equal(t, want, frame, "SEND frame layout is fixed by the protocol")
}

func TestWireCodec_ReadWriteStream(t *testing.T) {
	wc, tbl := newTestCodec(t)
	to := pidOn(t, tbl, "n@h", 7, 0, 0)

	var buf bytes.Buffer
	for i := int64(0); i < 3; i++ {
		n, err := wc.WriteTo(&buf, &Envelope{Type: MsgSend, To: to, Payload: eterm.Int(i)})
		require.NoError(t, err)
		require.Greater(t, n, frameHeaderLen)
	}

	for i := int64(0); i < 3; i++ {
		env, err := wc.ReadFrom(&buf)
		require.NoError(t, err)
		require.Equal(t, MsgSend, env.Type)
		require.True(t, eterm.Int(i).Equal(env.Payload), "frames arrive in order")
	}

	_, err := wc.ReadFrom(&buf)
	require.ErrorIs(t, err, io.EOF, "clean end of stream is io.EOF")
}

func TestWireCodec_SkipsTicks(t *testing.T) {
	wc, tbl := newTestCodec(t)
	to := pidOn(t, tbl, "n@h", 1, 0, 0)

	var buf bytes.Buffer
	require.NoError(t, wc.WriteTick(&buf))
	require.NoError(t, wc.WriteTick(&buf))
	_, err := wc.WriteTo(&buf, &Envelope{Type: MsgSend, To: to, Payload: eterm.Int(9)})
	require.NoError(t, err)

	env, err := wc.ReadFrom(&buf)
	require.NoError(t, err, "ticks are heartbeats, not errors")
	require.True(t, eterm.Int(9).Equal(env.Payload))
}

func TestWireCodec_DecodeViolations(t *testing.T) {
	wc, tbl := newTestCodec(t)
	from := pidOn(t, tbl, "a@l", 1, 0, 0)
	to := pidOn(t, tbl, "b@r", 2, 0, 0)

	good, err := wc.Encode(&Envelope{Type: MsgLink, From: from, To: to})
	require.NoError(t, err)

	frameOf := func(ctrl eterm.Term, payload []byte) []byte {
		body := []byte{framePassThrough, eterm.VersionMagic}
		body, err := eterm.AppendEncode(body, ctrl)
		require.NoError(t, err)
		body = append(body, payload...)
		frame := make([]byte, frameHeaderLen, frameHeaderLen+len(body))
		frame = append(frame, body...)
		frame[2] = byte(len(body) >> 8)
		frame[3] = byte(len(body))
		return frame
	}

	t.Run("too short", func(t *testing.T) {
		_, err := wc.Decode([]byte{0, 0, 0, 1, framePassThrough})
		require.ErrorIs(t, err, ErrProtoViolation)
	})

	t.Run("length mismatch", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[3]++
		_, err := wc.Decode(bad)
		require.ErrorIs(t, err, ErrProtoViolation)
	})

	t.Run("wrong marker", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[4] = 0x68
		_, err := wc.Decode(bad)
		require.ErrorIs(t, err, ErrProtoViolation)
	})

	t.Run("wrong control version", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[5] = 130
		_, err := wc.Decode(bad)
		require.ErrorIs(t, err, ErrProtoViolation)
	})

	t.Run("control is not a tuple", func(t *testing.T) {
		_, err := wc.Decode(frameOf(eterm.Int(2), nil))
		require.ErrorIs(t, err, ErrProtoViolation)
	})

	t.Run("unknown opcode", func(t *testing.T) {
		_, err := wc.Decode(frameOf(eterm.Tuple(eterm.Int(99)), nil))
		require.ErrorIs(t, err, ErrProtoViolation)
	})

	t.Run("bad arity", func(t *testing.T) {
		_, err := wc.Decode(frameOf(eterm.Tuple(eterm.Int(1), from.Term()), nil))
		require.ErrorIs(t, err, ErrProtoViolation)
	})

	t.Run("element type mismatch", func(t *testing.T) {
		a, err := tbl.Lookup("nope")
		require.NoError(t, err)
		_, err = wc.Decode(frameOf(eterm.Tuple(eterm.Int(1), a.Term(), to.Term()), nil))
		require.ErrorIs(t, err, ErrProtoViolation)
	})

	t.Run("send without payload", func(t *testing.T) {
		cookie, err := tbl.Lookup("secret")
		require.NoError(t, err)
		_, err = wc.Decode(frameOf(eterm.Tuple(eterm.Int(2), cookie.Term(), to.Term()), nil))
		require.ErrorIs(t, err, ErrProtoViolation)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		_, err := wc.Decode(frameOf(eterm.Tuple(eterm.Int(1), from.Term(), to.Term()), []byte{0}))
		require.ErrorIs(t, err, ErrProtoViolation)
	})

	t.Run("truncated control term", func(t *testing.T) {
		bad := append([]byte(nil), good[:len(good)-3]...)
		sz := len(bad) - frameHeaderLen
		bad[2] = byte(sz >> 8)
		bad[3] = byte(sz)
		_, err := wc.Decode(bad)
		var derr *eterm.DecodeError
		require.ErrorAs(t, err, &derr, "term-level corruption surfaces as a DecodeError")
	})
}

func TestWireCodec_EncodeValidation(t *testing.T) {
	wc, tbl := newTestCodec(t)
	from := pidOn(t, tbl, "a@l", 1, 0, 0)
	to := pidOn(t, tbl, "b@r", 2, 0, 0)
	ref := refOn(t, tbl, "a@l", 5)
	reason, err := tbl.Lookup("bye")
	require.NoError(t, err)

	cases := []struct {
		name string
		env  *Envelope
	}{
		{"link without pids", &Envelope{Type: MsgLink, From: from}},
		{"send without destination", &Envelope{Type: MsgSend, Payload: eterm.Int(1)}},
		{"send_tt without trace", &Envelope{Type: MsgSendTT, To: to, Payload: eterm.Int(1)}},
		{"exit without reason", &Envelope{Type: MsgExit, From: from, To: to}},
		{"reg_send without name", &Envelope{Type: MsgRegSend, From: from, Payload: eterm.Int(1)}},
		{"monitor without ref", &Envelope{Type: MsgMonitorP, From: from, To: to}},
		{"monitor_p_exit without reason", &Envelope{Type: MsgMonitorPExit, From: from, To: to, Ref: ref}},
		{"unsupported opcode", &Envelope{Type: MsgType(42), From: from, To: to, Reason: reason.Term()}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := wc.Encode(tc.env)
			require.ErrorIs(t, err, ErrProtoViolation)
		})
	}
}

func TestWireCodec_MonitorByName(t *testing.T) {
	wc, tbl := newTestCodec(t)
	from := pidOn(t, tbl, "a@l", 1, 0, 0)
	ref := refOn(t, tbl, "a@l", 5, 6)
	name, err := tbl.Lookup("registrar")
	require.NoError(t, err)

	frame, err := wc.Encode(&Envelope{Type: MsgMonitorP, From: from, ToName: name, Ref: ref})
	require.NoError(t, err, "monitors may address a registered name")

	got, err := wc.Decode(frame)
	require.NoError(t, err)
	require.True(t, got.To.IsZero(), "no destination pid on a by-name monitor")
	require.Equal(t, name, got.ToName)
	require.Equal(t, ref, got.Ref)
}

func TestWireCodec_ReadFromLimits(t *testing.T) {
	wc, _ := newTestCodec(t)

	t.Run("oversized frame", func(t *testing.T) {
		head := []byte{0xff, 0xff, 0xff, 0xff}
		_, err := wc.ReadFrom(bytes.NewReader(head))
		require.ErrorIs(t, err, ErrProtoViolation)
	})

	t.Run("truncated frame body", func(t *testing.T) {
		_, err := wc.ReadFrom(bytes.NewReader([]byte{0, 0, 0, 9, framePassThrough}))
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}
