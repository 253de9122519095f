// Package enode is a message-passing engine speaking the Erlang data
// model: a `Node` hosts `Mailbox`es addressed by pid or registered
// name, wires them together with links and monitors, and frames
// everything for the distribution protocol.
//
// ## How it works
//
// `Create` builds a `Node` with an atom table, a pid allocator and a
// name registry. `Node.Spawn` hands you a `Mailbox`: a FIFO queue of
// `Envelope`s any number of goroutines can feed while consumers block
// in `Receive`, `ReceiveMatch` or `ReceiveSelect`. The two matching
// variants run each payload against `eterm` patterns (`{ok, X::int()}`
// and friends), drop what does not match and capture variable
// bindings from what does.
//
// Mailboxes relate to each other the way Erlang processes do:
//
//   - `Link` ties two mailboxes together; when one closes, the other
//     receives an EXIT2 envelope carrying the exit reason.
//   - `Monitor` watches one-way; the watcher receives MONITOR_P_EXIT
//     with the ref `Monitor` returned.
//
// Everything addressed to a pid of another node is handed to the
// `RemoteSender` of your choosing, and `WireCodec` turns envelopes
// into the `[length | 0x70 | control | payload]` frames of the
// [distribution protocol][dist], so plugging a TCP transport in is a
// matter of pumping frames.
//
// ## Design Principles
//
// The engine models fallible peers: sends return errors instead of
// pretending delivery is guaranteed, exit fan-out is best-effort and
// logged, and a closed mailbox keeps answering with the exit reason
// it died with. Messages are immutable `eterm.Term` values, so a
// payload crossing mailboxes never needs a defensive copy.
//
// Ambient concerns stay pluggable: structured logs go to any
// `slog.Handler`, telemetry to any `hashicorp/go-metrics` sink, and
// both default to the process-wide instances.
//
// [ETF]: https://www.erlang.org/doc/apps/erts/erl_ext_dist.html
// [dist]: https://www.erlang.org/doc/apps/erts/erl_dist_protocol.html
package enode
