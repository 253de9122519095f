// Package eterm implements the Erlang term data model and the external
// term format (ETF).
//
// A [Term] is an immutable tagged value covering the full set of Erlang
// data types: integers (arbitrary precision), floats, booleans, atoms,
// strings, binaries, pids, ports, references, tuples, proper and improper
// lists, maps, trace tokens and match variables. Once constructed a term
// never changes; copies share their backing storage and are O(1).
//
// Atoms are interned through an [AtomTable] that the caller creates and
// passes around explicitly. There is no hidden global table: two
// subsystems that must agree on atom handles share the same *AtomTable.
//
// [Encode] and [Decode] convert terms to and from ETF bytes, bit-exact
// with the BEAM distribution encoding. Decoding is cursor based and
// resumable: the caller owns the position and can decode several terms
// back to back out of one buffer.
//
// [Match] performs Erlang-style pattern matching with variable capture
// into a [VarBind]. The matcher is single pass and does not backtrack:
// bindings made before a later sub-pattern fails are kept. Callers that
// need all-or-nothing capture match into a scratch binding and merge it
// on success.
//
// [Parse] reads the Erlang term grammar ("{ok, X :: int()}") so patterns
// and fixtures can be written as literals instead of constructor chains.
package eterm
