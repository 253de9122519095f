package eterm

import (
	"errors"
	"fmt"
)

var (
	// ErrBadArg is returned when a term cannot be built or encoded from
	// the given inputs: oversized atoms, empty node names, strings past
	// the 2-byte length field, unencodable kinds.
	ErrBadArg = errors.New("eterm: bad argument")

	// ErrTableFull is returned by AtomTable.Lookup once the table's fixed
	// capacity is reached.
	ErrTableFull = errors.New("eterm: atom table is full")

	// ErrTruncated is wrapped by DecodeError when the input ends in the
	// middle of a term.
	ErrTruncated = errors.New("eterm: truncated input")

	// ErrUnboundVariable is returned by Term.Apply when the binding has
	// no value for a variable in the term.
	ErrUnboundVariable = errors.New("eterm: unbound variable")
)

// DecodeError reports malformed external term format input. Offset is the
// byte position the decoder could not get past, relative to the start of
// the buffer handed to Decode.
type DecodeError struct {
	Offset int
	Tag    byte // tag being decoded, 0 when the tag byte itself is missing
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Tag == 0 {
		return fmt.Sprintf("eterm: decode at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("eterm: decode tag %d at offset %d: %v", e.Tag, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ParseError reports a syntax error in the term grammar accepted by Parse.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("eterm: parse at offset %d: %s", e.Offset, e.Msg)
}
