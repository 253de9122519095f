package enode

import (
	"errors"
	"fmt"

	"github.com/raskyld/enode/pkg/eterm"
)

var (
	ErrNameInvalid = errors.New("registry: names must only contain alphanum, dashes, dots, underscores, @ and be at most 255 chars")

	ErrInvalidCfg     = errors.New("node: invalid options")
	ErrNodeShutdown   = errors.New("node: shutting down")
	ErrNameTaken      = errors.New("registry: name already registered")
	ErrNoRemote       = errors.New("node: no remote sender configured")
	ErrMailboxUnknown = errors.New("node: mailbox does not exist")

	ErrMailboxClosed = errors.New("mailbox: closed")

	ErrProtoViolation = errors.New("wire: distribution protocol violation")
)

const (
	ClosedByUnknown ClosedBy = iota
	ClosedByUser
	ClosedByPeer
	ClosedByShutdown
)

// ClosedBy tells why a mailbox was closed.
type ClosedBy uint8

func (cause ClosedBy) String() string {
	switch cause {
	case ClosedByUser:
		return "explicit user close"
	case ClosedByPeer:
		return "peer exit"
	case ClosedByShutdown:
		return "node shutdown"
	default:
		return "unknown"
	}
}

// ClosedError is what the receive operations of a closed mailbox return.
// It carries the exit reason that was broadcast to linked and monitoring
// processes and matches ErrMailboxClosed in errors.Is chains.
type ClosedError struct {
	cause  ClosedBy
	reason eterm.Term
}

func (endErr *ClosedError) Error() string {
	return fmt.Sprintf("mailbox closed by %s: %s", endErr.cause, endErr.reason)
}

func (endErr *ClosedError) Is(target error) bool {
	return target == ErrMailboxClosed
}

// Cause tells why the mailbox was closed.
func (endErr *ClosedError) Cause() ClosedBy {
	return endErr.cause
}

// Reason is the exit reason term that was broadcast on close.
func (endErr *ClosedError) Reason() eterm.Term {
	return endErr.reason
}
