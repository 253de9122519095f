package enode

import (
	"context"
	"sync"
)

// inbox is the FIFO queue behind a mailbox. Arbitrarily many producers
// push; consumers block in pop. A 1-buffered wake channel carries
// "maybe non-empty" hints and a consumer that leaves items behind
// re-arms it, so concurrent consumers are never stranded.
type inbox struct {
	lk     sync.Mutex
	items  []*Envelope
	closed bool
	endErr *ClosedError

	wakeCh  chan struct{}
	closeCh chan struct{}
}

func newInbox(depth int) *inbox {
	if depth <= 0 {
		depth = 1024
	}
	return &inbox{
		items:   make([]*Envelope, 0, depth),
		wakeCh:  make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

func (q *inbox) push(env *Envelope) error {
	q.lk.Lock()
	if q.closed {
		endErr := q.endErr
		q.lk.Unlock()
		return endErr
	}
	q.items = append(q.items, env)
	q.lk.Unlock()
	q.wake()
	return nil
}

func (q *inbox) wake() {
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
}

func (q *inbox) tryPop() (*Envelope, bool) {
	q.lk.Lock()
	defer q.lk.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	env := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.wake()
	}
	return env, true
}

// pop blocks until an envelope arrives, ctx expires or the inbox
// closes. A closed inbox always surfaces the ClosedError installed by
// close, even when ctx is already done.
func (q *inbox) pop(ctx context.Context) (*Envelope, error) {
	for {
		if env, ok := q.tryPop(); ok {
			return env, nil
		}
		select {
		case <-q.closeCh:
			return nil, q.closeErr()
		default:
		}
		select {
		case <-q.wakeCh:
		case <-q.closeCh:
			return nil, q.closeErr()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *inbox) closeErr() error {
	q.lk.Lock()
	defer q.lk.Unlock()
	if q.endErr != nil {
		return q.endErr
	}
	return ErrMailboxClosed
}

// close drops everything still queued and wakes every waiter. Returns
// how many envelopes were dropped.
func (q *inbox) close(endErr *ClosedError) int {
	q.lk.Lock()
	if q.closed {
		q.lk.Unlock()
		return 0
	}
	q.closed = true
	q.endErr = endErr
	dropped := len(q.items)
	q.items = nil
	close(q.closeCh)
	q.lk.Unlock()
	return dropped
}

func (q *inbox) depth() int {
	q.lk.Lock()
	defer q.lk.Unlock()
	return len(q.items)
}
