// Package channel defines the narrow transport capability the core
// assumes: a reliable, message-oriented, bidirectional connection
// between a router and one peer or client. The real shared-memory
// transport is out of scope (spec.md §1); this package also ships an
// in-memory reference implementation used by the coordinator's own
// tick loops and by tests.
package channel

import "errors"

// ErrClosed is returned by TrySend once the channel has been closed by
// either end.
var ErrClosed = errors.New("channel: closed")

// Channel is the capability every tick-loop participant (Router,
// StoragePeer, ClientStub) depends on. Both ends are non-blocking and
// poll-friendly: TryRecv returns ok=false when nothing is waiting
// rather than blocking the caller's tick.
type Channel interface {
	// TrySend enqueues a frame for the peer to receive. It does not
	// block on a healthy channel with room in its buffer; callers rely
	// on the router's "queue, pop one per tick" discipline (spec.md
	// §4.4) to avoid ever needing backpressure here.
	TrySend(frame []byte) error
	// TryRecv returns the next frame sent by the peer, if any has
	// arrived since the last call.
	TryRecv() (frame []byte, ok bool)
	// Close tears down the channel. Further TrySend calls return
	// ErrClosed; TryRecv still returns frames that were buffered before
	// the close, then ok=false.
	Close() error
	// Closed reports whether the channel has been closed from either
	// end, letting a tick loop detect peer disappearance (spec.md §4.4:
	// "a peer that disappears leaves its inflight orphaned").
	Closed() bool
}

// NewPair builds two connected, in-memory Channel ends with the given
// per-direction buffer depth: frames sent on one end arrive on the
// other's TryRecv. It is the reference transport described in spec.md's
// design notes — not a production IPC mechanism, just the one the
// coordinator's own tests and single-process demos run over.
func NewPair(buffer int) (a, b Channel) {
	ab := make(chan []byte, buffer)
	ba := make(chan []byte, buffer)
	closed := make(chan struct{})
	return &end{send: ab, recv: ba, closed: closed, closeOnce: new(bool)},
		&end{send: ba, recv: ab, closed: closed, closeOnce: new(bool)}
}

type end struct {
	send      chan []byte
	recv      chan []byte
	closed    chan struct{}
	closeOnce *bool
}

func (e *end) TrySend(frame []byte) error {
	if e.Closed() {
		return ErrClosed
	}
	select {
	case e.send <- frame:
		return nil
	default:
		// Buffer full: block until there is room or the channel is
		// closed, rather than drop a frame, since
		// the core assumes a reliable transport (spec.md §1).
		select {
		case e.send <- frame:
			return nil
		case <-e.closed:
			return ErrClosed
		}
	}
}

func (e *end) TryRecv() ([]byte, bool) {
	select {
	case f, ok := <-e.recv:
		if !ok {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

func (e *end) Close() error {
	if *e.closeOnce {
		return nil
	}
	*e.closeOnce = true
	select {
	case <-e.closed:
	default:
		close(e.closed)
	}
	return nil
}

func (e *end) Closed() bool {
	select {
	case <-e.closed:
		return true
	default:
		return false
	}
}
