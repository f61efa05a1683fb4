// Package queue implements the bounded MPSC admission queue that feeds the
// tick executor, over a buffered Go channel for explicit, non-blocking
// back-pressure.
package queue

import (
	"errors"

	"github.com/nodeforge/l2chain/internal/accounts"
)

// DefaultCapacity is the default admission queue depth.
const DefaultCapacity = 1024

// ErrFull is returned by TrySubmit when the queue is at capacity.
var ErrFull = errors.New("queue: admission queue is full")

// ErrClosed is returned by TrySubmit after Close.
var ErrClosed = errors.New("queue: admission queue is closed")

// Transaction is a sanitized transaction admitted to the queue. The payload
// is opaque to the queue itself; processor is the only component shape to
// actually interpret it.
type Transaction struct {
	// DeclaredKeys is the set of AccountKeys this transaction's processor
	// invocation is allowed to touch.
	DeclaredKeys []accounts.Key
	// Payload is processor-specific instruction data, opaque to the core.
	Payload []byte
}

// Queue is a bounded multi-producer single-consumer queue of sanitized
// transactions.
type Queue struct {
	ch     chan Transaction
	closed chan struct{}
}

// New returns a Queue with the given capacity (DefaultCapacity if cap<=0).
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		ch:     make(chan Transaction, capacity),
		closed: make(chan struct{}),
	}
}

// TrySubmit admits tx without blocking: it fails fast with ErrFull if the
// queue is at capacity, or ErrClosed if Close was called.
func (q *Queue) TrySubmit(tx Transaction) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- tx:
		return nil
	default:
		return ErrFull
	}
}

// DrainUpTo removes and returns up to max queued transactions without
// blocking, preserving submission order — the executor's per-slot batch.
func (q *Queue) DrainUpTo(max int) []Transaction {
	out := make([]Transaction, 0, max)
	for len(out) < max {
		select {
		case tx := <-q.ch:
			out = append(out, tx)
		default:
			return out
		}
	}
	return out
}

// Close marks the queue closed; further TrySubmit calls return ErrClosed.
// Already-queued transactions remain drainable.
func (q *Queue) Close() {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
}

// Len reports the number of transactions currently buffered (best-effort,
// racy under concurrent submission — intended for metrics, not control
// flow).
func (q *Queue) Len() int {
	return len(q.ch)
}
