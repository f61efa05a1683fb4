// Package notify implements the subscription notifier: per-account
// watchers that receive best-effort notifications after each commit. A
// slow subscriber drops its oldest buffered update rather than blocking
// the notifier or the committing executor, and learns about the drop via
// a monotonically increasing sequence counter.
package notify

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nodeforge/l2chain/internal/accounts"
)

// DefaultBufferSize bounds each subscriber's pending-update channel.
const DefaultBufferSize = 32

// SubID identifies one subscription, returned by Subscribe and accepted by
// Unsubscribe.
type SubID string

// AccountUpdate is delivered to a subscriber after a commit touches the
// key it is watching.
type AccountUpdate struct {
	Key     accounts.Key
	Slot    accounts.Slot
	Account *accounts.Account
	// Seq is a per-subscriber monotonically increasing counter. A gap in
	// consecutive Seq values tells the subscriber it missed updates that
	// were dropped for being too slow to consume.
	Seq uint64
}

type subscriber struct {
	key accounts.Key
	ch  chan AccountUpdate
	seq uint64

	mu      sync.Mutex
	pending []AccountUpdate
}

// Notifier fans out account updates to registered subscribers.
type Notifier struct {
	mu          sync.RWMutex
	byKey       map[accounts.Key]map[SubID]*subscriber
	subscribers map[SubID]*subscriber
	bufferSize  int
}

// New returns an empty Notifier whose subscriber channels are sized
// bufferSize (DefaultBufferSize if bufferSize<=0).
func New(bufferSize int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Notifier{
		byKey:       make(map[accounts.Key]map[SubID]*subscriber),
		subscribers: make(map[SubID]*subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers interest in key and returns a SubID plus a channel
// that receives AccountUpdates for that key.
func (n *Notifier) Subscribe(key accounts.Key) (SubID, <-chan AccountUpdate) {
	id := SubID(uuid.NewString())
	sub := &subscriber{
		key: key,
		ch:  make(chan AccountUpdate, n.bufferSize),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers[id] = sub
	if n.byKey[key] == nil {
		n.byKey[key] = make(map[SubID]*subscriber)
	}
	n.byKey[key][id] = sub
	return id, sub.ch
}

// Unsubscribe removes a subscription and closes its channel. It is the
// only way a subscription is removed: Notify does not detect a receiver
// that has stopped reading, and keeps filling its buffer, dropping the
// oldest update when it is full.
func (n *Notifier) Unsubscribe(id SubID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	sub, ok := n.subscribers[id]
	if !ok {
		return
	}
	delete(n.subscribers, id)
	if m := n.byKey[sub.key]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(n.byKey, sub.key)
		}
	}
	close(sub.ch)
}

// Notify delivers an update for key to every current subscriber of key, in
// commit order relative to other Notify calls. A subscriber whose buffer
// is full has its oldest pending update dropped to make room — Notify
// never blocks.
func (n *Notifier) Notify(key accounts.Key, slot accounts.Slot, account *accounts.Account) {
	n.mu.RLock()
	subs := make([]*subscriber, 0, len(n.byKey[key]))
	for _, s := range n.byKey[key] {
		subs = append(subs, s)
	}
	n.mu.RUnlock()

	for _, sub := range subs {
		sub.mu.Lock()
		sub.seq++
		update := AccountUpdate{Key: key, Slot: slot, Account: account.Clone(), Seq: sub.seq}
		select {
		case sub.ch <- update:
		default:
			// Drop the oldest buffered update to make room, then retry
			// once. If the channel is being drained concurrently this
			// may spuriously succeed without dropping; that is fine —
			// the guarantee is "at most one drop per full buffer", not
			// "exactly one".
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- update:
			default:
			}
		}
		sub.mu.Unlock()
	}
}
