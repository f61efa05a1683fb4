// Package queryapi exposes the small read-mostly programmatic surface the
// core hands to its external collaborators: submit_transaction,
// subscribe_account, current_slot, current_blockhash, get_account. The
// JSON-RPC/WS front-end itself lives outside this package; this package is
// the Go-native facade such a front-end would sit on top of.
package queryapi

import (
	"github.com/nodeforge/l2chain/internal/accounts"
	"github.com/nodeforge/l2chain/internal/kv"
	"github.com/nodeforge/l2chain/internal/l2errors"
	"github.com/nodeforge/l2chain/internal/notify"
	"github.com/nodeforge/l2chain/internal/queue"
)

// Clock is the subset of internal/clock.Clock the query surface needs.
type Clock interface {
	CurrentSlot() accounts.Slot
	CurrentBlockhash() [32]byte
}

// Node is the leader's programmatic hooks surface.
type Node struct {
	store    *kv.Store
	q        *queue.Queue
	notifier *notify.Notifier
	clock    Clock
}

// New returns a Node backed by the given store, admission queue, notifier,
// and slot clock.
func New(store *kv.Store, q *queue.Queue, notifier *notify.Notifier, clock Clock) *Node {
	return &Node{store: store, q: q, notifier: notifier, clock: clock}
}

// SubmitTransaction admits tx to the admission queue, failing fast on
// back-pressure.
func (n *Node) SubmitTransaction(tx queue.Transaction) error {
	err := n.q.TrySubmit(tx)
	switch err {
	case nil:
		return nil
	case queue.ErrFull:
		return &l2errors.TxRejected{Kind: l2errors.QueueFull}
	case queue.ErrClosed:
		return &l2errors.TxRejected{Kind: l2errors.QueueFull, Code: "queue closed"}
	default:
		return err
	}
}

// SubscribeAccount registers interest in key and returns a subscription id
// plus its update channel.
func (n *Node) SubscribeAccount(key accounts.Key) (notify.SubID, <-chan notify.AccountUpdate) {
	return n.notifier.Subscribe(key)
}

// UnsubscribeAccount cancels a prior SubscribeAccount.
func (n *Node) UnsubscribeAccount(id notify.SubID) {
	n.notifier.Unsubscribe(id)
}

// CurrentSlot returns the slot clock's current slot.
func (n *Node) CurrentSlot() accounts.Slot {
	return n.clock.CurrentSlot()
}

// CurrentBlockhash returns the slot clock's current blockhash.
func (n *Node) CurrentBlockhash() [32]byte {
	return n.clock.CurrentBlockhash()
}

// GetAccount returns the current stored account for key, or nil if absent.
func (n *Node) GetAccount(key accounts.Key) *accounts.Account {
	return n.store.Get(key)
}
