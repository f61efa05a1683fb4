package notify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodeforge/l2chain/internal/accounts"
)

func TestSubscribeAndNotify(t *testing.T) {
	n := New(4)
	key := accounts.Key{0x01}
	_, ch := n.Subscribe(key)

	n.Notify(key, 1, &accounts.Account{Lamports: 5})

	update := <-ch
	require.Equal(t, accounts.Slot(1), update.Slot)
	require.Equal(t, uint64(5), update.Account.Lamports)
	require.Equal(t, uint64(1), update.Seq)
}

func TestNotifyOnlyDeliversToMatchingKey(t *testing.T) {
	n := New(4)
	_, chA := n.Subscribe(accounts.Key{0x01})
	n.Notify(accounts.Key{0x02}, 1, &accounts.Account{})

	select {
	case <-chA:
		t.Fatal("unexpected update delivered to unrelated subscriber")
	default:
	}
}

func TestNotifyDropsOldestOnFullBuffer(t *testing.T) {
	n := New(2)
	key := accounts.Key{0x01}
	_, ch := n.Subscribe(key)

	n.Notify(key, 1, &accounts.Account{Lamports: 1})
	n.Notify(key, 2, &accounts.Account{Lamports: 2})
	n.Notify(key, 3, &accounts.Account{Lamports: 3})

	first := <-ch
	require.Equal(t, uint64(2), first.Account.Lamports)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	n := New(4)
	key := accounts.Key{0x01}
	id, ch := n.Subscribe(key)
	n.Unsubscribe(id)

	_, ok := <-ch
	require.False(t, ok)
}
