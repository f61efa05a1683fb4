package kv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodeforge/l2chain/internal/accounts"
)

func TestStorePutGet(t *testing.T) {
	s := New()
	key := accounts.Key{0x01}
	acct := &accounts.Account{Lamports: 10, Data: []byte{1}}
	s.Put(key, acct, 5)

	got, slot, ok := s.GetWithSlot(key)
	require.True(t, ok)
	require.Equal(t, accounts.Slot(5), slot)
	require.Equal(t, acct.Lamports, got.Lamports)
}

func TestStoreGetReturnsCopyNotAlias(t *testing.T) {
	s := New()
	key := accounts.Key{0x02}
	s.Put(key, &accounts.Account{Data: []byte{1, 2, 3}}, 0)

	got := s.Get(key)
	got.Data[0] = 0xFF

	again := s.Get(key)
	require.Equal(t, byte(1), again.Data[0])
}

func TestStoreMissingKey(t *testing.T) {
	s := New()
	require.Nil(t, s.Get(accounts.Key{0x99}))
	require.False(t, s.Exists(accounts.Key{0x99}))
}

func TestStoreRemove(t *testing.T) {
	s := New()
	key := accounts.Key{0x03}
	s.Put(key, &accounts.Account{}, 0)
	require.True(t, s.Exists(key))
	s.Remove(key)
	require.False(t, s.Exists(key))
}

func TestStoreKeysSorted(t *testing.T) {
	s := New()
	s.Put(accounts.Key{0x03}, &accounts.Account{}, 0)
	s.Put(accounts.Key{0x01}, &accounts.Account{}, 0)
	s.Put(accounts.Key{0x02}, &accounts.Account{}, 0)

	keys := s.Keys()
	require.Len(t, keys, 3)
	require.True(t, keyLess(keys[0], keys[1]))
	require.True(t, keyLess(keys[1], keys[2]))
}

func TestStoreByOwner(t *testing.T) {
	s := New()
	owner := accounts.Key{0xAA}
	s.Put(accounts.Key{0x01}, &accounts.Account{Owner: owner}, 0)
	s.Put(accounts.Key{0x02}, &accounts.Account{Owner: owner}, 0)
	s.Put(accounts.Key{0x03}, &accounts.Account{Owner: accounts.Key{0xBB}}, 0)

	matches := s.ByOwner(owner)
	require.Len(t, matches, 2)
}

func TestStoreLen(t *testing.T) {
	s := New()
	require.Equal(t, 0, s.Len())
	s.Put(accounts.Key{0x01}, &accounts.Account{}, 0)
	require.Equal(t, 1, s.Len())
}
