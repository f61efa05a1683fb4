package statechange

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"

	"github.com/nodeforge/l2chain/internal/accounts"
)

// TestSingleWriteHash asserts the exact BLAKE3 preimage from spec scenario
// 2: slot=1, prev_root=[0;32], one write K1=[0x11;32], data=[0xAA,0xBB],
// lamports=42, owner=[0x22;32].
func TestSingleWriteHash(t *testing.T) {
	var k1, owner accounts.Key
	for i := range k1 {
		k1[i] = 0x11
		owner[i] = 0x22
	}

	sc := New(1, [32]byte{}, 1000)
	sc.AppendWrite(AccountWrite{Key: k1, Data: []byte{0xAA, 0xBB}, Lamports: 42, Owner: owner})
	ok := sc.Seal()
	require.True(t, ok)

	h := blake3.New(32, nil)
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], 1)
	h.Write(u64[:])
	h.Write(make([]byte, 32))
	binary.LittleEndian.PutUint64(u64[:], 1000)
	h.Write(u64[:])
	h.Write(k1[:])
	h.Write([]byte{0xAA, 0xBB})
	binary.LittleEndian.PutUint64(u64[:], 42)
	h.Write(u64[:])
	h.Write(owner[:])
	var want [32]byte
	copy(want[:], h.Sum(nil))

	require.Equal(t, want, sc.NewStateRoot)
}

func TestSealEmptyWritesFails(t *testing.T) {
	sc := New(1, [32]byte{}, 0)
	require.False(t, sc.Seal())
	require.Equal(t, [32]byte{}, sc.NewStateRoot)
}

func TestHashExcludesNewRootAndSignature(t *testing.T) {
	sc := New(1, [32]byte{}, 0)
	sc.AppendWrite(AccountWrite{Key: accounts.Key{0x01}, Lamports: 1})
	h1 := sc.ComputeHash()

	sc.LeaderSignature = []byte{0xDE, 0xAD}
	h2 := sc.ComputeHash()

	require.Equal(t, h1, h2)

	sc.NewStateRoot = [32]byte{0xFF}
	h3 := sc.ComputeHash()

	require.Equal(t, h1, h3)
}

func TestHashChainAcrossSlots(t *testing.T) {
	log := NewLog()
	prev := log.LastRoot()
	for i := accounts.Slot(1); i <= 3; i++ {
		sc := New(i, prev, uint64(i)*33)
		sc.AppendWrite(AccountWrite{Key: accounts.Key{byte(i)}, Lamports: uint64(i)})
		require.True(t, sc.Seal())
		log.Append(sc)
		prev = sc.NewStateRoot
	}

	entries := log.Range(0, 100)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		require.Equal(t, entries[i-1].NewStateRoot, entries[i].PrevStateRoot)
	}
}

func TestLogPrune(t *testing.T) {
	log := NewLog()
	for i := accounts.Slot(1); i <= 5; i++ {
		sc := New(i, log.LastRoot(), 0)
		sc.AppendWrite(AccountWrite{Key: accounts.Key{byte(i)}})
		sc.Seal()
		log.Append(sc)
	}
	log.Prune(3)
	require.Equal(t, 3, log.Len())
	entries := log.Range(0, 100)
	require.Equal(t, accounts.Slot(3), entries[0].Slot)
}
