// Package persistence implements the durable store: snapshot/restore of the
// account store plus chain metadata into an embedded MDBX database, with
// an LRU read-through cache in front of the three namespaces fixed by
// tables.go.
//
// Uses github.com/erigontech/mdbx-go as the embedded KV engine, with the
// three-namespace layout (Accounts, AccountSlots, Metadata) fixed by
// tables.go.
package persistence

import (
	"errors"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/erigontech/mdbx-go/mdbx"
	pkgerrors "github.com/pkg/errors"

	"github.com/nodeforge/l2chain/internal/accounts"
	"github.com/nodeforge/l2chain/internal/l2errors"
)

// ErrShortMetadata is returned by DecodeChainMetadata on a truncated
// buffer.
var ErrShortMetadata = errors.New("persistence: metadata buffer too short")

// cacheEntry is what the read-through LRU stores for an account key.
type cacheEntry struct {
	account *accounts.Account
	slot    accounts.Slot
}

// Store is the MDBX-backed durable account and metadata store.
type Store struct {
	env *mdbx.Env

	dbiAccounts     mdbx.DBI
	dbiAccountSlots mdbx.DBI
	dbiMetadata     mdbx.DBI

	cache *lru.Cache[accounts.Key, cacheEntry]
}

// DefaultCacheSize bounds the read-through LRU's entry count.
const DefaultCacheSize = 65536

// Open creates or opens an MDBX environment at path and ensures the three
// namespaces exist. cacheSize of 0 uses DefaultCacheSize.
func Open(path string, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, l2errors.WrapPersistence(l2errors.StageLoadMetadata, err)
	}
	if err := env.SetGeometry(-1, -1, 32*1024*1024*1024, -1, -1, 4096); err != nil {
		return nil, l2errors.WrapPersistence(l2errors.StageLoadMetadata, err)
	}
	if err := env.SetOption(mdbx.OptMaxDB, 8); err != nil {
		return nil, l2errors.WrapPersistence(l2errors.StageLoadMetadata, err)
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, l2errors.WrapPersistence(l2errors.StageLoadMetadata, err)
	}
	if err := env.Open(path, 0, 0o640); err != nil {
		return nil, l2errors.WrapPersistence(l2errors.StageLoadMetadata, err)
	}

	s := &Store{env: env}

	err = env.Update(func(txn *mdbx.Txn) error {
		var e error
		if s.dbiAccounts, e = txn.OpenDBI(Accounts, mdbx.Create, nil, nil); e != nil {
			return e
		}
		if s.dbiAccountSlots, e = txn.OpenDBI(AccountSlots, mdbx.Create, nil, nil); e != nil {
			return e
		}
		if s.dbiMetadata, e = txn.OpenDBI(Metadata, mdbx.Create, nil, nil); e != nil {
			return e
		}
		return nil
	})
	if err != nil {
		env.Close()
		return nil, l2errors.WrapPersistence(l2errors.StageLoadMetadata, err)
	}

	cache, err := lru.New[accounts.Key, cacheEntry](cacheSize)
	if err != nil {
		env.Close()
		return nil, pkgerrors.WithStack(err)
	}
	s.cache = cache

	return s, nil
}

// Close releases the MDBX environment.
func (s *Store) Close() {
	s.env.Close()
}

// SaveAccount writes one account at slot, updating both the Accounts and
// AccountSlots namespaces and the read-through cache.
func (s *Store) SaveAccount(key accounts.Key, account *accounts.Account, slot accounts.Slot) error {
	err := s.env.Update(func(txn *mdbx.Txn) error {
		if err := txn.Put(s.dbiAccounts, key[:], account.Encode(), 0); err != nil {
			return err
		}
		var slotBuf [8]byte
		putUint64LE(slotBuf[:], uint64(slot))
		return txn.Put(s.dbiAccountSlots, key[:], slotBuf[:], 0)
	})
	if err != nil {
		return l2errors.WrapPersistence(l2errors.StageFlush, err)
	}
	s.cache.Add(key, cacheEntry{account: account.Clone(), slot: slot})
	return nil
}

// LoadAccount returns the persisted account and slot for key, checking the
// read-through cache first.
func (s *Store) LoadAccount(key accounts.Key) (*accounts.Account, accounts.Slot, bool, error) {
	if e, ok := s.cache.Get(key); ok {
		return e.account.Clone(), e.slot, true, nil
	}

	var (
		account *accounts.Account
		slot    accounts.Slot
		found   bool
	)
	err := s.env.View(func(txn *mdbx.Txn) error {
		accBuf, err := txn.Get(s.dbiAccounts, key[:])
		if mdbx.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		decoded, err := accounts.Decode(accBuf)
		if err != nil {
			return err
		}
		slotBuf, err := txn.Get(s.dbiAccountSlots, key[:])
		if err != nil && !mdbx.IsNotFound(err) {
			return err
		}
		account = decoded
		if len(slotBuf) == 8 {
			slot = accounts.Slot(getUint64LE(slotBuf))
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, 0, false, l2errors.WrapPersistence(l2errors.StageFlush, err)
	}
	if found {
		s.cache.Add(key, cacheEntry{account: account.Clone(), slot: slot})
	}
	return account, slot, found, nil
}

// IterateAll calls fn for every persisted (key, account, slot) triple, in
// MDBX cursor order. Used at startup to repopulate internal/kv.Store.
// fn returning false stops iteration early.
func (s *Store) IterateAll(fn func(key accounts.Key, account *accounts.Account, slot accounts.Slot) bool) error {
	err := s.env.View(func(txn *mdbx.Txn) error {
		cur, err := txn.OpenCursor(s.dbiAccounts)
		if err != nil {
			return err
		}
		defer cur.Close()

		for {
			k, v, err := cur.Get(nil, nil, mdbx.Next)
			if mdbx.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			var key accounts.Key
			copy(key[:], k)
			account, err := accounts.Decode(v)
			if err != nil {
				return err
			}
			var slot accounts.Slot
			slotBuf, err := txn.Get(s.dbiAccountSlots, k)
			if err == nil && len(slotBuf) == 8 {
				slot = accounts.Slot(getUint64LE(slotBuf))
			}
			if !fn(key, account, slot) {
				return nil
			}
		}
	})
	if err != nil {
		return l2errors.WrapPersistence(l2errors.StageLoadMetadata, err)
	}
	return nil
}

// SaveMetadata writes the chain metadata commit point. Callers performing a
// full snapshot must call this last, after every account write.
func (s *Store) SaveMetadata(m ChainMetadata) error {
	err := s.env.Update(func(txn *mdbx.Txn) error {
		return txn.Put(s.dbiMetadata, MetadataKey, m.Encode(), 0)
	})
	if err != nil {
		return l2errors.WrapPersistence(l2errors.StageSnapshot, err)
	}
	return nil
}

// LoadMetadata reads the chain metadata, if any was ever saved. A failure
// here (as opposed to simple absence) is the one PersistenceFailure kind
// that is fatal to process startup.
func (s *Store) LoadMetadata() (ChainMetadata, bool, error) {
	var (
		m     ChainMetadata
		found bool
	)
	err := s.env.View(func(txn *mdbx.Txn) error {
		buf, err := txn.Get(s.dbiMetadata, MetadataKey)
		if mdbx.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		decoded, err := DecodeChainMetadata(buf)
		if err != nil {
			return err
		}
		m = decoded
		found = true
		return nil
	})
	if err != nil {
		return ChainMetadata{}, false, l2errors.WrapPersistence(l2errors.StageLoadMetadata, err)
	}
	return m, found, nil
}

// Flush forces MDBX to sync its data file to stable storage.
func (s *Store) Flush() error {
	if err := s.env.Sync(true, false); err != nil {
		return l2errors.WrapPersistence(l2errors.StageFlush, err)
	}
	return nil
}

func putUint64LE(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

func getUint64LE(buf []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v
}
