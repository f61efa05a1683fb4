// Package kv implements the in-memory account store: a concurrent
// AccountKey -> Account mapping with a parallel mapping of the slot each
// key was last mutated at.
//
// The store is split into a fixed number of independently-locked shards
// instead of taking a single store-wide lock, each holding a Go map plus
// a tidwall/btree ordered index of its keys. Keys reads each shard's
// index and sorts the merged result; ByOwner scans the shard maps and
// sorts its matches. Every call locks one shard at a time; there is no
// multi-key lock acquisition, in sorted order or otherwise.
package kv

import (
	"sort"
	"sync"

	"github.com/tidwall/btree"
	"golang.org/x/sync/errgroup"

	"github.com/nodeforge/l2chain/internal/accounts"
)

const shardCount = 64

type entry struct {
	account *accounts.Account
	slot    accounts.Slot
}

type shard struct {
	mu   sync.RWMutex
	m    map[accounts.Key]entry
	tree *btree.BTreeG[accounts.Key]
}

func keyLess(a, b accounts.Key) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func newShard() *shard {
	return &shard{
		m:    make(map[accounts.Key]entry),
		tree: btree.NewBTreeG[accounts.Key](keyLess),
	}
}

// Store is the concurrent account store. The zero value is not usable; use
// New.
type Store struct {
	shards [shardCount]*shard
}

// New returns an empty Store.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	return s
}

func shardIndex(k accounts.Key) int {
	// First byte is enough entropy to spread 64 shards; keys are opaque
	// 32-byte identifiers so there is no adversarial-skew concern the way
	// there would be with, say, sequential integers.
	return int(k[0]) % shardCount
}

func (s *Store) shardFor(k accounts.Key) *shard {
	return s.shards[shardIndex(k)]
}

// Get returns a copy of the stored account, or nil if absent.
func (s *Store) Get(key accounts.Key) *accounts.Account {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.m[key]
	if !ok {
		return nil
	}
	return e.account.Clone()
}

// GetWithSlot returns a copy of the stored account plus the slot of its
// last mutation, or (nil, 0, false) if absent.
func (s *Store) GetWithSlot(key accounts.Key) (*accounts.Account, accounts.Slot, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.m[key]
	if !ok {
		return nil, 0, false
	}
	return e.account.Clone(), e.slot, true
}

// Put stores an account at the given slot, atomically with respect to
// other readers/writers of the same key.
func (s *Store) Put(key accounts.Key, account *accounts.Account, slot accounts.Slot) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, existed := sh.m[key]; !existed {
		sh.tree.Set(key)
	}
	sh.m[key] = entry{account: account.Clone(), slot: slot}
}

// Remove deletes an account, if present.
func (s *Store) Remove(key accounts.Key) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.m[key]; ok {
		delete(sh.m, key)
		sh.tree.Delete(key)
	}
}

// Exists reports whether key is present.
func (s *Store) Exists(key accounts.Key) bool {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	_, ok := sh.m[key]
	return ok
}

// Len returns the total number of stored accounts across all shards.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

// Keys returns a point-in-time, canonically (byte-)sorted snapshot of all
// keys. Not serializable across the whole store: a concurrent writer may
// be observed partially.
//
// Each shard is scanned on its own goroutine via errgroup, a per-unit
// fan-out shape for parallel independent work; a scan never fails so the
// group only buys concurrency, not error aggregation.
func (s *Store) Keys() []accounts.Key {
	perShard := make([][]accounts.Key, shardCount)
	var g errgroup.Group
	for i, sh := range s.shards {
		i, sh := i, sh
		g.Go(func() error {
			sh.mu.RLock()
			defer sh.mu.RUnlock()
			keys := make([]accounts.Key, 0, len(sh.m))
			sh.tree.Scan(func(k accounts.Key) bool {
				keys = append(keys, k)
				return true
			})
			perShard[i] = keys
			return nil
		})
	}
	_ = g.Wait()

	out := make([]accounts.Key, 0, s.Len())
	for _, keys := range perShard {
		out = append(out, keys...)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i], out[j]) })
	return out
}

// KeyValue pairs a key with its stored account, returned by ByOwner.
type KeyValue struct {
	Key     accounts.Key
	Account *accounts.Account
}

// ByOwner returns a point-in-time scan of all accounts whose Owner equals
// owner. Like Keys, this is not serializable across the whole store.
func (s *Store) ByOwner(owner accounts.Key) []KeyValue {
	perShard := make([][]KeyValue, shardCount)
	var g errgroup.Group
	for i, sh := range s.shards {
		i, sh := i, sh
		g.Go(func() error {
			sh.mu.RLock()
			defer sh.mu.RUnlock()
			var matches []KeyValue
			for k, e := range sh.m {
				if e.account.Owner == owner {
					matches = append(matches, KeyValue{Key: k, Account: e.account.Clone()})
				}
			}
			perShard[i] = matches
			return nil
		})
	}
	_ = g.Wait()

	var out []KeyValue
	for _, matches := range perShard {
		out = append(out, matches...)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].Key, out[j].Key) })
	return out
}
