// Package statechange implements the hash-chained state-change log: the
// canonical StateChange record, its deterministic encoding and BLAKE3
// content hash, and an append-only in-memory log used for follower
// catch-up.
package statechange

import (
	"encoding/binary"
	"sync"

	"lukechampine.com/blake3"

	"github.com/nodeforge/l2chain/internal/accounts"
)

// AccountWrite is a single account mutation recorded against a slot.
type AccountWrite struct {
	Key      accounts.Key
	Data     []byte
	Lamports uint64
	Owner    accounts.Key
}

// StateChange is the canonical log entry for a non-empty slot.
type StateChange struct {
	Slot            accounts.Slot
	PrevStateRoot   [32]byte
	NewStateRoot    [32]byte
	TimestampMs     uint64
	Writes          []AccountWrite
	LeaderSignature []byte
}

// New starts a fresh, unsealed StateChange for slot chained off prevRoot.
func New(slot accounts.Slot, prevRoot [32]byte, timestampMs uint64) *StateChange {
	return &StateChange{
		Slot:          slot,
		PrevStateRoot: prevRoot,
		TimestampMs:   timestampMs,
	}
}

// AppendWrite appends one account write, preserving caller-supplied order
// (the executor is responsible for first-touch ordering within a slot).
func (sc *StateChange) AppendWrite(w AccountWrite) {
	sc.Writes = append(sc.Writes, w)
}

// hashBody writes the BLAKE3 preimage for a StateChange: slot, prev root,
// timestamp, then each write's key/data/lamports/owner, all little-endian.
// NewStateRoot and LeaderSignature are metadata/outputs and are
// deliberately excluded from the preimage.
func hashBody(h *blake3.Hasher, sc *StateChange) {
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(sc.Slot))
	h.Write(u64[:])
	h.Write(sc.PrevStateRoot[:])
	binary.LittleEndian.PutUint64(u64[:], sc.TimestampMs)
	h.Write(u64[:])
	for _, w := range sc.Writes {
		h.Write(w.Key[:])
		h.Write(w.Data)
		binary.LittleEndian.PutUint64(u64[:], w.Lamports)
		h.Write(u64[:])
		h.Write(w.Owner[:])
	}
}

// ComputeHash returns the BLAKE3 state root for the current Writes.
func (sc *StateChange) ComputeHash() [32]byte {
	h := blake3.New(32, nil)
	hashBody(h, sc)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Seal finalizes NewStateRoot from the current Writes. Returns false (and
// leaves NewStateRoot zero) if there are no writes — callers must not
// broadcast or append an unsealed, empty-write StateChange.
func (sc *StateChange) Seal() bool {
	if len(sc.Writes) == 0 {
		return false
	}
	sc.NewStateRoot = sc.ComputeHash()
	return true
}

// Log is the append-only, single-producer sequence of sealed StateChanges.
// It retains at least the window since the last durable snapshot; callers
// of Prune decide when older entries may be dropped.
type Log struct {
	mu      sync.RWMutex
	entries []*StateChange
	// lastRoot tracks the chain tip even across a Prune that drops the
	// entries a follower might still need; followers resync via
	// PersistenceFailure-free SyncRequest against whatever window remains.
	lastRoot [32]byte
}

// NewLog returns an empty log whose chain starts at the all-zero root.
func NewLog() *Log {
	return &Log{}
}

// Append adds a sealed StateChange to the tail of the log. The caller must
// have already verified sc.PrevStateRoot == LastRoot().
func (l *Log) Append(sc *StateChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, sc)
	l.lastRoot = sc.NewStateRoot
}

// LastRoot returns the root of the most recently appended StateChange, or
// the all-zero root if the log is empty or every slot so far was empty.
func (l *Log) LastRoot() [32]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastRoot
}

// Range returns the sealed StateChanges with Slot in [from, to), used to
// serve a follower's SyncRequest.
func (l *Log) Range(from, to accounts.Slot) []*StateChange {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*StateChange, 0)
	for _, sc := range l.entries {
		if sc.Slot >= from && sc.Slot < to {
			out = append(out, sc)
		}
	}
	return out
}

// Len returns the number of entries currently retained.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Prune drops entries with Slot < keepFrom. Truncation below the last
// durable snapshot boundary is the caller's responsibility to avoid — the
// log itself enforces nothing beyond the requested boundary.
func (l *Log) Prune(keepFrom accounts.Slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := 0
	for i < len(l.entries) && l.entries[i].Slot < keepFrom {
		i++
	}
	l.entries = l.entries[i:]
}
