package persistence

import (
	"time"

	"github.com/nodeforge/l2chain/internal/accounts"
	"github.com/nodeforge/l2chain/internal/kv"
	"github.com/nodeforge/l2chain/internal/l2errors"
)

// DefaultSnapshotInterval is how often RunSnapshotLoop takes a full
// snapshot of the in-memory store.
const DefaultSnapshotInterval = 5 * time.Second

// SnapshotSource is the subset of internal/kv.Store needed to take a
// snapshot, kept as an interface so tests can substitute a smaller store.
type SnapshotSource interface {
	Keys() []accounts.Key
	GetWithSlot(key accounts.Key) (*accounts.Account, accounts.Slot, bool)
}

var _ SnapshotSource = (*kv.Store)(nil)

// Snapshot iterates store key-by-key and persists every account, then
// writes metadata last as the commit point. blockhash/timestampMs describe
// the slot the snapshot was taken at.
func (s *Store) Snapshot(store SnapshotSource, slot accounts.Slot, blockhash [32]byte, timestampMs uint64) error {
	keys := store.Keys()
	for _, key := range keys {
		account, accSlot, ok := store.GetWithSlot(key)
		if !ok {
			continue
		}
		if err := s.SaveAccount(key, account, accSlot); err != nil {
			return err
		}
	}
	if err := s.SaveMetadata(ChainMetadata{
		CurrentSlot:      uint64(slot),
		CurrentBlockhash: blockhash,
		AccountCount:     uint64(len(keys)),
		LastSaveTsMs:     timestampMs,
	}); err != nil {
		return err
	}
	return s.Flush()
}

// RunSnapshotLoop takes a Snapshot every interval (DefaultSnapshotInterval
// if interval<=0) until done is closed. now/currentSlot/currentBlockhash
// are polled fresh at each interval rather than passed once, so the
// snapshot always reflects the clock at the moment it runs. A ticker-driven
// goroutine guarded by a done channel, with a final synchronous snapshot on
// shutdown.
func (s *Store) RunSnapshotLoop(
	done <-chan struct{},
	interval time.Duration,
	store SnapshotSource,
	currentSlot func() accounts.Slot,
	currentBlockhash func() [32]byte,
	nowMs func() uint64,
	onFailure func(l2errors.PersistenceFailure),
) {
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			// Final synchronous snapshot before exit.
			_ = s.Snapshot(store, currentSlot(), currentBlockhash(), nowMs())
			return
		case <-ticker.C:
			if err := s.Snapshot(store, currentSlot(), currentBlockhash(), nowMs()); err != nil {
				if onFailure != nil {
					if pf, ok := err.(*l2errors.PersistenceFailure); ok {
						onFailure(*pf)
					}
				}
			}
		}
	}
}
