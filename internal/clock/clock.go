// Package clock implements the slot clock: a monotonic slot stream at a
// fixed tick period, with missed ticks skipped rather than coalesced or
// queued.
//
// Go's time.Ticker has no native missed-tick policy (a slow consumer just
// accumulates one buffered tick), so skip semantics are implemented
// explicitly: the consumer drains any backlog on the ticker channel before
// treating the arrival as "the" next tick.
package clock

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/nodeforge/l2chain/internal/accounts"
)

// DefaultPeriod is the target tick period for a 30Hz game loop.
const DefaultPeriod = 33 * time.Millisecond

// Clock produces a Slot/blockhash pair on every tick edge.
type Clock struct {
	period time.Duration

	mu         sync.RWMutex
	slot       accounts.Slot
	blockhash  [32]byte
	randSource io.Reader
}

// New returns a Clock at slot 0 with an all-zero initial blockhash, ticking
// at period (DefaultPeriod if period is 0).
func New(period time.Duration) *Clock {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Clock{period: period, randSource: rand.Reader}
}

// CurrentSlot returns the current slot number.
func (c *Clock) CurrentSlot() accounts.Slot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slot
}

// CurrentBlockhash returns the current per-tick blockhash.
func (c *Clock) CurrentBlockhash() [32]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blockhash
}

// advance moves to the next slot and regenerates the blockhash, returning
// the new (slot, blockhash) pair.
func (c *Clock) advance() (accounts.Slot, [32]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot++
	_, _ = c.randSource.Read(c.blockhash[:])
	return c.slot, c.blockhash
}

// Run ticks at the configured period until done is closed, invoking onTick
// with each new (slot, blockhash) pair. Missed ticks (onTick or the caller
// falling behind) are skipped, never coalesced: Run drains any backlog
// already queued on the ticker before firing once for "now".
func (c *Clock) Run(done <-chan struct{}, onTick func(slot accounts.Slot, blockhash [32]byte)) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// Drain any ticks that queued up while onTick (or the
			// goroutine scheduler) ran long, per the Skip policy: we
			// only ever fire once per call, with the latest wall-clock
			// as "now".
			for drained := true; drained; {
				select {
				case <-ticker.C:
				default:
					drained = false
				}
			}
			slot, hash := c.advance()
			onTick(slot, hash)
		}
	}
}
