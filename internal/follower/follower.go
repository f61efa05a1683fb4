// Package follower implements the follower client: a node that connects to
// a leader's broadcast server, verifies every received StateChange against
// its own hash chain, reapplies it to a local account store, and raises a
// fraud challenge on divergence.
//
// Connects over github.com/gorilla/websocket; each received StateChange is
// checked in order: prev-root check, then hash check, then apply.
package follower

import (
	"fmt"
	"net/url"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/gorilla/websocket"

	"github.com/nodeforge/l2chain/internal/accounts"
	"github.com/nodeforge/l2chain/internal/kv"
	"github.com/nodeforge/l2chain/internal/l2errors"
	"github.com/nodeforge/l2chain/internal/mathutil"
	"github.com/nodeforge/l2chain/internal/statechange"
	"github.com/nodeforge/l2chain/internal/wire"
)

// State is the follower connection's lifecycle.
type State int

const (
	StateConnecting State = iota
	StateSyncing
	StateStreaming
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateSyncing:
		return "Syncing"
	case StateStreaming:
		return "Streaming"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Client is one follower's connection to a leader.
type Client struct {
	store *kv.Store
	log   *statechange.Log

	conn *websocket.Conn

	state     State
	localRoot [32]byte
	localSlot accounts.Slot

	Logger log.Logger

	// OnVerified, if set, is called after this client successfully applies
	// and verifies a slot. Intended for a metrics gauge.
	OnVerified func(slot accounts.Slot)
}

// New returns a follower Client that applies to store/log; the caller
// owns store/log and may read them concurrently (kv.Store and
// statechange.Log both lock internally).
func New(store *kv.Store, chainLog *statechange.Log) *Client {
	return &Client{
		store:  store,
		log:    chainLog,
		state:  StateConnecting,
		Logger: log.New("component", "follower"),
	}
}

// State reports the client's current lifecycle state.
func (c *Client) State() State { return c.state }

// LocalSlot reports the highest slot the client has fully applied.
func (c *Client) LocalSlot() accounts.Slot { return c.localSlot }

// Connect dials the leader's broadcast endpoint and transitions to
// Syncing, requesting replay from fromSlot.
func (c *Client) Connect(leaderAddr string, fromSlot accounts.Slot) error {
	u := url.URL{Scheme: "ws", Host: leaderAddr, Path: "/broadcast"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		c.state = StateDisconnected
		return fmt.Errorf("follower: dial leader: %w", err)
	}
	c.conn = conn
	c.state = StateSyncing
	return c.sendSyncRequest(fromSlot)
}

func (c *Client) sendSyncRequest(fromSlot accounts.Slot) error {
	frame := wire.EncodeFrame(wire.TagSyncRequest, wire.EncodeSyncRequest(wire.SyncRequest{FromSlot: fromSlot}))
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Run processes frames from the leader until the connection closes or ctx
// (via done) is cancelled. onChallenge is invoked whenever this client
// raises a FraudChallenge.
func (c *Client) Run(done <-chan struct{}, onChallenge func(l2errors.FraudDetected)) error {
	results := make(chan error, 1)
	go func() {
		results <- c.readLoop(onChallenge)
	}()
	select {
	case <-done:
		c.conn.Close()
		return nil
	case err := <-results:
		return err
	}
}

func (c *Client) readLoop(onChallenge func(l2errors.FraudDetected)) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.state = StateDisconnected
			return err
		}
		if len(data) == 0 {
			continue
		}
		tag := wire.Tag(data[0])
		body := data[1:]
		switch tag {
		case wire.TagStateChange:
			sc, err := wire.DecodeStateChange(body)
			if err != nil {
				continue
			}
			c.applyOne(sc, onChallenge)
			c.state = StateStreaming

		case wire.TagSyncResponse:
			resp, err := wire.DecodeSyncResponse(body)
			if err != nil {
				continue
			}
			for _, sc := range resp.Changes {
				c.applyOne(sc, onChallenge)
			}
			c.state = StateStreaming

		case wire.TagHeartbeat:
			// presence of traffic distinguishes silence from death; no
			// action required.
		}
	}
}

// applyOne verifies and, if valid, applies sc to the local store and log,
// in order: prev-root check, then hash check, then apply, then advance
// root, then SlotVerified.
func (c *Client) applyOne(sc *statechange.StateChange, onChallenge func(l2errors.FraudDetected)) {
	if c.localSlot != 0 && sc.Slot != c.localSlot+1 {
		gap := mathutil.AbsoluteDifference(uint64(sc.Slot), uint64(c.localSlot))
		c.Logger.Warn("follower: slot gap detected, requesting resync", "local_slot", c.localSlot, "received_slot", sc.Slot, "gap", gap)
		_ = c.sendSyncRequest(c.localSlot + 1)
		return
	}

	if sc.PrevStateRoot != c.localRoot {
		c.raiseFraud(sc, "root mismatch", onChallenge)
		return
	}

	recomputed := sc.ComputeHash()
	if recomputed != sc.NewStateRoot {
		c.raiseFraud(sc, "hash mismatch", onChallenge)
		return
	}

	for _, w := range sc.Writes {
		existing := c.store.Get(w.Key)
		acct := &accounts.Account{
			Lamports: w.Lamports,
			Owner:    w.Owner,
			Data:     w.Data,
		}
		if existing != nil {
			acct.Executable = existing.Executable
			acct.RentEpoch = existing.RentEpoch
		}
		c.store.Put(w.Key, acct, sc.Slot)
	}

	c.log.Append(sc)
	c.localRoot = sc.NewStateRoot
	c.localSlot = sc.Slot
	c.sendSlotVerified(sc.Slot)
	if c.OnVerified != nil {
		c.OnVerified(sc.Slot)
	}
}

func (c *Client) raiseFraud(sc *statechange.StateChange, reason string, onChallenge func(l2errors.FraudDetected)) {
	c.state = StateDisconnected
	frame := wire.EncodeFrame(wire.TagFraudChallenge, wire.EncodeFraudChallenge(wire.FraudChallenge{
		Slot:   sc.Slot,
		Reason: reason,
	}))
	_ = c.conn.WriteMessage(websocket.BinaryMessage, frame)
	c.Logger.Error("follower: fraud challenge", "slot", sc.Slot, "reason", reason)
	if onChallenge != nil {
		onChallenge(l2errors.FraudDetected{Slot: sc.Slot, Reason: reason})
	}
	c.conn.Close()
}

func (c *Client) sendSlotVerified(slot accounts.Slot) {
	var followerID [32]byte
	frame := wire.EncodeFrame(wire.TagSlotVerified, wire.EncodeSlotVerified(wire.SlotVerified{Slot: slot, FollowerID: followerID}))
	_ = c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// DefaultHeartbeatTimeout is how long a follower waits for any traffic
// before considering the leader unreachable; callers may wrap Run with
// their own deadline using this as a default.
const DefaultHeartbeatTimeout = 10 * time.Second
