package follower

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nodeforge/l2chain/internal/accounts"
	"github.com/nodeforge/l2chain/internal/kv"
	"github.com/nodeforge/l2chain/internal/l2errors"
	"github.com/nodeforge/l2chain/internal/statechange"
	"github.com/nodeforge/l2chain/internal/wire"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newTestClient wires a Client to a live, discard-everything websocket peer
// so applyOne's outbound SlotVerified/FraudChallenge writes succeed.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(httpSrv.Close)

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := New(kv.New(), statechange.NewLog())
	c.conn = conn
	return c
}

func sealedChange(slot accounts.Slot, prev [32]byte) *statechange.StateChange {
	sc := statechange.New(slot, prev, uint64(slot)*100)
	sc.AppendWrite(statechange.AccountWrite{Key: accounts.Key{byte(slot)}, Lamports: uint64(slot)})
	sc.Seal()
	return sc
}

func TestApplyOneAppliesValidStateChange(t *testing.T) {
	c := newTestClient(t)
	sc := sealedChange(1, [32]byte{})

	c.applyOne(sc, nil)

	require.Equal(t, accounts.Slot(1), c.LocalSlot())
	require.Equal(t, sc.NewStateRoot, c.localRoot)
	require.Equal(t, 1, c.log.Len())

	acct := c.store.Get(accounts.Key{0x01})
	require.NotNil(t, acct)
	require.Equal(t, uint64(1), acct.Lamports)
}

// TestApplyOneRaisesFraudOnRootMismatch implements spec scenario 4: a
// StateChange whose PrevStateRoot disagrees with the follower's own root is
// rejected and reported, never applied.
func TestApplyOneRaisesFraudOnRootMismatch(t *testing.T) {
	c := newTestClient(t)
	sc := sealedChange(1, [32]byte{0xFF})

	var got l2errors.FraudDetected
	c.applyOne(sc, func(f l2errors.FraudDetected) { got = f })

	require.Equal(t, StateDisconnected, c.State())
	require.Equal(t, "root mismatch", got.Reason)
	require.Equal(t, accounts.Slot(0), c.LocalSlot())
	require.Equal(t, 0, c.log.Len())
}

func TestApplyOneRaisesFraudOnHashMismatch(t *testing.T) {
	c := newTestClient(t)
	sc := sealedChange(1, [32]byte{})
	sc.NewStateRoot = [32]byte{0xAB}

	var got l2errors.FraudDetected
	c.applyOne(sc, func(f l2errors.FraudDetected) { got = f })

	require.Equal(t, StateDisconnected, c.State())
	require.Equal(t, "hash mismatch", got.Reason)
}

// TestApplyOneRequestsResyncOnSlotGap implements spec scenario 7: a
// StateChange arriving ahead of the expected next slot triggers a resync
// request instead of being (mis)applied.
func TestApplyOneRequestsResyncOnSlotGap(t *testing.T) {
	received := make(chan []byte, 8)
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}))
	t.Cleanup(httpSrv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	c := New(kv.New(), statechange.NewLog())
	c.conn = conn

	nextFrame := func() []byte {
		select {
		case data := <-received:
			return data
		case <-time.After(time.Second):
			t.Fatal("follower sent no frame")
			return nil
		}
	}

	first := sealedChange(1, [32]byte{})
	c.applyOne(first, nil)
	require.Equal(t, accounts.Slot(1), c.LocalSlot())
	require.Equal(t, wire.TagSlotVerified, wire.Tag(nextFrame()[0]))

	skipped := sealedChange(5, first.NewStateRoot)
	c.applyOne(skipped, nil)

	require.Equal(t, accounts.Slot(1), c.LocalSlot(), "out-of-order slot must not be applied")

	frame := nextFrame()
	require.Equal(t, wire.TagSyncRequest, wire.Tag(frame[0]))
	req, err := wire.DecodeSyncRequest(frame[1:])
	require.NoError(t, err)
	require.Equal(t, accounts.Slot(2), req.FromSlot)
}
