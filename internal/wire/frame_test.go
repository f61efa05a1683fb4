package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodeforge/l2chain/internal/accounts"
	"github.com/nodeforge/l2chain/internal/statechange"
)

func TestStateChangeEncodeDecodeRoundTrip(t *testing.T) {
	sc := statechange.New(10, [32]byte{0x01}, 12345)
	sc.AppendWrite(statechange.AccountWrite{
		Key: accounts.Key{0x11}, Data: []byte{0xAA, 0xBB}, Lamports: 42, Owner: accounts.Key{0x22},
	})
	require.True(t, sc.Seal())
	sc.LeaderSignature = []byte{0xDE, 0xAD, 0xBE, 0xEF}

	decoded, err := DecodeStateChange(EncodeStateChange(sc))
	require.NoError(t, err)
	require.Equal(t, sc.Slot, decoded.Slot)
	require.Equal(t, sc.PrevStateRoot, decoded.PrevStateRoot)
	require.Equal(t, sc.NewStateRoot, decoded.NewStateRoot)
	require.Equal(t, sc.Writes, decoded.Writes)
	require.Equal(t, sc.LeaderSignature, decoded.LeaderSignature)
}

func TestDecodeStateChangeTruncated(t *testing.T) {
	_, err := DecodeStateChange([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestSyncRequestRoundTrip(t *testing.T) {
	req := SyncRequest{FromSlot: 77}
	decoded, err := DecodeSyncRequest(EncodeSyncRequest(req))
	require.NoError(t, err)
	require.Equal(t, req, decoded)
}

func TestFraudChallengeRoundTrip(t *testing.T) {
	c := FraudChallenge{Slot: 9, Reason: "hash mismatch", Evidence: []byte{1, 2, 3}}
	decoded, err := DecodeFraudChallenge(EncodeFraudChallenge(c))
	require.NoError(t, err)
	require.Equal(t, c, decoded)
}

func TestSlotVerifiedRoundTrip(t *testing.T) {
	v := SlotVerified{Slot: 3, FollowerID: [32]byte{0x01, 0x02}}
	decoded, err := DecodeSlotVerified(EncodeSlotVerified(v))
	require.NoError(t, err)
	require.Equal(t, v, decoded)
}

func TestHeartbeatRoundTrip(t *testing.T) {
	h := Heartbeat{Slot: 42}
	decoded, err := DecodeHeartbeat(EncodeHeartbeat(h))
	require.NoError(t, err)
	require.Equal(t, h, decoded)
}

func TestStreamWriteReadFrame(t *testing.T) {
	var buf bytes.Buffer
	body := EncodeFrame(TagHeartbeat, EncodeHeartbeat(Heartbeat{Slot: 5}))
	require.NoError(t, WriteFrame(&buf, body))

	tag, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, TagHeartbeat, tag)
	h, err := DecodeHeartbeat(payload)
	require.NoError(t, err)
	require.Equal(t, accounts.Slot(5), h.Slot)
}
