// Package wire implements the binary frame protocol between the broadcast
// server and follower clients. One byte of tag, then a type-specific body;
// StateChange uses the canonical little-endian, length-prefixed encoding.
// The state-root hash is computed by internal/statechange over a separate
// preimage without counts or length prefixes.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/nodeforge/l2chain/internal/accounts"
	"github.com/nodeforge/l2chain/internal/statechange"
)

// Tag identifies the frame body that follows.
type Tag byte

const (
	TagStateChange    Tag = 0x01
	TagSyncRequest    Tag = 0x02
	TagSyncResponse   Tag = 0x03
	TagSlotVerified   Tag = 0x04
	TagFraudChallenge Tag = 0x05
	TagHeartbeat      Tag = 0x06
)

// SyncRequest asks the leader to replay its log from a slot.
type SyncRequest struct {
	FromSlot accounts.Slot
}

// SyncResponse carries a batch of StateChanges answering a SyncRequest.
type SyncResponse struct {
	Changes []*statechange.StateChange
}

// SlotVerified is sent by a follower once it has applied and re-hashed a
// slot successfully.
type SlotVerified struct {
	Slot       accounts.Slot
	FollowerID [32]byte
}

// FraudChallenge is sent by a follower (or logged by the leader) on
// divergence.
type FraudChallenge struct {
	Slot     accounts.Slot
	Reason   string
	Evidence []byte
}

// Heartbeat keeps an idle connection alive so followers can tell silence
// from death.
type Heartbeat struct {
	Slot accounts.Slot
}

// EncodeStateChange is the canonical StateChange wire encoding: slot,
// prev root, new root, timestamp, writes (count + each write), leader
// signature, all little-endian / length-prefixed. It is not the hash
// preimage; see statechange.StateChange.ComputeHash.
func EncodeStateChange(sc *statechange.StateChange) []byte {
	size := 8 + 32 + 32 + 8 + 4
	for _, w := range sc.Writes {
		size += 32 + 4 + len(w.Data) + 8 + 32
	}
	size += 4 + len(sc.LeaderSignature)

	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], uint64(sc.Slot))
	off += 8
	copy(buf[off:], sc.PrevStateRoot[:])
	off += 32
	copy(buf[off:], sc.NewStateRoot[:])
	off += 32
	binary.LittleEndian.PutUint64(buf[off:], sc.TimestampMs)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(sc.Writes)))
	off += 4
	for _, w := range sc.Writes {
		copy(buf[off:], w.Key[:])
		off += 32
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(w.Data)))
		off += 4
		copy(buf[off:], w.Data)
		off += len(w.Data)
		binary.LittleEndian.PutUint64(buf[off:], w.Lamports)
		off += 8
		copy(buf[off:], w.Owner[:])
		off += 32
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(sc.LeaderSignature)))
	off += 4
	copy(buf[off:], sc.LeaderSignature)
	return buf
}

// ErrTruncated is returned by the Decode* functions when buf ends before a
// declared length prefix is satisfied.
var ErrTruncated = fmt.Errorf("wire: frame truncated")

// DecodeStateChange is the inverse of EncodeStateChange.
func DecodeStateChange(buf []byte) (*statechange.StateChange, error) {
	const fixed = 8 + 32 + 32 + 8 + 4
	if len(buf) < fixed {
		return nil, ErrTruncated
	}
	sc := &statechange.StateChange{}
	off := 0
	sc.Slot = accounts.Slot(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	copy(sc.PrevStateRoot[:], buf[off:off+32])
	off += 32
	copy(sc.NewStateRoot[:], buf[off:off+32])
	off += 32
	sc.TimestampMs = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	count := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	sc.Writes = make([]statechange.AccountWrite, 0, count)
	for i := 0; i < count; i++ {
		if len(buf) < off+32+4 {
			return nil, ErrTruncated
		}
		var w statechange.AccountWrite
		copy(w.Key[:], buf[off:off+32])
		off += 32
		dataLen := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		if len(buf) < off+dataLen+8+32 {
			return nil, ErrTruncated
		}
		w.Data = append([]byte(nil), buf[off:off+dataLen]...)
		off += dataLen
		w.Lamports = binary.LittleEndian.Uint64(buf[off:])
		off += 8
		copy(w.Owner[:], buf[off:off+32])
		off += 32
		sc.Writes = append(sc.Writes, w)
	}
	if len(buf) < off+4 {
		return nil, ErrTruncated
	}
	sigLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+sigLen {
		return nil, ErrTruncated
	}
	sc.LeaderSignature = append([]byte(nil), buf[off:off+sigLen]...)
	return sc, nil
}

// EncodeFrame prefixes a body with its tag. A stream transport adds the
// outer length prefix with WriteFrame; internal/broadcast and
// internal/follower send one frame per websocket message and add none.
func EncodeFrame(tag Tag, body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = byte(tag)
	copy(out[1:], body)
	return out
}

func encodeString(s string) []byte {
	b := make([]byte, 2+len(s))
	binary.LittleEndian.PutUint16(b, uint16(len(s)))
	copy(b[2:], s)
	return b
}

func decodeString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, ErrTruncated
	}
	n := int(binary.LittleEndian.Uint16(buf))
	if len(buf) < 2+n {
		return "", nil, ErrTruncated
	}
	return string(buf[2 : 2+n]), buf[2+n:], nil
}

func encodeBytes32(buf []byte) []byte {
	b := make([]byte, 4+len(buf))
	binary.LittleEndian.PutUint32(b, uint32(len(buf)))
	copy(b[4:], buf)
	return b
}

func decodeBytes32(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, ErrTruncated
	}
	n := int(binary.LittleEndian.Uint32(buf))
	if len(buf) < 4+n {
		return nil, nil, ErrTruncated
	}
	return append([]byte(nil), buf[4:4+n]...), buf[4+n:], nil
}

// EncodeSyncRequest encodes {from_slot: u64}.
func EncodeSyncRequest(r SyncRequest) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(r.FromSlot))
	return b
}

// DecodeSyncRequest is the inverse of EncodeSyncRequest.
func DecodeSyncRequest(buf []byte) (SyncRequest, error) {
	if len(buf) < 8 {
		return SyncRequest{}, ErrTruncated
	}
	return SyncRequest{FromSlot: accounts.Slot(binary.LittleEndian.Uint64(buf))}, nil
}

// EncodeSyncResponse encodes {count: u32, then that many StateChanges}.
func EncodeSyncResponse(r SyncResponse) []byte {
	parts := make([][]byte, len(r.Changes))
	total := 4
	for i, sc := range r.Changes {
		parts[i] = EncodeStateChange(sc)
		total += len(parts[i])
	}
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf, uint32(len(r.Changes)))
	off := 4
	for _, p := range parts {
		copy(buf[off:], p)
		off += len(p)
	}
	return buf
}

// DecodeSyncResponse is the inverse of EncodeSyncResponse.
func DecodeSyncResponse(buf []byte) (SyncResponse, error) {
	if len(buf) < 4 {
		return SyncResponse{}, ErrTruncated
	}
	count := int(binary.LittleEndian.Uint32(buf))
	off := 4
	changes := make([]*statechange.StateChange, 0, count)
	for i := 0; i < count; i++ {
		sc, err := DecodeStateChange(buf[off:])
		if err != nil {
			return SyncResponse{}, err
		}
		changes = append(changes, sc)
		off += len(EncodeStateChange(sc))
	}
	return SyncResponse{Changes: changes}, nil
}

// EncodeSlotVerified encodes {slot: u64, follower_id: [32]byte}.
func EncodeSlotVerified(v SlotVerified) []byte {
	b := make([]byte, 8+32)
	binary.LittleEndian.PutUint64(b, uint64(v.Slot))
	copy(b[8:], v.FollowerID[:])
	return b
}

// DecodeSlotVerified is the inverse of EncodeSlotVerified.
func DecodeSlotVerified(buf []byte) (SlotVerified, error) {
	if len(buf) < 8+32 {
		return SlotVerified{}, ErrTruncated
	}
	var v SlotVerified
	v.Slot = accounts.Slot(binary.LittleEndian.Uint64(buf))
	copy(v.FollowerID[:], buf[8:40])
	return v, nil
}

// EncodeFraudChallenge encodes {slot: u64, reason: string(u16-prefixed),
// evidence: bytes(u32-prefixed)}.
func EncodeFraudChallenge(c FraudChallenge) []byte {
	slotB := make([]byte, 8)
	binary.LittleEndian.PutUint64(slotB, uint64(c.Slot))
	reasonB := encodeString(c.Reason)
	evidenceB := encodeBytes32(c.Evidence)
	out := make([]byte, 0, len(slotB)+len(reasonB)+len(evidenceB))
	out = append(out, slotB...)
	out = append(out, reasonB...)
	out = append(out, evidenceB...)
	return out
}

// DecodeFraudChallenge is the inverse of EncodeFraudChallenge.
func DecodeFraudChallenge(buf []byte) (FraudChallenge, error) {
	if len(buf) < 8 {
		return FraudChallenge{}, ErrTruncated
	}
	var c FraudChallenge
	c.Slot = accounts.Slot(binary.LittleEndian.Uint64(buf))
	rest := buf[8:]
	reason, rest, err := decodeString(rest)
	if err != nil {
		return FraudChallenge{}, err
	}
	c.Reason = reason
	evidence, _, err := decodeBytes32(rest)
	if err != nil {
		return FraudChallenge{}, err
	}
	c.Evidence = evidence
	return c, nil
}

// EncodeHeartbeat encodes {slot: u64}.
func EncodeHeartbeat(h Heartbeat) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(h.Slot))
	return b
}

// DecodeHeartbeat is the inverse of EncodeHeartbeat.
func DecodeHeartbeat(buf []byte) (Heartbeat, error) {
	if len(buf) < 8 {
		return Heartbeat{}, ErrTruncated
	}
	return Heartbeat{Slot: accounts.Slot(binary.LittleEndian.Uint64(buf))}, nil
}
