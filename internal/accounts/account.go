// Package accounts defines the on-chain account tuple and its canonical,
// byte-exact encoding. That encoding is the persisted form used by
// internal/persistence. The wire (internal/wire) and state-root hashing
// (internal/statechange) layers encode an AccountWrite with their own
// layouts, which carry neither Executable nor RentEpoch.
package accounts

import (
	"encoding/binary"
	"errors"
)

// Key is an opaque 32-byte account identifier. Equality and hashing are by
// byte value; the core never interprets its contents.
type Key [32]byte

// IsZero reports whether k is the all-zero key, used as the sentinel
// "no account yet" owner/root value.
func (k Key) IsZero() bool {
	return k == Key{}
}

// Slot is a monotonically increasing tick number.
type Slot uint64

// Account is the full account tuple stored in the account store, persisted
// to disk and carried (minus Executable/RentEpoch, see AccountWrite) over
// the wire.
type Account struct {
	Lamports   uint64
	Owner      Key
	Executable bool
	Data       []byte
	// RentEpoch is carried byte-for-byte through persistence and encoding
	// for fidelity with the original account tuple; the core performs no
	// rent accounting and never reads this field (Non-goal).
	RentEpoch uint64
}

// ErrDataTooLarge is returned by Validate when Data exceeds the configured
// per-account ceiling.
var ErrDataTooLarge = errors.New("accounts: account data exceeds configured size ceiling")

// Validate enforces the data-length ceiling invariant. maxDataLen of 0
// disables the check.
func (a *Account) Validate(maxDataLen int) error {
	if maxDataLen > 0 && len(a.Data) > maxDataLen {
		return ErrDataTooLarge
	}
	return nil
}

// Clone returns a deep copy so callers can mutate Data without aliasing the
// version stored in the account store.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Data != nil {
		out.Data = append([]byte(nil), a.Data...)
	}
	return &out
}

// Encode serializes an Account using the little-endian, length-prefixed
// canonical form: lamports:u64, owner[32], executable:u8, data_len:u32,
// data, rent_epoch:u64. This is the format persisted by internal/persistence
// and is independent of the wire AccountWrite encoding, which omits
// Executable and RentEpoch since they are not part of a StateChange write.
func (a *Account) Encode() []byte {
	buf := make([]byte, 8+32+1+4+len(a.Data)+8)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], a.Lamports)
	off += 8
	copy(buf[off:], a.Owner[:])
	off += 32
	if a.Executable {
		buf[off] = 1
	}
	off++
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(a.Data)))
	off += 4
	copy(buf[off:], a.Data)
	off += len(a.Data)
	binary.LittleEndian.PutUint64(buf[off:], a.RentEpoch)
	return buf
}

// ErrShortBuffer is returned by Decode when buf is truncated relative to
// its own length prefixes.
var ErrShortBuffer = errors.New("accounts: buffer too short to decode account")

// Decode is the inverse of Encode.
func Decode(buf []byte) (*Account, error) {
	const fixedHeader = 8 + 32 + 1 + 4
	if len(buf) < fixedHeader {
		return nil, ErrShortBuffer
	}
	a := &Account{}
	off := 0
	a.Lamports = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	copy(a.Owner[:], buf[off:off+32])
	off += 32
	a.Executable = buf[off] != 0
	off++
	dataLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+dataLen+8 {
		return nil, ErrShortBuffer
	}
	a.Data = append([]byte(nil), buf[off:off+dataLen]...)
	off += dataLen
	a.RentEpoch = binary.LittleEndian.Uint64(buf[off:])
	return a, nil
}
