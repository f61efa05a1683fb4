package accounts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountEncodeDecodeRoundTrip(t *testing.T) {
	a := &Account{
		Lamports:   42,
		Owner:      Key{0x22},
		Executable: true,
		Data:       []byte{0xAA, 0xBB, 0xCC},
		RentEpoch:  7,
	}
	decoded, err := Decode(a.Encode())
	require.NoError(t, err)
	require.Equal(t, a, decoded)
}

func TestAccountEncodeDecodeEmptyData(t *testing.T) {
	a := &Account{Lamports: 1, Owner: Key{}, Data: nil}
	decoded, err := Decode(a.Encode())
	require.NoError(t, err)
	require.Equal(t, uint64(1), decoded.Lamports)
	require.Empty(t, decoded.Data)
}

func TestAccountDecodeShortBuffer(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestAccountValidate(t *testing.T) {
	a := &Account{Data: make([]byte, 100)}
	require.NoError(t, a.Validate(0))
	require.NoError(t, a.Validate(100))
	require.ErrorIs(t, a.Validate(99), ErrDataTooLarge)
}

func TestAccountCloneIsIndependent(t *testing.T) {
	a := &Account{Data: []byte{1, 2, 3}}
	clone := a.Clone()
	clone.Data[0] = 99
	require.Equal(t, byte(1), a.Data[0])
}
