package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainMetadataEncodeDecodeRoundTrip(t *testing.T) {
	m := ChainMetadata{
		CurrentSlot:      42,
		CurrentBlockhash: [32]byte{0x01, 0x02, 0x03},
		AccountCount:     7,
		LastSaveTsMs:     1_700_000_000_000,
	}
	decoded, err := DecodeChainMetadata(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestDecodeChainMetadataShortBuffer(t *testing.T) {
	_, err := DecodeChainMetadata([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrShortMetadata)
}
