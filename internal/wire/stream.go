package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame so a corrupt or hostile peer cannot
// make a reader allocate unbounded memory from a forged length prefix.
const MaxFrameSize = 64 << 20 // 64 MiB

// WriteFrame writes a u32 length prefix followed by payload to w. payload
// is expected to already carry its tag byte (see EncodeFrame).
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame from r and returns its tag and
// body (tag byte stripped).
func ReadFrame(r io.Reader) (Tag, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 {
		return 0, nil, fmt.Errorf("wire: empty frame")
	}
	if n > MaxFrameSize {
		return 0, nil, fmt.Errorf("wire: frame of %d bytes exceeds max %d", n, MaxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, err
	}
	return Tag(buf[0]), buf[1:], nil
}
