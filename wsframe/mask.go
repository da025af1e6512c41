package wsframe

import (
	"crypto/rand"
	"encoding/binary"
)

// # Description
//
// XOR payload in place with the masking key. Byte i of payload is XOR-ed with key[(pos+i)%4].
// Applying the function twice with the same key and position restores the original bytes.
//
// # Inputs
//
//   - key: The 4 bytes masking key
//   - pos: Position of payload[0] in the whole masked payload. Use 0 for a full payload.
//   - payload: Bytes to mask or unmask
//
// # Returns
//
// The position to use for the next chunk of the same payload.
func Mask(key [4]byte, pos int, payload []byte) int {
	pos &= 3
	i := 0
	// Align on key boundary
	for ; i < len(payload) && pos != 0; i++ {
		payload[i] ^= key[pos]
		pos = (pos + 1) & 3
	}
	// Process 8 bytes at a time
	if n := len(payload) - i; n >= 8 {
		k := binary.LittleEndian.Uint32(key[:])
		k64 := uint64(k)<<32 | uint64(k)
		for ; len(payload)-i >= 8; i += 8 {
			v := binary.LittleEndian.Uint64(payload[i:])
			binary.LittleEndian.PutUint64(payload[i:], v^k64)
		}
	}
	// Tail
	for ; i < len(payload); i++ {
		payload[i] ^= key[pos]
		pos = (pos + 1) & 3
	}
	return pos
}

// Generate a fresh masking key from a cryptographically secure source.
func NewMaskKey() ([4]byte, error) {
	var key [4]byte
	_, err := rand.Read(key[:])
	return key, err
}
