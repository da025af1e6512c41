package wsframe

import (
	"encoding/binary"
	"math"
)

/*************************************************************************************************/
/* RSV BITS                                                                                      */
/*************************************************************************************************/

// Bitmask of the three reserved header bits. Values match the bit positions in the first byte of
// a frame header so they can be OR-ed directly into it.
type RsvBits byte

const (
	Rsv1 RsvBits = 0x40
	Rsv2 RsvBits = 0x20
	Rsv3 RsvBits = 0x10
)

/*************************************************************************************************/
/* HEADER                                                                                        */
/*************************************************************************************************/

const (
	// Max. payload length of a control frame
	MaxControlPayloadLength = 125
	// Max. header length: 2 bytes + 8 bytes extended payload length + 4 bytes mask key
	MaxHeaderLength = 14
)

// Decoded view over a frame header.
type Header struct {
	// Final fragment of a message
	Fin bool
	// Reserved bits
	Rsv1 bool
	Rsv2 bool
	Rsv3 bool
	// Frame opcode
	Opcode Opcode
	// Whether the payload is masked
	Masked bool
	// Payload length as declared in the header
	PayloadLength uint64
	// Masking key. Only meaningful when Masked is true.
	MaskKey [4]byte
	// Offset of the masking key from the start of the frame. Only meaningful when Masked is true.
	MaskingKeyOffset int
	// Length of the header, including the masking key
	HeaderLength int
}

// Returns the reserved bits set in the header.
func (hdr Header) ReservedBits() RsvBits {
	var bits RsvBits
	if hdr.Rsv1 {
		bits |= Rsv1
	}
	if hdr.Rsv2 {
		bits |= Rsv2
	}
	if hdr.Rsv3 {
		bits |= Rsv3
	}
	return bits
}

// Set Rsv1, Rsv2 and Rsv3 from the provided bitmask.
func (hdr *Header) SetReservedBits(bits RsvBits) {
	hdr.Rsv1 = bits&Rsv1 != 0
	hdr.Rsv2 = bits&Rsv2 != 0
	hdr.Rsv3 = bits&Rsv3 != 0
}

// Total length of the frame (header + payload).
func (hdr Header) FrameLength() uint64 {
	return uint64(hdr.HeaderLength) + hdr.PayloadLength
}

// # Description
//
// Try to decode a frame header from the start of buf.
//
// The function never reads past len(buf). It returns false if buf does not hold the full header
// yet (2 bytes prefix, extended payload length and masking key). The payload itself does not have
// to be present: use Header.FrameLength to know how many bytes the whole frame requires.
//
// # Inputs
//
//   - buf: Bytes received so far. Frame must start at offset 0.
//   - maxPayload: Max. accepted payload length. 0 disables the check.
//
// # Returns
//
// The decoded header and true when the header is complete. An error is returned when the 64 bits
// extended length has its most significant bit set (1002) or when the declared payload length is
// above maxPayload (1009). Errors are always ProtocolError.
func TryDecodeHeader(buf []byte, maxPayload uint64) (Header, bool, error) {
	if len(buf) < 2 {
		// Not enough bytes for the fixed prefix
		return Header{}, false, nil
	}
	hdr := Header{
		Fin:    buf[0]&0x80 != 0,
		Rsv1:   buf[0]&byte(Rsv1) != 0,
		Rsv2:   buf[0]&byte(Rsv2) != 0,
		Rsv3:   buf[0]&byte(Rsv3) != 0,
		Opcode: Opcode(buf[0] & 0x0F),
		Masked: buf[1]&0x80 != 0,
	}
	length := uint64(buf[1] & 0x7F)
	offset := 2
	switch length {
	case 126:
		// 16 bits extended payload length
		if len(buf) < 4 {
			return Header{}, false, nil
		}
		length = uint64(binary.BigEndian.Uint16(buf[2:4]))
		offset = 4
	case 127:
		// 64 bits extended payload length
		if len(buf) < 10 {
			return Header{}, false, nil
		}
		length = binary.BigEndian.Uint64(buf[2:10])
		if length > math.MaxInt64 {
			return Header{}, false, protocolErrorf(ProtocolErrorCode, "most significant bit of 64 bits payload length is set")
		}
		offset = 10
	}
	if hdr.Masked {
		// Masking key follows the length field
		if len(buf) < offset+4 {
			return Header{}, false, nil
		}
		hdr.MaskingKeyOffset = offset
		copy(hdr.MaskKey[:], buf[offset:offset+4])
		offset += 4
	}
	hdr.PayloadLength = length
	hdr.HeaderLength = offset
	if maxPayload > 0 && length > maxPayload {
		return Header{}, false, protocolErrorf(MessageTooBig, "frame payload of %d bytes exceeds limit of %d bytes", length, maxPayload)
	}
	return hdr, true, nil
}

// Returns the length of the header needed to encode a payload of the provided length.
func HeaderLength(payloadLength uint64, masked bool) int {
	n := 2
	switch {
	case payloadLength > math.MaxUint16:
		n += 8
	case payloadLength > 125:
		n += 2
	}
	if masked {
		n += 4
	}
	return n
}

// # Description
//
// Append the wire representation of hdr to dst and return the extended slice. The function uses
// the most compact length encoding and writes the masking key when hdr.Masked is true.
// MaskingKeyOffset and HeaderLength are ignored.
func AppendHeader(dst []byte, hdr Header) []byte {
	b0 := byte(hdr.Opcode&0x0F) | byte(hdr.ReservedBits())
	if hdr.Fin {
		b0 |= 0x80
	}
	var b1 byte
	if hdr.Masked {
		b1 = 0x80
	}
	switch {
	case hdr.PayloadLength > math.MaxUint16:
		dst = append(dst, b0, b1|127)
		dst = binary.BigEndian.AppendUint64(dst, hdr.PayloadLength)
	case hdr.PayloadLength > 125:
		dst = append(dst, b0, b1|126)
		dst = binary.BigEndian.AppendUint16(dst, uint16(hdr.PayloadLength))
	default:
		dst = append(dst, b0, b1|byte(hdr.PayloadLength))
	}
	if hdr.Masked {
		dst = append(dst, hdr.MaskKey[:]...)
	}
	return dst
}
