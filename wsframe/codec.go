package wsframe

import (
	"errors"
	"fmt"
)

// Returned by DecodePayload when buf does not hold the whole frame.
var ErrIncompleteFrame = errors.New("incomplete frame")

// A decoded frame.
type Frame struct {
	Header  Header
	Payload []byte
}

// # Description
//
// Extract the payload of the frame described by hdr from buf. A masked payload is unmasked in
// place, so the function must be called only once per frame. Extensions active for the frame are
// then applied in reverse order.
//
// # Returns
//
// The payload. When no extension has been applied, the returned slice aliases buf.
func DecodePayload(buf []byte, hdr Header, exts []Extension) ([]byte, error) {
	end := hdr.FrameLength()
	if uint64(len(buf)) < end {
		return nil, ErrIncompleteFrame
	}
	payload := buf[hdr.HeaderLength:end]
	if hdr.Masked {
		Mask(hdr.MaskKey, 0, payload)
	}
	if len(exts) == 0 {
		return payload, nil
	}
	return TransformIncoming(hdr, payload, exts)
}

// # Description
//
// Decode the frame at the start of buf.
//
// # Returns
//
// The frame and the number of bytes it occupies in buf. When buf does not hold a whole frame
// yet, the function returns a nil frame, 0 and a nil error.
func DecodeFrame(buf []byte, maxPayload uint64, exts []Extension) (*Frame, int, error) {
	hdr, ok, err := TryDecodeHeader(buf, maxPayload)
	if err != nil || !ok {
		return nil, 0, err
	}
	if uint64(len(buf)) < hdr.FrameLength() {
		return nil, 0, nil
	}
	payload, err := DecodePayload(buf, hdr, exts)
	if err != nil {
		return nil, 0, err
	}
	return &Frame{Header: hdr, Payload: payload}, int(hdr.FrameLength()), nil
}

// # Description
//
// Build a frame. Extensions are applied in order on text and binary payloads before masking.
// A fresh masking key is generated when masked is true (client to server frames).
//
// The provided payload is never modified.
//
// # Returns
//
// The frame bytes or an error if the frame cannot be built (control frame rules, reserved opcode,
// extension failure, random source failure).
func EncodeFrame(opcode Opcode, payload []byte, fin bool, masked bool, exts []Extension) ([]byte, error) {
	var key [4]byte
	if masked {
		var err error
		key, err = NewMaskKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate masking key: %w", err)
		}
	}
	return EncodeFrameWithKey(opcode, payload, fin, masked, exts, key)
}

// Same as EncodeFrame but with a caller provided masking key.
func EncodeFrameWithKey(opcode Opcode, payload []byte, fin bool, masked bool, exts []Extension, key [4]byte) ([]byte, error) {
	if opcode.IsReserved() {
		return nil, ErrReservedOpcode
	}
	if opcode.IsControl() {
		if !fin {
			return nil, ErrFragmentedControlFrame
		}
		if len(payload) > MaxControlPayloadLength {
			return nil, ErrControlFrameTooLong
		}
	}
	var bits RsvBits
	if len(exts) > 0 && (opcode == OpText || opcode == OpBinary) {
		var err error
		payload, bits, err = TransformOutgoing(opcode, payload, exts)
		if err != nil {
			return nil, err
		}
	}
	hdr := Header{
		Fin:           fin,
		Opcode:        opcode,
		Masked:        masked,
		PayloadLength: uint64(len(payload)),
		MaskKey:       key,
	}
	hdr.SetReservedBits(bits)
	out := make([]byte, 0, HeaderLength(hdr.PayloadLength, masked)+len(payload))
	out = AppendHeader(out, hdr)
	start := len(out)
	out = append(out, payload...)
	if masked {
		Mask(key, 0, out[start:])
	}
	return out, nil
}
