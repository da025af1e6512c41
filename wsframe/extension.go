package wsframe

/*************************************************************************************************/
/* EXTENSION HOOKS                                                                               */
/*************************************************************************************************/

// Interface implemented by negotiated extensions which transform message payloads.
//
// Negotiated extensions are kept in an ordered list. Outgoing payloads go through the list in
// order, incoming payloads go through it in reverse order.
type Extension interface {
	// Registered extension token (e.g. permessage-deflate)
	Name() string
	// RSV bits occupied by the extension
	ReservedBits() RsvBits
	// # Description
	//
	// Returns true if the extension has transformed the payload of the frame described by hdr
	// (e.g. RSV1 is set on the first frame of a compressed message).
	IsActiveFor(hdr Header) bool
	// # Description
	//
	// Transform an outgoing message payload. The extension must not modify the provided slice.
	//
	// # Returns
	//
	// The transformed payload, whether the extension has been applied (its RSV bits must then be
	// set on the frame) and an error if any.
	TransformOutgoing(opcode Opcode, payload []byte) ([]byte, bool, error)
	// # Description
	//
	// Reverse the transformation applied by the peer on an incoming message payload. hdr is the
	// header of the first frame of the message.
	TransformIncoming(hdr Header, payload []byte) ([]byte, error)
}

// # Description
//
// Apply extensions in reverse order on an incoming payload. Only extensions which declare
// themselves active for hdr are applied. hdr must be the header of the first frame of the message.
func TransformIncoming(hdr Header, payload []byte, exts []Extension) ([]byte, error) {
	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		if !ext.IsActiveFor(hdr) {
			continue
		}
		out, err := ext.TransformIncoming(hdr, payload)
		if err != nil {
			return nil, err
		}
		payload = out
	}
	return payload, nil
}

// # Description
//
// Apply extensions in order on an outgoing payload.
//
// # Returns
//
// The transformed payload, the RSV bits to set on the first frame and an error if any.
func TransformOutgoing(opcode Opcode, payload []byte, exts []Extension) ([]byte, RsvBits, error) {
	var bits RsvBits
	for _, ext := range exts {
		out, applied, err := ext.TransformOutgoing(opcode, payload)
		if err != nil {
			return nil, 0, err
		}
		if applied {
			bits |= ext.ReservedBits()
			payload = out
		}
	}
	return payload, bits, nil
}
