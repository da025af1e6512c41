package wsext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/gbdevw/gowsrfc/wsframe"
	"github.com/klauspost/compress/flate"
	"github.com/valyala/bytebufferpool"
)

const (
	// Registered token of the permessage-deflate extension
	PerMessageDeflateName = "permessage-deflate"

	paramServerNoContextTakeover = "server_no_context_takeover"
	paramClientNoContextTakeover = "client_no_context_takeover"
	paramServerMaxWindowBits     = "server_max_window_bits"
	paramClientMaxWindowBits     = "client_max_window_bits"

	// Window size used by the compressor (2^15 bytes)
	maxWindowBits = 15
	minWindowBits = 8

	// Sync flush marker stripped from compressed messages
	syncMarker = "\x00\x00\xff\xff"
	// Sync flush marker followed by a final empty stored block so the reader reaches EOF
	inflateTail = syncMarker + "\x01\x00\x00\xff\xff"
)

var (
	// The peer requested an unsupported permessage-deflate parameter value
	ErrUnsupportedDeflateParams = errors.New("unsupported permessage-deflate parameters")
	// The server response does not disable server context takeover
	ErrContextTakeoverRequired = errors.New("server must accept server_no_context_takeover")
)

// # Description
//
// Factory for the permessage-deflate extension (RFC 7692) without context takeover: every
// message is compressed and decompressed independently on both sides.
//
// The extension occupies RSV1. Only text and binary messages sent in a single frame are
// compressed by this side; compressed messages received in several frames are reassembled by the
// connection before inflating.
type PerMessageDeflate struct {
	// Compression level (flate.BestSpeed to flate.BestCompression, or flate.DefaultCompression)
	Level int
	// Payloads shorter than this are sent uncompressed
	Threshold int
	// Max. size of an inflated message. 0 disables the limit.
	MaxMessageSize int64
}

// # Description
//
// Factory which creates a new PerMessageDeflate with nice defaults.
//
// # Default settings
//
//   - Level = flate.BestSpeed
//   - Threshold = 128 bytes
//   - MaxMessageSize = 32 MiB
func NewPerMessageDeflate() *PerMessageDeflate {
	return &PerMessageDeflate{
		Level:          flate.BestSpeed,
		Threshold:      128,
		MaxMessageSize: 32 << 20,
	}
}

func (pmd *PerMessageDeflate) Name() string {
	return PerMessageDeflateName
}

func (pmd *PerMessageDeflate) ReservedBits() wsframe.RsvBits {
	return wsframe.Rsv1
}

// Client offer: no context takeover on both sides.
func (pmd *PerMessageDeflate) Offer() Offer {
	return Offer{
		Name: PerMessageDeflateName,
		Params: []Param{
			{Name: paramClientNoContextTakeover},
			{Name: paramServerNoContextTakeover},
		},
	}
}

// # Description
//
// Accept an offer unless it contains unknown or duplicated parameters, or constrains the server
// window below 15 bits. The response always disables context takeover on both sides.
func (pmd *PerMessageDeflate) NegotiateAsServer(offer Offer) (wsframe.Extension, Offer, error) {
	seen := map[string]bool{}
	for _, p := range offer.Params {
		name := strings.ToLower(p.Name)
		if seen[name] {
			return nil, Offer{}, fmt.Errorf("%w: duplicated %s", ErrUnsupportedDeflateParams, p.Name)
		}
		seen[name] = true
		switch name {
		case paramServerNoContextTakeover, paramClientNoContextTakeover:
			if p.HasValue {
				return nil, Offer{}, fmt.Errorf("%w: %s has a value", ErrUnsupportedDeflateParams, p.Name)
			}
		case paramServerMaxWindowBits:
			bits, err := parseWindowBits(p, true)
			if err != nil {
				return nil, Offer{}, err
			}
			if bits != maxWindowBits {
				return nil, Offer{}, fmt.Errorf("%w: %s=%d", ErrUnsupportedDeflateParams, p.Name, bits)
			}
		case paramClientMaxWindowBits:
			if _, err := parseWindowBits(p, false); err != nil {
				return nil, Offer{}, err
			}
		default:
			return nil, Offer{}, fmt.Errorf("%w: %s", ErrUnsupportedDeflateParams, p.Name)
		}
	}
	response := Offer{
		Name: PerMessageDeflateName,
		Params: []Param{
			{Name: paramServerNoContextTakeover},
			{Name: paramClientNoContextTakeover},
		},
	}
	ext, err := pmd.newExtension()
	if err != nil {
		return nil, Offer{}, err
	}
	return ext, response, nil
}

// # Description
//
// Accept a server response which disables server context takeover and does not constrain the
// client window below 15 bits.
func (pmd *PerMessageDeflate) NegotiateAsClient(response Offer) (wsframe.Extension, error) {
	seen := map[string]bool{}
	for _, p := range response.Params {
		name := strings.ToLower(p.Name)
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicated %s", ErrUnsupportedDeflateParams, p.Name)
		}
		seen[name] = true
		switch name {
		case paramServerNoContextTakeover, paramClientNoContextTakeover:
			if p.HasValue {
				return nil, fmt.Errorf("%w: %s has a value", ErrUnsupportedDeflateParams, p.Name)
			}
		case paramServerMaxWindowBits:
			if _, err := parseWindowBits(p, true); err != nil {
				return nil, err
			}
		case paramClientMaxWindowBits:
			bits, err := parseWindowBits(p, true)
			if err != nil {
				return nil, err
			}
			if bits != maxWindowBits {
				return nil, fmt.Errorf("%w: %s=%d", ErrUnsupportedDeflateParams, p.Name, bits)
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedDeflateParams, p.Name)
		}
	}
	if !seen[paramServerNoContextTakeover] {
		return nil, ErrContextTakeoverRequired
	}
	return pmd.newExtension()
}

// Parse a max window bits parameter. The value is optional unless required is true.
func parseWindowBits(p Param, required bool) (int, error) {
	if !p.HasValue {
		if required {
			return 0, fmt.Errorf("%w: %s requires a value", ErrUnsupportedDeflateParams, p.Name)
		}
		return maxWindowBits, nil
	}
	bits, err := strconv.Atoi(p.Value)
	if err != nil || bits < minWindowBits || bits > maxWindowBits {
		return 0, fmt.Errorf("%w: %s=%s", ErrUnsupportedDeflateParams, p.Name, p.Value)
	}
	return bits, nil
}

// Build the runtime extension. Fails if the compression level is invalid.
func (pmd *PerMessageDeflate) newExtension() (wsframe.Extension, error) {
	level := pmd.Level
	if _, err := flate.NewWriter(io.Discard, level); err != nil {
		return nil, err
	}
	ext := &deflateExtension{
		threshold:      pmd.Threshold,
		maxMessageSize: pmd.MaxMessageSize,
	}
	ext.writers.New = func() any {
		fw, _ := flate.NewWriter(io.Discard, level)
		return fw
	}
	return ext, nil
}

/*************************************************************************************************/
/* RUNTIME EXTENSION                                                                             */
/*************************************************************************************************/

// Negotiated permessage-deflate extension.
type deflateExtension struct {
	threshold      int
	maxMessageSize int64
	// Pool of *flate.Writer
	writers sync.Pool
	// Pool of flate readers
	readers sync.Pool
}

func (ext *deflateExtension) Name() string {
	return PerMessageDeflateName
}

func (ext *deflateExtension) ReservedBits() wsframe.RsvBits {
	return wsframe.Rsv1
}

// Compressed messages have RSV1 set on their first frame.
func (ext *deflateExtension) IsActiveFor(hdr wsframe.Header) bool {
	return hdr.Rsv1 && (hdr.Opcode == wsframe.OpText || hdr.Opcode == wsframe.OpBinary)
}

// Compress a payload when it reaches the threshold.
func (ext *deflateExtension) TransformOutgoing(opcode wsframe.Opcode, payload []byte) ([]byte, bool, error) {
	if len(payload) < ext.threshold {
		return payload, false, nil
	}
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	fw := ext.writers.Get().(*flate.Writer)
	defer ext.writers.Put(fw)
	fw.Reset(bb)
	if _, err := fw.Write(payload); err != nil {
		return nil, false, err
	}
	if err := fw.Flush(); err != nil {
		return nil, false, err
	}
	out := bytes.TrimSuffix(bb.B, []byte(syncMarker))
	return append([]byte(nil), out...), true, nil
}

// Inflate a compressed message.
func (ext *deflateExtension) TransformIncoming(hdr wsframe.Header, payload []byte) ([]byte, error) {
	src := io.MultiReader(bytes.NewReader(payload), strings.NewReader(inflateTail))
	var fr io.ReadCloser
	if pooled, ok := ext.readers.Get().(io.ReadCloser); ok {
		if err := pooled.(flate.Resetter).Reset(src, nil); err != nil {
			return nil, err
		}
		fr = pooled
	} else {
		fr = flate.NewReader(src)
	}
	defer ext.readers.Put(fr)
	var r io.Reader = fr
	if ext.maxMessageSize > 0 {
		r = io.LimitReader(fr, ext.maxMessageSize+1)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, wsframe.ProtocolError{Code: wsframe.InvalidFramePayloadData, Reason: "invalid compressed payload"}
	}
	if ext.maxMessageSize > 0 && int64(len(out)) > ext.maxMessageSize {
		return nil, wsframe.ProtocolError{Code: wsframe.MessageTooBig, Reason: "inflated message exceeds size limit"}
	}
	return out, nil
}
