package wsframe

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for frame codec unit tests
type FrameCodecUnitTestSuite struct {
	suite.Suite
}

// Run FrameCodecUnitTestSuite test suite
func TestFrameCodecUnitTestSuite(t *testing.T) {
	suite.Run(t, new(FrameCodecUnitTestSuite))
}

/*************************************************************************************************/
/* TEST HELPERS                                                                                  */
/*************************************************************************************************/

// Extension used in tests: appends a tag byte to outgoing payloads and strips it from incoming
// payloads.
type tagExtension struct {
	name string
	bits RsvBits
	tag  byte
}

func (ext *tagExtension) Name() string          { return ext.name }
func (ext *tagExtension) ReservedBits() RsvBits { return ext.bits }
func (ext *tagExtension) IsActiveFor(hdr Header) bool {
	return hdr.ReservedBits()&ext.bits != 0
}

func (ext *tagExtension) TransformOutgoing(opcode Opcode, payload []byte) ([]byte, bool, error) {
	out := make([]byte, len(payload), len(payload)+1)
	copy(out, payload)
	return append(out, ext.tag), true, nil
}

func (ext *tagExtension) TransformIncoming(hdr Header, payload []byte) ([]byte, error) {
	if len(payload) == 0 || payload[len(payload)-1] != ext.tag {
		return nil, fmt.Errorf("%s: missing tag", ext.name)
	}
	return payload[:len(payload)-1], nil
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// # Description
//
// Encode and decode frames for every combination of opcode, fin, mask flag and payload sizes that
// exercise the three length encodings. Decoded frames must match the encoded ones.
func (suite *FrameCodecUnitTestSuite) TestRoundTrip() {
	sizes := []int{0, 1, 125, 126, 127, 1000, 65535, 65536, 70000}
	opcodes := []Opcode{OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong}
	for _, op := range opcodes {
		for _, size := range sizes {
			for _, fin := range []bool{true, false} {
				for _, masked := range []bool{true, false} {
					if op.IsControl() && (!fin || size > MaxControlPayloadLength) {
						continue
					}
					payload := bytes.Repeat([]byte{0xA5, 0x01, 0x7F}, size/3+1)[:size]
					original := append([]byte(nil), payload...)
					raw, err := EncodeFrame(op, payload, fin, masked, nil)
					require.NoError(suite.T(), err)
					// Caller payload must not be modified
					require.Equal(suite.T(), original, payload)
					frame, n, err := DecodeFrame(raw, 0, nil)
					require.NoError(suite.T(), err)
					require.NotNil(suite.T(), frame)
					require.Equal(suite.T(), len(raw), n)
					require.Equal(suite.T(), op, frame.Header.Opcode)
					require.Equal(suite.T(), fin, frame.Header.Fin)
					require.Equal(suite.T(), masked, frame.Header.Masked)
					require.Equal(suite.T(), uint64(size), frame.Header.PayloadLength)
					require.Equal(suite.T(), HeaderLength(uint64(size), masked), frame.Header.HeaderLength)
					require.True(suite.T(), bytes.Equal(original, frame.Payload))
				}
			}
		}
	}
}

// Test header length selection for the three length encodings.
func (suite *FrameCodecUnitTestSuite) TestHeaderLength() {
	require.Equal(suite.T(), 2, HeaderLength(125, false))
	require.Equal(suite.T(), 6, HeaderLength(125, true))
	require.Equal(suite.T(), 4, HeaderLength(126, false))
	require.Equal(suite.T(), 4, HeaderLength(65535, false))
	require.Equal(suite.T(), 10, HeaderLength(65536, false))
	require.Equal(suite.T(), MaxHeaderLength, HeaderLength(65536, true))
}

// Masking twice with the same key must restore the original payload, whatever the chunking.
func (suite *FrameCodecUnitTestSuite) TestMaskIsInvolution() {
	key := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	original := []byte("Hello, this payload is long enough to exercise the 8 bytes fast path!")
	payload := append([]byte(nil), original...)
	Mask(key, 0, payload)
	require.NotEqual(suite.T(), original, payload)
	// Unmask in uneven chunks
	pos := 0
	pos = Mask(key, pos, payload[:3])
	pos = Mask(key, pos, payload[3:20])
	Mask(key, pos, payload[20:])
	require.Equal(suite.T(), original, payload)
}

// Test the RFC 6455 masked "Hello" example frame.
func (suite *FrameCodecUnitTestSuite) TestRFCMaskedHelloExample() {
	raw := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}
	frame, n, err := DecodeFrame(raw, 0, nil)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), len(raw), n)
	require.Equal(suite.T(), OpText, frame.Header.Opcode)
	require.True(suite.T(), frame.Header.Fin)
	require.Equal(suite.T(), 2, frame.Header.MaskingKeyOffset)
	require.Equal(suite.T(), "Hello", string(frame.Payload))
	// Encoding with the same key produces the same bytes
	encoded, err := EncodeFrameWithKey(OpText, []byte("Hello"), true, true, nil, [4]byte{0x37, 0xfa, 0x21, 0x3d})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}, encoded)
}

// # Description
//
// Feed the bytes of a frame in chunks of every size. Exactly one frame must be decoded, only once
// all bytes are available, and it must match the encoded frame.
func (suite *FrameCodecUnitTestSuite) TestPartialFrameBuffering() {
	payload := bytes.Repeat([]byte("partial"), 50)
	raw, err := EncodeFrame(OpBinary, payload, true, true, nil)
	require.NoError(suite.T(), err)
	for chunk := 1; chunk <= len(raw); chunk++ {
		var acc []byte
		decoded := 0
		var frame *Frame
		for start := 0; start < len(raw); start += chunk {
			end := start + chunk
			if end > len(raw) {
				end = len(raw)
			}
			acc = append(acc, raw[start:end]...)
			// Work on a copy as decoding unmasks in place
			f, n, err := DecodeFrame(append([]byte(nil), acc...), 0, nil)
			require.NoError(suite.T(), err)
			if f != nil {
				require.Equal(suite.T(), len(raw), n)
				require.Equal(suite.T(), len(raw), len(acc))
				decoded++
				frame = f
			}
		}
		require.Equal(suite.T(), 1, decoded, "chunk size %d", chunk)
		require.Equal(suite.T(), payload, frame.Payload)
	}
}

// TryDecodeHeader must report an incomplete header while the extended length or mask is missing.
func (suite *FrameCodecUnitTestSuite) TestTryDecodeHeaderIncomplete() {
	raw, err := EncodeFrame(OpBinary, make([]byte, 70000), true, true, nil)
	require.NoError(suite.T(), err)
	for i := 0; i < MaxHeaderLength; i++ {
		_, ok, err := TryDecodeHeader(raw[:i], 0)
		require.NoError(suite.T(), err)
		require.False(suite.T(), ok)
	}
	hdr, ok, err := TryDecodeHeader(raw[:MaxHeaderLength], 0)
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	require.Equal(suite.T(), uint64(70000), hdr.PayloadLength)
	require.Equal(suite.T(), uint64(70000+MaxHeaderLength), hdr.FrameLength())
}

// A 64 bits payload length with its most significant bit set is a protocol error.
func (suite *FrameCodecUnitTestSuite) TestTryDecodeHeaderLengthTopBit() {
	raw := []byte{0x82, 127, 0x80, 0, 0, 0, 0, 0, 0, 1}
	_, ok, err := TryDecodeHeader(raw, 0)
	require.False(suite.T(), ok)
	var perr ProtocolError
	require.True(suite.T(), errors.As(err, &perr))
	require.Equal(suite.T(), ProtocolErrorCode, perr.Code)
}

// A declared payload above the limit is rejected from the header alone.
func (suite *FrameCodecUnitTestSuite) TestTryDecodeHeaderTooBig() {
	// Header declares 1 MiB, no payload byte is present
	raw := []byte{0x82, 127, 0, 0, 0, 0, 0, 0x10, 0, 0}
	_, _, err := TryDecodeHeader(raw, 1024)
	var perr ProtocolError
	require.ErrorAs(suite.T(), err, &perr)
	require.Equal(suite.T(), MessageTooBig, perr.Code)
	// Same header is accepted without limit
	hdr, ok, err := TryDecodeHeader(raw, 0)
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	require.Equal(suite.T(), uint64(1<<20), hdr.PayloadLength)
}

// Test control frame encoding rules and reserved opcodes.
func (suite *FrameCodecUnitTestSuite) TestEncodeFrameRules() {
	_, err := EncodeFrame(OpPing, make([]byte, 126), true, false, nil)
	require.ErrorIs(suite.T(), err, ErrControlFrameTooLong)
	_, err = EncodeFrame(OpClose, nil, false, false, nil)
	require.ErrorIs(suite.T(), err, ErrFragmentedControlFrame)
	_, err = EncodeFrame(Opcode(0x3), nil, true, false, nil)
	require.ErrorIs(suite.T(), err, ErrReservedOpcode)
	// Zero-length control frames are fine
	raw, err := EncodeFrame(OpPong, nil, true, false, nil)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), []byte{0x8A, 0x00}, raw)
}

// # Description
//
// Outgoing transforms must be applied in order and set the RSV bits of the extensions, incoming
// transforms must be applied in reverse order.
func (suite *FrameCodecUnitTestSuite) TestExtensionsOrder() {
	first := &tagExtension{name: "first", bits: Rsv2, tag: 'a'}
	second := &tagExtension{name: "second", bits: Rsv3, tag: 'b'}
	exts := []Extension{first, second}
	raw, err := EncodeFrame(OpText, []byte("msg"), true, true, exts)
	require.NoError(suite.T(), err)
	hdr, ok, err := TryDecodeHeader(raw, 0)
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	require.False(suite.T(), hdr.Rsv1)
	require.True(suite.T(), hdr.Rsv2)
	require.True(suite.T(), hdr.Rsv3)
	// Raw payload carries tags in application order
	plain, err := DecodePayload(append([]byte(nil), raw...), hdr, nil)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "msgab", string(plain))
	// Decoding with extensions strips them in reverse order
	payload, err := DecodePayload(raw, hdr, exts)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "msg", string(payload))
	// Control frames are never transformed
	raw, err = EncodeFrame(OpPing, []byte("p"), true, false, exts)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), []byte{0x89, 0x01, 'p'}, raw)
}

// DecodePayload refuses to read a frame which is not fully buffered.
func (suite *FrameCodecUnitTestSuite) TestDecodePayloadIncomplete() {
	raw, err := EncodeFrame(OpBinary, []byte("abcdef"), true, false, nil)
	require.NoError(suite.T(), err)
	hdr, ok, err := TryDecodeHeader(raw, 0)
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	_, err = DecodePayload(raw[:len(raw)-1], hdr, nil)
	require.ErrorIs(suite.T(), err, ErrIncompleteFrame)
}
