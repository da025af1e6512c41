package wsconn

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/gbdevw/gowsrfc/wsbuffer"
	"github.com/gbdevw/gowsrfc/wsframe"
	"github.com/gbdevw/gowsrfc/wshandshake"
	"github.com/stretchr/testify/require"
)

/*************************************************************************************************/
/* RAW PEER                                                                                      */
/*************************************************************************************************/

// Hand driven websocket endpoint used to exercise a connection frame by frame.
type rawPeer struct {
	stream net.Conn
	acc    *wsbuffer.Accumulator
	// Whether sent frames are masked (peer acts as a client)
	masked bool
	// Extensions applied to sent and received frames
	exts []wsframe.Extension
}

func newRawPeer(stream net.Conn, masked bool) *rawPeer {
	return &rawPeer{
		stream: stream,
		acc:    wsbuffer.NewAccumulator(wsbuffer.NewFixedPool(4096)),
		masked: masked,
	}
}

// Encode and send a frame.
func (p *rawPeer) writeFrame(opcode wsframe.Opcode, payload []byte, fin bool) error {
	frame, err := wsframe.EncodeFrame(opcode, payload, fin, p.masked, p.exts)
	if err != nil {
		return err
	}
	_, err = p.stream.Write(frame)
	return err
}

// Send a frame built from hdr, bypassing the encoder rules. Length and masking are set from
// payload and p.masked.
func (p *rawPeer) writeRaw(hdr wsframe.Header, payload []byte) error {
	body := bytes.Clone(payload)
	hdr.Masked = p.masked
	hdr.PayloadLength = uint64(len(body))
	if p.masked {
		hdr.MaskKey = [4]byte{0x12, 0x34, 0x56, 0x78}
		wsframe.Mask(hdr.MaskKey, 0, body)
	}
	_, err := p.stream.Write(append(wsframe.AppendHeader(nil, hdr), body...))
	return err
}

// Read the next frame. The payload is a copy.
func (p *rawPeer) readFrame(timeout time.Duration) (*wsframe.Frame, error) {
	p.stream.SetReadDeadline(time.Now().Add(timeout))
	defer p.stream.SetReadDeadline(time.Time{})
	for {
		frame, n, err := wsframe.DecodeFrame(p.acc.Bytes(), 0, p.exts)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			frame.Payload = bytes.Clone(frame.Payload)
			if err := p.acc.Shift(n); err != nil {
				return nil, err
			}
			return frame, nil
		}
		if _, err := p.acc.Fill(p.stream); err != nil {
			return nil, err
		}
	}
}

// Send an opening handshake request and verify the response.
func (p *rawPeer) clientHandshake(req wshandshake.ClientRequest) (*wshandshake.Response, error) {
	if req.Host == "" {
		req.Host = "localhost"
	}
	if req.Key == "" {
		key, err := wshandshake.NewSecWebSocketKey()
		if err != nil {
			return nil, err
		}
		req.Key = key
	}
	if _, err := p.stream.Write(wshandshake.BuildClientRequest(req)); err != nil {
		return nil, err
	}
	resp, err := p.readResponse()
	if err != nil {
		return nil, err
	}
	return resp, wshandshake.VerifyServerResponse(resp, req.Key)
}

// Read and parse a handshake response.
func (p *rawPeer) readResponse() (*wshandshake.Response, error) {
	head, err := wshandshake.ReadHandshake(p.stream, p.acc, 0)
	if err != nil {
		return nil, err
	}
	return wshandshake.ParseResponse(head)
}

// Read a handshake request and answer it like a server would.
func (p *rawPeer) serverHandshake(extensions string, protocol string) error {
	head, err := wshandshake.ReadHandshake(p.stream, p.acc, 0)
	if err != nil {
		return err
	}
	req, err := wshandshake.ParseRequest(head)
	if err != nil {
		return err
	}
	key, err := wshandshake.VerifyClientRequest(req)
	if err != nil {
		return err
	}
	resp := wshandshake.BuildSwitchingProtocolsResponse(wshandshake.ComputeAcceptKey(key), extensions, protocol)
	_, err = p.stream.Write(resp)
	return err
}

/*************************************************************************************************/
/* RECORDING DISPATCHER                                                                          */
/*************************************************************************************************/

// Dispatcher which records what it receives and optionally echoes messages back.
type recordingDispatcher struct {
	NopDispatcher
	echo         bool
	connected    chan *Conn
	texts        chan string
	binaries     chan []byte
	disconnected chan error
}

func newRecordingDispatcher(echo bool) *recordingDispatcher {
	return &recordingDispatcher{
		echo:         echo,
		connected:    make(chan *Conn, 1),
		texts:        make(chan string, 16),
		binaries:     make(chan []byte, 16),
		disconnected: make(chan error, 1),
	}
}

func (d *recordingDispatcher) OnConnected(ctx context.Context, conn *Conn) error {
	d.connected <- conn
	return nil
}

func (d *recordingDispatcher) OnText(ctx context.Context, conn *Conn, msg string) error {
	if msg == "panic" {
		panic("asked to panic")
	}
	d.texts <- msg
	if d.echo {
		return conn.SendText(ctx, msg)
	}
	return nil
}

func (d *recordingDispatcher) OnBinary(ctx context.Context, conn *Conn, msg []byte) error {
	d.binaries <- msg
	if d.echo {
		return conn.SendBinary(ctx, msg)
	}
	return nil
}

func (d *recordingDispatcher) OnDisconnected(ctx context.Context, conn *Conn, err error) {
	d.disconnected <- err
}

/*************************************************************************************************/
/* ASSERTION HELPERS                                                                             */
/*************************************************************************************************/

// Wait for the connection to be torn down and return the close error.
func waitClosed(t *testing.T, conn *Conn) *CloseError {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := conn.Wait(ctx)
	var cerr *CloseError
	require.ErrorAs(t, err, &cerr)
	return cerr
}

// Read the next frame, check it is a close frame and return its code and reason.
func readClose(t *testing.T, peer *rawPeer) (wsframe.StatusCode, string) {
	frame, err := peer.readFrame(3 * time.Second)
	require.NoError(t, err)
	require.Equal(t, wsframe.OpClose, frame.Header.Opcode)
	code, reason, err := wsframe.ParseClosePayload(frame.Payload)
	require.NoError(t, err)
	return code, reason
}

// Receive a value from ch or fail after a delay.
func receive[T any](t *testing.T, ch <-chan T) T {
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		require.FailNow(t, "timeout while waiting for a value")
	}
	var zero T
	return zero
}
