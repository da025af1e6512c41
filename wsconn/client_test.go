package wsconn

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gbdevw/gowsrfc/wsext"
	"github.com/gbdevw/gowsrfc/wsframe"
	"github.com/gbdevw/gowsrfc/wshandshake"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for client side connection tests. Clients connect to gorilla websocket servers
// or to a raw peer through an in-memory pipe.
type ClientTestSuite struct {
	suite.Suite
}

// Run ClientTestSuite test suite
func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

/*************************************************************************************************/
/* TEST HELPERS                                                                                  */
/*************************************************************************************************/

// Dialer which hands out one end of a pipe.
type pipeDialer struct {
	conn net.Conn
}

func (d pipeDialer) DialContext(ctx context.Context, network string, address string) (net.Conn, error) {
	return d.conn, nil
}

// Start a gorilla websocket server which echoes every message.
func gorillaEchoServer(upgrader *websocket.Upgrader) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
}

// Websocket URL of a test server.
func (suite *ClientTestSuite) wsURL(server *httptest.Server) *url.URL {
	target, err := url.Parse("ws" + strings.TrimPrefix(server.URL, "http"))
	require.NoError(suite.T(), err)
	return target
}

// Connect a client to a raw server peer through a pipe.
func (suite *ClientTestSuite) connectPipe(opts *ConnectionOptions, dispatcher Dispatcher) (*Client, *rawPeer) {
	serverEnd, clientEnd := net.Pipe()
	suite.T().Cleanup(func() {
		clientEnd.Close()
		serverEnd.Close()
	})
	target, err := url.Parse("ws://pipe/chat")
	require.NoError(suite.T(), err)
	client, err := NewClient(target, dispatcher, opts.WithDialer(pipeDialer{conn: clientEnd}), nil, zap.NewNop(), nil)
	require.NoError(suite.T(), err)
	peer := newRawPeer(serverEnd, false)
	handshake := make(chan error, 1)
	go func() {
		handshake <- peer.serverHandshake("", "")
	}()
	require.NoError(suite.T(), client.Connect(context.Background()))
	require.NoError(suite.T(), receive(suite.T(), handshake))
	return client, peer
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test NewClient with invalid inputs.
func (suite *ClientTestSuite) TestNewClientInvalidInputs() {
	target, err := url.Parse("ws://localhost:8080/")
	require.NoError(suite.T(), err)
	_, err = NewClient(nil, NopDispatcher{}, nil, nil, nil, nil)
	require.Error(suite.T(), err)
	httpTarget, err := url.Parse("http://localhost:8080/")
	require.NoError(suite.T(), err)
	_, err = NewClient(httpTarget, NopDispatcher{}, nil, nil, nil, nil)
	require.Error(suite.T(), err)
	_, err = NewClient(target, nil, nil, nil, nil, nil)
	require.Error(suite.T(), err)
	_, err = NewClient(target, NopDispatcher{}, NewConnectionOptions().WithReceiveBufferSize(-1), nil, nil, nil)
	require.Error(suite.T(), err)
	client, err := NewClient(target, NopDispatcher{}, nil, nil, nil, nil)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), RoleClient, client.Role())
	require.Equal(suite.T(), StateNone, client.State())
	require.Nil(suite.T(), client.RemoteAddr())
	// Sending before connecting fails
	require.ErrorIs(suite.T(), client.SendText(context.Background(), "hello"), ErrNotOpen)
	// Closing a client which has never connected tears it down
	require.NoError(suite.T(), client.Close(wsframe.NormalClosure, ""))
	<-client.Done()
	require.Equal(suite.T(), StateDisposed, client.State())
	require.ErrorIs(suite.T(), client.Err(), ErrNotOpen)
	require.ErrorIs(suite.T(), client.Connect(context.Background()), ErrAlreadyConnected)
	require.ErrorIs(suite.T(), client.Close(wsframe.NormalClosure, ""), ErrNotOpen)
}

// Test the default port of each scheme.
func (suite *ClientTestSuite) TestHostPort() {
	for raw, expected := range map[string]string{
		"ws://example.com/chat":  "example.com:80",
		"wss://example.com/chat": "example.com:443",
		"ws://example.com:8080/": "example.com:8080",
		"wss://[::1]/":           "[::1]:443",
	} {
		target, err := url.Parse(raw)
		require.NoError(suite.T(), err)
		require.Equal(suite.T(), expected, hostPort(target))
	}
}

/*************************************************************************************************/
/* INTEGRATION TESTS WITH GORILLA                                                                */
/*************************************************************************************************/

// Test a client exchanges messages with a gorilla server and closes the connection.
func (suite *ClientTestSuite) TestEchoWithGorilla() {
	server := gorillaEchoServer(&websocket.Upgrader{Subprotocols: []string{"chat"}})
	defer server.Close()
	dispatcher := newRecordingDispatcher(false)
	opts := testOptions().
		WithSubprotocols("superchat", "chat").
		WithHeader("X-Request-Id", "42")
	client, err := NewClient(suite.wsURL(server), dispatcher, opts, nil, zap.NewNop(), nil)
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), client.Connect(context.Background()))
	require.Same(suite.T(), client.Conn, receive(suite.T(), dispatcher.connected))
	require.Equal(suite.T(), StateOpen, client.State())
	require.Equal(suite.T(), "chat", client.Subprotocol())
	require.Empty(suite.T(), client.Extensions())
	require.NotNil(suite.T(), client.RemoteAddr())
	// Messages
	require.NoError(suite.T(), client.SendText(context.Background(), "hello"))
	require.Equal(suite.T(), "hello", receive(suite.T(), dispatcher.texts))
	require.NoError(suite.T(), client.SendBinary(context.Background(), []byte{1, 2, 3}))
	require.Equal(suite.T(), []byte{1, 2, 3}, receive(suite.T(), dispatcher.binaries))
	// Fragmented message is reassembled and echoed by the server
	require.NoError(suite.T(), client.SendFragment(context.Background(), wsframe.Text, []byte("Hel"), true, false))
	require.NoError(suite.T(), client.SendFragment(context.Background(), wsframe.Text, []byte("lo"), false, true))
	require.Equal(suite.T(), "Hello", receive(suite.T(), dispatcher.texts))
	// Closing handshake
	require.NoError(suite.T(), client.Close(wsframe.NormalClosure, "bye"))
	cerr := waitClosed(suite.T(), client.Conn)
	require.Equal(suite.T(), wsframe.NormalClosure, cerr.Code)
	require.Equal(suite.T(), "bye", cerr.Reason)
	require.NoError(suite.T(), cerr.Err)
	require.Same(suite.T(), cerr, receive(suite.T(), dispatcher.disconnected))
	// A client connects once
	require.ErrorIs(suite.T(), client.Connect(context.Background()), ErrAlreadyConnected)
}

// Test permessage-deflate interoperability with gorilla.
func (suite *ClientTestSuite) TestCompressionWithGorilla() {
	server := gorillaEchoServer(&websocket.Upgrader{EnableCompression: true})
	defer server.Close()
	dispatcher := newRecordingDispatcher(false)
	opts := testOptions().WithExtensions(wsext.NewPerMessageDeflate())
	client, err := NewClient(suite.wsURL(server), dispatcher, opts, nil, zap.NewNop(), nil)
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), client.Connect(context.Background()))
	require.Equal(suite.T(), []string{wsext.PerMessageDeflateName}, client.Extensions())
	for _, msg := range []string{"short", strings.Repeat("a rather compressible message ", 100)} {
		require.NoError(suite.T(), client.SendText(context.Background(), msg))
		require.Equal(suite.T(), msg, receive(suite.T(), dispatcher.texts))
	}
	require.NoError(suite.T(), client.Close(wsframe.NormalClosure, ""))
	require.Equal(suite.T(), wsframe.NormalClosure, waitClosed(suite.T(), client.Conn).Code)
}

// Test a server which does not switch protocols.
func (suite *ClientTestSuite) TestUnexpectedStatus() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()
	dispatcher := newRecordingDispatcher(false)
	client, err := NewClient(suite.wsURL(server), dispatcher, testOptions(), nil, zap.NewNop(), nil)
	require.NoError(suite.T(), err)
	err = client.Connect(context.Background())
	var cerr ConnectError
	require.ErrorAs(suite.T(), err, &cerr)
	require.ErrorIs(suite.T(), err, wshandshake.ErrUnexpectedStatus)
	require.Equal(suite.T(), KindHandshake, ClassifyError(err))
	<-client.Done()
	require.Equal(suite.T(), StateDisposed, client.State())
	require.Empty(suite.T(), dispatcher.connected)
	require.Empty(suite.T(), dispatcher.disconnected)
}

// Test a server which selects a subprotocol the client has not offered.
func (suite *ClientTestSuite) TestUnexpectedSubprotocol() {
	serverEnd, clientEnd := net.Pipe()
	defer serverEnd.Close()
	target, err := url.Parse("ws://pipe/")
	require.NoError(suite.T(), err)
	opts := testOptions().WithDialer(pipeDialer{conn: clientEnd})
	client, err := NewClient(target, NopDispatcher{}, opts, nil, zap.NewNop(), nil)
	require.NoError(suite.T(), err)
	peer := newRawPeer(serverEnd, false)
	go peer.serverHandshake("", "chat")
	err = client.Connect(context.Background())
	require.ErrorIs(suite.T(), err, wsext.ErrSubprotocolMismatch)
	require.Equal(suite.T(), KindHandshake, ClassifyError(err))
}

// Test a server which agrees on an extension the client has not offered.
func (suite *ClientTestSuite) TestUnexpectedExtension() {
	serverEnd, clientEnd := net.Pipe()
	defer serverEnd.Close()
	target, err := url.Parse("ws://pipe/")
	require.NoError(suite.T(), err)
	opts := testOptions().WithDialer(pipeDialer{conn: clientEnd})
	client, err := NewClient(target, NopDispatcher{}, opts, nil, zap.NewNop(), nil)
	require.NoError(suite.T(), err)
	peer := newRawPeer(serverEnd, false)
	go peer.serverHandshake("permessage-deflate", "")
	err = client.Connect(context.Background())
	require.ErrorIs(suite.T(), err, wsext.ErrUnexpectedExtension)
	require.Equal(suite.T(), KindHandshake, ClassifyError(err))
}

// Test a connection refused by the target.
func (suite *ClientTestSuite) TestConnectionRefused() {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(suite.T(), err)
	target, err := url.Parse("ws://" + listener.Addr().String() + "/")
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), listener.Close())
	client, err := NewClient(target, NopDispatcher{}, testOptions().WithConnectTimeoutMs(1000), nil, zap.NewNop(), nil)
	require.NoError(suite.T(), err)
	err = client.Connect(context.Background())
	var cerr ConnectError
	require.ErrorAs(suite.T(), err, &cerr)
	require.Equal(suite.T(), KindTransport, ClassifyError(err))
	require.Equal(suite.T(), StateDisposed, client.State())
}

/*************************************************************************************************/
/* TESTS WITH A RAW SERVER PEER                                                                  */
/*************************************************************************************************/

// Test frames sent by a client are masked.
func (suite *ClientTestSuite) TestClientFramesAreMasked() {
	client, peer := suite.connectPipe(testOptions(), NopDispatcher{})
	sent := make(chan error, 1)
	go func() {
		sent <- client.SendText(context.Background(), "hi")
	}()
	frame, err := peer.readFrame(3 * time.Second)
	require.NoError(suite.T(), err)
	require.True(suite.T(), frame.Header.Masked)
	require.Equal(suite.T(), "hi", string(frame.Payload))
	require.NoError(suite.T(), receive(suite.T(), sent))
}

// Test a masked server frame fails the connection with 1002.
func (suite *ClientTestSuite) TestMaskedServerFrame() {
	dispatcher := newRecordingDispatcher(false)
	client, peer := suite.connectPipe(testOptions(), dispatcher)
	peer.masked = true
	go peer.writeFrame(wsframe.OpText, []byte("masked"), true)
	code, _ := readClose(suite.T(), peer)
	require.Equal(suite.T(), wsframe.ProtocolErrorCode, code)
	cerr := waitClosed(suite.T(), client.Conn)
	require.Equal(suite.T(), wsframe.ProtocolErrorCode, cerr.Code)
	require.Same(suite.T(), cerr, receive(suite.T(), dispatcher.disconnected))
}

// Test a server initiated close: the client echoes it and waits for the server to close the
// stream, then gives up after the close timeout.
func (suite *ClientTestSuite) TestServerCloseWithoutStreamClose() {
	client, peer := suite.connectPipe(testOptions().WithCloseTimeoutMs(100), NopDispatcher{})
	payload, err := wsframe.BuildClosePayload(wsframe.NormalClosure, "bye")
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), peer.writeFrame(wsframe.OpClose, payload, true))
	code, reason := readClose(suite.T(), peer)
	require.Equal(suite.T(), wsframe.NormalClosure, code)
	require.Empty(suite.T(), reason)
	start := time.Now()
	cerr := waitClosed(suite.T(), client.Conn)
	require.Less(suite.T(), time.Since(start), 2*time.Second)
	require.Equal(suite.T(), wsframe.NormalClosure, cerr.Code)
	require.Equal(suite.T(), "bye", cerr.Reason)
	// A single close frame has been sent
	_, err = peer.readFrame(3 * time.Second)
	require.Error(suite.T(), err)
}

// Test a server which never answers the handshake.
func (suite *ClientTestSuite) TestHandshakeTimeout() {
	serverEnd, clientEnd := net.Pipe()
	defer serverEnd.Close()
	target, err := url.Parse("ws://pipe/")
	require.NoError(suite.T(), err)
	opts := testOptions().WithHandshakeTimeoutMs(100).WithDialer(pipeDialer{conn: clientEnd})
	client, err := NewClient(target, NopDispatcher{}, opts, nil, zap.NewNop(), nil)
	require.NoError(suite.T(), err)
	err = client.Connect(context.Background())
	require.Error(suite.T(), err)
	require.True(suite.T(), errors.As(err, new(ConnectError)))
	require.Equal(suite.T(), KindTransport, ClassifyError(err))
}
