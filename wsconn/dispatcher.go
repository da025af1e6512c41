package wsconn

import (
	"context"

	"github.com/gbdevw/gowsrfc/wsframe"
)

/*************************************************************************************************/
/* DISPATCHER                                                                                    */
/*************************************************************************************************/

// Interface for the application callbacks called by a connection.
//
// Callbacks are called sequentially from the connection read loop goroutine. Errors returned and
// panics raised by callbacks are logged and never stop the read loop. Byte slices passed to
// callbacks are owned by the callee.
type Dispatcher interface {
	// # Description
	//
	// Called once the opening handshake has completed, before any message is dispatched.
	OnConnected(ctx context.Context, conn *Conn) error
	// # Description
	//
	// Called when a complete text message has been received. The message is valid UTF-8.
	OnText(ctx context.Context, conn *Conn, msg string) error
	// # Description
	//
	// Called when a complete binary message has been received.
	OnBinary(ctx context.Context, conn *Conn, msg []byte) error
	// # Description
	//
	// Called with the first frame of a fragmented message. Compressed fragmented messages are not
	// streamed: they are delivered whole through OnText or OnBinary.
	OnFragmentOpened(ctx context.Context, conn *Conn, msgType wsframe.MessageType, chunk []byte) error
	// # Description
	//
	// Called with each non-final continuation frame of a fragmented message.
	OnFragmentContinued(ctx context.Context, conn *Conn, chunk []byte) error
	// # Description
	//
	// Called with the final continuation frame of a fragmented message.
	OnFragmentClosed(ctx context.Context, conn *Conn, chunk []byte) error
	// # Description
	//
	// Called once when a connection which was open is torn down. err is a *CloseError describing
	// why the connection has ended.
	OnDisconnected(ctx context.Context, conn *Conn, err error)
}

// Dispatcher implementation which ignores everything. Embed it to implement only the callbacks
// you need.
type NopDispatcher struct{}

func (NopDispatcher) OnConnected(ctx context.Context, conn *Conn) error { return nil }

func (NopDispatcher) OnText(ctx context.Context, conn *Conn, msg string) error { return nil }

func (NopDispatcher) OnBinary(ctx context.Context, conn *Conn, msg []byte) error { return nil }

func (NopDispatcher) OnFragmentOpened(ctx context.Context, conn *Conn, msgType wsframe.MessageType, chunk []byte) error {
	return nil
}

func (NopDispatcher) OnFragmentContinued(ctx context.Context, conn *Conn, chunk []byte) error {
	return nil
}

func (NopDispatcher) OnFragmentClosed(ctx context.Context, conn *Conn, chunk []byte) error {
	return nil
}

func (NopDispatcher) OnDisconnected(ctx context.Context, conn *Conn, err error) {}

/*************************************************************************************************/
/* ROUTER                                                                                        */
/*************************************************************************************************/

// Interface used by server sessions to pick the dispatcher of an incoming connection.
type Router interface {
	// # Description
	//
	// Resolve the dispatcher for the requested path and raw query. Returning false fails the
	// opening handshake with 400 Bad Request.
	Resolve(path string, rawQuery string) (Dispatcher, bool)
}

// Adapter which allows the use of an ordinary function as Router.
type RouterFunc func(path string, rawQuery string) (Dispatcher, bool)

func (fn RouterFunc) Resolve(path string, rawQuery string) (Dispatcher, bool) {
	return fn(path, rawQuery)
}

// Router which resolves every path to the same dispatcher.
func SingleRoute(dispatcher Dispatcher) Router {
	return RouterFunc(func(string, string) (Dispatcher, bool) {
		return dispatcher, true
	})
}
