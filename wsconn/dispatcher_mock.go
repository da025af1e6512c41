package wsconn

import (
	"context"

	"github.com/gbdevw/gowsrfc/wsframe"
	"github.com/stretchr/testify/mock"
)

/*************************************************************************************************/
/* DISPATCHER MOCK                                                                               */
/*************************************************************************************************/

// Mock for Dispatcher. Each callback records its call and returns the predefined values.
type DispatcherMock struct {
	mock.Mock
}

// Factory which creates a new DispatcherMock without expectations.
func NewDispatcherMock() *DispatcherMock {
	return &DispatcherMock{}
}

// Mocked OnConnected method
func (m *DispatcherMock) OnConnected(ctx context.Context, conn *Conn) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

// Mocked OnText method
func (m *DispatcherMock) OnText(ctx context.Context, conn *Conn, msg string) error {
	args := m.Called(ctx, conn, msg)
	return args.Error(0)
}

// Mocked OnBinary method
func (m *DispatcherMock) OnBinary(ctx context.Context, conn *Conn, msg []byte) error {
	args := m.Called(ctx, conn, msg)
	return args.Error(0)
}

// Mocked OnFragmentOpened method
func (m *DispatcherMock) OnFragmentOpened(ctx context.Context, conn *Conn, msgType wsframe.MessageType, chunk []byte) error {
	args := m.Called(ctx, conn, msgType, chunk)
	return args.Error(0)
}

// Mocked OnFragmentContinued method
func (m *DispatcherMock) OnFragmentContinued(ctx context.Context, conn *Conn, chunk []byte) error {
	args := m.Called(ctx, conn, chunk)
	return args.Error(0)
}

// Mocked OnFragmentClosed method
func (m *DispatcherMock) OnFragmentClosed(ctx context.Context, conn *Conn, chunk []byte) error {
	args := m.Called(ctx, conn, chunk)
	return args.Error(0)
}

// Mocked OnDisconnected method
func (m *DispatcherMock) OnDisconnected(ctx context.Context, conn *Conn, err error) {
	m.Called(ctx, conn, err)
}
