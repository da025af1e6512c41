package wsserver

import "errors"

var (
	// Start has been called on a started server
	ErrServerStarted = errors.New("server already started")
	// Stop has been called on a server which is not started
	ErrServerNotStarted = errors.New("server not started")
	// The server has been stopped and cannot be used anymore
	ErrServerStopped = errors.New("server stopped")
	// Sessions have not ended before the shutdown timeout
	ErrShutdownTimeout = errors.New("sessions did not end before shutdown timeout")
)
