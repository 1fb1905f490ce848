package hubsocket

import "context"

// ConnectionContext is the narrow capability a Socket uses to talk back to
// the transport without depending on it.
type ConnectionContext interface {
	// AddHeader records a header that later requests and sockets will carry.
	AddHeader(key, value string)
	// ReportError surfaces an error from the socket's worker. Errors wrapping
	// ErrConnectionLost tell the transport the connection dropped.
	ReportError(err error)
}

// FrameHandler receives inbound frames from a Socket.
type FrameHandler interface {
	// OnFrame is called with each reassembled text message, in arrival order.
	OnFrame(text string)
	// OnKeepAlive is called for each heartbeat frame, which is not passed to OnFrame.
	OnKeepAlive()
}

// Socket owns one physical duplex connection. A Socket is used for a
// single connection attempt and discarded afterwards.
type Socket interface {
	// AddHeader sets a header on the opening handshake. It must be called before Connect.
	AddHeader(key, value string)
	// Connect opens the connection and starts the socket's worker. It returns
	// once the handshake completed or failed. The worker stops when ctx is
	// done or Dispose is called.
	Connect(ctx context.Context, uri string) error
	// Enqueue appends a text message to the outbound queue without blocking.
	Enqueue(message string) error
	// IsOpen reports whether the connection is currently open.
	IsOpen() bool
	// Dispose cancels the worker and releases the connection. It is safe to
	// call more than once and concurrently with Connect or Enqueue.
	Dispose()
}

// SocketFactory creates a Socket bound to a connection context and frame handler.
type SocketFactory func(cc ConnectionContext, h FrameHandler) Socket
