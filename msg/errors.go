package msg

import "errors"

var (
	// ErrTransport indicates that the underlying connection failed or dropped
	// before the exchange completed.
	ErrTransport = errors.New("msg: transport error")

	// ErrProtocol indicates a malformed or unexpected reply.
	ErrProtocol = errors.New("msg: protocol error")

	// ErrTimeout indicates that a deadline elapsed while waiting on the device.
	ErrTimeout = errors.New("msg: timeout")

	// ErrRejected indicates that the server answered a get request with nak.
	ErrRejected = errors.New("msg: request rejected by server")
)

var (
	// ErrBusy indicates that a request was issued while another one is still in flight.
	ErrBusy = errors.New("msg: another request is in flight")

	// ErrBulkPending indicates that a request was issued before an announced
	// bulk block was consumed.
	ErrBulkPending = errors.New("msg: bulk block pending")

	// ErrNoBulkPending indicates that ReadBulk was called without a preceding blk reply.
	ErrNoBulkPending = errors.New("msg: no bulk block pending")

	// ErrCanceled indicates an exchange interrupted by context cancellation.
	// The returned error also matches context.Canceled.
	ErrCanceled = errors.New("msg: request canceled")

	// ErrClosed indicates that the channel is closed.
	ErrClosed = errors.New("msg: channel closed")

	// ErrInvalidArgument indicates a command argument that cannot be framed on a single line.
	ErrInvalidArgument = errors.New("msg: invalid command argument")
)
