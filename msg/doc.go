// Package msg implements the line-oriented command/response channel spoken by
// MSG camera servers, including the raw bulk block mode used for frame transfer.
//
// # Wire Format
//
// Every request is a single whitespace-delimited ASCII line:
//
//	<seq> <verb> <args...>\n
//
// where seq is a positive decimal sequence number the channel increments per
// request. The server answers with exactly one line carrying the same seq:
//
//	<seq> ack <payload...>\n   command succeeded
//	<seq> nak <payload...>\n   command failed on the device
//	<seq> blk <n>\n            exactly n raw bytes follow on the stream
//
// # Concurrency
//
// The protocol is strictly request/response and never pipelined. A Channel
// refuses a second request while one is in flight (ErrBusy), and refuses any
// request while an announced bulk block has not been consumed (ErrBulkPending).
// A Channel is meant to be driven by a single goroutine.
//
// # Timeouts
//
// Every blocking operation honors its context and is additionally bounded by
// the configured reply or bulk timeout. Deadlines surface as
// ErrTimeout, connection loss as ErrTransport, malformed replies as ErrProtocol.
package msg
