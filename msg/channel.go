package msg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-msgcam/logger"
)

const (
	verbGet = "get"
	verbRun = "run"
)

// Channel is a request/response channel over a Transport.
//
// At most one request is outstanding at any time. The fields below inflight are
// only touched by the goroutine that won the inflight flag.
type Channel struct {
	t      Transport
	cfg    *channelConfig
	logger logger.Logger

	closed   atomic.Bool
	inflight atomic.Bool

	seq         uint32
	bulkPending bool
	bulkSize    int
	broken      error

	metrics ChannelMetrics
}

// NewChannel creates a Channel over t. The channel owns t and closes it on Close.
func NewChannel(t Transport, opts ...Option) (*Channel, error) {
	if t == nil {
		return nil, errors.New("msg: transport is nil")
	}

	cfg := defaultChannelConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return &Channel{
		t:      t,
		cfg:    cfg,
		logger: cfg.logger,
	}, nil
}

// Send writes a request line built from verb and args and waits for the reply
// carrying the same sequence number.
//
// A blk reply leaves a bulk block pending; the caller must consume it with
// ReadBulk or DiscardBulk before the next request.
//
// I/O failures match ErrTimeout when ctx or the reply timeout expires,
// ErrCanceled when ctx is canceled and ErrTransport otherwise.
func (c *Channel) Send(ctx context.Context, verb string, args ...any) (*Reply, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	if c.bulkPending {
		return nil, ErrBulkPending
	}

	line, err := formatRequest(c.seq+1, verb, args)
	if err != nil {
		return nil, err
	}
	c.seq++
	seq := c.seq

	ctx, cancel := context.WithTimeout(ctx, c.cfg.replyTimeout)
	defer cancel()

	unbind := c.bindDeadline(ctx)
	defer unbind()

	c.logger.Debug("msg: send request", "seq", seq, "request", strings.TrimSpace(line))

	if _, err := io.WriteString(c.t, line); err != nil {
		return nil, c.ioFailure(ctx, "write request", err)
	}
	if err := c.t.Flush(); err != nil {
		return nil, c.ioFailure(ctx, "flush request", err)
	}
	c.metrics.incCommandSendCount()

	return c.awaitReply(ctx, seq)
}

// NextReply reads one more reply line for the most recent request.
// Negotiated transfers answer a single request with more than one line.
func (c *Channel) NextReply(ctx context.Context) (*Reply, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	if c.bulkPending {
		return nil, ErrBulkPending
	}
	if c.seq == 0 {
		return nil, fmt.Errorf("%w: no request issued", ErrProtocol)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.replyTimeout)
	defer cancel()

	unbind := c.bindDeadline(ctx)
	defer unbind()

	return c.awaitReply(ctx, c.seq)
}

// ReadBulk reads exactly the byte count announced by the last blk reply.
//
// A failed bulk read leaves the stream position unknown, so the channel refuses
// further requests with ErrTransport afterwards.
func (c *Channel) ReadBulk(ctx context.Context) ([]byte, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	if !c.bulkPending {
		return nil, ErrNoBulkPending
	}

	n := c.bulkSize
	c.bulkPending = false
	c.bulkSize = 0

	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.bulkTimeout)
	defer cancel()

	unbind := c.bindDeadline(ctx)
	defer unbind()

	if err := c.t.ReadFull(buf); err != nil {
		c.broken = err
		return nil, c.ioFailure(ctx, "read bulk block", err)
	}
	c.metrics.addBulkBytes(n)
	c.logger.Debug("msg: bulk block received", "seq", c.seq, "bytes", n)

	return buf, nil
}

// DiscardBulk reads and drops a pending bulk block. It is a no-op when no
// block is pending.
func (c *Channel) DiscardBulk(ctx context.Context) error {
	_, err := c.ReadBulk(ctx)
	if errors.Is(err, ErrNoBulkPending) {
		return nil
	}

	return err
}

// Get sends "get <key>" and returns the ack payload.
func (c *Channel) Get(ctx context.Context, key string) (string, error) {
	reply, err := c.Send(ctx, verbGet, key)
	if err != nil {
		return "", err
	}

	switch reply.Status {
	case StatusAck:
		return reply.Text(), nil
	case StatusNak:
		return "", fmt.Errorf("%w: get %s: %s", ErrRejected, key, reply.Text())
	default:
		_ = c.DiscardBulk(ctx)
		return "", fmt.Errorf("%w: unexpected %s reply to get %s", ErrProtocol, reply.Status, key)
	}
}

// Run sends "run <cmd> <args...>" and reports the device's success flag.
func (c *Channel) Run(ctx context.Context, cmd string, args ...any) (bool, error) {
	reply, err := c.Send(ctx, verbRun, append([]any{cmd}, args...)...)
	if err != nil {
		return false, err
	}

	switch reply.Status {
	case StatusAck:
		return true, nil
	case StatusNak:
		c.logger.Debug("msg: command failed on device", "cmd", cmd, "reason", reply.Text())
		return false, nil
	default:
		_ = c.DiscardBulk(ctx)
		return false, fmt.Errorf("%w: unexpected %s reply to run %s", ErrProtocol, reply.Status, cmd)
	}
}

// Close closes the channel and its transport.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	return c.t.Close()
}

// IsClosed reports whether Close was called.
func (c *Channel) IsClosed() bool { return c.closed.Load() }

// LastSeq returns the sequence number of the most recent request.
func (c *Channel) LastSeq() uint32 {
	if err := c.acquire(); err != nil {
		return 0
	}
	defer c.release()

	return c.seq
}

// GetLogger returns the logger associated with the channel.
func (c *Channel) GetLogger() logger.Logger { return c.logger }

// GetMetrics returns the metrics associated with the channel.
func (c *Channel) GetMetrics() *ChannelMetrics { return &c.metrics }

func (c *Channel) acquire() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.inflight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	if c.broken != nil {
		err := c.broken
		c.inflight.Store(false)
		return fmt.Errorf("%w: stream out of sync: %w", ErrTransport, err)
	}

	return nil
}

func (c *Channel) release() {
	c.inflight.Store(false)
}

// awaitReply reads lines until the reply for seq arrives. Replies to earlier,
// abandoned requests are dropped together with any bulk block they announce.
func (c *Channel) awaitReply(ctx context.Context, seq uint32) (*Reply, error) {
	for {
		line, err := c.t.ReadLine()
		if err != nil {
			return nil, c.ioFailure(ctx, "read reply", err)
		}

		reply, err := ParseReply(line)
		if err != nil {
			c.metrics.incErrCount()
			return nil, err
		}

		if reply.Status == StatusBlk {
			n, _ := reply.BlockSize() // validated by ParseReply
			if n > c.cfg.maxBulkSize {
				c.metrics.incErrCount()
				c.broken = fmt.Errorf("%w: bulk block of %d bytes exceeds limit %d", ErrProtocol, n, c.cfg.maxBulkSize)
				return nil, c.broken
			}
		}

		switch {
		case reply.Seq == seq:
			c.metrics.incReplyRecvCount(reply.Status)
			c.logger.Debug("msg: receive reply", "seq", seq, "reply", line)

			if reply.Status == StatusBlk {
				c.bulkPending = true
				c.bulkSize, _ = reply.BlockSize()
			}

			return reply, nil

		case reply.Seq < seq:
			c.metrics.incStaleReplyCount()
			c.logger.Warn("msg: discard stale reply", "expected_seq", seq, "reply", line)

			if reply.Status == StatusBlk {
				n, _ := reply.BlockSize()
				if err := c.t.ReadFull(make([]byte, n)); err != nil {
					c.broken = err
					return nil, c.ioFailure(ctx, "discard stale bulk block", err)
				}
			}

		default:
			c.metrics.incErrCount()
			return nil, fmt.Errorf("%w: reply seq %d ahead of request seq %d", ErrProtocol, reply.Seq, seq)
		}
	}
}

// bindDeadline applies ctx's deadline to the transport and interrupts blocked
// I/O when ctx is cancelled early. The returned func must be called once the
// exchange is over.
func (c *Channel) bindDeadline(ctx context.Context) func() {
	deadline, _ := ctx.Deadline()
	_ = c.t.SetDeadline(deadline)

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.t.SetDeadline(time.Unix(1, 0))
		close(fired)
	})

	return func() {
		if !stop() {
			<-fired
		}
		_ = c.t.SetDeadline(time.Time{})
	}
}

func (c *Channel) ioFailure(ctx context.Context, op string, err error) error {
	c.metrics.incErrCount()

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: %w", ErrTimeout, op, ctxErr)
		}

		return fmt.Errorf("%w: %s: %w", ErrCanceled, op, ctxErr)
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}

	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
